package hardgates

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hardgate/internal/taxonomy"
)

// Validate converts the merged model output into a record. Malformed entries
// are dropped, paths not in files are replaced, and the taxonomy is filled.
func Validate(raw map[string]any, files map[string]string) *taxonomy.AnalysisRecord {
	rec := taxonomy.NewRecord()
	rec.TechnologyStack = validateStack(raw["technology_stack"], files)
	rec.Findings = validateFindings(raw["findings"], files)
	rec.ComponentAnalysis = validateComponents(raw["component_analysis"])
	rec.SecurityQualityAnalysis = validatePractices(raw["security_quality_analysis"])
	rec.FillTaxonomy()
	return rec
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		if s {
			return "yes", true
		}
		return "no", true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(s), true
	}
}

func stringOr(m map[string]any, key, def string) string {
	if s, ok := asString(m[key]); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return def
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func validateStack(v any, files map[string]string) map[string][]taxonomy.Technology {
	out := map[string][]taxonomy.Technology{}
	stack, _ := v.(map[string]any)
	for cat, entries := range stack {
		list, ok := entries.([]any)
		if !ok {
			continue
		}
		var techs []taxonomy.Technology
		for _, e := range list {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			name, ok := asString(m["name"])
			if !ok || strings.TrimSpace(name) == "" {
				continue
			}
			tech := taxonomy.Technology{
				Name:    name,
				Version: stringOr(m, "version", "unknown"),
				Purpose: stringOr(m, "purpose", "N/A"),
				Files:   []string{},
			}
			if paths, ok := m["files"].([]any); ok {
				for _, p := range paths {
					if s, ok := p.(string); ok {
						if _, crawled := files[s]; crawled {
							tech.Files = append(tech.Files, s)
						}
					}
				}
			}
			techs = append(techs, tech)
		}
		if len(techs) > 0 {
			out[cat] = techs
		}
	}
	return out
}

func validateFindings(v any, files map[string]string) []taxonomy.Finding {
	out := []taxonomy.Finding{}
	list, _ := v.([]any)
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		desc, ok := asString(m["description"])
		if !ok || strings.TrimSpace(desc) == "" {
			continue
		}
		sev, _ := asString(m["severity"])
		f := taxonomy.Finding{
			Category:       stringOr(m, "category", "quality"),
			Severity:       taxonomy.ParseSeverity(sev),
			Description:    desc,
			Recommendation: stringOr(m, "recommendation", ""),
			Location:       validateLocation(m["location"], files),
		}
		out = append(out, f)
	}
	return out
}

// validateLocation keeps crawled paths only and clamps the line to the file.
func validateLocation(v any, files map[string]string) taxonomy.Location {
	loc := taxonomy.Location{File: taxonomy.UnknownFile}
	m, ok := v.(map[string]any)
	if !ok {
		return loc
	}
	loc.Code, _ = asString(m["code"])
	path, _ := asString(m["file"])
	content, crawled := files[path]
	if !crawled {
		return loc
	}
	loc.File = path
	line, ok := asInt(m["line"])
	if !ok {
		line = 0
	}
	loc.Line = clampLine(line, content)
	return loc
}

func clampLine(line int, content string) int {
	if line < 0 || line > strings.Count(content, "\n")+1 {
		return 0
	}
	return line
}

// revalidate holds a stored record to the same rules against the current
// crawl: technology files and finding locations must name crawled files.
func revalidate(rec *taxonomy.AnalysisRecord, files map[string]string) {
	for cat, techs := range rec.TechnologyStack {
		for i := range techs {
			kept := []string{}
			for _, p := range techs[i].Files {
				if _, crawled := files[p]; crawled {
					kept = append(kept, p)
				}
			}
			techs[i].Files = kept
		}
		rec.TechnologyStack[cat] = techs
	}
	for i := range rec.Findings {
		loc := &rec.Findings[i].Location
		content, crawled := files[loc.File]
		if !crawled {
			loc.File = taxonomy.UnknownFile
			loc.Line = 0
			continue
		}
		loc.Line = clampLine(loc.Line, content)
	}
}

func validateComponents(v any) map[string]taxonomy.ComponentResult {
	out := map[string]taxonomy.ComponentResult{}
	comps, _ := v.(map[string]any)
	for name, e := range comps {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		c, ok := taxonomy.MatchComponent(name)
		if !ok {
			continue
		}
		det, ok := asString(m["detected"])
		if !ok {
			continue
		}
		det = strings.ToLower(strings.TrimSpace(det))
		if det != "yes" {
			det = "no"
		}
		// A "yes" from any alias of the same component wins.
		if prev, seen := out[c.Key]; seen && prev.IsDetected() && det != "yes" {
			continue
		}
		out[c.Key] = taxonomy.ComponentResult{
			Detected: det,
			Evidence: stringOr(m, "evidence", "No evidence provided"),
		}
	}
	return out
}

func validatePractices(v any) map[string]map[string]taxonomy.PracticeResult {
	out := map[string]map[string]taxonomy.PracticeResult{}
	cats, _ := v.(map[string]any)
	for cat, e := range cats {
		practices, ok := e.(map[string]any)
		if !ok {
			continue
		}
		for practice, pe := range practices {
			if !taxonomy.IsPractice(cat, practice) {
				continue
			}
			m, ok := pe.(map[string]any)
			if !ok {
				continue
			}
			status, _ := asString(m["implemented"])
			if out[cat] == nil {
				out[cat] = map[string]taxonomy.PracticeResult{}
			}
			out[cat][practice] = taxonomy.PracticeResult{
				Implemented:    taxonomy.ParseStatus(status),
				Evidence:       stringOr(m, "evidence", "No evidence provided"),
				Recommendation: stringOr(m, "recommendation", taxonomy.DefaultRecommendation),
			}
		}
	}
	return out
}
