package assessment

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/prompts"
	"github.com/hardgate/internal/report"
	"github.com/hardgate/internal/taxonomy"
)

const (
	maxSummaryFindings = 10
	maxAssessmentChars = 4000
	fallbackTechLimit  = 5
)

// InsightsTitle is the heading of the insights document.
func InsightsTitle(name string) string {
	return "OpenShift Migration Insights for " + name
}

// Generator writes the migration insights report.
type Generator struct {
	llm llm.Caller
	now func() time.Time
}

// NewGenerator returns a generator using caller.
func NewGenerator(caller llm.Caller) *Generator {
	return &Generator{llm: caller, now: time.Now}
}

// Summary is the textual digest of the analysis sent to the model.
func Summary(in Input) string {
	rec := in.record()
	var b strings.Builder
	fmt.Fprintf(&b, "\nAPPLICATION: %s\n\nTECHNOLOGY STACK:\n", in.ProjectName)
	for _, cat := range rec.TechnologyCategories() {
		fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(cat))
		for _, t := range rec.TechnologyStack[cat] {
			fmt.Fprintf(&b, "  - %s (Version: %s) - %s\n", t.Name, t.Version, t.Purpose)
		}
	}

	b.WriteString("\nSECURITY & QUALITY ANALYSIS:\n")
	for _, cat := range taxonomy.Categories {
		fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(cat.Key))
		for _, p := range cat.Practices {
			res := rec.Practice(cat.Key, p)
			fmt.Fprintf(&b, "  - %s: %s - %s - %s\n", p, res.Implemented, res.Evidence, res.Recommendation)
		}
	}

	if len(rec.Findings) > 0 {
		fmt.Fprintf(&b, "\nCODE ANALYSIS FINDINGS (%d issues):\n", len(rec.Findings))
		for i, f := range rec.Findings {
			if i == maxSummaryFindings {
				break
			}
			fmt.Fprintf(&b, "  - %s: %s\n", strings.ToUpper(string(f.Severity)), f.Description)
		}
	}

	if len(rec.ComponentAnalysis) > 0 {
		b.WriteString("\nCOMPONENT ANALYSIS:\n")
		for _, c := range taxonomy.Catalogue {
			if res, ok := rec.ComponentAnalysis[c.Key]; ok {
				fmt.Fprintf(&b, "  - %s: detected=%s, evidence=%s\n", c.Key, res.Detected, res.Evidence)
			}
		}
	}

	if len(in.Files) > 0 {
		var exts []string
		for _, e := range report.Extensions(in.Files) {
			exts = append(exts, fmt.Sprintf("%s (%d)", e.Ext, e.Count))
		}
		fmt.Fprintf(&b, "\nFILE ANALYSIS:\n  - Total files analyzed: %d\n  - File types: %s\n", len(in.Files), strings.Join(exts, ", "))
	}

	if text := report.StripTags(in.Assessment); text != "" {
		if len(text) > maxAssessmentChars {
			text = llm.Head(text, maxAssessmentChars) + "..."
		}
		fmt.Fprintf(&b, "\nINTAKE ASSESSMENT:\n%s\n", text)
	}
	return b.String()
}

// InsightsPrompt renders the insights prompt.
func InsightsPrompt(in Input) (string, error) {
	return prompts.Render(prompts.MigrationInsights, prompts.Vars{
		"analysis_summary": Summary(in),
		"project_name":     in.ProjectName,
		"stylesheet":       report.Stylesheet,
	})
}

var goStatusPattern = regexp.MustCompile(`(?is)<div class="go-status[^"]*">.*?</div>`)

// Generate asks the model for the insights document. When the model fails
// a deterministic report is produced instead. The Go/No-Go status always
// reflects the record.
func (g *Generator) Generate(ctx context.Context, in Input) blackboard.InsightsOutput {
	logger := logging.GetCurrentLogger()
	logger.LogSection("MIGRATION INSIGHTS")

	status := GoNoGo(in.Record)
	out := blackboard.InsightsOutput{GoNoGo: status}
	doc, err := g.generate(ctx, in)
	if err != nil {
		log.Warn().Err(err).Str("component", in.ProjectName).Msg("Migration insights fell back to the built-in report")
		logger.LogError("Migration insights", err)
		out.Fallback = true
		out.Error = err.Error()
		doc, err = g.FallbackReport(in)
		if err != nil {
			out.Error = err.Error()
			return out
		}
	}
	doc = placeGoStatus(doc, status)

	out.HTML = doc
	out.Markdown = markdownTwin(InsightsTitle(in.ProjectName), doc)
	log.Info().Str("component", in.ProjectName).Str("go_no_go", status).Bool("fallback", out.Fallback).Msg("Migration insights generated")
	return out
}

var (
	headingEnd = regexp.MustCompile(`(?i)</h1\s*>`)
	bodyStart  = regexp.MustCompile(`(?i)<body[^>]*>`)
)

// placeGoStatus replaces any go-status badge in doc with one for status. A
// document without a badge gets one after its first heading, or at the top
// of its body.
func placeGoStatus(doc, status string) string {
	badge := fmt.Sprintf(`<div class="go-status %s">%s</div>`, GoClass(status), status)
	if goStatusPattern.MatchString(doc) {
		return goStatusPattern.ReplaceAllLiteralString(doc, badge)
	}
	for _, anchor := range []*regexp.Regexp{headingEnd, bodyStart} {
		if loc := anchor.FindStringIndex(doc); loc != nil {
			return doc[:loc[1]] + "\n" + badge + doc[loc[1]:]
		}
	}
	return badge + "\n" + doc
}

func (g *Generator) generate(ctx context.Context, in Input) (string, error) {
	prompt, err := InsightsPrompt(in)
	if err != nil {
		return "", err
	}
	response, err := g.llm.Call(ctx, prompt, !in.NoCache)
	if err != nil {
		return "", err
	}
	if response == llm.FallbackResponse || strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("no insights returned by the model")
	}
	if i := strings.Index(response, "```html"); i >= 0 {
		response = response[i+len("```html"):]
		if j := strings.Index(response, "```"); j >= 0 {
			response = response[:j]
		}
	}
	response = strings.TrimSpace(response)
	if strings.HasPrefix(strings.ToUpper(response), "<!DOCTYPE") {
		return response, nil
	}
	title := InsightsTitle(in.ProjectName)
	return wrap("OpenShift Migration Insights - "+in.ProjectName, title, CleanFragment(response))
}

type techRow struct {
	Category string
	Name     string
	Version  string
	Status   string
	Class    string
}

type fallbackView struct {
	Project    string
	Status     string
	Critical   int
	Date       string
	FileCount  int
	IssueCount int
	Tech       []techRow
}

// FallbackReport renders the built-in insights document.
func (g *Generator) FallbackReport(in Input) (string, error) {
	rec := in.record()
	v := fallbackView{
		Project:    in.ProjectName,
		Status:     GoNoGo(rec),
		Critical:   rec.CriticalCount(),
		Date:       g.now().Format("January 02, 2006"),
		FileCount:  len(in.Files),
		IssueCount: len(rec.Findings),
	}
	for _, t := range limit(rec.TechnologyStack["languages"], fallbackTechLimit) {
		v.Tech = append(v.Tech, techRow{"Language", t.Name, t.Version, "Compatible", report.StatusClass(taxonomy.StatusYes)})
	}
	for _, t := range limit(rec.TechnologyStack["frameworks"], fallbackTechLimit) {
		v.Tech = append(v.Tech, techRow{"Framework", t.Name, t.Version, "Review Required", report.StatusClass(taxonomy.StatusPartial)})
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, "insights_fallback.html.tmpl", v); err != nil {
		return "", fmt.Errorf("render fallback insights: %w", err)
	}
	return wrap("OpenShift Migration Insights - "+in.ProjectName, InsightsTitle(in.ProjectName), body.String())
}

func limit(techs []taxonomy.Technology, n int) []taxonomy.Technology {
	if len(techs) > n {
		return techs[:n]
	}
	return techs
}
