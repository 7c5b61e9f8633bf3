package report

import (
	"fmt"
	"strings"

	"github.com/hardgate/internal/taxonomy"
)

const folderPreview = 10

// Markdown renders the report.
func Markdown(d Data) string {
	rec := d.record()
	comp := taxonomy.ComputeCompliance(rec)
	folders := folderContents(d.Files, d.SpecialFolders)
	items := ActionItems(rec)

	var b strings.Builder
	fmt.Fprintf(&b, "# Application & Platform Hard Gates for %s\n\n", d.ProjectName)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "**Files Analyzed**: %d\n", len(d.Files))
	if exts := Extensions(d.Files); len(exts) > 0 {
		parts := make([]string, len(exts))
		for i, e := range exts {
			parts[i] = fmt.Sprintf("%s (%d)", e.Ext, e.Count)
		}
		fmt.Fprintf(&b, "**File Types**: %s\n", strings.Join(parts, ", "))
	}
	if len(d.SpecialFolders) > 0 {
		fmt.Fprintf(&b, "**Excel Folders**: %d\n  - %s\n", len(d.SpecialFolders), strings.Join(d.SpecialFolders, ", "))
	}
	b.WriteString("\n")

	b.WriteString("### Hard Gates Assessment\n\n")
	b.WriteString("| Metric | Count | Status |\n|--------|-------|--------|\n")
	fmt.Fprintf(&b, "| **Total Evaluated** | %d | Complete |\n", comp.Total)
	fmt.Fprintf(&b, "| **Gates Met** | %d | Passed |\n", comp.Fully)
	fmt.Fprintf(&b, "| **Gates Partially Met** | %d | In Progress |\n", comp.Partial)
	fmt.Fprintf(&b, "| **Gates Not Met** | %d | Failed |\n", comp.NotMet)
	fmt.Fprintf(&b, "| **Compliance Percentage** | %.1f%% | %s |\n\n", comp.Percentage, comp.Rating())

	b.WriteString("### Code Analysis Findings\n\n")
	fmt.Fprintf(&b, "- **Total Issues Found**: %d\n", len(rec.Findings))
	counts := rec.SeverityCounts()
	for _, s := range taxonomy.Severities {
		if counts[s] == 0 {
			continue
		}
		label := s.Title() + " Severity Issues"
		if s == taxonomy.SeverityCritical {
			label = "Critical Issues"
		}
		fmt.Fprintf(&b, "- **%s**: %d\n", label, counts[s])
	}
	b.WriteString("\n")

	if len(d.Stories) > 0 {
		b.WriteString("### JIRA Analysis\n\n")
		fmt.Fprintf(&b, "- **Total Stories**: %d\n", len(d.Stories))
		for _, s := range storyStatusCounts(d.Stories) {
			fmt.Fprintf(&b, "- **%s**: %d stories\n", s.Ext, s.Count)
		}
		b.WriteString("\n")
	}

	if d.Intake != nil {
		v := d.Intake.Validation
		b.WriteString("### Intake Validation\n\n")
		fmt.Fprintf(&b, "- **Component**: %s\n", d.Intake.ComponentName)
		fmt.Fprintf(&b, "- **Repository**: %s (%s)\n", orDash(d.Intake.RepoURL), validLabel(v.GitRepoValid))
		fmt.Fprintf(&b, "- **Mandatory Questions**: %d\n", v.MandatoryRows)
		fmt.Fprintf(&b, "- **Unanswered**: %d\n", len(v.UnansweredMandatory))
		fmt.Fprintf(&b, "- **Form Status**: %s\n", validLabel(v.IsValid))
		for _, q := range v.UnansweredMandatory {
			fmt.Fprintf(&b, "  - %s\n", q)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Table of Contents\n\n")
	for i, s := range sections(d, rec) {
		fmt.Fprintf(&b, "%d. [%s](#%s)\n", i+1, s, anchor(s))
	}
	b.WriteString("\n")

	b.WriteString("## Technology Stack\n\n")
	if len(rec.TechnologyStack) == 0 {
		b.WriteString("No technology stack information available.\n\n")
	}
	for _, cat := range rec.TechnologyCategories() {
		fmt.Fprintf(&b, "### %s\n\n", titleWords(cat))
		b.WriteString("| Name | Version | Purpose |\n|------|---------|---------|\n")
		for _, t := range rec.TechnologyStack[cat] {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(t.Name), cell(t.Version), cell(t.Purpose))
		}
		b.WriteString("\n")
	}

	if len(folders) > 0 {
		b.WriteString("## Excel Folder Analysis\n\n")
		b.WriteString("The following Excel folders were found in the codebase:\n\n")
		b.WriteString("| Folder | Files |\n|--------|-------|\n")
		for _, f := range folders {
			fmt.Fprintf(&b, "| %s | %d |\n", cell(f.Folder), len(f.Files))
		}
		b.WriteString("\n### Excel Folder Contents\n\n")
		for _, f := range folders {
			fmt.Fprintf(&b, "#### %s\n\n", f.Folder)
			if len(f.Files) == 0 {
				b.WriteString("No files listed for this folder.\n\n")
				continue
			}
			for i, p := range f.Files {
				if i == folderPreview {
					fmt.Fprintf(&b, "- ... and %d more files\n", len(f.Files)-folderPreview)
					break
				}
				fmt.Fprintf(&b, "- %s\n", p)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Component Analysis\n\n")
	b.WriteString("| Component | Declared | Detected | Status |\n|-----------|----------|----------|--------|\n")
	for _, r := range ComponentRows(rec) {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(r.Name), r.Declared, r.Detected, r.Status)
	}
	b.WriteString("\n")

	b.WriteString("## Hard Gates Analysis\n\n")
	for _, cat := range taxonomy.Categories {
		fmt.Fprintf(&b, "### %s\n\n", cat.Title)
		b.WriteString("| Practice | Status | Evidence | Recommendation |\n|----------|--------|----------|----------------|\n")
		for _, p := range cat.Practices {
			res := rec.Practice(cat.Key, p)
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", taxonomy.PracticeTitle(p), res.Implemented.Label(), cell(res.Evidence), cell(res.Recommendation))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Findings\n\n")
	if len(rec.Findings) == 0 {
		b.WriteString("No findings were identified in the codebase.\n\n")
	}
	for _, g := range groupFindings(rec.Findings) {
		fmt.Fprintf(&b, "### %s\n\n", titleWords(g.Category))
		for i, f := range g.Findings {
			fmt.Fprintf(&b, "#### %d. %s (Severity: %s)\n\n", i+1, f.Description, f.Severity.Title())
			fmt.Fprintf(&b, "**Location**: %s:%d\n\n", f.Location.File, f.Location.Line)
			if f.Location.Code != "" {
				fmt.Fprintf(&b, "**Code**: `%s`\n\n", strings.ReplaceAll(f.Location.Code, "`", "'"))
			}
			if f.Recommendation != "" {
				fmt.Fprintf(&b, "**Recommendation**: %s\n\n", f.Recommendation)
			}
		}
	}

	if len(d.Stories) > 0 {
		b.WriteString("## JIRA Stories\n\n")
		b.WriteString("The following JIRA stories are relevant to this project:\n\n")
		for _, s := range d.Stories {
			fmt.Fprintf(&b, "### %s: %s\n\n", s.Key, s.Summary)
			fmt.Fprintf(&b, "**Status**: %s\n\n**Created**: %s\n\n**Last Updated**: %s\n\n", s.Status, s.Created, s.Updated)
			if s.Description != "" {
				fmt.Fprintf(&b, "**Description**:\n\n%s\n\n", s.Description)
			}
			if len(s.Comments) > 0 {
				b.WriteString("**Comments**:\n\n")
				for _, c := range s.Comments {
					fmt.Fprintf(&b, "- **%s** (%s):\n  %s\n\n", c.Author, c.Created, c.Body)
				}
			}
			if len(s.Attachments) > 0 {
				b.WriteString("**Attachments**:\n\n")
				for _, a := range s.Attachments {
					fmt.Fprintf(&b, "- %s (%d bytes)\n", a.Filename, a.Size)
				}
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("## Action Items\n\n")
	if len(items) == 0 {
		b.WriteString("No specific action items identified. The codebase appears to follow good practices.\n\n")
	}
	for i, it := range items {
		fmt.Fprintf(&b, "### %d. %s (Priority: %s)\n\n%s\n\n", i+1, it.Title, it.Priority, it.Description)
	}

	if errs := errorLines(d, rec); len(errs) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// sections lists the body sections in rendering order.
func sections(d Data, rec *taxonomy.AnalysisRecord) []string {
	out := []string{"Summary", "Technology Stack"}
	if len(d.SpecialFolders) > 0 {
		out = append(out, "Excel Folder Analysis")
	}
	out = append(out, "Component Analysis", "Hard Gates Analysis", "Findings")
	if len(d.Stories) > 0 {
		out = append(out, "JIRA Stories")
	}
	out = append(out, "Action Items")
	if len(errorLines(d, rec)) > 0 {
		out = append(out, "Errors")
	}
	return out
}

func errorLines(d Data, rec *taxonomy.AnalysisRecord) []string {
	var out []string
	if rec.Error != "" {
		out = append(out, "analysis: "+rec.Error)
	}
	if d.Intake != nil && d.Intake.Error != "" {
		out = append(out, "intake: "+d.Intake.Error)
	}
	return append(out, d.Errors...)
}

func anchor(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// cell keeps a value on one table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func validLabel(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}
