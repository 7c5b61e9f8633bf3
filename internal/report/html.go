package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/hardgate/internal/taxonomy"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"add":           func(a, b int) int { return a + b },
	"statusClass":   StatusClass,
	"priorityClass": PriorityClass,
	"title":         titleWords,
	"practiceTitle": taxonomy.PracticeTitle,
	"percent":       func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"anchor":        anchor,
	"css":           func(s string) template.CSS { return template.CSS(s) },
}).ParseFS(templateFS, "templates/report.html.tmpl"))

type practiceRow struct {
	Title  string
	Result taxonomy.PracticeResult
}

type practiceSection struct {
	Title string
	Rows  []practiceRow
}

type htmlView struct {
	Data
	Record      *taxonomy.AnalysisRecord
	Compliance  taxonomy.Compliance
	Extensions  []ExtensionCount
	Severities  []ExtensionCount
	StoryCounts []ExtensionCount
	Folders     []FolderContents
	Sections    []string
	Components  []ComponentRow
	Practices   []practiceSection
	Findings    []findingGroup
	Actions     []ActionItem
	ErrorLines  []string
	Stylesheet  string
}

// HTML renders the report as a standalone document.
func HTML(d Data) (string, error) {
	rec := d.record()
	v := htmlView{
		Data:        d,
		Record:      rec,
		Compliance:  taxonomy.ComputeCompliance(rec),
		Extensions:  Extensions(d.Files),
		StoryCounts: storyStatusCounts(d.Stories),
		Folders:     folderContents(d.Files, d.SpecialFolders),
		Sections:    sections(d, rec),
		Components:  ComponentRows(rec),
		Findings:    groupFindings(rec.Findings),
		Actions:     ActionItems(rec),
		ErrorLines:  errorLines(d, rec),
		Stylesheet:  Stylesheet,
	}
	counts := rec.SeverityCounts()
	for _, s := range taxonomy.Severities {
		if counts[s] > 0 {
			v.Severities = append(v.Severities, ExtensionCount{Ext: s.Title(), Count: counts[s]})
		}
	}
	for _, cat := range taxonomy.Categories {
		sec := practiceSection{Title: cat.Title}
		for _, p := range cat.Practices {
			sec.Rows = append(sec.Rows, practiceRow{Title: taxonomy.PracticeTitle(p), Result: rec.Practice(cat.Key, p)})
		}
		v.Practices = append(v.Practices, sec)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return buf.String(), nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// StripTags removes markup and collapses whitespace.
func StripTags(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// MarkdownTwin is the text version stored beside an HTML-only report.
func MarkdownTwin(title, html string) string {
	return "# " + title + "\n\n" + StripTags(html)
}
