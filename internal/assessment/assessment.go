// Package assessment produces the two LLM-written migration reports: the
// OpenShift intake assessment and the migration insights.
package assessment

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/fsutil"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/report"
	"github.com/hardgate/internal/taxonomy"
)

// Output files
const (
	OCPHTMLFile          = "ocp_assessment.html"
	OCPMarkdownFile      = "ocp_assessment.md"
	InsightsHTMLFile     = "migration_insights.html"
	InsightsMarkdownFile = "migration_insights.md"
)

// Go/No-Go labels
const (
	Go   = "Go"
	NoGo = "No Go"
)

// Input is what both generators read from the blackboard.
type Input struct {
	ProjectName string
	Files       map[string]string
	Record      *taxonomy.AnalysisRecord
	Intake      *intake.Descriptor
	// Assessment is the HTML of the intake assessment, if one was produced.
	Assessment string
	// NoCache sends every prompt to the model.
	NoCache bool
}

// FromBlackboard collects the generator input of a run.
func FromBlackboard(bb *blackboard.Blackboard) Input {
	in := Input{
		ProjectName: bb.ComponentName(),
		Files:       bb.FilesData,
		Record:      bb.CodeAnalysis,
		Intake:      bb.ExcelValidation,
		NoCache:     !bb.UseCache,
	}
	if bb.OCPAssessment != nil {
		in.Assessment = bb.OCPAssessment.HTML
	}
	return in
}

func (in Input) record() *taxonomy.AnalysisRecord {
	if in.Record != nil {
		return in.Record
	}
	rec := taxonomy.NewRecord()
	rec.FillTaxonomy()
	return rec
}

// GoNoGo is No Go when the record has any critical finding.
func GoNoGo(rec *taxonomy.AnalysisRecord) string {
	if rec != nil && rec.CriticalCount() > 0 {
		return NoGo
	}
	return Go
}

// GoClass is the CSS class for a Go/No-Go label.
func GoClass(status string) string {
	if status == NoGo {
		return "no-go"
	}
	return "go"
}

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"css":       func(s string) template.CSS { return template.CSS(s) },
	"unescaped": func(s string) template.HTML { return template.HTML(s) },
	"goClass":   GoClass,
}).ParseFS(templateFS, "templates/*.html.tmpl"))

type document struct {
	Title      string
	Heading    string
	Body       string
	Stylesheet string
}

// wrap places model-written HTML inside the shared document skeleton.
func wrap(title, heading, body string) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "document.html.tmpl", document{
		Title:      title,
		Heading:    heading,
		Body:       body,
		Stylesheet: report.Stylesheet,
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", title, err)
	}
	return buf.String(), nil
}

var (
	fencePattern   = regexp.MustCompile("```html\\s*")
	closingFence   = regexp.MustCompile("(?m)```\\s*$")
	bodyPattern    = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	contentPattern = regexp.MustCompile(`(?is)(<(?:div|h1)[^>]*>.*)`)
	htmlTagPattern = regexp.MustCompile(`(?i)</?html[^>]*>`)
	headPattern    = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	stylePattern   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	doctypePattern = regexp.MustCompile(`(?i)<!DOCTYPE[^>]*>`)
)

// CleanFragment turns a model response into an HTML fragment: code fences
// are removed, the body of a full document is extracted, and html, head and
// style elements are dropped.
func CleanFragment(response string) string {
	if strings.Contains(response, "```html") {
		response = fencePattern.ReplaceAllString(response, "")
		response = closingFence.ReplaceAllString(response, "")
	}
	if doctypePattern.MatchString(response) {
		if m := bodyPattern.FindStringSubmatch(response); m != nil {
			response = m[1]
		} else if m := contentPattern.FindStringSubmatch(response); m != nil {
			response = m[1]
		}
	}
	response = headPattern.ReplaceAllString(response, "")
	response = stylePattern.ReplaceAllString(response, "")
	response = htmlTagPattern.ReplaceAllString(response, "")
	response = doctypePattern.ReplaceAllString(response, "")
	return strings.TrimSpace(response)
}

// markdownTwin strips a document to text under a heading.
func markdownTwin(title, html string) string {
	html = headPattern.ReplaceAllString(html, "")
	html = stylePattern.ReplaceAllString(html, "")
	return report.MarkdownTwin(title, html)
}

// Save writes the HTML and Markdown of out into dir and records the paths.
func Save(dir, htmlName, mdName string, out *blackboard.AssessmentOutput) error {
	htmlPath := filepath.Join(dir, htmlName)
	if err := fsutil.WriteFileAtomic(htmlPath, []byte(out.HTML), 0644); err != nil {
		return fmt.Errorf("write %s: %w", htmlName, err)
	}
	out.HTMLPath = htmlPath
	mdPath := filepath.Join(dir, mdName)
	if err := fsutil.WriteFileAtomic(mdPath, []byte(out.Markdown), 0644); err != nil {
		return fmt.Errorf("write %s: %w", mdName, err)
	}
	out.MarkdownPath = mdPath
	return nil
}
