// Package blackboard defines the record threaded through the assessment
// stages and the typed outputs each phase contributes to it.
package blackboard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/jira"
	"github.com/hardgate/internal/taxonomy"
)

// Report formats
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

// IntakeOutput is produced by the intake stage.
type IntakeOutput struct {
	Descriptor *intake.Descriptor `json:"descriptor"`
	Path       string             `json:"path,omitempty"`
}

// CrawlOutput is produced by the crawl stage.
type CrawlOutput struct {
	ProjectName    string            `json:"project_name"`
	Files          map[string]string `json:"-"`
	SpecialFolders []string          `json:"special_folders"`
	Skipped        int               `json:"skipped"`
	Redactions     int               `json:"redactions"`
}

// AnalysisOutput is produced by the hard-gate analyzer.
type AnalysisOutput struct {
	Record     *taxonomy.AnalysisRecord `json:"record"`
	Compliance taxonomy.Compliance      `json:"compliance"`
	Cached     bool                     `json:"cached"`
	Attempts   int                      `json:"attempts"`
	UsedText   bool                     `json:"used_text_fallback"`
}

// AssessmentOutput is a rendered LLM report with its Markdown twin.
type AssessmentOutput struct {
	HTML         string `json:"-"`
	Markdown     string `json:"-"`
	HTMLPath     string `json:"html_path,omitempty"`
	MarkdownPath string `json:"markdown_path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// InsightsOutput is the migration insights report.
type InsightsOutput struct {
	AssessmentOutput
	GoNoGo   string `json:"go_no_go"`
	Fallback bool   `json:"fallback"`
}

// Blackboard carries the inputs, partial results and outputs of one run. A
// flow has a single writer; the mutex only guards status reads from the API.
type Blackboard struct {
	RunID string

	RepoURL         string
	LocalDir        string
	GitHubToken     string
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
	ExcelFile       string
	SheetName       string
	OutputDir       string
	UseCache        bool

	ProjectName    string
	FilesData      map[string]string
	SpecialFolders []string

	ExcelValidation   *intake.Descriptor
	CodeAnalysis      *taxonomy.AnalysisRecord
	Compliance        taxonomy.Compliance
	JiraStories       []jira.Story
	AnalysisReport    map[string]string
	OCPAssessment     *AssessmentOutput
	MigrationInsights *InsightsOutput

	// Indexed holds the report ids stored in the index, keyed by report type.
	Indexed map[string]string

	Errors   []string
	HaltedAt string

	mu       sync.Mutex
	progress []string
}

// New returns an empty blackboard for runID.
func New(runID string) *Blackboard {
	return &Blackboard{
		RunID:          runID,
		UseCache:       true,
		FilesData:      map[string]string{},
		AnalysisReport: map[string]string{},
		Indexed:        map[string]string{},
	}
}

// RecordHalt notes the stage that ended the flow on a terminal error.
func (b *Blackboard) RecordHalt(stage string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.HaltedAt = stage
	b.progress = append(b.progress, stage+": halted")
}

// AddError records a recoverable stage failure.
func (b *Blackboard) AddError(stage string, err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Errors = append(b.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// MarkDone appends a stage to the progress list.
func (b *Blackboard) MarkDone(stage string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = append(b.progress, stage)
}

// Progress returns the stages completed so far.
func (b *Blackboard) Progress() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.progress...)
}

// ApplyIntake stores the intake result.
func (b *Blackboard) ApplyIntake(out IntakeOutput) {
	b.ExcelValidation = out.Descriptor
	if out.Descriptor == nil {
		return
	}
	if b.RepoURL == "" && b.LocalDir == "" {
		b.RepoURL = out.Descriptor.RepoURL
	}
	if b.ProjectName == "" && out.Descriptor.ComponentName != intake.UnknownComponent {
		b.ProjectName = out.Descriptor.ComponentName
	}
}

// ApplyCrawl stores the crawled files.
func (b *Blackboard) ApplyCrawl(out CrawlOutput) {
	b.FilesData = out.Files
	b.SpecialFolders = out.SpecialFolders
	if b.ProjectName == "" {
		b.ProjectName = out.ProjectName
	}
}

// ApplyAnalysis stores the analysis record, echoing the declared components.
func (b *Blackboard) ApplyAnalysis(out AnalysisOutput) {
	b.CodeAnalysis = out.Record
	b.Compliance = out.Compliance
	if out.Record != nil && b.ExcelValidation != nil && len(b.ExcelValidation.Validation.ComponentQuestions) > 0 {
		out.Record.ExcelComponents = b.ExcelValidation.Validation.ComponentQuestions
	}
}

// SortedFiles returns the crawled paths in order.
func (b *Blackboard) SortedFiles() []string {
	out := make([]string, 0, len(b.FilesData))
	for p := range b.FilesData {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ComponentName is the name reports are titled with.
func (b *Blackboard) ComponentName() string {
	if b.ExcelValidation != nil && b.ExcelValidation.ComponentName != "" && b.ExcelValidation.ComponentName != intake.UnknownComponent {
		return b.ExcelValidation.ComponentName
	}
	if b.ProjectName != "" {
		return b.ProjectName
	}
	return intake.UnknownComponent
}
