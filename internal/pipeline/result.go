package pipeline

import (
	"time"

	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/taxonomy"
)

// AssessmentType labels every result this pipeline produces.
const AssessmentType = "hard_gate_assessment"

// Result is the JSON summary of a finished run.
type Result struct {
	AssessmentID   string  `json:"assessment_id"`
	ProjectName    string  `json:"project_name"`
	AssessmentDate string  `json:"assessment_date"`
	AssessmentType string  `json:"assessment_type"`
	Results        Results `json:"results"`
}

// Results holds the outputs of a run.
type Results struct {
	Compliance taxonomy.Compliance      `json:"compliance"`
	Rating     string                   `json:"rating"`
	GoNoGo     string                   `json:"go_no_go,omitempty"`
	Analysis   *taxonomy.AnalysisRecord `json:"analysis"`
	Intake     *intake.Descriptor       `json:"intake,omitempty"`
	Files      int                      `json:"files_analyzed"`
	Reports    map[string]string        `json:"reports"`
	Indexed    map[string]string        `json:"indexed,omitempty"`
	Progress   []string                 `json:"progress"`
	Errors     []string                 `json:"errors,omitempty"`
}

// ResultFrom summarises bb.
func ResultFrom(bb *blackboard.Blackboard, at time.Time) *Result {
	reports := map[string]string{}
	for format, path := range bb.AnalysisReport {
		reports["analysis_"+format] = path
	}
	if a := bb.OCPAssessment; a != nil {
		addPath(reports, "ocp_assessment_html", a.HTMLPath)
		addPath(reports, "ocp_assessment_markdown", a.MarkdownPath)
	}
	res := Results{
		Compliance: bb.Compliance,
		Rating:     bb.Compliance.Rating(),
		Analysis:   bb.CodeAnalysis,
		Intake:     bb.ExcelValidation,
		Files:      len(bb.FilesData),
		Reports:    reports,
		Progress:   bb.Progress(),
		Errors:     bb.Errors,
	}
	if m := bb.MigrationInsights; m != nil {
		res.GoNoGo = m.GoNoGo
		addPath(reports, "migration_insights_html", m.HTMLPath)
		addPath(reports, "migration_insights_markdown", m.MarkdownPath)
	}
	if len(bb.Indexed) > 0 {
		res.Indexed = bb.Indexed
	}
	return &Result{
		AssessmentID:   bb.RunID,
		ProjectName:    bb.ComponentName(),
		AssessmentDate: at.UTC().Format(time.RFC3339),
		AssessmentType: AssessmentType,
		Results:        res,
	}
}

func addPath(m map[string]string, key, path string) {
	if path != "" {
		m[key] = path
	}
}
