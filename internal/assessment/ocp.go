package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/prompts"
	"github.com/hardgate/internal/report"
	"github.com/hardgate/internal/taxonomy"
)

const evidencePreview = 100

// Assessor writes the OpenShift intake assessment.
type Assessor struct {
	llm llm.Caller
}

// NewAssessor returns an assessor using caller.
func NewAssessor(caller llm.Caller) *Assessor {
	return &Assessor{llm: caller}
}

// OCPTitle is the heading of the assessment document.
func OCPTitle(name string) string {
	return "OpenShift Migration Assessment for " + name
}

// intakeJSON is the intake data sent to the model. Without a form a basic
// entry naming the component is used.
func intakeJSON(in Input) string {
	var v any
	if in.Intake != nil {
		d := *in.Intake
		if d.ComponentName == "" || d.ComponentName == intake.UnknownComponent {
			d.ComponentName = in.ProjectName
		}
		v = d
	} else {
		v = map[string]string{
			"component_name":       in.ProjectName,
			"business_criticality": "Medium",
			"current_environment":  "Unknown",
			"application_type":     "Unknown",
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// componentData lists declarations and detections when both are known.
func componentData(rec *taxonomy.AnalysisRecord) string {
	if len(rec.ExcelComponents) == 0 || len(rec.ComponentAnalysis) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nCOMPONENT ANALYSIS DATA:\nExcel Component Declarations:\n")
	for _, name := range sortedKeys(rec.ExcelComponents) {
		declared := "No"
		if rec.ExcelComponents[name].IsYes {
			declared = "Yes"
		}
		fmt.Fprintf(&b, "- %s: Declared = %s\n", name, declared)
	}
	b.WriteString("\nDetected Components in Codebase:\n")
	for _, c := range taxonomy.Catalogue {
		res, ok := rec.ComponentAnalysis[c.Key]
		if !ok {
			continue
		}
		evidence := res.Evidence
		if len(evidence) > evidencePreview {
			evidence = evidence[:evidencePreview]
		}
		fmt.Fprintf(&b, "- %s: Detected = %s (Evidence: %s...)\n", c.Key, res.Detected, evidence)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OCPPrompt renders the assessment prompt.
func OCPPrompt(in Input) (string, error) {
	bullets := make([]string, len(taxonomy.Catalogue))
	rows := make([]string, len(taxonomy.Catalogue))
	for i, c := range taxonomy.Catalogue {
		bullets[i] = "  * " + c.Key
		rows[i] = fmt.Sprintf("   <tr><td>%s</td><td>[Yes/No]</td><td>[Yes/No]</td><td>[Match/Mismatch]</td></tr>", c.Key)
	}
	return prompts.Render(prompts.OCPAssessment, prompts.Vars{
		"component_bullets":       strings.Join(bullets, "\n"),
		"component_count":         len(taxonomy.Catalogue),
		"intake_json":             intakeJSON(in),
		"component_analysis_data": componentData(in.record()),
		"component_rows":          strings.Join(rows, "\n"),
	})
}

// Assess asks the model for an assessment and wraps it. Failures yield
// an error document rather than an error.
func (a *Assessor) Assess(ctx context.Context, in Input) blackboard.AssessmentOutput {
	logger := logging.GetCurrentLogger()
	title := OCPTitle(in.ProjectName)
	logger.LogSection("OPENSHIFT ASSESSMENT")

	var out blackboard.AssessmentOutput
	body, err := a.generate(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("component", in.ProjectName).Msg("OpenShift assessment failed")
		logger.LogError("OpenShift assessment", err)
		out.Error = err.Error()
		body = fmt.Sprintf(`<div class="error">Failed to generate OpenShift assessment: %s</div>`, html.EscapeString(err.Error()))
	}

	doc, werr := wrap(title, title, body)
	if werr != nil {
		out.Error = werr.Error()
		return out
	}
	out.HTML = doc
	out.Markdown = report.MarkdownTwin(title, body)
	log.Info().Str("component", in.ProjectName).Int("length", len(body)).Msg("OpenShift assessment generated")
	return out
}

func (a *Assessor) generate(ctx context.Context, in Input) (string, error) {
	prompt, err := OCPPrompt(in)
	if err != nil {
		return "", err
	}
	response, err := a.llm.Call(ctx, prompt, !in.NoCache)
	if err != nil {
		return "", err
	}
	if response == llm.FallbackResponse || strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("no assessment returned by the model")
	}
	body := CleanFragment(response)
	if body == "" {
		return "", fmt.Errorf("assessment response contained no HTML content")
	}
	return body, nil
}
