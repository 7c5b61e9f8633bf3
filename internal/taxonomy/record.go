package taxonomy

import (
	"sort"
)

// Technology is one detected entry of the technology stack.
type Technology struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Purpose string   `json:"purpose"`
	Files   []string `json:"files"`
}

// Location points at the code a finding refers to. File is "Unknown" when
// the model cited a path that was not crawled.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Code string `json:"code"`
}

// UnknownFile is the placeholder path for findings without a crawled file.
const UnknownFile = "Unknown"

// Finding is a single issue reported by the analysis.
type Finding struct {
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Location       Location `json:"location"`
	Recommendation string   `json:"recommendation"`
}

// ComponentResult records whether a catalogue component was found in the code.
type ComponentResult struct {
	Detected string `json:"detected"`
	Evidence string `json:"evidence"`
}

// IsDetected reports whether the component was detected.
func (c ComponentResult) IsDetected() bool {
	return c.Detected == "yes"
}

// PracticeResult is the assessment of one hard-gate practice.
type PracticeResult struct {
	Implemented    Status `json:"implemented"`
	Evidence       string `json:"evidence"`
	Recommendation string `json:"recommendation"`
}

// ComponentDeclaration is a component usage answer taken from the intake form.
type ComponentDeclaration struct {
	Question   string `json:"question"`
	AnswerText string `json:"answer_text"`
	IsYes      bool   `json:"is_yes"`
}

// AnalysisRecord is the validated output of the hard-gate analysis.
type AnalysisRecord struct {
	TechnologyStack         map[string][]Technology              `json:"technology_stack"`
	Findings                []Finding                            `json:"findings"`
	ComponentAnalysis       map[string]ComponentResult           `json:"component_analysis"`
	SecurityQualityAnalysis map[string]map[string]PracticeResult `json:"security_quality_analysis"`
	ExcelComponents         map[string]ComponentDeclaration      `json:"excel_components,omitempty"`
	Error                   string                               `json:"error,omitempty"`
}

// NewRecord returns a record with empty, non-nil collections.
func NewRecord() *AnalysisRecord {
	return &AnalysisRecord{
		TechnologyStack:         map[string][]Technology{},
		Findings:                []Finding{},
		ComponentAnalysis:       map[string]ComponentResult{},
		SecurityQualityAnalysis: map[string]map[string]PracticeResult{},
	}
}

// FillTaxonomy adds the default result for every practice missing from the record
// and drops keys that are not part of the taxonomy.
func (r *AnalysisRecord) FillTaxonomy() {
	filled := Skeleton()
	for cat, practices := range r.SecurityQualityAnalysis {
		for practice, res := range practices {
			if IsPractice(cat, practice) {
				filled[cat][practice] = res
			}
		}
	}
	r.SecurityQualityAnalysis = filled
}

// Practice returns the result for category/practice, or the default when absent.
func (r *AnalysisRecord) Practice(category, practice string) PracticeResult {
	if practices, ok := r.SecurityQualityAnalysis[category]; ok {
		if res, ok := practices[practice]; ok {
			return res
		}
	}
	return PracticeResult{Implemented: StatusNo, Evidence: DefaultEvidence, Recommendation: DefaultRecommendation}
}

// SeverityCounts counts findings per severity.
func (r *AnalysisRecord) SeverityCounts() map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}

// CriticalCount is the number of critical findings.
func (r *AnalysisRecord) CriticalCount() int {
	return r.SeverityCounts()[SeverityCritical]
}

// TechnologyCategories returns the technology stack categories in sorted order.
func (r *AnalysisRecord) TechnologyCategories() []string {
	cats := make([]string, 0, len(r.TechnologyStack))
	for c := range r.TechnologyStack {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// HasRequiredKeys reports whether all four top-level sections are populated.
func HasRequiredKeys(raw map[string]any) bool {
	for _, k := range RequiredKeys {
		if _, ok := raw[k]; !ok {
			return false
		}
	}
	return true
}

// RequiredKeys are the top-level sections every analysis response must carry.
var RequiredKeys = []string{"technology_stack", "findings", "component_analysis", "security_quality_analysis"}
