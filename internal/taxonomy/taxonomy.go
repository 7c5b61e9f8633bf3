package taxonomy

import (
	"strings"
)

// Status is the implementation level reported for a practice
type Status string

const (
	StatusYes     Status = "yes"
	StatusPartial Status = "partial"
	StatusNo      Status = "no"
)

// ParseStatus normalises an LLM-provided status. Unknown values become StatusNo.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusYes:
		return StatusYes
	case StatusPartial:
		return StatusPartial
	default:
		return StatusNo
	}
}

// Label returns the human readable label used by the report writer.
func (s Status) Label() string {
	switch s {
	case StatusYes:
		return "Implemented"
	case StatusPartial:
		return "Partially Implemented"
	default:
		return "Not Implemented"
	}
}

// Severity of a finding
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity maps free text onto the severity enum; anything unrecognised is low.
func ParseSeverity(s string) Severity {
	v := Severity(strings.ToLower(strings.TrimSpace(s)))
	for _, sev := range Severities {
		if v == sev {
			return sev
		}
	}
	return SeverityLow
}

// Title returns the capitalised severity name.
func (s Severity) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Category groups the practices of one hard-gate area.
type Category struct {
	Key       string
	Title     string
	Practices []string
}

// Categories is the fixed hard-gate taxonomy in report order.
var Categories = []Category{
	{
		Key:   "auditability",
		Title: "Auditability",
		Practices: []string{
			"avoid_logging_confidential_data",
			"create_audit_trail_logs",
			"tracking_id_for_log_messages",
			"log_rest_api_calls",
			"log_application_messages",
			"client_ui_errors_are_logged",
		},
	},
	{
		Key:   "availability",
		Title: "Availability",
		Practices: []string{
			"retry_logic",
			"set_timeouts_on_io_operations",
			"throttling_drop_request",
			"circuit_breakers_on_outgoing_requests",
		},
	},
	{
		Key:   "error_handling",
		Title: "Error Handling",
		Practices: []string{
			"log_system_errors",
			"use_http_standard_error_codes",
			"include_client_error_tracking",
		},
	},
	{
		Key:       "monitoring",
		Title:     "Monitoring",
		Practices: []string{"url_monitoring"},
	},
	{
		Key:       "testing",
		Title:     "Testing",
		Practices: []string{"automated_regression_testing"},
	},
}

// PracticeCount is the number of gates in the taxonomy.
func PracticeCount() int {
	n := 0
	for _, c := range Categories {
		n += len(c.Practices)
	}
	return n
}

// LookupCategory returns the category with the given key.
func LookupCategory(key string) (Category, bool) {
	for _, c := range Categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}

// IsPractice reports whether practice belongs to category in the taxonomy.
func IsPractice(category, practice string) bool {
	c, ok := LookupCategory(category)
	if !ok {
		return false
	}
	for _, p := range c.Practices {
		if p == practice {
			return true
		}
	}
	return false
}

// PracticeTitle turns a practice key into title case words.
func PracticeTitle(practice string) string {
	words := strings.Split(practice, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Default values written for practices the model did not report on.
const (
	DefaultEvidence       = "Not analyzed"
	DefaultRecommendation = "Implement this practice"
)

// Skeleton returns the full taxonomy with every practice set to the default result.
func Skeleton() map[string]map[string]PracticeResult {
	out := make(map[string]map[string]PracticeResult, len(Categories))
	for _, c := range Categories {
		practices := make(map[string]PracticeResult, len(c.Practices))
		for _, p := range c.Practices {
			practices[p] = PracticeResult{
				Implemented:    StatusNo,
				Evidence:       DefaultEvidence,
				Recommendation: DefaultRecommendation,
			}
		}
		out[c.Key] = practices
	}
	return out
}
