package report

import (
	"fmt"
	"strings"

	"github.com/hardgate/internal/taxonomy"
)

// Priorities
const (
	PriorityCritical = "Critical"
	PriorityHigh     = "High"
	PriorityMedium   = "Medium"
)

// ActionItem is a remediation step synthesised from the record.
type ActionItem struct {
	Title       string `json:"title"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
}

var severityActions = []struct {
	severity taxonomy.Severity
	priority string
	tail     string
}{
	{taxonomy.SeverityCritical, PriorityCritical, "should be addressed immediately. These issues may pose significant security or reliability risks."},
	{taxonomy.SeverityHigh, PriorityHigh, "should be addressed soon. These issues may impact the stability or security of the application."},
	{taxonomy.SeverityMedium, PriorityMedium, "should be planned for remediation. These issues may lead to problems in certain circumstances."},
}

// practiceActions maps a category to its action. Categories without an entry
// get a generic "Improve {Title}" item.
var practiceActions = map[string]struct {
	title    string
	priority string
	noun     string
}{
	"auditability":   {"Improve Logging and Auditability", PriorityMedium, "logging and auditability"},
	"availability":   {"Enhance Application Resilience", PriorityHigh, "availability and resilience"},
	"error_handling": {"Improve Error Handling", PriorityMedium, "error handling"},
}

// ActionItems derives the action list from the record.
func ActionItems(rec *taxonomy.AnalysisRecord) []ActionItem {
	if rec == nil {
		return nil
	}
	var items []ActionItem

	counts := rec.SeverityCounts()
	for _, a := range severityActions {
		n := counts[a.severity]
		if n == 0 {
			continue
		}
		items = append(items, ActionItem{
			Title:       fmt.Sprintf("Address %s Severity Findings", a.severity.Title()),
			Priority:    a.priority,
			Description: fmt.Sprintf("There are %d %s severity findings that %s", n, a.severity, a.tail),
		})
	}

	for _, cat := range taxonomy.Categories {
		var missing []string
		for _, p := range cat.Practices {
			if rec.Practice(cat.Key, p).Implemented == taxonomy.StatusNo {
				missing = append(missing, taxonomy.PracticeTitle(p))
			}
		}
		if len(missing) == 0 {
			continue
		}
		title, priority, noun := "Improve "+cat.Title, PriorityMedium, strings.ToLower(cat.Title)
		if a, ok := practiceActions[cat.Key]; ok {
			title, priority, noun = a.title, a.priority, a.noun
		}
		items = append(items, ActionItem{
			Title:       title,
			Priority:    priority,
			Description: fmt.Sprintf("Implement the following %s practices: %s.", noun, strings.Join(missing, ", ")),
		})
	}

	if mismatches := Mismatches(ComponentRows(rec)); len(mismatches) > 0 {
		names := make([]string, len(mismatches))
		for i, m := range mismatches {
			names[i] = m.Name
		}
		items = append(items, ActionItem{
			Title:       "Resolve Component Declaration Mismatches",
			Priority:    PriorityHigh,
			Description: fmt.Sprintf("The intake form and the code disagree on the following components: %s. Update the form or confirm the integrations in the code.", strings.Join(names, ", ")),
		})
	}
	return items
}
