package report

import (
	"github.com/hardgate/internal/taxonomy"
)

// Component table statuses
const (
	StatusMatch       = "Match"
	StatusMismatch    = "Mismatch"
	StatusNotDeclared = "Not Declared"
)

// ComponentRow compares the intake declaration of a catalogue component with
// the analysis.
type ComponentRow struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Declared string `json:"declared"`
	Detected string `json:"detected"`
	Status   string `json:"status"`
	Evidence string `json:"evidence"`
}

// ComponentRows returns one row per catalogue component, in catalogue order.
// Declarations are resolved onto the catalogue by name; when several answers
// resolve to the same component a yes wins.
func ComponentRows(rec *taxonomy.AnalysisRecord) []ComponentRow {
	declared := map[string]bool{}
	if rec != nil {
		for token, decl := range rec.ExcelComponents {
			c, ok := taxonomy.MatchComponent(token)
			if !ok {
				continue
			}
			declared[c.Key] = declared[c.Key] || decl.IsYes
		}
	}

	rows := make([]ComponentRow, len(taxonomy.Catalogue))
	for i, c := range taxonomy.Catalogue {
		row := ComponentRow{Key: c.Key, Name: c.Name, Declared: "-", Detected: "No", Status: StatusNotDeclared}
		var result taxonomy.ComponentResult
		if rec != nil {
			result = rec.ComponentAnalysis[c.Key]
		}
		detected := result.IsDetected()
		if detected {
			row.Detected = "Yes"
		}
		row.Evidence = result.Evidence
		if yes, ok := declared[c.Key]; ok {
			row.Declared = yesNo(yes)
			row.Status = StatusMatch
			if yes != detected {
				row.Status = StatusMismatch
			}
		}
		rows[i] = row
	}
	return rows
}

// Mismatches filters the rows whose declaration disagrees with the analysis.
func Mismatches(rows []ComponentRow) []ComponentRow {
	var out []ComponentRow
	for _, r := range rows {
		if r.Status == StatusMismatch {
			out = append(out, r)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
