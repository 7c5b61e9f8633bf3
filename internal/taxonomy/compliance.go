package taxonomy

import (
	"math"
)

// Compliance summarises how many gates a record meets.
type Compliance struct {
	Total      int     `json:"total"`
	Fully      int     `json:"fully"`
	Partial    int     `json:"partial"`
	NotMet     int     `json:"not_met"`
	Percentage float64 `json:"percentage"`
}

// Rating returns Good, Fair or Needs Improvement for the percentage.
func (c Compliance) Rating() string {
	switch {
	case c.Percentage >= 80:
		return "Good"
	case c.Percentage >= 60:
		return "Fair"
	default:
		return "Needs Improvement"
	}
}

// ComputeCompliance scores the record over every gate of the taxonomy.
// Gates absent from the record count as not met; each gate is visited once in
// taxonomy order.
func ComputeCompliance(r *AnalysisRecord) Compliance {
	var c Compliance
	for _, cat := range Categories {
		for _, p := range cat.Practices {
			c.Total++
			status := StatusNo
			if r != nil {
				if practices, ok := r.SecurityQualityAnalysis[cat.Key]; ok {
					if res, ok := practices[p]; ok {
						status = res.Implemented
					}
				}
			}
			switch status {
			case StatusYes:
				c.Fully++
			case StatusPartial:
				c.Partial++
			default:
				c.NotMet++
			}
		}
	}
	if c.Total > 0 {
		pct := (float64(c.Fully) + 0.5*float64(c.Partial)) / float64(c.Total) * 100
		c.Percentage = math.Round(pct*10) / 10
	}
	return c
}
