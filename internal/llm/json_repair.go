package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats describes what RepairJSON had to do to a payload.
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	CommentsLost  int           `json:"comments_lost"`
	Strategies    []string      `json:"strategies"`
	WasRepaired   bool          `json:"was_repaired"`
	Duration      time.Duration `json:"duration"`
}

type repairStrategy struct {
	name  string
	apply func(s string, stats *RepairStats) (string, error)
}

// repairStrategies run in order; each one works on the output of the previous
// and the chain stops as soon as the text parses. The scanners below respect
// string literals so URLs and code snippets inside values survive untouched.
var repairStrategies = []repairStrategy{
	{"comments_removed", func(s string, stats *RepairStats) (string, error) {
		out, n := stripComments(s)
		stats.CommentsLost += n
		return out, nil
	}},
	{"trailing_commas", func(s string, _ *RepairStats) (string, error) {
		return dropTrailingCommas(s), nil
	}},
	{"completion", func(s string, _ *RepairStats) (string, error) {
		return closeOpenScopes(s), nil
	}},
	{"jsonrepair_library", func(s string, _ *RepairStats) (string, error) {
		return jsonrepair.JSONRepair(s)
	}},
}

// RepairJSON returns raw unchanged when it is valid JSON, otherwise applies the
// repair strategies until the text parses.
func RepairJSON(raw string) (string, RepairStats, error) {
	start := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}
	finish := func(s string) RepairStats {
		stats.RepairedBytes = len(s)
		stats.Duration = time.Since(start)
		return stats
	}

	raw = strings.TrimSpace(raw)
	if json.Valid([]byte(raw)) {
		return raw, finish(raw), nil
	}

	stats.WasRepaired = true
	current := raw
	for _, strategy := range repairStrategies {
		next, err := strategy.apply(current, &stats)
		if err != nil || next == current {
			continue
		}
		current = next
		stats.Strategies = append(stats.Strategies, strategy.name)
		if json.Valid([]byte(current)) {
			return current, finish(current), nil
		}
	}
	return current, finish(current), fmt.Errorf("json repair failed after %d strategies", len(stats.Strategies))
}

// scanner walks JSON-ish text tracking whether the cursor is inside a string.
type scanner struct {
	inString bool
	escaped  bool
}

// step updates the string state for c and reports whether c is structural
// (outside any string literal).
func (sc *scanner) step(c byte) bool {
	if sc.inString {
		switch {
		case sc.escaped:
			sc.escaped = false
		case c == '\\':
			sc.escaped = true
		case c == '"':
			sc.inString = false
		}
		return false
	}
	if c == '"' {
		sc.inString = true
		return false
	}
	return true
}

func stripComments(s string) (string, int) {
	var b strings.Builder
	b.Grow(len(s))
	var sc scanner
	removed := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !sc.inString && c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				end := strings.IndexByte(s[i:], '\n')
				if end < 0 {
					i = len(s)
				} else {
					i += end - 1
				}
				removed++
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					i = len(s)
				} else {
					i += end + 3
				}
				removed++
				continue
			}
		}
		sc.step(c)
		b.WriteByte(c)
	}
	return b.String(), removed
}

func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var sc scanner
	for i := 0; i < len(s); i++ {
		c := s[i]
		if sc.step(c) && c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeOpenScopes appends whatever closers a truncated document is missing.
func closeOpenScopes(s string) string {
	var sc scanner
	var stack []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !sc.step(c) {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !sc.inString && len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	if sc.inString {
		b.WriteByte('"')
	}
	trimmed := strings.TrimRightFunc(b.String(), func(r rune) bool { return r == ',' || isSpace(byte(r)) })
	b.Reset()
	b.WriteString(trimmed)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
