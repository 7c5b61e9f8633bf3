// Package prompts holds the versioned prompt templates sent to the LLM and
// renders their {{VAR:name}} placeholders.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Version identifies the prompt set. Bump it whenever a template changes so
// cached analyses produced by older wording are not reused.
const Version = "3"

// Template keys
const (
	HardGateAnalysis  = "hard_gate_analysis"
	OCPAssessment     = "ocp_assessment"
	MigrationInsights = "migration_insights"
)

//go:embed templates/*.txt
var templateFS embed.FS

// ErrUnknownPrompt is returned for keys without a template.
var ErrUnknownPrompt = errors.New("prompts: template not found")

// MissingVarError reports a placeholder that has neither a value nor a default.
type MissingVarError struct {
	Prompt string
	Name   string
}

func (e *MissingVarError) Error() string {
	return fmt.Sprintf("prompts: %s: no value for %q", e.Prompt, e.Name)
}

// Vars maps placeholder names to values. A value is a string or a []string;
// lists are joined with the placeholder's join option.
type Vars map[string]any

// Keys lists every available template key.
func Keys() []string {
	entries, _ := templateFS.ReadDir("templates")
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(keys)
	return keys
}

// Template returns the raw body of key.
func Template(key string) (string, error) {
	body, err := templateFS.ReadFile("templates/" + key + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownPrompt, key)
	}
	return string(body), nil
}

// Render fills the template key with vars.
func Render(key string, vars Vars) (string, error) {
	body, err := Template(key)
	if err != nil {
		return "", err
	}
	return renderBody(key, body, vars)
}

func renderBody(key, body string, vars Vars) (string, error) {
	var b strings.Builder
	b.Grow(len(body))
	last := 0
	phs := ParsePlaceholders(body)
	locs := varPattern.FindAllStringIndex(body, -1)
	for i, ph := range phs {
		start, end := locs[i][0], locs[i][1]
		b.WriteString(body[last:start])
		val, err := resolve(key, ph, vars)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		last = end
	}
	b.WriteString(body[last:])
	return b.String(), nil
}

func resolve(key string, ph Placeholder, vars Vars) (string, error) {
	v, ok := vars[ph.Name]
	if !ok {
		if def, ok := ph.Default(); ok {
			return def, nil
		}
		return "", &MissingVarError{Prompt: key, Name: ph.Name}
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case []string:
		if len(val) == 0 {
			if def, ok := ph.Default(); ok {
				return def, nil
			}
		}
		return strings.Join(val, ph.Join()), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return fmt.Sprint(val), nil
	}
}
