package prompts

import (
	"regexp"
	"strings"
)

// Placeholder is one {{VAR:name|key=value}} occurrence in a template.
type Placeholder struct {
	Raw     string
	Name    string
	Options map[string]string // join, default
}

// Default returns the placeholder's default option.
func (p Placeholder) Default() (string, bool) {
	v, ok := p.Options["default"]
	return v, ok
}

// Join returns the separator used for list values.
func (p Placeholder) Join() string {
	if v, ok := p.Options["join"]; ok {
		return v
	}
	return "\n"
}

var (
	// {{VAR:name|key=value|key2="quoted value"}}
	varPattern = regexp.MustCompile(`\{\{VAR:([a-zA-Z0-9_\-]+)((?:\|[^}]+)?)}}`)
	optPattern = regexp.MustCompile(`\|([^=|]+)=([^|]+)`)
)

// ParsePlaceholders returns the placeholders of body in order of appearance.
func ParsePlaceholders(body string) []Placeholder {
	matches := varPattern.FindAllStringSubmatchIndex(body, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, idx := range matches {
		ph := Placeholder{
			Raw:     body[idx[0]:idx[1]],
			Name:    body[idx[2]:idx[3]],
			Options: map[string]string{},
		}
		if idx[4] != -1 {
			for _, seg := range optPattern.FindAllStringSubmatch(body[idx[4]:idx[5]], -1) {
				ph.Options[strings.ToLower(strings.TrimSpace(seg[1]))] = decodeEscapes(unquote(strings.TrimSpace(seg[2])))
			}
		}
		out = append(out, ph)
	}
	return out
}

// Names lists the distinct variable names used by body.
func Names(body string) []string {
	seen := map[string]bool{}
	var names []string
	for _, ph := range ParsePlaceholders(body) {
		if !seen[ph.Name] {
			seen[ph.Name] = true
			names = append(names, ph.Name)
		}
	}
	return names
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// decodeEscapes handles \n, \t, \r and \\; other escapes are kept verbatim.
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	esc := false
	for _, r := range s {
		if !esc {
			if r == '\\' {
				esc = true
			} else {
				b.WriteRune(r)
			}
			continue
		}
		switch r {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
		esc = false
	}
	if esc {
		b.WriteByte('\\')
	}
	return b.String()
}
