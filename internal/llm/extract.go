package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hardgate/internal/logging"
)

var fencedJSON = regexp.MustCompile("(?is)```json\\s*\\n(.*?)\\n\\s*```")

// ExtractStructured pulls structured data out of an LLM response. Every
// fenced json block is repaired and deep-merged in order. Without a usable
// fenced block the first balanced bare object is tried. The boolean is false
// when nothing in the text parses as a JSON object.
func ExtractStructured(text string) (map[string]any, bool) {
	logger := logging.GetCurrentLogger()

	var merged map[string]any
	blocks := fencedJSON.FindAllStringSubmatch(text, -1)
	for i, m := range blocks {
		obj, ok := parseObject(m[1])
		if !ok {
			logger.Log("Discarding unparseable json block %d/%d", i+1, len(blocks))
			continue
		}
		merged = DeepMerge(merged, obj)
	}
	if merged != nil {
		return merged, true
	}

	if bare := firstBalancedObject(text); bare != "" {
		if obj, ok := parseObject(bare); ok {
			logger.Log("Extracted bare JSON object (%d bytes)", len(bare))
			return obj, true
		}
	}
	return nil, false
}

func parseObject(s string) (map[string]any, bool) {
	repaired, stats, err := RepairJSON(s)
	if err != nil {
		return nil, false
	}
	if stats.WasRepaired {
		logging.GetCurrentLogger().Log("JSON repaired with %s", strings.Join(stats.Strategies, ", "))
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// DeepMerge merges src into dst and returns dst. Lists concatenate, maps
// union recursively and scalars (or values of differing kinds) take src.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists {
			dst[k] = sv
			continue
		}
		switch s := sv.(type) {
		case []any:
			if d, ok := dv.([]any); ok {
				dst[k] = append(d, s...)
				continue
			}
		case map[string]any:
			if d, ok := dv.(map[string]any); ok {
				dst[k] = DeepMerge(d, s)
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

// firstBalancedObject returns the text from the first '{' to its matching
// '}', or "" when the braces never balance.
func firstBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	var sc scanner
	depth := 0
	for i := start; i < len(text); i++ {
		c := text[i]
		if !sc.step(c) {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
