package crawl

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redacted replaces every detected secret.
const Redacted = "REDACTED"

var (
	detectorOnce sync.Once
	detector     *detect.Detector
	detectorErr  error
	// detectMu serialises scans; a Detector keeps per-scan state.
	detectMu sync.Mutex
)

func secretDetector() (*detect.Detector, error) {
	detectorOnce.Do(func() {
		detector, detectorErr = detect.NewDetectorDefaultConfig()
	})
	return detector, detectorErr
}

// RedactText replaces the secrets gitleaks finds in text and returns the
// number of replacements.
func RedactText(text string) (string, int, error) {
	d, err := secretDetector()
	if err != nil {
		return text, 0, fmt.Errorf("load secret rules: %w", err)
	}
	detectMu.Lock()
	findings := d.DetectString(text)
	detectMu.Unlock()

	secrets := map[string]bool{}
	for _, f := range findings {
		if f.Secret != "" {
			secrets[f.Secret] = true
		}
	}
	if len(secrets) == 0 {
		return text, 0, nil
	}
	// Longest first so a secret that contains another is replaced whole.
	ordered := make([]string, 0, len(secrets))
	for s := range secrets {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	n := 0
	for _, s := range ordered {
		n += strings.Count(text, s)
		text = strings.ReplaceAll(text, s, Redacted)
	}
	return text, n, nil
}

// Redact rewrites files in place and returns the total replacements.
func Redact(files map[string]string) (int, error) {
	total := 0
	for name, text := range files {
		clean, n, err := RedactText(text)
		if err != nil {
			return total, err
		}
		if n > 0 {
			files[name] = clean
			total += n
		}
	}
	return total, nil
}
