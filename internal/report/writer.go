package report

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/fsutil"
)

// Paths are the files written for one report.
type Paths struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Write renders d and writes both formats into dir.
func Write(dir string, d Data) (Paths, string, error) {
	md := Markdown(d)
	html, err := HTML(d)
	if err != nil {
		return Paths{}, md, err
	}
	p := Paths{
		Markdown: filepath.Join(dir, MarkdownFile),
		HTML:     filepath.Join(dir, HTMLFile),
	}
	if err := fsutil.WriteFileAtomic(p.Markdown, []byte(md), 0644); err != nil {
		return Paths{}, md, fmt.Errorf("write markdown report: %w", err)
	}
	if err := fsutil.WriteFileAtomic(p.HTML, []byte(html), 0644); err != nil {
		return Paths{}, md, fmt.Errorf("write html report: %w", err)
	}
	log.Info().Str("markdown", p.Markdown).Str("html", p.HTML).Msg("Report written")
	return p, md, nil
}
