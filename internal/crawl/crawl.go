// Package crawl collects the text files of a component from a local
// directory or a remote Git repository.
package crawl

import (
	"errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyCrawl is returned when no file survives the filters.
	ErrEmptyCrawl = errors.New("no files were crawled; check the include and exclude patterns")
	// ErrCloneFailed is returned when every authentication strategy failed.
	ErrCloneFailed = errors.New("git clone failed")
)

// DefaultMaxFileSize is the size ceiling applied when Options leaves it unset.
const DefaultMaxFileSize = 100000

// Options filters the crawled files.
type Options struct {
	Include     []string
	Exclude     []string
	MaxFileSize int64
	// Redact replaces detected secrets before files are returned.
	Redact bool
}

// Result is the outcome of a crawl.
type Result struct {
	Files map[string]string
	// SpecialFolders lists directories named like spreadsheets.
	SpecialFolders []string
	Skipped        int
	Redactions     int
}

// ProjectName derives a project name from a repository URL or a directory.
func ProjectName(repoURL, dir string) string {
	if repoURL != "" {
		base, _ := splitTreeURL(repoURL)
		base = strings.TrimSuffix(strings.TrimRight(base, "/"), ".git")
		if i := strings.LastIndexAny(base, "/:"); i >= 0 {
			base = base[i+1:]
		}
		if base != "" {
			return base
		}
	}
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err == nil {
			dir = abs
		}
		return filepath.Base(dir)
	}
	return "project"
}

// splitTreeURL separates a browser URL such as
// https://github.com/org/repo/tree/main/services/api into the clonable
// repository URL, the branch and the sub-path.
func splitTreeURL(raw string) (string, treeRef) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, treeRef{}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 2; i+1 < len(parts); i++ {
		if parts[i] != "tree" {
			continue
		}
		ref := treeRef{Branch: parts[i+1], Path: path.Join(parts[i+2:]...)}
		u.Path = "/" + path.Join(parts[:i]...)
		u.RawQuery, u.Fragment = "", ""
		return u.String(), ref
	}
	return raw, treeRef{}
}

type treeRef struct {
	Branch string
	Path   string
}
