package crawl

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var excludedDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, "dist": true,
	"build": true, ".venv": true, "venv": true, "vendor": true,
}

var lockFiles = map[string]bool{"package-lock.json": true, "yarn.lock": true, "go.sum": true}

var specialExts = []string{".xlsx", ".xls", ".xlsm", ".xlsb", ".csv"}

// IsSpecialFolder reports whether a directory name looks like a spreadsheet.
func IsSpecialFolder(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range specialExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// SpecialFolderOf returns the first special folder segment of a relative
// path, or "" when the file is not under one.
func SpecialFolderOf(rel string) string {
	segs := strings.Split(filepath.ToSlash(rel), "/")
	for _, s := range segs[:len(segs)-1] {
		if IsSpecialFolder(s) {
			return s
		}
	}
	return ""
}

// matchGlob matches pattern against the whole path, the basename, and every
// leading directory prefix, so "tests/*" also covers "tests/a/b.py".
func matchGlob(pattern, rel string) bool {
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	segs := strings.Split(rel, "/")
	if ok, _ := path.Match(pattern, segs[len(segs)-1]); ok {
		return true
	}
	for i := range segs[:len(segs)-1] {
		if ok, _ := path.Match(pattern, segs[i]); ok {
			return true
		}
		if ok, _ := path.Match(pattern, strings.Join(segs[:i+2], "/")); ok {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if matchGlob(p, rel) {
			return true
		}
	}
	return false
}

func isLockOrMinified(name string) bool {
	lower := strings.ToLower(name)
	return lockFiles[lower] || strings.HasSuffix(lower, ".lock") || strings.Contains(lower, ".min.")
}

// Local walks dir and returns the text of every file that passes the filters.
func Local(dir string, opts Options) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("crawl %s: not a directory", dir)
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	res := &Result{Files: map[string]string{}}
	folders := map[string]bool{}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Warn().Err(walkErr).Str("path", p).Msg("Skipping unreadable path")
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		special := SpecialFolderOf(rel)

		if d.IsDir() {
			if IsSpecialFolder(d.Name()) {
				folders[d.Name()] = true
				return nil
			}
			if special == "" && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if special == "" {
			if matchAny(opts.Exclude, rel) || (len(opts.Include) > 0 && !matchAny(opts.Include, rel)) {
				res.Skipped++
				return nil
			}
			if isLockOrMinified(d.Name()) {
				res.Skipped++
				return nil
			}
		}

		fi, err := d.Info()
		if err != nil || !fi.Mode().IsRegular() {
			res.Skipped++
			return nil
		}
		if special == "" && fi.Size() > maxSize {
			log.Debug().Str("file", rel).Int64("size", fi.Size()).Msg("Skipping file over size limit")
			res.Skipped++
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("Could not read file")
			res.Skipped++
			return nil
		}
		if bytes.IndexByte(data, 0) >= 0 {
			res.Skipped++
			return nil
		}
		res.Files[rel] = string(bytes.TrimPrefix(data, []byte("\ufeff")))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", dir, err)
	}

	for name := range folders {
		res.SpecialFolders = append(res.SpecialFolders, name)
	}
	sort.Strings(res.SpecialFolders)

	if opts.Redact {
		n, err := Redact(res.Files)
		if err != nil {
			log.Warn().Err(err).Msg("Secret redaction unavailable")
		}
		res.Redactions = n
	}

	log.Info().
		Str("dir", dir).
		Int("files", len(res.Files)).
		Int("skipped", res.Skipped).
		Strs("special_folders", res.SpecialFolders).
		Msg("Crawl finished")

	if len(res.Files) == 0 {
		return res, ErrEmptyCrawl
	}
	return res, nil
}
