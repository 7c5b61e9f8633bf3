package hardgates

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hardgate/internal/crawl"
)

// Context builder limits
const (
	MaxSnippets         = 20
	SnippetLimit        = 3000
	SnippetHalf         = 1500
	DefaultMaxFileChars = 50000
	listingHead         = 20
)

// orderedPaths sorts paths by extension, then by path.
func orderedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		ei, ej := strings.ToLower(filepath.Ext(paths[i])), strings.ToLower(filepath.Ext(paths[j]))
		if ei != ej {
			return ei < ej
		}
		return paths[i] < paths[j]
	})
	return paths
}

// Snippet shortens content over SnippetLimit to its head and tail.
func Snippet(content string) string {
	if len(content) <= SnippetLimit {
		return content
	}
	return content[:SnippetHalf] + "\n...\n" + content[len(content)-SnippetHalf:]
}

// BuildContext concatenates up to MaxSnippets file snippets and appends the
// extension histogram. Files over maxFileChars are skipped unless they sit in
// a special folder.
func BuildContext(files map[string]string, maxFileChars int) string {
	if maxFileChars <= 0 {
		maxFileChars = DefaultMaxFileChars
	}
	var parts []string
	for _, p := range orderedPaths(files) {
		if len(parts) >= MaxSnippets {
			break
		}
		content := files[p]
		if len(content) > maxFileChars && crawl.SpecialFolderOf(p) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("File: %s\n```\n%s\n```\n", p, Snippet(content)))
	}
	parts = append(parts, ExtensionSummary(files))
	return strings.Join(parts, "\n")
}

// ExtensionSummary counts files per extension, in extension order.
func ExtensionSummary(files map[string]string) string {
	counts := map[string]int{}
	for p := range files {
		if ext := filepath.Ext(p); ext != "" {
			counts[ext]++
		}
	}
	exts := make([]string, 0, len(counts))
	for e := range counts {
		exts = append(exts, e)
	}
	sort.Strings(exts)

	var b strings.Builder
	b.WriteString("\nFile Extension Summary:\n")
	for _, e := range exts {
		fmt.Fprintf(&b, "- %s: %d files\n", e, counts[e])
	}
	return b.String()
}

// FileListing returns "path (N bytes)" lines split into the first twenty and,
// for longer listings, the last twenty.
func FileListing(files map[string]string) (head, tail []string) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = fmt.Sprintf("%s (%d bytes)", p, len(files[p]))
	}
	if len(lines) <= listingHead {
		return lines, nil
	}
	return lines[:listingHead], lines[max(listingHead, len(lines)-listingHead):]
}
