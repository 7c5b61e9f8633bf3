// Package report renders the hard-gate assessment as Markdown and HTML.
// Everything shown is recomputed from the analysis record, so the same
// record always produces the same bytes.
package report

import (
	_ "embed"
	"path"
	"sort"
	"strings"

	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/crawl"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/jira"
	"github.com/hardgate/internal/taxonomy"
)

// Output file names
const (
	MarkdownFile = "analysis_report.md"
	HTMLFile     = "analysis_report.html"
)

// Stylesheet is shared by every HTML report the pipeline writes.
//
//go:embed assets/report.css
var Stylesheet string

// Data is the input of the writer.
type Data struct {
	ProjectName    string
	Files          map[string]string
	SpecialFolders []string
	Record         *taxonomy.AnalysisRecord
	Intake         *intake.Descriptor
	Stories        []jira.Story
	Errors         []string
}

// FromBlackboard collects the report input of a run.
func FromBlackboard(bb *blackboard.Blackboard) Data {
	return Data{
		ProjectName:    bb.ComponentName(),
		Files:          bb.FilesData,
		SpecialFolders: bb.SpecialFolders,
		Record:         bb.CodeAnalysis,
		Intake:         bb.ExcelValidation,
		Stories:        bb.JiraStories,
		Errors:         bb.Errors,
	}
}

func (d Data) record() *taxonomy.AnalysisRecord {
	if d.Record != nil {
		return d.Record
	}
	rec := taxonomy.NewRecord()
	rec.FillTaxonomy()
	return rec
}

// ExtensionCount is one entry of the file type summary.
type ExtensionCount struct {
	Ext   string
	Count int
}

// Extensions counts files per extension, most common first.
func Extensions(files map[string]string) []ExtensionCount {
	counts := map[string]int{}
	for p := range files {
		ext := path.Ext(p)
		if ext == "" {
			ext = "(none)"
		}
		counts[ext]++
	}
	out := make([]ExtensionCount, 0, len(counts))
	for ext, n := range counts {
		out = append(out, ExtensionCount{Ext: ext, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Ext < out[j].Ext
	})
	return out
}

// FolderContents lists the crawled files of each special folder.
type FolderContents struct {
	Folder string
	Files  []string
}

func folderContents(files map[string]string, folders []string) []FolderContents {
	byFolder := map[string][]string{}
	for p := range files {
		if f := crawl.SpecialFolderOf(p); f != "" {
			byFolder[f] = append(byFolder[f], p)
		}
	}
	out := make([]FolderContents, 0, len(folders))
	for _, f := range folders {
		paths := byFolder[f]
		sort.Strings(paths)
		out = append(out, FolderContents{Folder: f, Files: paths})
	}
	return out
}

// StatusClass is the CSS class of a practice status.
func StatusClass(s taxonomy.Status) string {
	switch s {
	case taxonomy.StatusYes:
		return "status-implemented"
	case taxonomy.StatusPartial:
		return "status-partial"
	default:
		return "status-not-implemented"
	}
}

// PriorityClass is the CSS class of a priority or severity name.
func PriorityClass(p string) string {
	return "priority-" + strings.ToLower(p)
}

// findingGroup holds the findings of one category in first-seen order.
type findingGroup struct {
	Category string
	Findings []taxonomy.Finding
}

func groupFindings(findings []taxonomy.Finding) []findingGroup {
	var groups []findingGroup
	index := map[string]int{}
	for _, f := range findings {
		cat := f.Category
		if cat == "" {
			cat = "other"
		}
		i, ok := index[cat]
		if !ok {
			i = len(groups)
			index[cat] = i
			groups = append(groups, findingGroup{Category: cat})
		}
		groups[i].Findings = append(groups[i].Findings, f)
	}
	return groups
}

func storyStatusCounts(stories []jira.Story) []ExtensionCount {
	counts := map[string]int{}
	var order []string
	for _, s := range stories {
		status := s.Status
		if status == "" {
			status = "Unknown"
		}
		if counts[status] == 0 {
			order = append(order, status)
		}
		counts[status]++
	}
	out := make([]ExtensionCount, len(order))
	for i, s := range order {
		out[i] = ExtensionCount{Ext: s, Count: counts[s]}
	}
	return out
}

func titleWords(s string) string {
	return taxonomy.PracticeTitle(strings.ReplaceAll(strings.ToLower(s), " ", "_"))
}
