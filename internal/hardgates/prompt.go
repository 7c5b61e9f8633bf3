package hardgates

import (
	"fmt"
	"strings"

	"github.com/hardgate/internal/prompts"
	"github.com/hardgate/internal/taxonomy"
)

// ComponentCheckList numbers the catalogue for the prompt.
func ComponentCheckList() string {
	var b strings.Builder
	b.WriteString("\n")
	for i, c := range taxonomy.Catalogue {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Name)
	}
	return b.String()
}

// ComponentSchema renders the component_analysis example body.
func ComponentSchema() string {
	lines := make([]string, len(taxonomy.Catalogue))
	for i, c := range taxonomy.Catalogue {
		lines[i] = fmt.Sprintf(`    %q: { "detected": "yes/no", "evidence": "evidence of detection or lack thereof" }`, c.Name)
	}
	return strings.Join(lines, ",\n")
}

// TaxonomySchema renders the security_quality_analysis example body.
func TaxonomySchema() string {
	cats := make([]string, len(taxonomy.Categories))
	for i, c := range taxonomy.Categories {
		practices := make([]string, len(c.Practices))
		for j, p := range c.Practices {
			practices[j] = fmt.Sprintf(`      %q: { "implemented": "yes/no/partial", "evidence": "evidence", "recommendation": "recommendation" }`, p)
		}
		cats[i] = fmt.Sprintf("    %q: {\n%s\n    }", c.Key, strings.Join(practices, ",\n"))
	}
	return strings.Join(cats, ",\n")
}

// BuildPrompt renders the hard-gate analysis prompt for a crawl.
func BuildPrompt(project string, files map[string]string, context string) (string, error) {
	head, tail := FileListing(files)
	return prompts.Render(prompts.HardGateAnalysis, prompts.Vars{
		"project_name":         project,
		"file_count":           len(files),
		"file_listing_head":    head,
		"file_listing_tail":    tail,
		"component_check_list": ComponentCheckList(),
		"component_schema":     ComponentSchema(),
		"taxonomy_schema":      TaxonomySchema(),
		"context":              context,
	})
}
