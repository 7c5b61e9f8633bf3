package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardgate/internal/pipeline"
	"github.com/hardgate/internal/taxonomy"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "****"},
		{"12345678", "****"},
		{"sk-abcdefghijkl", "sk****kl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskSecret(tt.in))
	}
}

func TestCheckRequiredConfig(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	t.Run("no llm key", func(t *testing.T) {
		res := CheckRequiredConfig(env(map[string]string{}))
		require.Len(t, res.Missing, 1)
		assert.Contains(t, res.Missing[0], "OPENAI_API_KEY")
	})

	t.Run("configured", func(t *testing.T) {
		res := CheckRequiredConfig(env(map[string]string{
			"OPENAI_API_KEY": "sk-abcdefghijkl",
			"GITHUB_TOKEN":   "ghp_abcdefghijkl",
			"JIRA_URL":       "https://acme.atlassian.net",
		}))
		assert.Empty(t, res.Missing)
		assert.Equal(t, "sk****kl", res.Present["OPENAI_API_KEY"])
		assert.Equal(t, "https://acme.atlassian.net", res.Present["JIRA_URL"])
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "Jira is partly configured")
	})

	t.Run("local model needs no key", func(t *testing.T) {
		res := CheckRequiredConfig(env(map[string]string{"OPENAI_BASE_URL": "http://localhost:1234/v1"}))
		assert.Empty(t, res.Missing)
	})
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nHARDGATE_TEST_A=\"quoted value\"\nexport HARDGATE_TEST_B='single'\nHARDGATE_TEST_C=from-file\nnot a pair\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("HARDGATE_TEST_C", "from-env")
	t.Setenv("HARDGATE_TEST_A", "")
	os.Unsetenv("HARDGATE_TEST_A")
	t.Setenv("HARDGATE_TEST_B", "")
	os.Unsetenv("HARDGATE_TEST_B")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "quoted value", os.Getenv("HARDGATE_TEST_A"))
	assert.Equal(t, "single", os.Getenv("HARDGATE_TEST_B"))
	assert.Equal(t, "from-env", os.Getenv("HARDGATE_TEST_C"))
}

func TestDirName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Payments Service", "Payments_Service"},
		{"  ledger/api  ", "ledger_api"},
		{"../..", "component"},
		{"", "component"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dirName(tt.in), tt.in)
	}
}

func TestPrintSummary(t *testing.T) {
	res := &pipeline.Result{
		ProjectName: "payments",
		Results: pipeline.Results{
			Compliance: taxonomy.Compliance{Percentage: 53.3},
			Rating:     "Needs Improvement",
			GoNoGo:     "NO-GO",
			Files:      12,
			Reports: map[string]string{
				"analysis_markdown": "/out/analysis_report.md",
				"analysis_html":     "/out/analysis_report.html",
			},
			Errors: []string{"jira: timeout"},
		},
	}
	var buf bytes.Buffer
	printSummary(&buf, res, "/out")
	out := buf.String()

	assert.Contains(t, out, "Assessment complete: payments")
	assert.Contains(t, out, "53.3% (Needs Improvement)")
	assert.Contains(t, out, "NO-GO")
	assert.Contains(t, out, "- jira: timeout")
	assert.Less(t, strings.Index(out, "analysis_html"), strings.Index(out, "analysis_markdown"))
}
