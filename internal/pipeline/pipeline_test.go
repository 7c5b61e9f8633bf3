package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardgate/internal/assessment"
	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/crawl"
	"github.com/hardgate/internal/embedding"
	"github.com/hardgate/internal/flow"
	"github.com/hardgate/internal/hardgates"
	"github.com/hardgate/internal/index"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/llm/llmtest"
	"github.com/hardgate/internal/report"
)

const (
	analysisMarker = "You are a software engineering consultant"
	ocpMarker      = "OpenShift migration intake assessment agent"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		OutputDir: filepath.Join(dir, "out"),
		LLM:       config.LLMConfig{MaxTokens: 8000, Temperature: 0.1, CacheFile: filepath.Join(dir, "llm_cache.json")},
		Crawl:     config.CrawlConfig{MaxFileSize: 100000, CloneTimeout: crawl.DefaultCloneTimeout},
		Analysis:  config.AnalysisConfig{MaxFileChars: 50000, CacheDir: filepath.Join(dir, "cache")},
		Index: config.IndexConfig{
			Backend:            "file",
			PersistDir:         filepath.Join(dir, "index"),
			AnalysisCollection: "analysis_reports",
			OCPCollection:      "ocp_assessment_reports",
		},
		Embedding: config.EmbeddingConfig{FallbackDim: 8, EndpointTimeout: 1},
	}
}

func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {\n\tpassword := \"x\"\n}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/payments\n"), 0644))
	return dir
}

func analysisJSON(findings []any, components map[string]any) string {
	body, _ := json.Marshal(map[string]any{
		"technology_stack": map[string]any{
			"languages": []any{map[string]any{"name": "Go", "version": "1.22", "purpose": "service", "files": []any{"main.go"}}},
		},
		"findings":                  findings,
		"component_analysis":        components,
		"security_quality_analysis": map[string]any{},
	})
	return "Analysis follows.\n```json\n" + string(body) + "\n```\n"
}

// routedModel answers each prompt family with its own reply.
func routedModel(analysis string) *llmtest.Model {
	m := &llmtest.Model{}
	m.Respond = func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, analysisMarker):
			return analysis, nil
		case strings.Contains(prompt, ocpMarker):
			return "```html\n<h2>Executive Summary</h2>\n<p>The component can move.</p>\n```", nil
		default:
			return "<h2>Insights</h2><div class=\"go-status go\">Go</div><p>Plan the move.</p>", nil
		}
	}
	return m
}

func testDeps(cfg *config.Config, model *llmtest.Model) Deps {
	client := llm.NewWithModel(model, llm.Selection{Provider: llm.ProviderOpenAI, Model: "test"}, llm.Options{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		CacheFile:   cfg.LLM.CacheFile,
	})
	return Deps{Config: cfg, LLM: client}
}

func countPrompts(m *llmtest.Model, marker string) int {
	n := 0
	for _, p := range m.Prompts() {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRequestValidate(t *testing.T) {
	dir := t.TempDir()
	workbook := filepath.Join(dir, "intake.csv")
	require.NoError(t, os.WriteFile(workbook, []byte("x\n"), 0644))

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"repo", Request{RepoURL: "https://github.com/acme/payments"}, false},
		{"dir", Request{LocalDir: dir}, false},
		{"excel", Request{ExcelFile: workbook}, false},
		{"none", Request{}, true},
		{"two sources", Request{RepoURL: "https://github.com/acme/payments", LocalDir: dir}, true},
		{"missing dir", Request{LocalDir: filepath.Join(dir, "nope")}, true},
		{"file as dir", Request{LocalDir: workbook}, true},
		{"missing workbook", Request{ExcelFile: filepath.Join(dir, "nope.xlsx")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *config.Error
			assert.True(t, errors.As(err, &cfgErr), "want config.Error, got %v", err)
		})
	}
}

func TestNewBlackboard_Defaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.GitHubToken = "env-token"
	cfg.Crawl.Include = []string{"*.go"}

	bb := NewBlackboard("run-1", Request{LocalDir: "/src", NoCache: true, Exclude: []string{"vendor/*"}}, cfg)
	assert.Equal(t, "env-token", bb.GitHubToken)
	assert.Equal(t, []string{"*.go"}, bb.IncludePatterns)
	assert.Equal(t, []string{"vendor/*"}, bb.ExcludePatterns)
	assert.Equal(t, int64(100000), bb.MaxFileSize)
	assert.Equal(t, cfg.OutputDir, bb.OutputDir)
	assert.False(t, bb.UseCache)

	bb = NewBlackboard("run-2", Request{LocalDir: "/src", GitHubToken: "flag-token", OutputDir: "/tmp/x"}, cfg)
	assert.Equal(t, "flag-token", bb.GitHubToken)
	assert.Equal(t, "/tmp/x", bb.OutputDir)
	assert.True(t, bb.UseCache)
}

func TestRun_LocalDirectory(t *testing.T) {
	cfg := testConfig(t)
	model := routedModel(analysisJSON([]any{}, map[string]any{"rest_api": map[string]any{"detected": "yes", "evidence": "handlers"}}))

	bb, err := Run(context.Background(), testDeps(cfg, model), Request{LocalDir: sourceDir(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{StageCrawl, StageAnalysis, StageAssessment, StageJira, StageReport, StageInsights, StageIndex}, bb.Progress())
	assert.Empty(t, bb.Errors)
	assert.Len(t, bb.FilesData, 2)
	require.NotNil(t, bb.CodeAnalysis)
	assert.Equal(t, "yes", bb.CodeAnalysis.ComponentAnalysis["rest_api"].Detected)

	for _, name := range []string{report.MarkdownFile, report.HTMLFile, assessment.OCPHTMLFile, assessment.OCPMarkdownFile, assessment.InsightsHTMLFile, assessment.InsightsMarkdownFile} {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, name))
	}
	assert.Equal(t, filepath.Join(cfg.OutputDir, report.MarkdownFile), bb.AnalysisReport[blackboard.FormatMarkdown])
	require.NotNil(t, bb.OCPAssessment)
	assert.Contains(t, bb.OCPAssessment.HTML, "<h2>Executive Summary</h2>")
	require.NotNil(t, bb.MigrationInsights)
	assert.Equal(t, assessment.Go, bb.MigrationInsights.GoNoGo)

	logs, err := filepath.Glob(filepath.Join(cfg.OutputDir, "logs", "run_"+bb.RunID+"_*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRun_ComponentDeclarationMismatch(t *testing.T) {
	cfg := testConfig(t)
	workbook := filepath.Join(t.TempDir(), "intake.csv")
	require.NoError(t, os.WriteFile(workbook, []byte(
		"payments-api\n"+
			",Provide the git repo URL,https://github.com/acme/payments-api\n"+
			",Who owns it?,Team A\n"+
			",Is the component using redis?,yes\n"), 0644))

	model := routedModel(analysisJSON([]any{}, map[string]any{"redis": map[string]any{"detected": "no", "evidence": "none"}}))
	bb := NewBlackboard("mismatch", Request{ExcelFile: workbook}, cfg)
	bb.LocalDir = sourceDir(t)

	require.NoError(t, Execute(context.Background(), testDeps(cfg, model), bb))

	assert.Equal(t, StageIntake, bb.Progress()[0])
	require.NotNil(t, bb.ExcelValidation)
	assert.True(t, bb.ExcelValidation.Validation.IsValid)
	assert.Empty(t, bb.RepoURL, "a local directory wins over the workbook's repository")
	assert.Equal(t, "payments-api", bb.ComponentName())
	assert.FileExists(t, filepath.Join(cfg.OutputDir, intake.ValidationFile))

	md := readFile(t, bb.AnalysisReport[blackboard.FormatMarkdown])
	assert.True(t, strings.HasPrefix(md, "# Application & Platform Hard Gates for payments-api\n"))
	assert.Equal(t, 1, strings.Count(md, "| Mismatch |"))
	assert.Contains(t, md, "| Redis | Yes | No | Mismatch |")
	assert.Regexp(t, `### \d+\. Resolve Component Declaration Mismatches \(Priority: High\)`, md)
}

func TestRun_IncompleteIntakeContinues(t *testing.T) {
	cfg := testConfig(t)
	workbook := filepath.Join(t.TempDir(), "intake.csv")
	require.NoError(t, os.WriteFile(workbook, []byte("ledger\n,Who owns it?,\n"), 0644))

	model := routedModel(analysisJSON([]any{}, map[string]any{}))
	bb := NewBlackboard("incomplete", Request{ExcelFile: workbook}, cfg)
	bb.LocalDir = sourceDir(t)

	require.NoError(t, Execute(context.Background(), testDeps(cfg, model), bb))
	assert.False(t, bb.ExcelValidation.Validation.IsValid)
	assert.Contains(t, bb.Progress(), StageReport)
	require.NotEmpty(t, bb.Errors)
	assert.True(t, strings.HasPrefix(bb.Errors[0], StageIntake+": intake form incomplete"))
}

func TestRun_UnreadableWorkbookAborts(t *testing.T) {
	cfg := testConfig(t)
	workbook := filepath.Join(t.TempDir(), "legacy.xls")
	require.NoError(t, os.WriteFile(workbook, []byte("legacy"), 0644))

	model := routedModel("")
	_, err := Run(context.Background(), testDeps(cfg, model), Request{ExcelFile: workbook})
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrAborted)
	assert.ErrorIs(t, err, intake.ErrUnreadableWorkbook)
	assert.Zero(t, model.Calls())

	saved := readFile(t, filepath.Join(cfg.OutputDir, intake.ValidationFile))
	assert.Contains(t, saved, `"component_name": "Unknown Component"`)
}

func TestRun_CriticalFindingsMeanNoGo(t *testing.T) {
	cfg := testConfig(t)
	critical := func(desc string) any {
		return map[string]any{
			"category": "security", "severity": "critical", "description": desc,
			"location":       map[string]any{"file": "main.go", "line": 4, "code": "password := \"x\""},
			"recommendation": "Move secrets to a vault",
		}
	}
	model := routedModel(analysisJSON([]any{critical("Hard-coded password"), critical("Plain HTTP"), critical("No authentication")}, map[string]any{}))

	bb, err := Run(context.Background(), testDeps(cfg, model), Request{LocalDir: sourceDir(t)})
	require.NoError(t, err)

	require.NotNil(t, bb.MigrationInsights)
	assert.Equal(t, assessment.NoGo, bb.MigrationInsights.GoNoGo)
	assert.Contains(t, bb.MigrationInsights.HTML, `<div class="go-status no-go">No Go</div>`)

	md := readFile(t, bb.AnalysisReport[blackboard.FormatMarkdown])
	assert.Contains(t, md, "### 1. Address Critical Severity Findings (Priority: Critical)\n\nThere are 3 critical severity findings")
}

func TestRun_EmptyCodebase(t *testing.T) {
	cfg := testConfig(t)
	model := routedModel(analysisJSON([]any{}, map[string]any{}))

	bb, err := Run(context.Background(), testDeps(cfg, model), Request{LocalDir: t.TempDir()})
	require.NoError(t, err)

	assert.Zero(t, countPrompts(model, analysisMarker))
	assert.Empty(t, bb.FilesData)
	require.NotNil(t, bb.CodeAnalysis)
	assert.Equal(t, hardgates.ErrNoFiles, bb.CodeAnalysis.Error)
	assert.Empty(t, bb.CodeAnalysis.Findings)
	assert.Empty(t, bb.CodeAnalysis.ComponentAnalysis)
	assert.Equal(t, 0.0, bb.Compliance.Percentage)
	assert.Contains(t, bb.Errors, StageCrawl+": "+crawl.ErrEmptyCrawl.Error())

	md := readFile(t, bb.AnalysisReport[blackboard.FormatMarkdown])
	assert.Contains(t, md, "**Files Analyzed**: 0\n")
	assert.NotContains(t, md, "Severity Findings (Priority:")
	assert.Contains(t, md, "## Errors\n")
}

func TestRun_MalformedAnalysisFallsBackToText(t *testing.T) {
	cfg := testConfig(t)
	model := routedModel("The service uses Java with Spring and a REST API. Nothing else to report.")

	bb, err := Run(context.Background(), testDeps(cfg, model), Request{LocalDir: sourceDir(t)})
	require.NoError(t, err)

	assert.Equal(t, hardgates.MaxAttempts, countPrompts(model, analysisMarker))
	require.NotNil(t, bb.CodeAnalysis)
	for cat, practices := range bb.CodeAnalysis.SecurityQualityAnalysis {
		for name, res := range practices {
			assert.Contains(t, []string{"no", "partial"}, string(res.Implemented), "%s.%s", cat, name)
		}
	}
	assert.Contains(t, bb.Progress(), StageIndex)
}

func TestRun_CacheHitRepeatsReportWithoutModelCalls(t *testing.T) {
	cfg := testConfig(t)
	model := routedModel(analysisJSON([]any{
		map[string]any{"category": "quality", "severity": "medium", "description": "No tests", "location": map[string]any{"file": "main.go", "line": 1}},
	}, map[string]any{"rest_api": map[string]any{"detected": "yes", "evidence": "handlers"}}))
	d := testDeps(cfg, model)
	src := sourceDir(t)

	first, err := Run(context.Background(), d, Request{LocalDir: src, OutputDir: filepath.Join(t.TempDir(), "first")})
	require.NoError(t, err)
	calls := model.Calls()
	require.Positive(t, calls)

	second, err := Run(context.Background(), d, Request{LocalDir: src, OutputDir: filepath.Join(t.TempDir(), "second")})
	require.NoError(t, err)

	assert.Equal(t, calls, model.Calls(), "second run must be served from the caches")
	assert.Equal(t,
		readFile(t, first.AnalysisReport[blackboard.FormatMarkdown]),
		readFile(t, second.AnalysisReport[blackboard.FormatMarkdown]))
	assert.Equal(t, first.OCPAssessment.Markdown, second.OCPAssessment.Markdown)
	assert.Equal(t, first.MigrationInsights.Markdown, second.MigrationInsights.Markdown)
}

func TestRun_NoCacheCallsModelAgain(t *testing.T) {
	cfg := testConfig(t)
	model := routedModel(analysisJSON([]any{}, map[string]any{}))
	d := testDeps(cfg, model)
	src := sourceDir(t)

	_, err := Run(context.Background(), d, Request{LocalDir: src})
	require.NoError(t, err)
	calls := model.Calls()

	_, err = Run(context.Background(), d, Request{LocalDir: src, NoCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2*calls, model.Calls())
}

// wordEmbedder hashes words into a bag-of-words vector.
type wordEmbedder struct{}

func (wordEmbedder) Name() string   { return "words" }
func (wordEmbedder) Dimension() int { return 32 }
func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 32)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%32]++
		}
		out[i] = v
	}
	return out, nil
}

func TestRun_IndexesReports(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Index.Enabled = true
	ix, err := index.New(ctx, cfg, wordEmbedder{})
	require.NoError(t, err)
	defer ix.Close()

	d := testDeps(cfg, routedModel(analysisJSON([]any{}, map[string]any{})))
	d.Index = ix
	bb, err := Run(ctx, d, Request{LocalDir: sourceDir(t)})
	require.NoError(t, err)

	require.Len(t, bb.Indexed, 3)
	analysisID := bb.Indexed[index.TypeAnalysis]
	require.NotEmpty(t, analysisID)
	assert.NotEmpty(t, bb.Indexed[index.TypeOCP])
	insightsID := bb.Indexed[index.TypeInsights]
	require.NotEmpty(t, insightsID)

	insights, err := ix.Get(ctx, cfg.Index.AnalysisCollection, insightsID)
	require.NoError(t, err)
	require.NotNil(t, insights)
	assert.Equal(t, index.TypeInsights, insights.Metadata[index.MetaReportType])
	assert.Equal(t, bb.ComponentName(), insights.Metadata[index.MetaComponent])
	assert.Equal(t, readFile(t, bb.MigrationInsights.MarkdownPath), insights.Document)

	md := readFile(t, bb.AnalysisReport[blackboard.FormatMarkdown])
	matches, err := ix.Query(ctx, cfg.Index.AnalysisCollection, md, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, analysisID, matches[0].ID)
	assert.GreaterOrEqual(t, matches[0].Similarity, 0.99)

	components, err := ix.ListComponents(ctx, cfg.Index.OCPCollection)
	require.NoError(t, err)
	assert.Equal(t, []string{bb.ComponentName()}, components)
}

func TestRun_IndexWithUnreachableEmbeddingEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Index.Enabled = true
	cfg.Embedding.EndpointURL = srv.URL
	var embedder embedding.Embedder = embedding.NewEndpoint(cfg.Embedding)
	ix, err := index.New(ctx, cfg, embedder)
	require.NoError(t, err)
	defer ix.Close()

	d := testDeps(cfg, routedModel(analysisJSON([]any{}, map[string]any{})))
	d.Index = ix
	bb, err := Run(ctx, d, Request{LocalDir: sourceDir(t)})
	require.NoError(t, err)
	assert.Empty(t, bb.Errors)

	records, err := ix.Filter(ctx, cfg.Index.AnalysisCollection, map[string]string{
		index.MetaComponent:  bb.ComponentName(),
		index.MetaReportType: index.TypeAnalysis,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, bb.Indexed[index.TypeAnalysis], records[0].ID)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	model := routedModel("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bb, err := Run(ctx, testDeps(cfg, model), Request{LocalDir: sourceDir(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, bb.Progress())
	assert.Zero(t, model.Calls())
}
