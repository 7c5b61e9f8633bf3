// Package pipeline assembles the assessment stages into a flow:
// intake, crawl, hard-gate analysis, OpenShift assessment, Jira, report,
// migration insights and index.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/flow"
	"github.com/hardgate/internal/hardgates"
	"github.com/hardgate/internal/index"
	"github.com/hardgate/internal/jira"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/logging"
)

// Stage names, also used as progress markers.
const (
	StageIntake     = "intake"
	StageCrawl      = "crawl"
	StageAnalysis   = "analysis"
	StageAssessment = "ocp_assessment"
	StageJira       = "jira"
	StageReport     = "report"
	StageInsights   = "migration_insights"
	StageIndex      = "index"
)

// Intake actions. Both continue to the crawl.
const (
	ActionSuccess flow.Action = "success"
	ActionError   flow.Action = "error"
)

// Request is one assessment.
type Request struct {
	RepoURL     string   `json:"repo_url,omitempty"`
	LocalDir    string   `json:"local_dir,omitempty"`
	ExcelFile   string   `json:"excel_file,omitempty"`
	SheetName   string   `json:"sheet_name,omitempty"`
	GitHubToken string   `json:"github_token,omitempty"`
	Include     []string `json:"include,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	MaxFileSize int64    `json:"max_file_size,omitempty"`
	OutputDir   string   `json:"output_dir,omitempty"`
	NoCache     bool     `json:"no_cache,omitempty"`
}

// Validate checks that exactly one source is given.
func (r Request) Validate() error {
	n := 0
	for _, s := range []string{r.RepoURL, r.LocalDir, r.ExcelFile} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return &config.Error{Msg: "exactly one of --repo, --dir, --excel or --excel-dir must be given"}
	}
	if r.LocalDir != "" {
		info, err := os.Stat(r.LocalDir)
		if err != nil || !info.IsDir() {
			return &config.Error{Field: "dir", Msg: fmt.Sprintf("%s is not a readable directory", r.LocalDir)}
		}
	}
	if r.ExcelFile != "" {
		if _, err := os.Stat(r.ExcelFile); err != nil {
			return &config.Error{Field: "excel", Msg: fmt.Sprintf("intake workbook not found: %s", r.ExcelFile)}
		}
	}
	return nil
}

// Deps are the collaborators shared by every run.
type Deps struct {
	Config *config.Config
	LLM    llm.Caller
	// Index may be nil, which behaves like a disabled index.
	Index index.Index
	// Jira may be nil when credentials are not configured.
	Jira *jira.Client
}

// NewBlackboard fills a blackboard from req, taking defaults from cfg.
func NewBlackboard(runID string, req Request, cfg *config.Config) *blackboard.Blackboard {
	bb := blackboard.New(runID)
	bb.RepoURL = req.RepoURL
	bb.LocalDir = req.LocalDir
	bb.ExcelFile = req.ExcelFile
	bb.SheetName = req.SheetName
	bb.GitHubToken = req.GitHubToken
	if bb.GitHubToken == "" {
		bb.GitHubToken = cfg.Crawl.GitHubToken
	}
	bb.IncludePatterns = req.Include
	if len(bb.IncludePatterns) == 0 {
		bb.IncludePatterns = cfg.Crawl.Include
	}
	bb.ExcludePatterns = req.Exclude
	if len(bb.ExcludePatterns) == 0 {
		bb.ExcludePatterns = cfg.Crawl.Exclude
	}
	bb.MaxFileSize = req.MaxFileSize
	if bb.MaxFileSize <= 0 {
		bb.MaxFileSize = cfg.Crawl.MaxFileSize
	}
	bb.OutputDir = req.OutputDir
	if bb.OutputDir == "" {
		bb.OutputDir = cfg.OutputDir
	}
	bb.UseCache = !req.NoCache
	return bb
}

// Build wires the stages. The intake stage is only part of the flow when
// the run starts from a workbook.
func Build(d Deps, withIntake bool) *flow.Flow[*blackboard.Blackboard] {
	ix := d.Index
	if ix == nil {
		ix = index.Disabled{}
	}

	crawlNode := flow.NewNode[*blackboard.Blackboard](StageCrawl, &crawlStage{cfg: d.Config})
	analysisNode := flow.NewNode[*blackboard.Blackboard](StageAnalysis, &analysisStage{
		analyzer: hardgates.New(d.LLM, hardgates.NewRecordCache(d.Config.Analysis.CacheDir), d.Config.Analysis.MaxFileChars),
	})
	assessmentNode := flow.NewNode[*blackboard.Blackboard](StageAssessment, newAssessmentStage(d.LLM))
	jiraNode := flow.NewNode[*blackboard.Blackboard](StageJira, &jiraStage{client: d.Jira}, flow.WithRetries(2, 2*time.Second))
	reportNode := flow.NewNode[*blackboard.Blackboard](StageReport, &reportStage{})
	insightsNode := flow.NewNode[*blackboard.Blackboard](StageInsights, newInsightsStage(d.LLM))
	indexNode := flow.NewNode[*blackboard.Blackboard](StageIndex, &indexStage{index: ix, collections: index.CollectionsFrom(d.Config.Index)})

	crawlNode.Next(analysisNode).Next(assessmentNode).Next(jiraNode).Next(reportNode).Next(insightsNode).Next(indexNode)

	if !withIntake {
		return flow.New(crawlNode)
	}
	intakeNode := flow.NewNode[*blackboard.Blackboard](StageIntake, &intakeStage{})
	intakeNode.On(ActionSuccess, crawlNode)
	intakeNode.On(ActionError, crawlNode)
	return flow.New(intakeNode)
}

// Run executes one assessment and returns the final blackboard. The error
// is non-nil only when the flow aborted; recoverable problems are listed in
// the blackboard's Errors.
func Run(ctx context.Context, d Deps, req Request) (*blackboard.Blackboard, error) {
	return RunWithID(ctx, d, req, uuid.NewString())
}

// RunWithID is Run with a caller-chosen run id.
func RunWithID(ctx context.Context, d Deps, req Request, runID string) (*blackboard.Blackboard, error) {
	bb := NewBlackboard(runID, req, d.Config)
	return bb, Execute(ctx, d, bb)
}

// Execute runs the flow over a prepared blackboard.
func Execute(ctx context.Context, d Deps, bb *blackboard.Blackboard) error {
	if err := os.MkdirAll(bb.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	runLogger, err := logging.StartRunLogging(bb.OutputDir, bb.RunID)
	if err != nil {
		log.Warn().Err(err).Msg("Could not start run log")
	}
	defer runLogger.Close()

	runLogger.LogSection("ASSESSMENT REQUEST")
	runLogger.Log("Repository: %s", bb.RepoURL)
	runLogger.Log("Directory: %s", bb.LocalDir)
	runLogger.Log("Intake workbook: %s", bb.ExcelFile)
	runLogger.Log("Output: %s", bb.OutputDir)
	runLogger.Log("Use cache: %t", bb.UseCache)

	started := time.Now()
	log.Info().Str("run_id", bb.RunID).Str("output", bb.OutputDir).Msg("Assessment started")

	_, err = Build(d, bb.ExcelFile != "").Run(ctx, bb)
	if err != nil {
		log.Error().Err(err).Str("run_id", bb.RunID).Msg("Assessment aborted")
		return err
	}

	log.Info().
		Str("run_id", bb.RunID).
		Str("component", bb.ComponentName()).
		Int("files", len(bb.FilesData)).
		Int("errors", len(bb.Errors)).
		Dur("duration", time.Since(started)).
		Msg("Assessment complete")
	return nil
}
