package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/assessment"
	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/crawl"
	"github.com/hardgate/internal/flow"
	"github.com/hardgate/internal/hardgates"
	"github.com/hardgate/internal/index"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/jira"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/report"
	"github.com/hardgate/internal/retry"
)

type bbStage = flow.Stage[*blackboard.Blackboard]

// intakeStage reads and validates the intake workbook.
type intakeStage struct{}

type intakePrep struct {
	path, sheet, outputDir string
}

func (s *intakeStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	if bb.ExcelFile == "" {
		return nil, &config.Error{Field: "excel", Msg: "intake workbook path not provided"}
	}
	return intakePrep{path: bb.ExcelFile, sheet: bb.SheetName, outputDir: bb.OutputDir}, nil
}

func (s *intakeStage) Exec(_ context.Context, prep any) (any, error) {
	p := prep.(intakePrep)
	d, err := intake.Process(p.path, p.sheet)
	if err != nil {
		if _, saveErr := intake.Save(d, p.outputDir); saveErr != nil {
			log.Warn().Err(saveErr).Msg("Could not save failed intake descriptor")
		}
		return nil, err
	}
	return d, nil
}

func (s *intakeStage) Post(_ context.Context, bb *blackboard.Blackboard, prep, exec any) (flow.Action, error) {
	p := prep.(intakePrep)
	d := exec.(*intake.Descriptor)

	out := blackboard.IntakeOutput{Descriptor: d}
	path, err := intake.Save(d, p.outputDir)
	if err != nil {
		bb.AddError(StageIntake, fmt.Errorf("save validation: %w", err))
	} else {
		out.Path = path
	}
	bb.ApplyIntake(out)
	bb.MarkDone(StageIntake)

	logger := logging.GetCurrentLogger()
	logger.Log("Intake: component=%s repo=%s valid=%t mandatory=%d unanswered=%d",
		d.ComponentName, d.RepoURL, d.Validation.IsValid, d.Validation.MandatoryRows, len(d.Validation.UnansweredMandatory))

	if d.RepoURL != "" && len(d.Validation.UnansweredMandatory) == 0 {
		return ActionSuccess, nil
	}
	log.Warn().
		Str("component", d.ComponentName).
		Int("unanswered", len(d.Validation.UnansweredMandatory)).
		Bool("repo_url", d.RepoURL != "").
		Msg("Intake form incomplete, continuing")
	bb.AddError(StageIntake, errors.New("intake form incomplete; see "+intake.ValidationFile))
	return ActionError, nil
}

// crawlStage collects the component's files from a clone or a directory.
type crawlStage struct {
	cfg *config.Config
}

type crawlPrep struct {
	repoURL, localDir string
	clone             crawl.CloneOptions
	opts              crawl.Options
}

func (s *crawlStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	timeout := s.cfg.Crawl.CloneTimeout
	if timeout <= 0 {
		timeout = crawl.DefaultCloneTimeout
	}
	return crawlPrep{
		repoURL:  bb.RepoURL,
		localDir: bb.LocalDir,
		clone: crawl.CloneOptions{
			Token:    bb.GitHubToken,
			Username: s.cfg.Crawl.GitUsername,
			Timeout:  timeout,
			Retry:    retry.ForClone(),
		},
		opts: crawl.Options{
			Include:     bb.IncludePatterns,
			Exclude:     bb.ExcludePatterns,
			MaxFileSize: bb.MaxFileSize,
			Redact:      true,
		},
	}, nil
}

type crawlResult struct {
	out blackboard.CrawlOutput
	err error
}

func (s *crawlStage) Exec(ctx context.Context, prep any) (any, error) {
	p := prep.(crawlPrep)

	var (
		res *crawl.Result
		err error
	)
	switch {
	case p.repoURL != "":
		res, err = crawl.Remote(ctx, p.repoURL, p.clone, p.opts)
	case p.localDir != "":
		res, err = crawl.Local(p.localDir, p.opts)
	default:
		return crawlResult{err: errors.New("no repository URL or directory to crawl")}, nil
	}

	if errors.Is(err, crawl.ErrEmptyCrawl) {
		return crawlResult{out: crawlOutput(p, res), err: err}, nil
	}
	if err != nil {
		return nil, err
	}
	return crawlResult{out: crawlOutput(p, res)}, nil
}

func crawlOutput(p crawlPrep, res *crawl.Result) blackboard.CrawlOutput {
	out := blackboard.CrawlOutput{ProjectName: crawl.ProjectName(p.repoURL, p.localDir), Files: map[string]string{}}
	if res != nil {
		out.Files = res.Files
		out.SpecialFolders = res.SpecialFolders
		out.Skipped = res.Skipped
		out.Redactions = res.Redactions
	}
	return out
}

func (s *crawlStage) Post(_ context.Context, bb *blackboard.Blackboard, _, exec any) (flow.Action, error) {
	r := exec.(crawlResult)
	bb.ApplyCrawl(r.out)
	if r.err != nil {
		log.Warn().Err(r.err).Msg("Crawl produced no files")
		bb.AddError(StageCrawl, r.err)
	}
	bb.MarkDone(StageCrawl)
	logging.GetCurrentLogger().Log("Crawled %d files (%d skipped, %d secrets redacted), special folders: %v",
		len(r.out.Files), r.out.Skipped, r.out.Redactions, r.out.SpecialFolders)
	return flow.DefaultAction, nil
}

// analysisStage runs the hard-gate analyzer.
type analysisStage struct {
	analyzer *hardgates.Analyzer
}

func (s *analysisStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	return hardgates.Input{
		ProjectName:    bb.ComponentName(),
		Files:          bb.FilesData,
		SpecialFolders: bb.SpecialFolders,
		UseCache:       bb.UseCache,
	}, nil
}

func (s *analysisStage) Exec(ctx context.Context, prep any) (any, error) {
	return s.analyzer.Analyze(ctx, prep.(hardgates.Input)), nil
}

func (s *analysisStage) Post(_ context.Context, bb *blackboard.Blackboard, _, exec any) (flow.Action, error) {
	out := exec.(blackboard.AnalysisOutput)
	bb.ApplyAnalysis(out)
	if out.Record != nil && out.Record.Error != "" {
		bb.AddError(StageAnalysis, errors.New(out.Record.Error))
	}
	bb.MarkDone(StageAnalysis)
	logging.GetCurrentLogger().Log("Analysis: compliance %.1f%% (%s), attempts=%d cached=%t text_fallback=%t",
		out.Compliance.Percentage, out.Compliance.Rating(), out.Attempts, out.Cached, out.UsedText)
	return flow.DefaultAction, nil
}

// assessmentStage writes the OpenShift migration assessment.
type assessmentStage struct {
	assessor *assessment.Assessor
}

func newAssessmentStage(caller llm.Caller) *assessmentStage {
	return &assessmentStage{assessor: assessment.NewAssessor(caller)}
}

func (s *assessmentStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	return assessment.FromBlackboard(bb), nil
}

func (s *assessmentStage) Exec(ctx context.Context, prep any) (any, error) {
	return s.assessor.Assess(ctx, prep.(assessment.Input)), nil
}

func (s *assessmentStage) Post(_ context.Context, bb *blackboard.Blackboard, _, exec any) (flow.Action, error) {
	out := exec.(blackboard.AssessmentOutput)
	if err := assessment.Save(bb.OutputDir, assessment.OCPHTMLFile, assessment.OCPMarkdownFile, &out); err != nil {
		bb.AddError(StageAssessment, err)
	}
	if out.Error != "" {
		bb.AddError(StageAssessment, errors.New(out.Error))
	}
	bb.OCPAssessment = &out
	bb.MarkDone(StageAssessment)
	return flow.DefaultAction, nil
}

// jiraStage lists the project's recent stories. Missing credentials give an
// empty list.
type jiraStage struct {
	client *jira.Client
}

type jiraResult struct {
	stories []jira.Story
	err     error
}

func (s *jiraStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	return bb.OutputDir, nil
}

func (s *jiraStage) Exec(ctx context.Context, prep any) (any, error) {
	if s.client == nil {
		log.Info().Msg("Jira credentials not configured, skipping story fetch")
		return jiraResult{}, nil
	}
	stories, err := s.client.Stories(ctx, prep.(string))
	if err != nil {
		return nil, err
	}
	return jiraResult{stories: stories}, nil
}

func (s *jiraStage) ExecFallback(_ context.Context, _ any, err error) (any, error) {
	return jiraResult{err: err}, nil
}

func (s *jiraStage) Post(_ context.Context, bb *blackboard.Blackboard, _, exec any) (flow.Action, error) {
	r := exec.(jiraResult)
	if r.err != nil {
		log.Warn().Err(r.err).Msg("Jira stories unavailable")
		bb.AddError(StageJira, r.err)
	}
	bb.JiraStories = r.stories
	bb.MarkDone(StageJira)
	return flow.DefaultAction, nil
}

// reportStage writes the Markdown and HTML analysis report.
type reportStage struct{}

func (s *reportStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	return reportPrep{dir: bb.OutputDir, data: report.FromBlackboard(bb)}, nil
}

type reportPrep struct {
	dir  string
	data report.Data
}

func (s *reportStage) Exec(_ context.Context, prep any) (any, error) {
	p := prep.(reportPrep)
	paths, _, err := report.Write(p.dir, p.data)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (s *reportStage) Post(_ context.Context, bb *blackboard.Blackboard, _, exec any) (flow.Action, error) {
	paths := exec.(report.Paths)
	bb.AnalysisReport[blackboard.FormatMarkdown] = paths.Markdown
	bb.AnalysisReport[blackboard.FormatHTML] = paths.HTML
	bb.MarkDone(StageReport)
	return flow.DefaultAction, nil
}

// insightsStage writes the migration insights report.
type insightsStage struct {
	generator *assessment.Generator
}

func newInsightsStage(caller llm.Caller) *insightsStage {
	return &insightsStage{generator: assessment.NewGenerator(caller)}
}

func (s *insightsStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	return assessment.FromBlackboard(bb), nil
}

func (s *insightsStage) Exec(ctx context.Context, prep any) (any, error) {
	return s.generator.Generate(ctx, prep.(assessment.Input)), nil
}

func (s *insightsStage) Post(_ context.Context, bb *blackboard.Blackboard, _, exec any) (flow.Action, error) {
	out := exec.(blackboard.InsightsOutput)
	if err := assessment.Save(bb.OutputDir, assessment.InsightsHTMLFile, assessment.InsightsMarkdownFile, &out.AssessmentOutput); err != nil {
		bb.AddError(StageInsights, err)
	}
	if out.Error != "" {
		bb.AddError(StageInsights, errors.New(out.Error))
	}
	bb.MigrationInsights = &out
	bb.MarkDone(StageInsights)
	logging.GetCurrentLogger().Log("Migration insights: %s (fallback=%t)", out.GoNoGo, out.Fallback)
	return flow.DefaultAction, nil
}

// indexStage stores the analysis report, the OpenShift assessment and the
// migration insights in the report index.
type indexStage struct {
	index       index.Index
	collections index.Collections
}

type indexItem struct {
	collection, reportType, component, path string
}

func (s *indexStage) Prep(_ context.Context, bb *blackboard.Blackboard) (any, error) {
	if !s.index.Enabled() {
		return []indexItem(nil), nil
	}
	name := bb.ComponentName()
	var items []indexItem
	if p := bb.AnalysisReport[blackboard.FormatMarkdown]; p != "" {
		items = append(items, indexItem{s.collections.Analysis, index.TypeAnalysis, name, p})
	}
	if bb.OCPAssessment != nil && bb.OCPAssessment.MarkdownPath != "" && bb.OCPAssessment.Error == "" {
		items = append(items, indexItem{s.collections.OCP, index.TypeOCP, name, bb.OCPAssessment.MarkdownPath})
	}
	if bb.MigrationInsights != nil && bb.MigrationInsights.MarkdownPath != "" {
		items = append(items, indexItem{s.collections.Analysis, index.TypeInsights, name, bb.MigrationInsights.MarkdownPath})
	}
	return items, nil
}

type indexResult struct {
	ids  map[string]string
	errs []error
}

func (s *indexStage) Exec(ctx context.Context, prep any) (any, error) {
	res := indexResult{ids: map[string]string{}}
	for _, item := range prep.([]indexItem) {
		content, err := os.ReadFile(item.path)
		if err != nil {
			res.errs = append(res.errs, fmt.Errorf("read %s: %w", item.path, err))
			continue
		}
		id, err := s.index.Store(ctx, item.collection, string(content), index.ReportMetadata(item.component, item.path, item.reportType))
		if err != nil {
			res.errs = append(res.errs, err)
			continue
		}
		res.ids[item.reportType] = id
	}
	return res, nil
}

func (s *indexStage) Post(_ context.Context, bb *blackboard.Blackboard, _, exec any) (flow.Action, error) {
	res := exec.(indexResult)
	for _, err := range res.errs {
		log.Warn().Err(err).Msg("Could not index report")
		bb.AddError(StageIndex, err)
	}
	for reportType, id := range res.ids {
		bb.Indexed[reportType] = id
	}
	bb.MarkDone(StageIndex)
	return flow.DefaultAction, nil
}

var (
	_ bbStage       = (*intakeStage)(nil)
	_ bbStage       = (*crawlStage)(nil)
	_ bbStage       = (*analysisStage)(nil)
	_ bbStage       = (*assessmentStage)(nil)
	_ bbStage       = (*jiraStage)(nil)
	_ flow.Fallback = (*jiraStage)(nil)
	_ bbStage       = (*reportStage)(nil)
	_ bbStage       = (*insightsStage)(nil)
	_ bbStage       = (*indexStage)(nil)
)
