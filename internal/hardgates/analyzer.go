// Package hardgates assesses a crawled codebase against the hard-gate
// taxonomy and the component catalogue.
package hardgates

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/blackboard"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/taxonomy"
)

// MaxAttempts bounds the prompts sent for one analysis.
const MaxAttempts = 3

// ErrNoFiles is recorded when there is nothing to analyze.
const ErrNoFiles = "No files to analyze"

// Input is what the analyzer needs from the blackboard.
type Input struct {
	ProjectName    string
	Files          map[string]string
	SpecialFolders []string
	UseCache       bool
}

// Analyzer runs the hard-gate analysis.
type Analyzer struct {
	llm          llm.Caller
	cache        *RecordCache
	maxFileChars int
}

// New returns an analyzer. A nil cache disables record caching.
func New(caller llm.Caller, cache *RecordCache, maxFileChars int) *Analyzer {
	return &Analyzer{llm: caller, cache: cache, maxFileChars: maxFileChars}
}

// Analyze never fails: problems are recorded in the record's Error field.
func (a *Analyzer) Analyze(ctx context.Context, in Input) blackboard.AnalysisOutput {
	logger := logging.GetCurrentLogger()

	if len(in.Files) == 0 {
		log.Warn().Msg("No files found to analyze, skipping code analysis")
		rec := taxonomy.NewRecord()
		rec.FillTaxonomy()
		rec.Error = ErrNoFiles
		return blackboard.AnalysisOutput{Record: rec, Compliance: taxonomy.ComputeCompliance(rec)}
	}

	key := CacheKey(in.ProjectName, len(in.Files), in.SpecialFolders)
	if in.UseCache {
		if rec, ok := a.cache.Get(key); ok {
			log.Info().Str("project", in.ProjectName).Msg("Using cached analysis")
			logger.Log("Analysis cache hit for %s (%s)", in.ProjectName, key[:12])
			rec.ExcelComponents = nil
			revalidate(rec, in.Files)
			rec.FillTaxonomy()
			return blackboard.AnalysisOutput{Record: rec, Compliance: taxonomy.ComputeCompliance(rec), Cached: true}
		}
	}

	prompt, err := BuildPrompt(in.ProjectName, in.Files, BuildContext(in.Files, a.maxFileChars))
	if err != nil {
		rec := taxonomy.NewRecord()
		rec.FillTaxonomy()
		rec.Error = err.Error()
		return blackboard.AnalysisOutput{Record: rec, Compliance: taxonomy.ComputeCompliance(rec)}
	}

	var (
		raw      map[string]any
		response string
		attempts int
	)
	for attempts = 1; attempts <= MaxAttempts; attempts++ {
		if ctx.Err() != nil {
			break
		}
		// Re-prompts bypass the cache, which would return the same reply.
		response, err = a.llm.Call(ctx, prompt, in.UseCache && attempts == 1)
		if err != nil {
			log.Error().Err(err).Int("attempt", attempts).Msg("Analysis request failed")
			break
		}
		parsed, ok := llm.ExtractStructured(response)
		if ok {
			raw = parsed
			if taxonomy.HasRequiredKeys(parsed) {
				break
			}
		}
		log.Warn().Int("attempt", attempts).Bool("json", ok).Msg("Analysis response incomplete, retrying")
		logger.Log("Analysis attempt %d returned an incomplete response", attempts)
	}
	if attempts > MaxAttempts {
		attempts = MaxAttempts
	}

	out := blackboard.AnalysisOutput{Attempts: attempts}
	switch {
	case err != nil:
		out.Record = taxonomy.NewRecord()
		out.Record.FillTaxonomy()
		out.Record.Error = err.Error()
	case raw == nil:
		out.Record = llm.TextPatternRecord(response)
		out.UsedText = true
		if response == llm.FallbackResponse || strings.TrimSpace(response) == "" {
			out.Record.Error = "LLM request failed; results are keyword based"
		}
	default:
		out.Record = Validate(raw, in.Files)
		if !taxonomy.HasRequiredKeys(raw) {
			mergeMissing(out.Record, raw, llm.TextPatternRecord(response))
			out.UsedText = true
		}
	}
	out.Compliance = taxonomy.ComputeCompliance(out.Record)

	log.Info().
		Int("technologies", countTechnologies(out.Record)).
		Int("findings", len(out.Record.Findings)).
		Int("components", len(out.Record.ComponentAnalysis)).
		Float64("compliance", out.Compliance.Percentage).
		Msg("Code analysis complete")

	if in.UseCache && out.Record.Error == "" && !out.UsedText {
		if err := a.cache.Put(key, out.Record); err != nil {
			log.Warn().Err(err).Msg("Could not cache analysis")
		}
	}
	return out
}

// mergeMissing fills the sections absent from raw with the keyword results.
func mergeMissing(rec *taxonomy.AnalysisRecord, raw map[string]any, text *taxonomy.AnalysisRecord) {
	if _, ok := raw["technology_stack"]; !ok {
		rec.TechnologyStack = text.TechnologyStack
	}
	if _, ok := raw["findings"]; !ok {
		rec.Findings = text.Findings
	}
	if _, ok := raw["component_analysis"]; !ok {
		rec.ComponentAnalysis = text.ComponentAnalysis
	}
	if _, ok := raw["security_quality_analysis"]; !ok {
		rec.SecurityQualityAnalysis = text.SecurityQualityAnalysis
		rec.FillTaxonomy()
	}
}

func countTechnologies(rec *taxonomy.AnalysisRecord) int {
	n := 0
	for _, techs := range rec.TechnologyStack {
		n += len(techs)
	}
	return n
}
