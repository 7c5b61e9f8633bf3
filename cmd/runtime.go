package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/embedding"
	"github.com/hardgate/internal/index"
	"github.com/hardgate/internal/jira"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/pipeline"
)

// loadConfig sets up logging and reads the configuration named by --config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	logging.Setup(c.Bool("verbose"))

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, &config.Error{Field: "config", Msg: err.Error()}
	}
	return cfg, nil
}

// openIndex builds the embedder and the report index. Problems leave the
// index disabled.
func openIndex(ctx context.Context, cfg *config.Config) index.Index {
	if !cfg.Index.Enabled {
		return index.Disabled{}
	}
	embedder, err := embedding.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Embedding backend unavailable, report index disabled")
		return index.Disabled{}
	}
	ix, err := index.New(ctx, cfg, embedder)
	if err != nil {
		log.Warn().Err(err).Msg("Report index unavailable")
		return index.Disabled{}
	}
	return ix
}

// runtime holds the collaborators shared by the runs of one command.
type runtime struct {
	deps  pipeline.Deps
	llm   *llm.Client
	index index.Index
}

// openRuntime connects the LLM, the report index and Jira. When
// requireLLM is false a missing provider is tolerated.
func openRuntime(ctx context.Context, cfg *config.Config, requireLLM bool) (*runtime, error) {
	rt := &runtime{deps: pipeline.Deps{Config: cfg}}

	client, err := llm.New(ctx, cfg.LLM)
	switch {
	case err == nil:
		rt.llm = client
		rt.deps.LLM = client
		log.Info().Str("provider", string(client.Selection().Provider)).Str("model", client.Selection().Model).Msg("LLM provider selected")
	case errors.Is(err, llm.ErrNoProvider) && !requireLLM:
		log.Warn().Err(err).Msg("No LLM provider configured, assessments are disabled")
	default:
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	rt.index = openIndex(ctx, cfg)
	rt.deps.Index = rt.index
	rt.deps.Jira = jira.New(cfg.Jira)
	if rt.deps.Jira == nil {
		log.Debug().Msg("Jira credentials not configured, stories will be empty")
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.index != nil {
		if err := rt.index.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close report index")
		}
	}
	if rt.llm != nil {
		if err := rt.llm.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close LLM client")
		}
	}
}
