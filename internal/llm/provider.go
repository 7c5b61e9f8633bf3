package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hardgate/internal/config"
)

// Provider identifies an LLM backend
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// ErrNoProvider is returned when no provider has credentials.
var ErrNoProvider = errors.New("no LLM API key found: set OPENAI_API_KEY, ANTHROPIC_API_KEY, or GOOGLE_API_KEY")

// localAPIKey is sent to OpenAI-compatible local servers that need no key.
const localAPIKey = "local-llm"

// Selection is the provider chosen for a run.
type Selection struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string
}

// Local reports whether the selection targets a custom OpenAI-compatible server.
func (s Selection) Local() bool {
	return s.Provider == ProviderOpenAI && s.BaseURL != ""
}

// SelectProvider picks OpenAI, then Anthropic, then Google.
func SelectProvider(cfg config.LLMConfig) (Selection, error) {
	switch {
	case cfg.OpenAI.APIKey != "" || cfg.OpenAI.BaseURL != "":
		key := cfg.OpenAI.APIKey
		if key == "" {
			key = localAPIKey
		}
		return Selection{Provider: ProviderOpenAI, Model: cfg.OpenAI.Model, APIKey: key, BaseURL: cfg.OpenAI.BaseURL}, nil
	case cfg.Anthropic.APIKey != "":
		return Selection{Provider: ProviderAnthropic, Model: cfg.Anthropic.Model, APIKey: cfg.Anthropic.APIKey, BaseURL: cfg.Anthropic.BaseURL}, nil
	case cfg.Google.APIKey != "":
		return Selection{Provider: ProviderGoogle, Model: cfg.Google.Model, APIKey: cfg.Google.APIKey}, nil
	}
	return Selection{}, ErrNoProvider
}

// NewModel builds the langchaingo model for a selection.
func NewModel(ctx context.Context, sel Selection) (llms.Model, error) {
	log.Debug().
		Str("provider", string(sel.Provider)).
		Str("model", sel.Model).
		Bool("local", sel.Local()).
		Msg("Creating LLM model")

	var (
		model llms.Model
		err   error
	)
	switch sel.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(sel.Model), openai.WithToken(sel.APIKey)}
		if sel.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(sel.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(sel.APIKey), anthropic.WithModel(sel.Model)}
		if sel.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(sel.BaseURL))
		}
		model, err = anthropic.New(opts...)
	case ProviderGoogle:
		model, err = googleai.New(ctx, googleai.WithAPIKey(sel.APIKey), googleai.WithDefaultModel(sel.Model))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", sel.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", sel.Provider, err)
	}
	return model, nil
}
