package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hardgate/internal/config"
)

// langchain adapts a langchaingo embedder to Embedder.
type langchain struct {
	name        string
	embedder    embeddings.Embedder
	fallbackDim int
	dim         atomic.Int64
}

// NewLocal serves a sentence-transformer model through a local Ollama
// server (LOCAL_MODEL_NAME, default all-minilm).
func NewLocal(cfg config.EmbeddingConfig) (Embedder, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.LocalModel)}
	if cfg.LocalServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.LocalServerURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create local embedding model %s: %w", cfg.LocalModel, err)
	}
	return newLangchain("local:"+cfg.LocalModel, client, cfg.FallbackDim)
}

// NewHosted uses the OpenAI embeddings API with the LLM credentials.
func NewHosted(provider config.ProviderConfig, cfg config.EmbeddingConfig) (Embedder, error) {
	if provider.APIKey == "" {
		return nil, fmt.Errorf("hosted embeddings need an OpenAI API key")
	}
	opts := []openai.Option{
		openai.WithToken(provider.APIKey),
		openai.WithEmbeddingModel(cfg.HostedModel),
	}
	if provider.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(provider.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create hosted embedding client: %w", err)
	}
	return newLangchain("hosted:"+cfg.HostedModel, client, cfg.FallbackDim)
}

func newLangchain(name string, client embeddings.EmbedderClient, fallbackDim int) (*langchain, error) {
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder %s: %w", name, err)
	}
	if fallbackDim <= 0 {
		fallbackDim = 384
	}
	return &langchain{name: name, embedder: embedder, fallbackDim: fallbackDim}, nil
}

func (l *langchain) Name() string { return l.name }

func (l *langchain) Dimension() int {
	if d := l.dim.Load(); d > 0 {
		return int(d)
	}
	return l.fallbackDim
}

func (l *langchain) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.name, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%s: got %d vectors for %d texts", l.name, len(vectors), len(texts))
	}
	if d := dimensionOf(vectors); d > 0 {
		l.dim.Store(int64(d))
	}
	log.Debug().Str("backend", l.name).Int("texts", len(texts)).Msg("Embedded documents")
	return vectors, nil
}
