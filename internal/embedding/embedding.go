// Package embedding turns report text into vectors for the report index.
//
// Three backends share the Embedder interface: a locally served
// sentence-transformer model, a generic HTTP endpoint, and the hosted
// OpenAI embeddings API. Which one is used is decided by Choose, a pure
// function of the configuration.
package embedding

import (
	"context"
	"fmt"

	"github.com/hardgate/internal/config"
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the vector length, or the configured fallback before the
	// first successful call.
	Dimension() int
	Name() string
}

// Kind names an embedding backend.
type Kind string

const (
	KindLocal    Kind = "local"
	KindEndpoint Kind = "endpoint"
	KindHosted   Kind = "hosted"
)

// Choose picks the backend for cfg. Local wins over the endpoint, the
// endpoint over the hosted API. Without an OpenAI key the endpoint is used
// even when not asked for, since it degrades to zero vectors instead of
// failing.
func Choose(cfg *config.Config) Kind {
	switch {
	case cfg.Embedding.UseLocal:
		return KindLocal
	case cfg.Embedding.UseEndpoint:
		return KindEndpoint
	case cfg.LLM.OpenAI.APIKey != "":
		return KindHosted
	default:
		return KindEndpoint
	}
}

// New builds the backend Choose selects.
func New(cfg *config.Config) (Embedder, error) {
	switch kind := Choose(cfg); kind {
	case KindLocal:
		return NewLocal(cfg.Embedding)
	case KindHosted:
		return NewHosted(cfg.LLM.OpenAI, cfg.Embedding)
	case KindEndpoint:
		return NewEndpoint(cfg.Embedding), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", kind)
	}
}

// Zero returns n zero vectors of length dim.
func Zero(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
	}
	return out
}

// dimensionOf returns the length of the first non-empty vector.
func dimensionOf(vectors [][]float32) int {
	for _, v := range vectors {
		if len(v) > 0 {
			return len(v)
		}
	}
	return 0
}
