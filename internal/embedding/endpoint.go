package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/retry"
)

// openAIModel is sent in OpenAI-style requests; most local servers ignore it.
const openAIModel = "text-embedding-ada-002"

// Endpoint calls an HTTP embedding server of unknown flavour. Each request
// shape is tried in turn; a text no shape could embed gets a zero vector.
type Endpoint struct {
	baseURL     string
	perText     time.Duration
	fallbackDim int
	httpClient  *http.Client
	limiter     *rate.Limiter
	dim         atomic.Int64
}

// NewEndpoint returns an endpoint backend for cfg.
func NewEndpoint(cfg config.EmbeddingConfig) *Endpoint {
	perText := time.Duration(cfg.EndpointTimeout) * time.Second
	if perText <= 0 {
		perText = 30 * time.Second
	}
	fallbackDim := cfg.FallbackDim
	if fallbackDim <= 0 {
		fallbackDim = 384
	}
	baseURL := cfg.EndpointURL
	if baseURL == "" {
		baseURL = "http://localhost:1234"
	}
	return &Endpoint{
		baseURL:     strings.TrimRight(baseURL, "/"),
		perText:     perText,
		fallbackDim: fallbackDim,
		httpClient:  &http.Client{},
		limiter:     rate.NewLimiter(rate.Every(50*time.Millisecond), 10),
	}
}

func (e *Endpoint) Name() string { return "endpoint:" + e.baseURL }

func (e *Endpoint) Dimension() int {
	if d := e.dim.Load(); d > 0 {
		return int(d)
	}
	return e.fallbackDim
}

// Health probes GET /health.
func (e *Endpoint) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding endpoint health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &retry.StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Embed never fails for endpoint errors; only a cancelled ctx is returned.
func (e *Endpoint) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if vectors, ok := e.embedBatch(ctx, texts); ok {
		e.remember(vectors)
		return vectors, nil
	}
	log.Debug().Int("texts", len(texts)).Str("endpoint", e.baseURL).Msg("Batch embedding failed, falling back to single requests")

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if vector, ok := e.embedOne(ctx, text); ok {
			e.remember([][]float32{vector})
			out[i] = vector
			continue
		}
		log.Warn().Str("endpoint", e.baseURL).Msg("Could not get embedding, using zero vector")
		logging.GetCurrentLogger().Log("Embedding endpoint %s failed for text %d, using zero vector", e.baseURL, i)
		out[i] = make([]float32, e.Dimension())
	}
	return out, nil
}

type probe struct {
	path string
	body any
}

func (e *Endpoint) embedBatch(ctx context.Context, texts []string) ([][]float32, bool) {
	probes := []probe{
		{"/embeddings", map[string]any{"texts": texts}},
		{"/v1/embeddings", map[string]any{"input": texts, "model": openAIModel}},
		{"/encode", map[string]any{"sentences": texts}},
	}
	timeout := e.perText * time.Duration(len(texts))
	for _, p := range probes {
		vectors, err := e.post(ctx, p, timeout)
		if err == nil && len(vectors) == len(texts) {
			return vectors, true
		}
	}
	return nil, false
}

func (e *Endpoint) embedOne(ctx context.Context, text string) ([]float32, bool) {
	probes := []probe{
		{"/embeddings", map[string]any{"text": text}},
		{"/v1/embeddings", map[string]any{"input": text, "model": openAIModel}},
		{"/encode", map[string]any{"sentences": []string{text}}},
	}
	for _, p := range probes {
		vectors, err := e.post(ctx, p, e.perText)
		if err == nil && len(vectors) > 0 && len(vectors[0]) > 0 {
			return vectors[0], true
		}
	}
	return nil, false
}

func (e *Endpoint) post(ctx context.Context, p probe, timeout time.Duration) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(p.body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+p.path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.path, err)
	}
	vectors := vectorsFrom(decoded)
	if vectors == nil {
		return nil, fmt.Errorf("no embeddings in %s response", p.path)
	}
	return vectors, nil
}

func (e *Endpoint) remember(vectors [][]float32) {
	if d := dimensionOf(vectors); d > 0 {
		e.dim.Store(int64(d))
	}
}

// vectorsFrom accepts the response shapes seen in the wild: a bare vector,
// a list of vectors, {"embedding": v}, {"embeddings": [v...]} and the
// OpenAI {"data": [{"embedding": v}...]}.
func vectorsFrom(v any) [][]float32 {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		if vec, ok := floats(t); ok {
			return [][]float32{vec}
		}
		out := make([][]float32, 0, len(t))
		for _, item := range t {
			switch it := item.(type) {
			case []any:
				vec, ok := floats(it)
				if !ok {
					return nil
				}
				out = append(out, vec)
			case map[string]any:
				inner := vectorsFrom(it)
				if len(inner) != 1 {
					return nil
				}
				out = append(out, inner[0])
			default:
				return nil
			}
		}
		return out
	case map[string]any:
		for _, key := range []string{"embeddings", "data"} {
			if inner, ok := t[key]; ok {
				return vectorsFrom(inner)
			}
		}
		if inner, ok := t["embedding"].([]any); ok {
			if vec, ok := floats(inner); ok {
				return [][]float32{vec}
			}
		}
	}
	return nil
}

func floats(items []any) ([]float32, bool) {
	out := make([]float32, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, false
		}
		out[i] = float32(f)
	}
	return out, true
}
