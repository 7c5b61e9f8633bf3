// Package llm is the single call point for language model requests. It owns
// provider selection, prompt truncation, the response cache and the parsing
// of structured output.
package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/logging"
)

// FallbackResponse is returned in place of a completion when the provider fails.
const FallbackResponse = "I'm sorry, but I encountered an error while processing your request. Please try again later."

// TruncationMarker replaces the middle of prompts that exceed the token ceiling.
const TruncationMarker = "\n\n[...content truncated due to length...]\n\n"

// Caller is what the pipeline stages need from the adapter.
type Caller interface {
	Call(ctx context.Context, prompt string, useCache bool) (string, error)
}

// Options tune a Client.
type Options struct {
	MaxTokens   int
	Temperature float64
	CacheFile   string
	LogDir      string
}

// Client sends prompts to the selected model.
type Client struct {
	model     llms.Model
	selection Selection
	opts      Options
	cache     *Cache
	audit     zerolog.Logger
	auditFile *os.File
}

// New selects a provider from cfg and builds a client for it. Missing
// credentials return ErrNoProvider.
func New(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	sel, err := SelectProvider(cfg)
	if err != nil {
		return nil, err
	}
	model, err := NewModel(ctx, sel)
	if err != nil {
		return nil, err
	}
	return NewWithModel(model, sel, Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		CacheFile:   cfg.CacheFile,
		LogDir:      cfg.LogDir,
	}), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, sel Selection, opts Options) *Client {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8000
	}
	c := &Client{
		model:     model,
		selection: sel,
		opts:      opts,
		cache:     NewCache(opts.CacheFile),
		audit:     zerolog.Nop(),
	}
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err == nil {
			name := filepath.Join(opts.LogDir, fmt.Sprintf("llm_calls_%s.log", time.Now().Format("20060102")))
			if f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				c.auditFile = f
				c.audit = zerolog.New(f).With().Timestamp().Logger()
			}
		}
	}
	return c
}

// Selection returns the provider the client talks to.
func (c *Client) Selection() Selection {
	return c.selection
}

// Close releases the audit log file.
func (c *Client) Close() error {
	if c.auditFile == nil {
		return nil
	}
	err := c.auditFile.Close()
	c.auditFile = nil
	c.audit = zerolog.Nop()
	return err
}

// EstimateTokens approximates the token count as one token per four characters.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Truncate keeps the head and tail of prompt when it exceeds maxTokens.
func Truncate(prompt string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(prompt) <= maxTokens {
		return prompt
	}
	keep := maxTokens * 4
	half := keep / 2
	return Head(prompt, half) + TruncationMarker + Tail(prompt, half)
}

// Head returns at most n leading bytes of s, cut on a rune boundary.
func Head(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Tail returns at most n trailing bytes of s, cut on a rune boundary.
func Tail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// Call sends prompt to the model. With useCache the full prompt text keys an
// on-disk cache. Provider failures are logged and yield FallbackResponse.
func (c *Client) Call(ctx context.Context, prompt string, useCache bool) (string, error) {
	start := time.Now()
	runLog := logging.GetCurrentLogger()

	if useCache {
		if resp, ok := c.cache.Get(prompt); ok {
			c.record(prompt, resp, true, start, nil)
			log.Debug().Int("prompt_chars", len(prompt)).Msg("LLM cache hit")
			return resp, nil
		}
	}

	sent := Truncate(prompt, c.opts.MaxTokens)
	if len(sent) != len(prompt) {
		log.Warn().
			Int("estimated_tokens", EstimateTokens(prompt)).
			Int("max_tokens", c.opts.MaxTokens).
			Msg("Prompt truncated")
	}

	callOpts := []llms.CallOption{llms.WithTemperature(c.opts.Temperature)}
	if c.selection.Provider == ProviderGoogle && c.selection.Model != "" {
		callOpts = append(callOpts, llms.WithModel(c.selection.Model))
	}

	runLog.LogRequest(string(c.selection.Provider), c.selection.Model, sent)
	resp, err := llms.GenerateFromSinglePrompt(ctx, c.model, sent, callOpts...)
	if err != nil {
		runLog.LogError("LLM call", err)
		log.Error().Err(err).Str("provider", string(c.selection.Provider)).Msg("LLM call failed")
		c.record(sent, FallbackResponse, false, start, err)
		return FallbackResponse, nil
	}
	runLog.LogResponse(string(c.selection.Provider), resp)
	c.record(sent, resp, false, start, nil)

	if useCache {
		if err := c.cache.Put(prompt, resp); err != nil {
			logCacheProblem("write", c.opts.CacheFile, err)
		}
	}
	return resp, nil
}

func (c *Client) record(prompt, response string, cached bool, start time.Time, err error) {
	ev := c.audit.Info()
	if err != nil {
		ev = c.audit.Error().Err(err)
	}
	ev.Str("provider", string(c.selection.Provider)).
		Str("model", c.selection.Model).
		Int("prompt_chars", len(prompt)).
		Int("response_chars", len(response)).
		Bool("cached", cached).
		Dur("duration", time.Since(start)).
		Msg("llm call")
}

func logCacheProblem(op, path string, err error) {
	log.Warn().Err(err).Str("path", path).Msgf("LLM cache %s failed", op)
}
