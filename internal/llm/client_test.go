package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/llm/llmtest"
)

func TestSelectProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LLMConfig
		want      Provider
		wantKey   string
		wantErr   error
		wantLocal bool
	}{
		{
			name:    "openai wins over others",
			cfg:     config.LLMConfig{OpenAI: config.ProviderConfig{APIKey: "sk"}, Anthropic: config.ProviderConfig{APIKey: "ak"}},
			want:    ProviderOpenAI,
			wantKey: "sk",
		},
		{
			name:      "base url without key is a local model",
			cfg:       config.LLMConfig{OpenAI: config.ProviderConfig{BaseURL: "http://localhost:1234/v1"}},
			want:      ProviderOpenAI,
			wantKey:   localAPIKey,
			wantLocal: true,
		},
		{
			name:    "anthropic before google",
			cfg:     config.LLMConfig{Anthropic: config.ProviderConfig{APIKey: "ak"}, Google: config.ProviderConfig{APIKey: "gk"}},
			want:    ProviderAnthropic,
			wantKey: "ak",
		},
		{
			name:    "google last",
			cfg:     config.LLMConfig{Google: config.ProviderConfig{APIKey: "gk"}},
			want:    ProviderGoogle,
			wantKey: "gk",
		},
		{
			name:    "nothing configured",
			cfg:     config.LLMConfig{},
			wantErr: ErrNoProvider,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectProvider(tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Provider)
			assert.Equal(t, tt.wantKey, sel.APIKey)
			assert.Equal(t, tt.wantLocal, sel.Local())
		})
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, Truncate(short, 10))

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := Truncate(long, 10)
	assert.Contains(t, got, TruncationMarker)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 20)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("b", 20)))
	assert.Equal(t, 40+len(TruncationMarker), len(got))
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("é", 30) + strings.Repeat("ß", 30)
	got := Truncate(long, 5)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(got, "éééé"))
	assert.True(t, strings.HasSuffix(got, "ßßßß"))
	assert.Equal(t, "éé", Head("ééé", 5))
	assert.Equal(t, "ßß", Tail("ßßß", 5))
	assert.Equal(t, "abc", Head("abc", 10))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func newTestClient(t *testing.T, model *llmtest.Model) *Client {
	t.Helper()
	dir := t.TempDir()
	c := NewWithModel(model, Selection{Provider: ProviderOpenAI, Model: "test"}, Options{
		MaxTokens:   8000,
		Temperature: 0.1,
		CacheFile:   filepath.Join(dir, "llm_cache.json"),
		LogDir:      filepath.Join(dir, "logs"),
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallUsesCache(t *testing.T) {
	model := llmtest.New("first", "second")
	c := newTestClient(t, model)
	ctx := context.Background()

	a, err := c.Call(ctx, "same prompt", true)
	require.NoError(t, err)
	b, err := c.Call(ctx, "same prompt", true)
	require.NoError(t, err)

	assert.Equal(t, "first", a)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, model.Calls())
}

func TestCallWithoutCacheAlwaysAsks(t *testing.T) {
	model := llmtest.New("first", "second")
	c := newTestClient(t, model)
	ctx := context.Background()

	a, _ := c.Call(ctx, "p", false)
	b, _ := c.Call(ctx, "p", false)
	assert.Equal(t, "first", a)
	assert.Equal(t, "second", b)
	assert.Equal(t, 2, model.Calls())
}

func TestCallReturnsFallbackOnProviderError(t *testing.T) {
	model := &llmtest.Model{Err: errors.New("503 service unavailable")}
	c := newTestClient(t, model)

	got, err := c.Call(context.Background(), "p", true)
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, got)

	// failures are not cached
	_, ok := c.cache.Get("p")
	assert.False(t, ok)
}

func TestCallWritesAuditLog(t *testing.T) {
	model := llmtest.New("ok")
	c := newTestClient(t, model)

	_, err := c.Call(context.Background(), "p", false)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(c.opts.CacheFile), "logs", "llm_calls_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"prompt_chars":1`)
	assert.Contains(t, string(data), `"cached":false`)
}

func TestCallTruncatesLongPrompts(t *testing.T) {
	model := llmtest.New("ok")
	c := newTestClient(t, model)
	c.opts.MaxTokens = 5

	_, err := c.Call(context.Background(), strings.Repeat("x", 100), false)
	require.NoError(t, err)
	require.Len(t, model.Prompts(), 1)
	assert.Contains(t, model.Prompts()[0], TruncationMarker)
}

func TestCacheReReadsBeforeWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	a := NewCache(path)
	b := NewCache(path)

	require.NoError(t, a.Put("one", "1"))
	require.NoError(t, b.Put("two", "2"))

	got, ok := a.Get("one")
	require.True(t, ok)
	assert.Equal(t, "1", got)
	got, ok = a.Get("two")
	require.True(t, ok)
	assert.Equal(t, "2", got)
}
