// Package llmtest provides a scripted llms.Model for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Model replays scripted responses. When Respond is set it takes precedence;
// otherwise Responses are returned in order and the last one repeats.
type Model struct {
	Responses []string
	Err       error
	Respond   func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// New returns a model that answers with responses in order.
func New(responses ...string) *Model {
	return &Model{Responses: responses}
}

// GenerateContent implements llms.Model.
func (m *Model) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				b.WriteString(text.Text)
			}
		}
	}
	prompt := b.String()

	m.mu.Lock()
	n := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.Respond != nil {
		resp, err := m.Respond(prompt)
		if err != nil {
			return nil, err
		}
		return contentOf(resp), nil
	}
	if m.Err != nil {
		return nil, m.Err
	}
	resp := ""
	if len(m.Responses) > 0 {
		resp = m.Responses[min(n, len(m.Responses)-1)]
	}
	return contentOf(resp), nil
}

// Call implements llms.Model.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls is the number of requests received.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns every prompt received, in order.
func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func contentOf(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}
