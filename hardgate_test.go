package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/crawl"
	"github.com/hardgate/internal/flow"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/llm"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config", &config.Error{Field: "dir", Msg: "not a directory"}, 2},
		{"clone", fmt.Errorf("%w: stage crawl: %w", flow.ErrAborted, crawl.ErrCloneFailed), 2},
		{"workbook", fmt.Errorf("%w: stage intake: %w", flow.ErrAborted, intake.ErrUnreadableWorkbook), 2},
		{"provider", fmt.Errorf("failed to create LLM client: %w", llm.ErrNoProvider), 2},
		{"abort", fmt.Errorf("%w: stage analysis: %w", flow.ErrAborted, errors.New("disk full")), 1},
		{"joined", errors.Join(errors.New("a.xlsx: boom"), &config.Error{Msg: "bad"}), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
