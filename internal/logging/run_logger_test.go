package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLoggerWritesSections(t *testing.T) {
	dir := t.TempDir()
	logger, err := StartRunLogging(dir, "abc123")
	require.NoError(t, err)
	assert.Same(t, logger, GetCurrentLogger())

	logger.LogSection("STAGE intake")
	logger.LogRequest("analysis", "gpt-4o", "the prompt body")
	logger.LogResponse("analysis", "the response body")
	logger.LogError("crawl", errors.New("boom"))
	logger.Close()

	assert.True(t, strings.HasPrefix(logger.Path(), filepath.Join(dir, "logs", "run_abc123_")))
	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "HARDGATE ASSESSMENT LOG")
	assert.Contains(t, content, "Run ID: abc123")
	assert.Contains(t, content, "= STAGE intake")
	assert.Contains(t, content, "Model: gpt-4o")
	assert.Contains(t, content, "the prompt body")
	assert.Contains(t, content, "the response body")
	assert.Contains(t, content, "ERROR in crawl: boom")
	assert.Contains(t, content, "Run logging completed")
}

func TestRunLoggerNilSafe(t *testing.T) {
	var logger *RunLogger
	assert.NotPanics(t, func() {
		logger.Log("hello %s", "world")
		logger.LogSection("x")
		logger.LogRequest("s", "m", "p")
		logger.LogResponse("s", "r")
		logger.LogError("c", errors.New("e"))
		logger.Close()
	})
	assert.Equal(t, "", logger.Path())
}

func TestRunLoggerIgnoresWritesAfterClose(t *testing.T) {
	logger, err := StartRunLogging(t.TempDir(), "closed")
	require.NoError(t, err)
	logger.Close()
	assert.NotPanics(t, func() { logger.Log("late") })
}
