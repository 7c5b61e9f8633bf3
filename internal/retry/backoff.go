// Package retry implements exponential backoff for network calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/hardgate/internal/logging"
)

// Config configures retry behaviour with exponential backoff
type Config struct {
	MaxRetries int           `json:"max_retries"` // retries after the first attempt
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	Multiplier float64       `json:"multiplier"`
	Jitter     bool          `json:"jitter"`
	LogRetries bool          `json:"log_retries"`
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool `json:"-"`
}

// Result describes how an operation went
type Result struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     error         `json:"-"`
	Success       bool          `json:"success"`
	RetryReasons  []string      `json:"retry_reasons"`
}

// Default is used for Jira and embedding HTTP calls.
func Default() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		LogRetries: true,
		Retryable:  IsRetryableError,
	}
}

// ForClone covers one git authentication strategy: three attempts starting at 5s.
func ForClone() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  5 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		LogRetries: true,
	}
}

// Do runs op until it succeeds, the retries are exhausted, the error is not
// retryable, or ctx is done.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error, logger *logging.RunLogger) Result {
	return DoWithReason(ctx, cfg, func(ctx context.Context) (string, error) {
		err := op(ctx)
		if err != nil {
			return err.Error(), err
		}
		return "", nil
	}, logger)
}

// DoWithReason is Do for operations that classify their own failures.
func DoWithReason(ctx context.Context, cfg Config, op func(ctx context.Context) (string, error), logger *logging.RunLogger) Result {
	start := time.Now()
	res := Result{RetryReasons: make([]string, 0)}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		res.Attempts = attempt + 1
		if cfg.LogRetries && attempt > 0 {
			logger.Log("Retrying operation (attempt %d/%d)", attempt+1, cfg.MaxRetries+1)
		}

		reason, err := op(ctx)
		if err == nil {
			res.Success = true
			res.TotalDuration = time.Since(start)
			if cfg.LogRetries && attempt > 0 {
				logger.Log("Operation succeeded after %d retries (total duration: %v)", attempt, res.TotalDuration)
			}
			return res
		}

		res.LastError = err
		res.RetryReasons = append(res.RetryReasons, reason)

		if attempt >= cfg.MaxRetries || (cfg.Retryable != nil && !cfg.Retryable(err)) {
			res.TotalDuration = time.Since(start)
			if cfg.LogRetries {
				logger.Log("Operation failed after %d attempts (total duration: %v): %v", res.Attempts, res.TotalDuration, err)
			}
			return res
		}

		delay := calculateDelay(cfg, attempt)
		if cfg.LogRetries {
			logger.Log("Operation failed (attempt %d/%d): %v; waiting %v", attempt+1, cfg.MaxRetries+1, err, delay)
		}

		select {
		case <-ctx.Done():
			res.LastError = ctx.Err()
			res.TotalDuration = time.Since(start)
			logger.Log("Operation cancelled during backoff delay: %v", ctx.Err())
			return res
		case <-time.After(delay):
		}
	}

	res.TotalDuration = time.Since(start)
	return res
}

// calculateDelay returns baseDelay * multiplier^attempt capped at MaxDelay, with up to 10% jitter.
func calculateDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// StatusError is returned by HTTP clients for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsRetryableError reports whether err looks transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"no such host",
		"network unreachable",
		"broken pipe",
		"eof",
		"context deadline exceeded",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
