/*
Package jobqueue configuration - tunable parameters for the assessment queue.

## Quick Configuration Reference:

### Performance Tuning:
  - MaxWorkers bounds concurrent assessments. Each assessment clones a
    repository and makes several LLM calls, so keep it low.

### Reliability Tuning:
  - MaxAttempts is how often River runs a failed job. Configuration failures
    (bad repository, missing credentials) are cancelled on the first attempt.
  - JobTimeout ends an assessment that hangs on the network.

## Database Requirements:
- PostgreSQL with River schema migrations applied (NewJobQueue runs them)
- assessments table for status tracking (database.Migrate creates it)
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"

	"github.com/hardgate/internal/config"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent assessments (default: 1)

	// Retry Configuration
	MaxAttempts int           // Attempts per job before it is discarded (default: 3)
	JobTimeout  time.Duration // Maximum time a single assessment can run (default: 30 minutes)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  1,
		MaxAttempts: 3,
		JobTimeout:  30 * time.Minute,
	}
}

// QueueConfigFrom takes the worker count from the server configuration.
func QueueConfigFrom(cfg config.ServerConfig) *QueueConfig {
	qc := DefaultQueueConfig()
	if cfg.Workers > 0 {
		qc.MaxWorkers = cfg.Workers
	}
	return qc
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
