/*
Package jobqueue runs assessments in the background: on goroutines by
default, or through a River queue backed by Postgres.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/crawl"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/llm"
	"github.com/hardgate/internal/pipeline"
)

// AssessmentJobArgs represents the arguments for an assessment job
type AssessmentJobArgs struct {
	AssessmentID string           `json:"assessment_id"`
	Request      pipeline.Request `json:"request"`
}

// Kind returns the job kind for River
func (AssessmentJobArgs) Kind() string {
	return "hardgate_assessment"
}

// AssessmentWorker handles assessment jobs
type AssessmentWorker struct {
	river.WorkerDefaults[AssessmentJobArgs]
	store  Store
	exec   Executor
	config *QueueConfig
}

// Timeout bounds a single attempt.
func (w *AssessmentWorker) Timeout(*river.Job[AssessmentJobArgs]) time.Duration {
	return w.config.JobTimeout
}

// Work runs the assessment. Configuration failures are not retried; other
// failures are recorded once the last attempt has failed.
func (w *AssessmentWorker) Work(ctx context.Context, job *river.Job[AssessmentJobArgs]) error {
	id := job.Args.AssessmentID
	log.Info().Str("assessment_id", id).Int("attempt", job.Attempt).Msg("Processing assessment job")

	res, err := w.exec(ctx, id, job.Args.Request)
	if err == nil {
		if serr := w.store.Complete(ctx, id, res); serr != nil {
			return fmt.Errorf("record result: %w", serr)
		}
		return nil
	}

	if permanent(err) {
		_ = w.store.Fail(context.WithoutCancel(ctx), id, err.Error())
		return river.JobCancel(err)
	}
	if job.Attempt >= job.MaxAttempts {
		_ = w.store.Fail(context.WithoutCancel(ctx), id, err.Error())
	}
	return err
}

// permanent reports whether retrying err cannot help.
func permanent(err error) bool {
	var cfgErr *config.Error
	return errors.As(err, &cfgErr) ||
		errors.Is(err, crawl.ErrCloneFailed) ||
		errors.Is(err, intake.ErrUnreadableWorkbook) ||
		errors.Is(err, llm.ErrNoProvider)
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	store  Store
	config *QueueConfig
}

// Migrate applies River's schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	for _, v := range res.Versions {
		log.Info().Int("version", v.Version).Msg("Applied River migration")
	}
	return nil
}

// NewJobQueue creates a new job queue instance over a migrated pool
func NewJobQueue(ctx context.Context, pool *pgxpool.Pool, store Store, exec Executor, cfg *QueueConfig) (*JobQueue, error) {
	if cfg == nil {
		cfg = DefaultQueueConfig()
	}
	if err := Migrate(ctx, pool); err != nil {
		return nil, err
	}

	// Create River client
	workers := river.NewWorkers()
	river.AddWorker(workers, &AssessmentWorker{store: store, exec: exec, config: cfg})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  cfg.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		store:  store,
		config: cfg,
	}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Submit queues an assessment job
func (jq *JobQueue) Submit(ctx context.Context, id string, req pipeline.Request) error {
	args := AssessmentJobArgs{AssessmentID: id, Request: req}
	_, err := jq.client.Insert(ctx, args, &river.InsertOpts{MaxAttempts: jq.config.MaxAttempts})
	if err != nil {
		_ = jq.store.Fail(ctx, id, "could not queue assessment")
		return fmt.Errorf("failed to queue assessment job: %w", err)
	}
	return nil
}

// Close stops the job queue workers
func (jq *JobQueue) Close(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

var (
	_ Runner                          = (*JobQueue)(nil)
	_ Runner                          = (*LocalRunner)(nil)
	_ river.Worker[AssessmentJobArgs] = (*AssessmentWorker)(nil)
)
