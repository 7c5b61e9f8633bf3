package jobqueue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/pipeline"
)

// Executor runs one assessment to completion.
type Executor func(ctx context.Context, id string, req pipeline.Request) (*pipeline.Result, error)

// PipelineExecutor runs requests through the assessment pipeline, each into
// its own directory under the configured output directory.
func PipelineExecutor(d pipeline.Deps) Executor {
	return func(ctx context.Context, id string, req pipeline.Request) (*pipeline.Result, error) {
		if req.OutputDir == "" {
			req.OutputDir = filepath.Join(d.Config.OutputDir, id)
		}
		bb, err := pipeline.RunWithID(ctx, d, req, id)
		if err != nil {
			return nil, err
		}
		return pipeline.ResultFrom(bb, time.Now()), nil
	}
}

// Runner accepts assessments for background execution. The assessment must
// already exist in the runner's store.
type Runner interface {
	Submit(ctx context.Context, id string, req pipeline.Request) error
	Close(ctx context.Context) error
}

// execute runs one assessment and records the outcome.
func execute(ctx context.Context, store Store, exec Executor, id string, req pipeline.Request) error {
	started := time.Now()
	res, err := exec(ctx, id, req)
	if err != nil {
		log.Error().Err(err).Str("assessment_id", id).Msg("Assessment failed")
		if serr := store.Fail(context.WithoutCancel(ctx), id, err.Error()); serr != nil {
			log.Error().Err(serr).Str("assessment_id", id).Msg("Could not record assessment failure")
		}
		return err
	}
	if serr := store.Complete(context.WithoutCancel(ctx), id, res); serr != nil {
		log.Error().Err(serr).Str("assessment_id", id).Msg("Could not record assessment result")
		return serr
	}
	log.Info().Str("assessment_id", id).Dur("duration", time.Since(started)).Msg("Assessment completed")
	return nil
}

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("runner closed")

// LocalRunner runs assessments on goroutines, at most workers at a time.
type LocalRunner struct {
	store Store
	exec  Executor
	sem   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewLocalRunner creates an in-process runner.
func NewLocalRunner(store Store, exec Executor, workers int) *LocalRunner {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalRunner{
		store:  store,
		exec:   exec,
		sem:    make(chan struct{}, workers),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit starts the assessment in the background.
func (r *LocalRunner) Submit(_ context.Context, id string, req pipeline.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case r.sem <- struct{}{}:
		case <-r.ctx.Done():
			_ = r.store.Fail(context.Background(), id, "server shutting down")
			return
		}
		defer func() { <-r.sem }()
		_ = execute(r.ctx, r.store, r.exec, id, req)
	}()
	return nil
}

// Close waits for submitted assessments. When ctx expires the remaining
// ones are cancelled.
func (r *LocalRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
