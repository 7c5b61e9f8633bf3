package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/crawl"
	"github.com/hardgate/internal/pipeline"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Create(ctx, &Assessment{ID: "a", Request: pipeline.Request{RepoURL: "https://example.com/r.git", GitHubToken: "secret"}}))
	require.NoError(t, s.Create(ctx, &Assessment{ID: "b"}))

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, a.Status)
	assert.Equal(t, now, a.StartedAt)
	assert.Empty(t, a.Request.GitHubToken)
	assert.Equal(t, "https://example.com/r.git", a.Request.RepoURL)

	n, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res := &pipeline.Result{AssessmentID: "a", ProjectName: "r"}
	require.NoError(t, s.Complete(ctx, "a", res))
	require.NoError(t, s.Fail(ctx, "b", "clone failed"))

	a, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Same(t, res, a.Result)
	require.NotNil(t, a.CompletedAt)

	b, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, b.Status)
	assert.Equal(t, "clone failed", b.Error)

	n, err = s.Active(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), ErrNotFound)
}

func TestMemoryStore_CompleteAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, &Assessment{ID: "gone"}))
	require.NoError(t, s.Delete(ctx, "gone"))

	require.NoError(t, s.Complete(ctx, "gone", &pipeline.Result{}))
	_, err := s.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRunner_RecordsOutcome(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	exec := func(_ context.Context, id string, req pipeline.Request) (*pipeline.Result, error) {
		if req.RepoURL == "bad" {
			return nil, errors.New("boom")
		}
		return &pipeline.Result{AssessmentID: id, ProjectName: req.RepoURL}, nil
	}
	r := NewLocalRunner(s, exec, 2)

	for _, id := range []string{"ok", "bad"} {
		require.NoError(t, s.Create(ctx, &Assessment{ID: id}))
		require.NoError(t, r.Submit(ctx, id, pipeline.Request{RepoURL: id}))
	}
	require.NoError(t, r.Close(ctx))

	ok, err := s.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ok.Status)
	assert.Equal(t, "ok", ok.Result.ProjectName)

	bad, err := s.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Equal(t, "boom", bad.Error)

	assert.ErrorIs(t, r.Submit(ctx, "late", pipeline.Request{}), ErrClosed)
}

func TestLocalRunner_BoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var running, peak int32
	var mu sync.Mutex
	exec := func(context.Context, string, pipeline.Request) (*pipeline.Result, error) {
		cur := atomic.AddInt32(&running, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return &pipeline.Result{}, nil
	}
	r := NewLocalRunner(s, exec, 2)
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("job-%d", i)
		require.NoError(t, s.Create(ctx, &Assessment{ID: id}))
		require.NoError(t, r.Submit(ctx, id, pipeline.Request{}))
	}
	require.NoError(t, r.Close(ctx))

	assert.LessOrEqual(t, peak, int32(2))
	n, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocalRunner_CloseCancels(t *testing.T) {
	s := NewMemoryStore()
	started := make(chan struct{})
	exec := func(ctx context.Context, _ string, _ pipeline.Request) (*pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := NewLocalRunner(s, exec, 1)
	require.NoError(t, s.Create(context.Background(), &Assessment{ID: "slow"}))
	require.NoError(t, r.Submit(context.Background(), "slow", pipeline.Request{}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)

	a, err := s.Get(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, a.Status)
}

func TestQueueConfigFrom(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"default", 0, 1},
		{"configured", 4, 4},
		{"negative", -2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qc := QueueConfigFrom(config.ServerConfig{Workers: tt.workers})
			assert.Equal(t, tt.want, qc.MaxWorkers)
			assert.Equal(t, 3, qc.MaxAttempts)
			assert.Equal(t, tt.want, qc.RiverQueueConfig()["default"].MaxWorkers)
		})
	}
}

func TestPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"config", &config.Error{Field: "llm", Msg: "missing"}, true},
		{"clone", fmt.Errorf("crawl: %w", crawl.ErrCloneFailed), true},
		{"transient", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, permanent(tt.err))
		})
	}
}

func TestAssessmentJobArgs_Kind(t *testing.T) {
	assert.Equal(t, "hardgate_assessment", AssessmentJobArgs{}.Kind())
}
