package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hardgate/internal/pipeline"
)

// ErrNotFound is returned for unknown assessment ids.
var ErrNotFound = errors.New("assessment not found")

// Status of an assessment.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Assessment tracks one submitted request.
type Assessment struct {
	ID          string           `json:"assessment_id"`
	Status      Status           `json:"status"`
	Request     pipeline.Request `json:"-"`
	Result      *pipeline.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Store keeps assessment status.
type Store interface {
	Create(ctx context.Context, a *Assessment) error
	Complete(ctx context.Context, id string, res *pipeline.Result) error
	Fail(ctx context.Context, id, msg string) error
	Get(ctx context.Context, id string) (*Assessment, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Assessment, error)
	Active(ctx context.Context) (int, error)
}

// withoutSecrets drops credentials before a request is stored.
func withoutSecrets(req pipeline.Request) pipeline.Request {
	req.GitHubToken = ""
	return req
}

// MemoryStore keeps assessments in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Assessment
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]*Assessment{}, now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	cp.Request = withoutSecrets(a.Request)
	if cp.StartedAt.IsZero() {
		cp.StartedAt = s.now()
	}
	if cp.Status == "" {
		cp.Status = StatusRunning
	}
	s.items[a.ID] = &cp
	return nil
}

func (s *MemoryStore) finish(id string, fn func(*Assessment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		// deleted while running
		return
	}
	now := s.now()
	a.CompletedAt = &now
	fn(a)
}

func (s *MemoryStore) Complete(_ context.Context, id string, res *pipeline.Result) error {
	s.finish(id, func(a *Assessment) {
		a.Status = StatusCompleted
		a.Result = res
	})
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id, msg string) error {
	s.finish(id, func(a *Assessment) {
		a.Status = StatusFailed
		a.Error = msg
	})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Assessment, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) Active(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.items {
		if a.Status == StatusRunning {
			n++
		}
	}
	return n, nil
}

// PostgresStore keeps assessments in the assessments table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore uses a pool whose schema has been migrated.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, a *Assessment) error {
	status := a.Status
	if status == "" {
		status = StatusRunning
	}
	started := a.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessments (id, status, request, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		a.ID, string(status), withoutSecrets(a.Request), started)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, res *pipeline.Result) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE assessments SET status = $2, result = $3, updated_at = now() WHERE id = $1`,
		id, string(StatusCompleted), res)
	if err != nil {
		return fmt.Errorf("failed to complete assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id, msg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE assessments SET status = $2, error = $3, updated_at = now() WHERE id = $1`,
		id, string(StatusFailed), msg)
	if err != nil {
		return fmt.Errorf("failed to record assessment failure: %w", err)
	}
	return nil
}

const assessmentColumns = `id, status, request, result, error, created_at, updated_at`

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var (
		a       Assessment
		status  string
		result  *pipeline.Result
		updated time.Time
	)
	if err := row.Scan(&a.ID, &status, &a.Request, &result, &a.Error, &a.StartedAt, &updated); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Result = result
	if a.Status != StatusRunning {
		a.CompletedAt = &updated
	}
	return &a, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Assessment, error) {
	a, err := scanAssessment(s.pool.QueryRow(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Assessment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assessmentColumns+` FROM assessments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var out []Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Active(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM assessments WHERE status = $1`, string(StatusRunning)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return n, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
