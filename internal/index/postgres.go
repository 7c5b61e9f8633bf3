package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hardgate/internal/database"
)

// postgresBackend stores reports in the report_index table. Vectors are kept
// as REAL[] and ranked in process, so no database extension is needed.
type postgresBackend struct {
	pool *pgxpool.Pool
}

func newPostgresBackend(ctx context.Context, databaseURL string) (*postgresBackend, error) {
	pool, err := database.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresBackend{pool: pool}, nil
}

func (p *postgresBackend) name() string { return "postgres" }

func (p *postgresBackend) add(ctx context.Context, collection string, rec Record, vector []float32) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO report_index (id, collection, document, metadata, embedding) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, collection, rec.Document, metadataOrEmpty(rec.Metadata), vector)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (p *postgresBackend) rows(ctx context.Context, collection string, where map[string]string) ([]stored, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, document, metadata, embedding FROM report_index
		 WHERE collection = $1 AND metadata @> $2
		 ORDER BY created_at, id`,
		collection, metadataOrEmpty(where))
	if err != nil {
		return nil, fmt.Errorf("select reports: %w", err)
	}
	defer rows.Close()

	var out []stored
	for rows.Next() {
		var s stored
		if err := rows.Scan(&s.ID, &s.Document, &s.Metadata, &s.Embedding); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *postgresBackend) search(ctx context.Context, collection string, vector []float32, n int, where map[string]string) ([]Match, error) {
	records, err := p.rows(ctx, collection, where)
	if err != nil {
		return nil, err
	}
	return rank(records, vector, n, nil), nil
}

func (p *postgresBackend) list(ctx context.Context, collection string, where map[string]string) ([]Record, error) {
	records, err := p.rows(ctx, collection, where)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r.Record)
	}
	return out, nil
}

func (p *postgresBackend) get(ctx context.Context, collection, id string) (*Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT id, document, metadata FROM report_index WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&rec.ID, &rec.Document, &rec.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select report: %w", err)
	}
	return &rec, nil
}

func (p *postgresBackend) close() error {
	p.pool.Close()
	return nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
