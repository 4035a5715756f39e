// Package postgres persists job results to PostgreSQL for multi-node
// deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	mode             TEXT NOT NULL,
	status           TEXT NOT NULL,
	request          JSONB NOT NULL,
	counters         JSONB NOT NULL,
	ranked           JSONB,
	total_paragraphs INTEGER NOT NULL DEFAULT 0,
	agent_output     TEXT,
	error            TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS pages (
	job_id  TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	seq     INTEGER NOT NULL,
	payload JSONB NOT NULL,
	PRIMARY KEY (job_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// DB is the subset of pgxpool.Pool the store uses, extracted so tests can
// substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store writes job results to PostgreSQL.
type Store struct {
	db DB
}

// NewStore connects to the given DSN, applies the schema, and returns a
// ready Store.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewStoreWithDB wraps an existing connection, used by tests.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

// Close releases the pool when the store owns one.
func (s *Store) Close() {
	if pool, ok := s.db.(*pgxpool.Pool); ok {
		pool.Close()
	}
}

// Save upserts a job result and replaces its page rows in one transaction.
func (s *Store) Save(ctx context.Context, result crawl.JobResult) error {
	request, err := json.Marshal(result.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	counters, err := json.Marshal(result.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	var ranked []byte
	if len(result.Ranked) > 0 {
		if ranked, err = json.Marshal(result.Ranked); err != nil {
			return fmt.Errorf("marshal ranked chunks: %w", err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (id, mode, status, request, counters, ranked,
			total_paragraphs, agent_output, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			counters = EXCLUDED.counters,
			ranked = EXCLUDED.ranked,
			total_paragraphs = EXCLUDED.total_paragraphs,
			agent_output = EXCLUDED.agent_output,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`,
		result.JobID, string(result.Request.Mode), string(result.Status),
		request, counters, nullBytes(ranked), result.TotalParagraphs,
		nullString(result.AgentOutput), nullString(result.Error),
		result.CreatedAt, nullTime(result.CompletedAt))
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", result.JobID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pages WHERE job_id = $1`, result.JobID); err != nil {
		return fmt.Errorf("clear pages for job %s: %w", result.JobID, err)
	}
	for i, page := range result.Pages {
		payload, err := json.Marshal(page)
		if err != nil {
			return fmt.Errorf("marshal page %d: %w", i, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO pages (job_id, seq, payload) VALUES ($1, $2, $3)`,
			result.JobID, i, payload)
		if err != nil {
			return fmt.Errorf("insert page %d for job %s: %w", i, result.JobID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save for job %s: %w", result.JobID, err)
	}
	return nil
}

// Load reads a job result back, including its pages in stored order.
func (s *Store) Load(ctx context.Context, jobID string) (crawl.JobResult, error) {
	var (
		result      crawl.JobResult
		status      string
		request     []byte
		counters    []byte
		ranked      []byte
		agentOutput *string
		jobError    *string
		completedAt *time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, status, request, counters, ranked, total_paragraphs,
			agent_output, error, created_at, completed_at
		FROM jobs WHERE id = $1`, jobID).Scan(
		&result.JobID, &status, &request, &counters, &ranked,
		&result.TotalParagraphs, &agentOutput, &jobError,
		&result.CreatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawl.JobResult{}, fmt.Errorf("load job %s: %w", jobID, crawl.ErrNotFound)
	}
	if err != nil {
		return crawl.JobResult{}, fmt.Errorf("load job %s: %w", jobID, err)
	}

	result.Status = crawl.JobStatus(status)
	if err := json.Unmarshal(request, &result.Request); err != nil {
		return crawl.JobResult{}, fmt.Errorf("decode request for job %s: %w", jobID, err)
	}
	if err := json.Unmarshal(counters, &result.Counters); err != nil {
		return crawl.JobResult{}, fmt.Errorf("decode counters for job %s: %w", jobID, err)
	}
	if len(ranked) > 0 {
		if err := json.Unmarshal(ranked, &result.Ranked); err != nil {
			return crawl.JobResult{}, fmt.Errorf("decode ranked chunks for job %s: %w", jobID, err)
		}
	}
	if agentOutput != nil {
		result.AgentOutput = *agentOutput
	}
	if jobError != nil {
		result.Error = *jobError
	}
	result.CompletedAt = completedAt

	rows, err := s.db.Query(ctx,
		`SELECT payload FROM pages WHERE job_id = $1 ORDER BY seq`, jobID)
	if err != nil {
		return crawl.JobResult{}, fmt.Errorf("load pages for job %s: %w", jobID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return crawl.JobResult{}, fmt.Errorf("scan page for job %s: %w", jobID, err)
		}
		var page crawl.PageResult
		if err := json.Unmarshal(payload, &page); err != nil {
			return crawl.JobResult{}, fmt.Errorf("decode page for job %s: %w", jobID, err)
		}
		result.Pages = append(result.Pages, page)
	}
	if err := rows.Err(); err != nil {
		return crawl.JobResult{}, fmt.Errorf("iterate pages for job %s: %w", jobID, err)
	}
	return result, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
