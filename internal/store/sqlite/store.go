// Package sqlite persists job results to a local SQLite database, the
// default storage for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	mode             TEXT NOT NULL,
	status           TEXT NOT NULL,
	request          TEXT NOT NULL,
	counters         TEXT NOT NULL,
	ranked           TEXT,
	total_paragraphs INTEGER NOT NULL DEFAULT 0,
	agent_output     TEXT,
	error            TEXT,
	created_at       TIMESTAMP NOT NULL,
	completed_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pages (
	job_id  TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	seq     INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (job_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// Store writes job results to SQLite. One file per deployment; the driver
// serializes writes itself.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) the database at path and applies the
// schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts a job result and its page rows in one transaction.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, mode, status, request, counters, ranked,
			total_paragraphs, agent_output, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			counters = excluded.counters,
			ranked = excluded.ranked,
			total_paragraphs = excluded.total_paragraphs,
			agent_output = excluded.agent_output,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		result.JobID, string(result.Request.Mode), string(result.Status),
		string(request), string(counters), nullString(string(ranked)),
		result.TotalParagraphs, nullString(result.AgentOutput),
		nullString(result.Error), result.CreatedAt, nullTime(result.CompletedAt))
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", result.JobID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE job_id = ?`, result.JobID); err != nil {
		return fmt.Errorf("clear pages for job %s: %w", result.JobID, err)
	}
	for i, page := range result.Pages {
		payload, err := json.Marshal(page)
		if err != nil {
			return fmt.Errorf("marshal page %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pages (job_id, seq, payload) VALUES (?, ?, ?)`,
			result.JobID, i, string(payload))
		if err != nil {
			return fmt.Errorf("insert page %d for job %s: %w", i, result.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save for job %s: %w", result.JobID, err)
	}
	return nil
}

// Load reads a job result back, including its pages in stored order.
func (s *Store) Load(ctx context.Context, jobID string) (crawl.JobResult, error) {
	var (
		result      crawl.JobResult
		status      string
		request     string
		counters    string
		ranked      sql.NullString
		agentOutput sql.NullString
		jobError    sql.NullString
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, request, counters, ranked, total_paragraphs,
			agent_output, error, created_at, completed_at
		FROM jobs WHERE id = ?`, jobID).Scan(
		&result.JobID, &status, &request, &counters, &ranked,
		&result.TotalParagraphs, &agentOutput, &jobError,
		&result.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return crawl.JobResult{}, fmt.Errorf("load job %s: %w", jobID, crawl.ErrNotFound)
	}
	if err != nil {
		return crawl.JobResult{}, fmt.Errorf("load job %s: %w", jobID, err)
	}

	result.Status = crawl.JobStatus(status)
	if err := json.Unmarshal([]byte(request), &result.Request); err != nil {
		return crawl.JobResult{}, fmt.Errorf("decode request for job %s: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(counters), &result.Counters); err != nil {
		return crawl.JobResult{}, fmt.Errorf("decode counters for job %s: %w", jobID, err)
	}
	if ranked.Valid {
		if err := json.Unmarshal([]byte(ranked.String), &result.Ranked); err != nil {
			return crawl.JobResult{}, fmt.Errorf("decode ranked chunks for job %s: %w", jobID, err)
		}
	}
	result.AgentOutput = agentOutput.String
	result.Error = jobError.String
	if completedAt.Valid {
		t := completedAt.Time
		result.CompletedAt = &t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM pages WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return crawl.JobResult{}, fmt.Errorf("load pages for job %s: %w", jobID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return crawl.JobResult{}, fmt.Errorf("scan page for job %s: %w", jobID, err)
		}
		var page crawl.PageResult
		if err := json.Unmarshal([]byte(payload), &page); err != nil {
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

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
