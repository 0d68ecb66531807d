// Package journal persists one row per completed worker attempt so finished
// jobs survive coordinator restarts and can be inspected later.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/occidens/org-async/internal/job"
)

var ErrNotFound = errors.New("journal entry not found")

// Entry is one completed worker attempt.
type Entry struct {
	JobID        string
	Origin       string
	Status       job.Status
	CreatedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	Result       string
	LastError    *string
	ArtifactHash string
}

// Journal is a sqlite-backed log of completed jobs.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records a completed attempt. The most recent attempt for a job id
// replaces any earlier one.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.JobID == "" {
		return fmt.Errorf("job_id is empty")
	}
	if !e.Status.Terminal() {
		return fmt.Errorf("non-terminal status %q cannot be journaled", e.Status)
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO job_journal(
  job_id, origin, status, created_at, completed_at, duration_ms, result, last_error, artifact_hash
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
  status = excluded.status,
  created_at = excluded.created_at,
  completed_at = excluded.completed_at,
  duration_ms = excluded.duration_ms,
  result = excluded.result,
  last_error = excluded.last_error,
  artifact_hash = excluded.artifact_hash;
`,
		e.JobID, e.Origin, e.Status,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano),
		e.Duration.Milliseconds(),
		e.Result, e.LastError, e.ArtifactHash,
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Get returns the journaled attempt for jobID, or ErrNotFound.
func (j *Journal) Get(ctx context.Context, jobID string) (*Entry, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job_id is empty")
	}

	row := j.db.QueryRowContext(ctx, `
SELECT job_id, origin, status, created_at, completed_at, duration_ms, result, last_error, artifact_hash
FROM job_journal
WHERE job_id = ?;
`, jobID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read journal entry: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, most recently completed first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT job_id, origin, status, created_at, completed_at, duration_ms, result, last_error, artifact_hash
FROM job_journal
ORDER BY completed_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var (
		e            Entry
		statusS      string
		createdAtS   string
		completedAtS string
		durationMS   int64
		result       sql.NullString
		lastError    sql.NullString
		artifactHash sql.NullString
	)
	if err := r.Scan(&e.JobID, &e.Origin, &statusS, &createdAtS, &completedAtS, &durationMS, &result, &lastError, &artifactHash); err != nil {
		return nil, err
	}

	e.Status = job.Status(statusS)
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		e.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, completedAtS); err == nil {
		e.CompletedAt = t
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	if result.Valid {
		e.Result = result.String
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if artifactHash.Valid {
		e.ArtifactHash = artifactHash.String
	}
	return &e, nil
}
