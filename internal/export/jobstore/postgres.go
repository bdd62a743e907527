// Package jobstore provides the durable and in-memory implementations of the
// export job store.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/photolog/backend/internal/export"
)

// Postgres is the durable job store backed by the export_jobs table
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed job store
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

const jobColumns = `
	job_id, format, filter, allow_empty, status, cancel_requested,
	progress, selected_count, processed_count, skipped_count,
	error_kind, error_message, result_key, result_size, content_type,
	created_at, updated_at, started_at, completed_at, expires_at
`

func (s *Postgres) Create(ctx context.Context, job *export.Job) error {
	query := `
		INSERT INTO export_jobs (` + jobColumns + `)
		VALUES (
			:job_id, :format, :filter, :allow_empty, :status, :cancel_requested,
			:progress, :selected_count, :processed_count, :skipped_count,
			:error_kind, :error_message, :result_key, :result_size, :content_type,
			:created_at, :updated_at, :started_at, :completed_at, :expires_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create export job: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, jobID string) (*export.Job, error) {
	var job export.Job
	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, export.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get export job: %w", err)
	}
	return &job, nil
}

// Claim transitions PENDING -> RUNNING with optimistic locking, so no two
// workers ever execute the same job
func (s *Postgres) Claim(ctx context.Context, jobID string) (*export.Job, error) {
	query := `
		UPDATE export_jobs
		SET status = $1, started_at = NOW(), updated_at = NOW()
		WHERE job_id = $2 AND status = $3
		RETURNING ` + jobColumns

	var job export.Job
	err := s.db.QueryRowxContext(ctx, query, export.StatusRunning, jobID, export.StatusPending).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, export.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim export job: %w", err)
	}

	return &job, nil
}

func (s *Postgres) SetSelected(ctx context.Context, jobID string, selected int) error {
	query := `
		UPDATE export_jobs
		SET selected_count = $1, updated_at = NOW()
		WHERE job_id = $2
	`
	if _, err := s.db.ExecContext(ctx, query, selected, jobID); err != nil {
		return fmt.Errorf("failed to set selected count: %w", err)
	}
	return nil
}

func (s *Postgres) SetProgress(ctx context.Context, jobID string, progress, processed, skipped int) error {
	// GREATEST keeps progress monotonically non-decreasing
	query := `
		UPDATE export_jobs
		SET progress = GREATEST(progress, $1),
		    processed_count = $2,
		    skipped_count = $3,
		    updated_at = NOW()
		WHERE job_id = $4
	`
	if _, err := s.db.ExecContext(ctx, query, progress, processed, skipped, jobID); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

func (s *Postgres) MarkUploading(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, export.StatusRunning, export.StatusUploading)
}

func (s *Postgres) MarkCompleted(ctx context.Context, jobID, resultKey string, resultSize int64, contentType string, expiresAt time.Time) error {
	query := `
		UPDATE export_jobs
		SET status = $1,
		    result_key = $2,
		    result_size = $3,
		    content_type = $4,
		    progress = 100,
		    completed_at = NOW(),
		    expires_at = $5,
		    updated_at = NOW()
		WHERE job_id = $6 AND status = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		export.StatusCompleted, resultKey, resultSize, contentType, expiresAt, jobID, export.StatusUploading)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return requireRow(result, jobID, export.StatusCompleted)
}

func (s *Postgres) MarkFailed(ctx context.Context, jobID string, kind export.ErrorKind, message string) error {
	query := `
		UPDATE export_jobs
		SET status = $1,
		    error_kind = $2,
		    error_message = $3,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4 AND status NOT IN ($5, $6, $7)
	`

	result, err := s.db.ExecContext(ctx, query,
		export.StatusFailed, kind, message, jobID,
		export.StatusCompleted, export.StatusFailed, export.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return requireRow(result, jobID, export.StatusFailed)
}

func (s *Postgres) MarkCancelled(ctx context.Context, jobID string) error {
	query := `
		UPDATE export_jobs
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, export.StatusCancelled, jobID, export.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job cancelled: %w", err)
	}
	return requireRow(result, jobID, export.StatusCancelled)
}

func (s *Postgres) CancelPending(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE export_jobs
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, export.StatusCancelled, jobID, export.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel pending job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Postgres) RequestCancel(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE export_jobs
		SET cancel_requested = TRUE, updated_at = NOW()
		WHERE job_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, jobID, export.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to request cancellation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Postgres) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested bool
	query := `SELECT cancel_requested FROM export_jobs WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &requested, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, export.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	return requested, nil
}

func (s *Postgres) List(ctx context.Context, status string, limit int) ([]export.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs`
	args := []any{}

	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, job_id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	var jobs []export.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	return jobs, nil
}

func (s *Postgres) Stats(ctx context.Context) (*export.Stats, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}

	query := `SELECT status, COUNT(*) AS count FROM export_jobs GROUP BY status`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate job counts: %w", err)
	}

	stats := &export.Stats{Counts: make(map[string]int)}
	for _, row := range rows {
		stats.Counts[row.Status] = row.Count
		stats.Total += row.Count
	}

	var avg sql.NullFloat64
	query = `
		SELECT AVG(EXTRACT(EPOCH FROM (completed_at - started_at)))
		FROM export_jobs
		WHERE status = $1 AND started_at IS NOT NULL AND completed_at IS NOT NULL
	`
	if err := s.db.GetContext(ctx, &avg, query, export.StatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to aggregate job durations: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationSeconds = avg.Float64
	}

	terminal := stats.Counts[export.StatusCompleted] +
		stats.Counts[export.StatusFailed] +
		stats.Counts[export.StatusCancelled]
	if terminal > 0 {
		stats.FailureRate = float64(stats.Counts[export.StatusFailed]) / float64(terminal)
	}

	return stats, nil
}

func (s *Postgres) DeleteExpired(ctx context.Context, now time.Time) ([]export.Job, error) {
	query := `
		DELETE FROM export_jobs
		WHERE expires_at IS NOT NULL AND expires_at < $1
		RETURNING ` + jobColumns

	rows, err := s.db.QueryxContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	defer rows.Close()

	var deleted []export.Job
	for rows.Next() {
		var job export.Job
		if err := rows.StructScan(&job); err != nil {
			return deleted, fmt.Errorf("failed to scan expired job: %w", err)
		}
		deleted = append(deleted, job)
	}
	if err := rows.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate expired jobs: %w", err)
	}

	return deleted, nil
}

// transition performs a guarded status update
func (s *Postgres) transition(ctx context.Context, jobID, from, to string) error {
	query := `
		UPDATE export_jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, to, jobID, from)
	if err != nil {
		return fmt.Errorf("failed to transition job to %s: %w", to, err)
	}
	return requireRow(result, jobID, to)
}

func requireRow(result sql.Result, jobID, to string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s could not transition to %s: not in expected state", jobID, to)
	}
	return nil
}
