package export

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/photolog/backend/internal/photo"
)

// maxListLimit caps how many jobs one listing request may return
const maxListLimit = 100

// ManagerConfig holds export job manager settings
type ManagerConfig struct {
	// MaxSelection bounds how many photos one job may select
	MaxSelection int
	// SyncWait bounds how long the convenience endpoints wait for a result
	SyncWait time.Duration
	// PollInterval is the snapshot re-read interval used by WaitForResult
	PollInterval time.Duration
	// RetentionTTL is how long jobs are retained. Every job gets a deadline
	// at creation so failed, cancelled and stranded jobs are reaped too; the
	// worker refreshes it from the completion time on success.
	RetentionTTL time.Duration
}

// Manager owns export job lifecycle: creation, status, cancellation, result
// retrieval and statistics. Execution happens in workers; the manager only
// reads and transitions persisted job snapshots.
type Manager struct {
	store  Store
	photos photo.Store
	blobs  BlobStore
	queue  Queue
	config ManagerConfig
	logger *slog.Logger
}

// NewManager creates an export job manager
func NewManager(store Store, photos photo.Store, blobs BlobStore, queue Queue, config ManagerConfig, logger *slog.Logger) *Manager {
	if config.PollInterval <= 0 {
		config.PollInterval = 200 * time.Millisecond
	}
	if config.RetentionTTL <= 0 {
		config.RetentionTTL = 24 * time.Hour
	}
	return &Manager{
		store:  store,
		photos: photos,
		blobs:  blobs,
		queue:  queue,
		config: config,
		logger: logger,
	}
}

// CreateRequest carries the parameters of a new export job
type CreateRequest struct {
	Format     Format
	Filter     photo.Filter
	AllowEmpty bool
}

// CreateJob validates the request, persists a PENDING job with a filter
// snapshot and enqueues it for execution. Returns without waiting for the
// worker.
func (m *Manager) CreateJob(ctx context.Context, req CreateRequest) (*Job, error) {
	if !req.Format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, req.Format)
	}

	if err := req.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	count, err := m.photos.Count(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filter: %w", err)
	}

	if count == 0 && !(req.Format == FormatPhotosOnly && req.AllowEmpty) {
		return nil, ErrEmptySelection
	}

	if m.config.MaxSelection > 0 && count > m.config.MaxSelection {
		return nil, fmt.Errorf("%w: %d photos selected, maximum is %d",
			ErrTooManySelected, count, m.config.MaxSelection)
	}

	job := NewJob(req.Format, req.Filter, req.AllowEmpty)
	job.SelectedCount = count
	expiresAt := job.CreatedAt.Add(m.config.RetentionTTL)
	job.ExpiresAt = &expiresAt

	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := m.queue.PublishJob(ctx, job.JobID); err != nil {
		m.logger.Error("Failed to dispatch export job",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		if markErr := m.store.MarkFailed(ctx, job.JobID, ErrKindDispatchFailed, err.Error()); markErr != nil {
			m.logger.Error("Failed to mark undispatched job as failed",
				slog.String("job_id", job.JobID),
				slog.Any("error", markErr),
			)
		}
		return nil, fmt.Errorf("failed to dispatch job: %w", err)
	}

	m.logger.Info("Export job created",
		slog.String("job_id", job.JobID),
		slog.String("format", string(job.Format)),
		slog.Int("selected", count),
	)

	return job, nil
}

// GetJob returns the latest persisted snapshot of a job
func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return m.store.Get(ctx, jobID)
}

// Cancel requests cancellation. PENDING jobs are cancelled immediately.
// RUNNING jobs get the cooperative flag set; the worker observes it at its
// checkpoints, so acceptance is best-effort. UPLOADING and terminal jobs
// reject cancellation with ErrTooLate.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}

	switch job.Status {
	case StatusPending:
		cancelled, err := m.store.CancelPending(ctx, jobID)
		if err != nil {
			return false, fmt.Errorf("failed to cancel pending job: %w", err)
		}
		if cancelled {
			m.logger.Info("Export job cancelled while pending",
				slog.String("job_id", jobID),
			)
			return true, nil
		}
		// Lost the race against a claiming worker; fall through to the
		// cooperative path.
		fallthrough

	case StatusRunning:
		requested, err := m.store.RequestCancel(ctx, jobID)
		if err != nil {
			return false, fmt.Errorf("failed to request cancellation: %w", err)
		}
		if !requested {
			return false, ErrTooLate
		}
		m.logger.Info("Cancellation requested for running export job",
			slog.String("job_id", jobID),
		)
		return true, nil

	default:
		return false, ErrTooLate
	}
}

// DownloadResult is either a redirect URL or the artifact itself when the
// bucket cannot sign URLs
type DownloadResult struct {
	URL         string
	Data        []byte
	Filename    string
	ContentType string
	Size        int64
}

// Download resolves the artifact of a completed job. ErrNotReady unless the
// job reached COMPLETED.
func (m *Manager) Download(ctx context.Context, jobID string) (*DownloadResult, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", ErrNotReady, job.Status)
	}

	// The janitor may have reclaimed the artifact between the status poll and
	// this request; check before handing out a URL to a deleted object.
	exists, err := m.blobs.Exists(ctx, job.ResultKey)
	if err != nil {
		return nil, fmt.Errorf("failed to stat export artifact: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: artifact no longer stored", ErrJobNotFound)
	}

	result := &DownloadResult{
		Filename:    artifactFilename(job),
		ContentType: job.ContentType,
		Size:        job.ResultSize,
	}

	url, err := m.blobs.SignedURL(ctx, job.ResultKey)
	if err == nil {
		result.URL = url
		return result, nil
	}

	// Bucket cannot sign URLs; stream the artifact through the API instead.
	data, err := m.blobs.Get(ctx, job.ResultKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read export artifact: %w", err)
	}
	result.Data = data
	return result, nil
}

// ListJobs returns retained jobs newest first, optionally filtered by status
func (m *Manager) ListJobs(ctx context.Context, status string, limit int) ([]Job, error) {
	if status != "" && !TerminalStatus(status) &&
		status != StatusPending && status != StatusRunning && status != StatusUploading {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, status)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return m.store.List(ctx, status, limit)
}

// Stats returns aggregate job counters
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	return m.store.Stats(ctx)
}

// WaitForResult polls the job snapshot until it reaches a terminal state or
// the bound elapses, returning the last snapshot either way. Used by the
// synchronous convenience endpoints.
func (m *Manager) WaitForResult(ctx context.Context, jobID string, bound time.Duration) (*Job, error) {
	if bound <= 0 {
		bound = m.config.SyncWait
	}

	deadline := time.NewTimer(bound)
	defer deadline.Stop()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		job, err := m.store.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-deadline.C:
			return job, nil
		case <-ticker.C:
		}
	}
}

// artifactFilename derives the download filename from the stored result key
func artifactFilename(job *Job) string {
	if job.ResultKey != "" {
		return path.Base(job.ResultKey)
	}
	return fmt.Sprintf("export_%s.%s",
		job.CreatedAt.UTC().Format("20060102_150405"),
		job.Format.Extension(),
	)
}
