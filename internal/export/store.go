package export

import (
	"context"
	"time"
)

// Store persists export jobs. Implementations must make every status
// transition atomic with respect to concurrent Get calls: a reader never
// observes a half-updated job. See jobstore for the Postgres and in-memory
// implementations.
type Store interface {
	Create(ctx context.Context, job *Job) error

	// Get returns a snapshot of the job, ErrJobNotFound if unknown
	Get(ctx context.Context, jobID string) (*Job, error)

	// Claim transitions PENDING -> RUNNING with optimistic locking and
	// returns the claimed job. ErrJobAlreadyClaimed when the job is not
	// PENDING (raced, cancelled, or unknown).
	Claim(ctx context.Context, jobID string) (*Job, error)

	// SetSelected records how many photos the filter resolved to
	SetSelected(ctx context.Context, jobID string, selected int) error

	// SetProgress updates progress and per-photo counters. Progress is
	// monotonically non-decreasing while the job runs.
	SetProgress(ctx context.Context, jobID string, progress, processed, skipped int) error

	// MarkUploading transitions RUNNING -> UPLOADING. Past this gate
	// cancellation requests are rejected.
	MarkUploading(ctx context.Context, jobID string) error

	// MarkCompleted transitions to COMPLETED with the uploaded artifact
	// reference and the retention deadline
	MarkCompleted(ctx context.Context, jobID, resultKey string, resultSize int64, contentType string, expiresAt time.Time) error

	// MarkFailed transitions to FAILED with a classified error
	MarkFailed(ctx context.Context, jobID string, kind ErrorKind, message string) error

	// MarkCancelled transitions a RUNNING job to CANCELLED after the worker
	// observed the cooperative cancellation flag
	MarkCancelled(ctx context.Context, jobID string) error

	// CancelPending transitions PENDING -> CANCELLED. Returns false when the
	// job already left PENDING.
	CancelPending(ctx context.Context, jobID string) (bool, error)

	// RequestCancel sets the cooperative cancellation flag on a RUNNING job.
	// Returns false when the job is not RUNNING.
	RequestCancel(ctx context.Context, jobID string) (bool, error)

	// CancelRequested reads the cooperative cancellation flag
	CancelRequested(ctx context.Context, jobID string) (bool, error)

	// List returns retained jobs, newest first, optionally filtered by
	// status. limit caps the result; limit <= 0 means no cap.
	List(ctx context.Context, status string, limit int) ([]Job, error)

	// Stats aggregates counters across all retained jobs
	Stats(ctx context.Context) (*Stats, error)

	// DeleteExpired removes jobs whose retention deadline passed and returns
	// them so callers can delete their artifacts
	DeleteExpired(ctx context.Context, now time.Time) ([]Job, error)
}

// BlobStore is the blob storage collaborator: photo originals and thumbnails
// are read, export artifacts written. Implemented by shared/blobstore.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string) (string, error)
}

// Queue dispatches created jobs to export workers
type Queue interface {
	PublishJob(ctx context.Context, jobID string) error
}
