package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/photolog/backend/internal/export/builder"
	"github.com/photolog/backend/internal/photo"
)

// PipelineConfig holds the worker-side execution settings. All values are
// configuration, not hidden constants; defaults live in the service config
// files.
type PipelineConfig struct {
	// RetryAttempts is the total number of attempts for retryable calls
	// (filter resolution, artifact upload)
	RetryAttempts int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt
	RetryBaseDelay time.Duration
	// CallTimeout bounds every store and blob call
	CallTimeout time.Duration
	// MaxSkipRatio is the tolerated fraction of records with missing blobs
	// before the job fails with TOO_MANY_MISSING_ASSETS
	MaxSkipRatio float64
	// RetentionTTL is how long completed artifacts and job records are kept
	RetentionTTL time.Duration
}

// Pipeline executes one export job end-to-end: resolve the filter snapshot,
// fetch blobs, build the artifact, upload it, publish the terminal status.
// Cancellation is cooperative: the flag is checked after each photo and
// before the upload gate, never mid-upload.
type Pipeline struct {
	store  Store
	photos photo.Store
	blobs  BlobStore
	config PipelineConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewPipeline creates an export pipeline
func NewPipeline(store Store, photos photo.Store, blobs BlobStore, config PipelineConfig, logger *slog.Logger) *Pipeline {
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 500 * time.Millisecond
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	if config.RetentionTTL <= 0 {
		config.RetentionTTL = 24 * time.Hour
	}

	return &Pipeline{
		store:  store,
		photos: photos,
		blobs:  blobs,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Run claims and executes one job. A nil return means the job reached a
// terminal state (including FAILED and CANCELLED) and the queue message can
// be acknowledged; a RetryableError asks the caller to requeue.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobAlreadyClaimed) {
			p.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", jobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		return NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	p.logger.Info("Export job claimed",
		slog.String("job_id", job.JobID),
		slog.String("format", string(job.Format)),
	)

	// Step 1: resolve the filter snapshot into the ordered record sequence
	var records []photo.Record
	err = p.withRetry(ctx, job.JobID, "resolve filter", func(ctx context.Context) error {
		var qerr error
		records, qerr = p.photos.Query(ctx, job.Filter)
		return qerr
	})
	if err != nil {
		return p.fail(ctx, job.JobID, ErrKindSourceUnavailable,
			fmt.Sprintf("photo store unreachable: %s", err))
	}

	if len(records) == 0 && !(job.Format == FormatPhotosOnly && job.AllowEmpty) {
		return p.fail(ctx, job.JobID, ErrKindEmptySelection, "filter matched no photos")
	}

	p.setSelected(ctx, job.JobID, len(records))
	p.setProgress(ctx, job.JobID, 10, 0, 0)

	// Step 2: fetch blobs per record. A single missing blob skips the
	// record; too many skips fail the job.
	input := &builder.Input{
		Title:       fmt.Sprintf("Photo Export - %s", job.CreatedAt.UTC().Format("2006-01-02 15:04")),
		GeneratedAt: p.now().UTC().Truncate(time.Second),
		Originals:   make(map[string]builder.File),
		Thumbnails:  make(map[string]builder.File),
	}

	needOriginals := job.Format == FormatZIP || job.Format == FormatPhotosOnly
	needThumbnails := job.Format == FormatKMZ

	selected := len(records)
	processed := 0
	skipped := 0

	for i, record := range records {
		ok := p.fetchRecordBlobs(ctx, job.JobID, &record, input, needOriginals, needThumbnails)
		if ok {
			input.Records = append(input.Records, record)
			processed++
		} else {
			skipped++
		}

		// Cancellation checkpoint after each photo processed
		if p.cancelRequested(ctx, job.JobID) {
			return p.cancel(ctx, job.JobID)
		}

		progress := 10 + int(70*float64(i+1)/float64(selected))
		p.setProgress(ctx, job.JobID, progress, processed, skipped)
	}

	if selected > 0 && float64(skipped)/float64(selected) > p.config.MaxSkipRatio {
		return p.fail(ctx, job.JobID, ErrKindTooManyMissingAssets,
			fmt.Sprintf("%d of %d photo blobs could not be fetched", skipped, selected))
	}

	// Step 3: materialize the artifact fully in memory before any upload
	// starts, so a corrupt partial artifact can never reach the blob store
	b, err := builder.ForFormat(string(job.Format))
	if err != nil {
		return p.fail(ctx, job.JobID, ErrKindValidation, err.Error())
	}

	artifact, err := b.Build(input)
	if err != nil {
		return p.fail(ctx, job.JobID, ErrKindValidation,
			fmt.Sprintf("artifact build failed: %s", err))
	}

	// Cancellation checkpoint before upload; past this gate the job is
	// UPLOADING and cancellation is rejected
	if p.cancelRequested(ctx, job.JobID) {
		return p.cancel(ctx, job.JobID)
	}

	if err := p.store.MarkUploading(ctx, job.JobID); err != nil {
		return NewRetryableError(fmt.Errorf("failed to enter uploading state: %w", err))
	}
	p.setProgress(ctx, job.JobID, 80, processed, skipped)

	// Step 4: upload with bounded retry
	key := p.artifactKey(job)
	err = p.withRetry(ctx, job.JobID, "upload artifact", func(ctx context.Context) error {
		return p.blobs.Put(ctx, key, artifact.Data, artifact.ContentType)
	})
	if err != nil {
		return p.fail(ctx, job.JobID, ErrKindUploadFailed,
			fmt.Sprintf("artifact upload failed: %s", err))
	}

	// Step 5: publish the result reference
	expiresAt := p.now().UTC().Add(p.config.RetentionTTL)
	if err := p.store.MarkCompleted(ctx, job.JobID, key, int64(len(artifact.Data)), artifact.ContentType, expiresAt); err != nil {
		// The artifact is uploaded; a failed status write must not requeue
		// the whole job, so log and acknowledge.
		p.logger.Error("Failed to mark job completed",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		return nil
	}

	p.logger.Info("Export job completed",
		slog.String("job_id", job.JobID),
		slog.String("result_key", key),
		slog.Int("artifact_bytes", len(artifact.Data)),
		slog.Int("processed", processed),
		slog.Int("skipped", skipped),
	)

	return nil
}

// fetchRecordBlobs fetches the blobs a format needs for one record. Returns
// false when a required blob could not be fetched and the record must be
// skipped.
func (p *Pipeline) fetchRecordBlobs(ctx context.Context, jobID string, record *photo.Record, input *builder.Input, originals, thumbnails bool) bool {
	if originals {
		data, err := p.getBlob(ctx, record.BlobKey)
		if err != nil {
			p.logger.Warn("Skipping photo with missing original blob",
				slog.String("job_id", jobID),
				slog.String("photo_id", record.ID),
				slog.Any("error", err),
			)
			return false
		}
		input.Originals[record.ID] = builder.File{Name: record.OriginalFilename, Data: data}
	}

	if thumbnails {
		key := record.ThumbMediumKey
		if key == "" {
			key = record.BlobKey
		}
		data, err := p.getBlob(ctx, key)
		if err != nil {
			p.logger.Warn("Skipping photo with missing thumbnail blob",
				slog.String("job_id", jobID),
				slog.String("photo_id", record.ID),
				slog.Any("error", err),
			)
			return false
		}
		input.Thumbnails[record.ID] = builder.File{Name: record.OriginalFilename, Data: data}
	}

	return true
}

func (p *Pipeline) getBlob(ctx context.Context, key string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	return p.blobs.Get(callCtx, key)
}

// withRetry runs fn up to the configured attempt count with exponential
// backoff, a fresh per-call timeout on each attempt
func (p *Pipeline) withRetry(ctx context.Context, jobID, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.config.RetryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < p.config.RetryAttempts-1 {
			backoff := time.Duration(float64(p.config.RetryBaseDelay) * float64(uint(1)<<uint(attempt)))
			p.logger.Warn("Retryable step failed, backing off",
				slog.String("job_id", jobID),
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", p.config.RetryAttempts),
				slog.Duration("retry_after", backoff),
				slog.Any("error", err),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, p.config.RetryAttempts, lastErr)
}

// cancelRequested reads the cooperative cancellation flag; read errors are
// logged and treated as "keep going"
func (p *Pipeline) cancelRequested(ctx context.Context, jobID string) bool {
	cancelled, err := p.store.CancelRequested(ctx, jobID)
	if err != nil {
		p.logger.Warn("Failed to read cancellation flag",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return false
	}
	return cancelled
}

func (p *Pipeline) cancel(ctx context.Context, jobID string) error {
	if err := p.store.MarkCancelled(ctx, jobID); err != nil {
		p.logger.Error("Failed to mark job cancelled",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
	p.logger.Info("Export job cancelled at checkpoint",
		slog.String("job_id", jobID),
	)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, jobID string, kind ErrorKind, message string) error {
	// If the store is unreachable the requeue can strand the job in RUNNING
	// (the redelivery loses the claim race against the dead attempt); the
	// retention deadline set at creation bounds how long it lingers.
	if err := p.store.MarkFailed(ctx, jobID, kind, message); err != nil {
		p.logger.Error("Failed to mark job failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return NewRetryableError(fmt.Errorf("failed to record job failure: %w", err))
	}

	p.logger.Error("Export job failed",
		slog.String("job_id", jobID),
		slog.String("error_kind", string(kind)),
		slog.String("error", message),
	)
	return nil
}

func (p *Pipeline) setSelected(ctx context.Context, jobID string, selected int) {
	if err := p.store.SetSelected(ctx, jobID, selected); err != nil {
		p.logger.Warn("Failed to record selected count",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

func (p *Pipeline) setProgress(ctx context.Context, jobID string, progress, processed, skipped int) {
	if err := p.store.SetProgress(ctx, jobID, progress, processed, skipped); err != nil {
		p.logger.Warn("Failed to update progress",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

// artifactKey builds the blob path: keyed by export date plus a timestamped
// filename, e.g. exports/2024/01/31/export_20240131_120000_ab12cd34.kmz
func (p *Pipeline) artifactKey(job *Job) string {
	now := p.now().UTC()
	return fmt.Sprintf("exports/%s/export_%s_%s.%s",
		now.Format("2006/01/02"),
		now.Format("20060102_150405"),
		shortID(job.JobID),
		job.Format.Extension(),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
