package worker

import (
	"context"
	"log/slog"
	"time"
)

// janitorLoop periodically deletes expired export jobs and their uploaded
// artifacts. Artifacts are removed best-effort: a failed blob delete is
// logged, the job row is already gone and the next bucket sweep can reclaim
// the orphan.
func (w *Worker) janitorLoop(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("Retention janitor started",
		slog.Duration("interval", w.janitorInterval),
	)

	ticker := time.NewTicker(w.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Retention janitor stopping - stopChan closed")
			return
		case <-ctx.Done():
			w.logger.Info("Retention janitor stopping - context canceled")
			return
		case <-ticker.C:
			w.sweepExpired(ctx)
		}
	}
}

// sweepExpired runs one retention pass
func (w *Worker) sweepExpired(ctx context.Context) {
	deleted, err := w.jobs.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		w.logger.Error("Failed to delete expired export jobs",
			slog.Any("error", err),
		)
		return
	}
	if len(deleted) == 0 {
		return
	}

	removed := 0
	for _, job := range deleted {
		if job.ResultKey == "" {
			continue
		}
		if err := w.blobs.Delete(ctx, job.ResultKey); err != nil {
			w.logger.Warn("Failed to delete expired artifact blob",
				slog.String("job_id", job.JobID),
				slog.String("result_key", job.ResultKey),
				slog.Any("error", err),
			)
			continue
		}
		removed++
	}

	w.logger.Info("Retention sweep finished",
		slog.Int("expired_jobs", len(deleted)),
		slog.Int("artifacts_removed", removed),
	)
}
