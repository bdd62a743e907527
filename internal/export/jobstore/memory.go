package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/photolog/backend/internal/export"
)

// Memory is an in-memory job store. Every operation runs under one mutex and
// Get returns copies, so readers always observe complete snapshots. Used in
// tests and single-process deployments.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*export.Job
}

// NewMemory creates an empty in-memory job store
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*export.Job)}
}

func (s *Memory) Create(ctx context.Context, job *export.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("job %s already exists", job.JobID)
	}

	copied := *job
	s.jobs[job.JobID] = &copied
	return nil
}

func (s *Memory) Get(ctx context.Context, jobID string) (*export.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, export.ErrJobNotFound
	}

	snapshot := *job
	return &snapshot, nil
}

func (s *Memory) Claim(ctx context.Context, jobID string) (*export.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != export.StatusPending {
		return nil, export.ErrJobAlreadyClaimed
	}

	now := time.Now().UTC()
	job.Status = export.StatusRunning
	job.StartedAt = &now
	job.UpdatedAt = now

	claimed := *job
	return &claimed, nil
}

func (s *Memory) SetSelected(ctx context.Context, jobID string, selected int) error {
	return s.update(jobID, func(job *export.Job) error {
		job.SelectedCount = selected
		return nil
	})
}

func (s *Memory) SetProgress(ctx context.Context, jobID string, progress, processed, skipped int) error {
	return s.update(jobID, func(job *export.Job) error {
		if progress > job.Progress {
			job.Progress = progress
		}
		job.ProcessedCount = processed
		job.SkippedCount = skipped
		return nil
	})
}

func (s *Memory) MarkUploading(ctx context.Context, jobID string) error {
	return s.update(jobID, func(job *export.Job) error {
		if job.Status != export.StatusRunning {
			return fmt.Errorf("job %s could not transition to %s: not in expected state", jobID, export.StatusUploading)
		}
		job.Status = export.StatusUploading
		return nil
	})
}

func (s *Memory) MarkCompleted(ctx context.Context, jobID, resultKey string, resultSize int64, contentType string, expiresAt time.Time) error {
	return s.update(jobID, func(job *export.Job) error {
		if job.Status != export.StatusUploading {
			return fmt.Errorf("job %s could not transition to %s: not in expected state", jobID, export.StatusCompleted)
		}
		now := time.Now().UTC()
		job.Status = export.StatusCompleted
		job.ResultKey = resultKey
		job.ResultSize = resultSize
		job.ContentType = contentType
		job.Progress = 100
		job.CompletedAt = &now
		job.ExpiresAt = &expiresAt
		return nil
	})
}

func (s *Memory) MarkFailed(ctx context.Context, jobID string, kind export.ErrorKind, message string) error {
	return s.update(jobID, func(job *export.Job) error {
		if job.Terminal() {
			return fmt.Errorf("job %s could not transition to %s: not in expected state", jobID, export.StatusFailed)
		}
		now := time.Now().UTC()
		job.Status = export.StatusFailed
		job.ErrorKind = kind
		job.ErrorMessage = message
		job.CompletedAt = &now
		return nil
	})
}

func (s *Memory) MarkCancelled(ctx context.Context, jobID string) error {
	return s.update(jobID, func(job *export.Job) error {
		if job.Status != export.StatusRunning {
			return fmt.Errorf("job %s could not transition to %s: not in expected state", jobID, export.StatusCancelled)
		}
		now := time.Now().UTC()
		job.Status = export.StatusCancelled
		job.CompletedAt = &now
		return nil
	})
}

func (s *Memory) CancelPending(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, export.ErrJobNotFound
	}
	if job.Status != export.StatusPending {
		return false, nil
	}

	now := time.Now().UTC()
	job.Status = export.StatusCancelled
	job.CompletedAt = &now
	job.UpdatedAt = now
	return true, nil
}

func (s *Memory) RequestCancel(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, export.ErrJobNotFound
	}
	if job.Status != export.StatusRunning {
		return false, nil
	}

	job.CancelRequested = true
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Memory) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, export.ErrJobNotFound
	}
	return job.CancelRequested, nil
}

func (s *Memory) List(ctx context.Context, status string, limit int) ([]export.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]export.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID < jobs[j].JobID
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *Memory) Stats(ctx context.Context) (*export.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &export.Stats{Counts: make(map[string]int)}
	var totalDuration time.Duration
	completed := 0

	for _, job := range s.jobs {
		stats.Counts[job.Status]++
		stats.Total++

		if job.Status == export.StatusCompleted && job.StartedAt != nil && job.CompletedAt != nil {
			totalDuration += job.CompletedAt.Sub(*job.StartedAt)
			completed++
		}
	}

	if completed > 0 {
		stats.AvgDurationSeconds = totalDuration.Seconds() / float64(completed)
	}

	terminal := stats.Counts[export.StatusCompleted] +
		stats.Counts[export.StatusFailed] +
		stats.Counts[export.StatusCancelled]
	if terminal > 0 {
		stats.FailureRate = float64(stats.Counts[export.StatusFailed]) / float64(terminal)
	}

	return stats, nil
}

func (s *Memory) DeleteExpired(ctx context.Context, now time.Time) ([]export.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []export.Job
	for id, job := range s.jobs {
		if job.ExpiresAt != nil && job.ExpiresAt.Before(now) {
			deleted = append(deleted, *job)
			delete(s.jobs, id)
		}
	}
	return deleted, nil
}

func (s *Memory) update(jobID string, fn func(job *export.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return export.ErrJobNotFound
	}
	if err := fn(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}
