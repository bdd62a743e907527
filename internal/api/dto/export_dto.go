package dto

import (
	"time"

	"github.com/photolog/backend/internal/export"
	"github.com/photolog/backend/internal/photo"
)

type CreateExportRequest struct {
	Format     string       `json:"format" binding:"required"`
	Filter     photo.Filter `json:"filter"`
	AllowEmpty bool         `json:"allow_empty"`
}

type JobResponse struct {
	JobID          string     `json:"job_id"`
	Format         string     `json:"format"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	SelectedCount  int        `json:"selected_count"`
	ProcessedCount int        `json:"processed_count"`
	SkippedCount   int        `json:"skipped_count"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ResultSize     int64      `json:"result_size,omitempty"`
	ContentType    string     `json:"content_type,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// NewJobResponse maps a job snapshot to its API representation
func NewJobResponse(job *export.Job) *JobResponse {
	return &JobResponse{
		JobID:          job.JobID,
		Format:         string(job.Format),
		Status:         job.Status,
		Progress:       job.Progress,
		SelectedCount:  job.SelectedCount,
		ProcessedCount: job.ProcessedCount,
		SkippedCount:   job.SkippedCount,
		ErrorKind:      string(job.ErrorKind),
		ErrorMessage:   job.ErrorMessage,
		ResultSize:     job.ResultSize,
		ContentType:    job.ContentType,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		ExpiresAt:      job.ExpiresAt,
	}
}

type ListJobsResponse struct {
	Jobs  []*JobResponse `json:"jobs"`
	Count int            `json:"count"`
}

type StatsResponse struct {
	Total              int            `json:"total"`
	Counts             map[string]int `json:"counts"`
	AvgDurationSeconds float64        `json:"avg_duration_seconds"`
	FailureRate        float64        `json:"failure_rate"`
}
