package export

import (
	"time"

	"github.com/google/uuid"
	"github.com/photolog/backend/internal/photo"
)

// Format identifies the export artifact type
type Format string

const (
	FormatKML        Format = "KML"
	FormatKMZ        Format = "KMZ"
	FormatZIP        Format = "ZIP"
	FormatPhotosOnly Format = "PHOTOS_ONLY"
)

// Valid reports whether the format is a supported enum value
func (f Format) Valid() bool {
	switch f {
	case FormatKML, FormatKMZ, FormatZIP, FormatPhotosOnly:
		return true
	}
	return false
}

// ContentType returns the MIME type of artifacts in this format
func (f Format) ContentType() string {
	switch f {
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	case FormatKMZ:
		return "application/vnd.google-earth.kmz"
	default:
		return "application/zip"
	}
}

// Extension returns the artifact filename extension
func (f Format) Extension() string {
	switch f {
	case FormatKML:
		return "kml"
	case FormatKMZ:
		return "kmz"
	default:
		return "zip"
	}
}

// Job status constants. PENDING -> RUNNING -> UPLOADING -> COMPLETED, with
// FAILED and CANCELLED terminal. There is no transition out of a terminal
// state, and cancellation is rejected once a job reaches UPLOADING.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusUploading = "UPLOADING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// TerminalStatus reports whether a status admits no further transitions
func TerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one export job record. The filter is snapshotted at creation so a
// run stays reproducible even if photos are added mid-run. Only the worker
// executing the job and explicit cancellation requests mutate it.
type Job struct {
	JobID           string       `db:"job_id" json:"job_id"`
	Format          Format       `db:"format" json:"format"`
	Filter          photo.Filter `db:"filter" json:"filter"`
	AllowEmpty      bool         `db:"allow_empty" json:"allow_empty"`
	Status          string       `db:"status" json:"status"`
	CancelRequested bool         `db:"cancel_requested" json:"cancel_requested"`
	Progress        int          `db:"progress" json:"progress"`
	SelectedCount   int          `db:"selected_count" json:"selected_count"`
	ProcessedCount  int          `db:"processed_count" json:"processed_count"`
	SkippedCount    int          `db:"skipped_count" json:"skipped_count"`
	ErrorKind       ErrorKind    `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage    string       `db:"error_message" json:"error_message,omitempty"`
	ResultKey       string       `db:"result_key" json:"result_key,omitempty"`
	ResultSize      int64        `db:"result_size" json:"result_size,omitempty"`
	ContentType     string       `db:"content_type" json:"content_type,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
	StartedAt       *time.Time   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	ExpiresAt       *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
}

// NewJob allocates a pending job for the given filter snapshot
func NewJob(format Format, filter photo.Filter, allowEmpty bool) *Job {
	now := time.Now().UTC()
	return &Job{
		JobID:      uuid.New().String(),
		Format:     format,
		Filter:     filter,
		AllowEmpty: allowEmpty,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Terminal reports whether the job has finished
func (j *Job) Terminal() bool {
	return TerminalStatus(j.Status)
}

// Stats aggregates job counters. Eventually consistent with respect to
// concurrently running jobs.
type Stats struct {
	Total              int            `json:"total"`
	Counts             map[string]int `json:"counts"`
	AvgDurationSeconds float64        `json:"avg_duration_seconds"`
	FailureRate        float64        `json:"failure_rate"`
}
