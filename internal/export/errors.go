package export

import "errors"

// ErrorKind classifies terminal job failures on the job record
type ErrorKind string

const (
	ErrKindValidation           ErrorKind = "VALIDATION"
	ErrKindEmptySelection       ErrorKind = "EMPTY_SELECTION"
	ErrKindSourceUnavailable    ErrorKind = "SOURCE_UNAVAILABLE"
	ErrKindTooManyMissingAssets ErrorKind = "TOO_MANY_MISSING_ASSETS"
	ErrKindUploadFailed         ErrorKind = "UPLOAD_FAILED"
	ErrKindDispatchFailed       ErrorKind = "DISPATCH_FAILED"
	ErrKindCancelled            ErrorKind = "CANCELLED"
)

var (
	// ErrJobNotFound is returned when a job is unknown or past its
	// retention TTL
	ErrJobNotFound = errors.New("export job not found")

	// ErrNotReady is returned when a download is requested before the job
	// completed
	ErrNotReady = errors.New("export job not ready")

	// ErrTooLate is returned when cancellation is requested after the job
	// started uploading or reached a terminal state
	ErrTooLate = errors.New("export job can no longer be cancelled")

	// ErrInvalidFormat is returned at creation for unsupported formats
	ErrInvalidFormat = errors.New("unsupported export format")

	// ErrEmptySelection is returned at creation when the filter matches no
	// photos and the format does not allow empty output
	ErrEmptySelection = errors.New("filter matched no photos")

	// ErrTooManySelected is returned at creation when the filter matches
	// more photos than the configured maximum
	ErrTooManySelected = errors.New("selection exceeds the configured maximum")

	// ErrInvalidStatus is returned when a listing filters on an unknown
	// status value
	ErrInvalidStatus = errors.New("unknown job status")

	// ErrJobAlreadyClaimed is returned when claiming a job that is not in
	// PENDING status (another worker won the race, or it was cancelled)
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")
)

// RetryableError wraps transient infrastructure errors that should trigger a
// queue requeue rather than a permanent failure
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
