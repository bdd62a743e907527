package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/photolog/backend/internal/export"
	"github.com/photolog/backend/internal/ingest"
	"github.com/photolog/backend/internal/photo"
)

// HealthChecker reports readiness of a backing dependency. Implemented by
// the shared PostgreSQL client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Manager  *export.Manager
	Ingest   *ingest.Service
	Photos   photo.Store
	Database HealthChecker
	SyncWait time.Duration
}

// ExportHandler handles export job HTTP requests
type ExportHandler struct {
	logger   *slog.Logger
	manager  *export.Manager
	syncWait time.Duration
}

// NewExportHandler creates a new ExportHandler instance
func NewExportHandler(deps *Dependencies) *ExportHandler {
	return &ExportHandler{
		logger:   deps.Logger,
		manager:  deps.Manager,
		syncWait: deps.SyncWait,
	}
}

// PhotoHandler handles photo upload and listing requests
type PhotoHandler struct {
	logger *slog.Logger
	ingest *ingest.Service
	photos photo.Store
}

// NewPhotoHandler creates a new PhotoHandler instance
func NewPhotoHandler(deps *Dependencies) *PhotoHandler {
	return &PhotoHandler{
		logger: deps.Logger,
		ingest: deps.Ingest,
		photos: deps.Photos,
	}
}
