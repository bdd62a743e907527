package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/photolog/backend/internal/api/dto"
	"github.com/photolog/backend/internal/export"
	"github.com/photolog/backend/internal/photo"
)

// CreateExport handles POST /api/v1/exports
// Creates a new asynchronous export job and returns 202 with the job snapshot
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := h.manager.CreateJob(c.Request.Context(), export.CreateRequest{
		Format:     export.Format(strings.ToUpper(req.Format)),
		Filter:     req.Filter,
		AllowEmpty: req.AllowEmpty,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.NewJobResponse(job))
}

// ListExports handles GET /api/v1/exports
// Lists retained jobs newest first, optionally filtered by status
func (h *ExportHandler) ListExports(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	jobs, err := h.manager.ListJobs(c.Request.Context(), strings.ToUpper(c.Query("status")), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := dto.ListJobsResponse{
		Jobs:  make([]*dto.JobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, dto.NewJobResponse(&jobs[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// GetStatus handles GET /api/v1/exports/:job_id/status
func (h *ExportHandler) GetStatus(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.manager.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobResponse(job))
}

// Download handles GET /api/v1/exports/:job_id/download
// Redirects to a signed artifact URL, or streams the artifact when the
// bucket cannot sign URLs
func (h *ExportHandler) Download(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	result, err := h.manager.Download(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if result.URL != "" {
		c.Redirect(http.StatusFound, result.URL)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// Cancel handles DELETE /api/v1/exports/:job_id
// Cancels a pending job immediately or requests cooperative cancellation of
// a running one
func (h *ExportHandler) Cancel(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	if _, err := h.manager.Cancel(c.Request.Context(), jobID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":    jobID,
		"cancelled": true,
	})
}

// GetStats handles GET /api/v1/exports/stats
func (h *ExportHandler) GetStats(c *gin.Context) {
	stats, err := h.manager.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StatsResponse{
		Total:              stats.Total,
		Counts:             stats.Counts,
		AvgDurationSeconds: stats.AvgDurationSeconds,
		FailureRate:        stats.FailureRate,
	})
}

// ExportKML handles GET /api/v1/exports/kml
func (h *ExportHandler) ExportKML(c *gin.Context) {
	h.exportSync(c, export.FormatKML)
}

// ExportKMZ handles GET /api/v1/exports/kmz
func (h *ExportHandler) ExportKMZ(c *gin.Context) {
	h.exportSync(c, export.FormatKMZ)
}

// exportSync backs the convenience endpoints: create a job from query
// parameters, wait up to the sync bound, and serve the artifact when it
// finished in time. A job that is still running comes back as 202 with its
// snapshot so the client can switch to polling.
func (h *ExportHandler) exportSync(c *gin.Context, format export.Format) {
	filter, err := parseQueryFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.manager.CreateJob(c.Request.Context(), export.CreateRequest{
		Format: format,
		Filter: *filter,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	job, err = h.manager.WaitForResult(c.Request.Context(), job.JobID, h.syncWait)
	if err != nil {
		h.respondError(c, err)
		return
	}

	switch job.Status {
	case export.StatusCompleted:
		result, err := h.manager.Download(c.Request.Context(), job.JobID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if result.URL != "" {
			c.Redirect(http.StatusFound, result.URL)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		c.Data(http.StatusOK, result.ContentType, result.Data)

	case export.StatusFailed:
		c.JSON(http.StatusBadGateway, dto.NewJobResponse(job))

	default:
		// Still in flight after the sync bound; hand the client the job
		c.JSON(http.StatusAccepted, dto.NewJobResponse(job))
	}
}

// jobIDParam extracts and validates the job_id path parameter
func (h *ExportHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

// respondError maps domain errors to HTTP status codes
func (h *ExportHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, export.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "export job not found"})

	case errors.Is(err, export.ErrInvalidFormat),
		errors.Is(err, export.ErrInvalidStatus),
		errors.Is(err, export.ErrTooManySelected),
		errors.Is(err, photo.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, export.ErrEmptySelection):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})

	case errors.Is(err, export.ErrNotReady),
		errors.Is(err, export.ErrTooLate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	default:
		h.logger.Error("Export request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// parseQueryFilter builds a photo filter from the convenience endpoint query
// parameters: from/to (RFC 3339), tags (comma separated), bbox
// (min_lat,min_lon,max_lat,max_lon)
func parseQueryFilter(c *gin.Context) (*photo.Filter, error) {
	var filter photo.Filter

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid from parameter: %s", err)
		}
		filter.From = &t
	}

	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid to parameter: %s", err)
		}
		filter.To = &t
	}

	if v := c.Query("tags"); v != "" {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	if v := c.Query("bbox"); v != "" {
		bbox, err := photo.ParseBBox(v)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox parameter: %s", err)
		}
		filter.BBox = bbox
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return &filter, nil
}
