package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/photolog/backend/internal/api/dto"
	"github.com/photolog/backend/internal/ingest"
	"github.com/photolog/backend/internal/photo"
)

// UploadPhoto handles POST /api/v1/photos
// Accepts a multipart upload, extracts EXIF metadata, and registers the photo
func (h *PhotoHandler) UploadPhoto(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "multipart field 'file' is required",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}

	var tags []string
	for _, tag := range strings.Split(c.PostForm("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	record, err := h.ingest.IngestUpload(c.Request.Context(), &ingest.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		Tags:        tags,
		Description: c.PostForm("description"),
	})
	if err != nil {
		switch {
		case errors.Is(err, photo.ErrDuplicate):
			// record points at the already-ingested photo
			c.JSON(http.StatusConflict, gin.H{
				"error": "photo already uploaded",
				"photo": dto.NewPhotoResponse(record),
			})
		case errors.Is(err, ingest.ErrNoGPS),
			errors.Is(err, ingest.ErrUnsupportedMedia):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Photo ingest failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest photo"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.NewPhotoResponse(record))
}

// ListPhotos handles GET /api/v1/photos
// Lists photo records matching the query filter
func (h *PhotoHandler) ListPhotos(c *gin.Context) {
	filter, err := parseQueryFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.photos.Query(c.Request.Context(), *filter)
	if err != nil {
		h.logger.Error("Failed to query photos", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query photos"})
		return
	}

	resp := dto.ListPhotosResponse{
		Photos: make([]*dto.PhotoResponse, 0, len(records)),
		Count:  len(records),
	}
	for i := range records {
		resp.Photos = append(resp.Photos, dto.NewPhotoResponse(&records[i]))
	}

	c.JSON(http.StatusOK, resp)
}
