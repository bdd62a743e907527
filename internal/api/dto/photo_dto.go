package dto

import (
	"time"

	"github.com/photolog/backend/internal/photo"
)

type PhotoResponse struct {
	ID               string    `json:"id"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Altitude         *float64  `json:"altitude,omitempty"`
	CapturedAt       time.Time `json:"captured_at"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"file_size"`
	MimeType         string    `json:"mime_type"`
	CameraMake       string    `json:"camera_make,omitempty"`
	CameraModel      string    `json:"camera_model,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	Description      string    `json:"description,omitempty"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// NewPhotoResponse maps a photo record to its API representation
func NewPhotoResponse(r *photo.Record) *PhotoResponse {
	return &PhotoResponse{
		ID:               r.ID,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		Altitude:         r.Altitude,
		CapturedAt:       r.CapturedAt,
		OriginalFilename: r.OriginalFilename,
		FileSize:         r.FileSize,
		MimeType:         r.MimeType,
		CameraMake:       r.CameraMake,
		CameraModel:      r.CameraModel,
		Tags:             r.Tags,
		Description:      r.Description,
		UploadedAt:       r.UploadedAt,
	}
}

type ListPhotosResponse struct {
	Photos []*PhotoResponse `json:"photos"`
	Count  int              `json:"count"`
}
