// Package ingest accepts photo uploads, extracts EXIF metadata, renders
// thumbnails, and registers the photo record. Uploads without GPS coordinates
// are rejected; the rest of the system assumes every record is geotagged.
package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"

	"github.com/photolog/backend/internal/photo"
)

var (
	// ErrNoGPS indicates the upload carries no usable GPS EXIF data
	ErrNoGPS = errors.New("photo has no GPS coordinates")
	// ErrUnsupportedMedia indicates the upload is not a decodable image
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

var registerParsersOnce sync.Once

// BlobStore is the slice of blob operations ingestion needs
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Config holds ingestion settings
type Config struct {
	ThumbSmallWidth  int
	ThumbMediumWidth int
	ThumbLargeWidth  int
}

// Service ingests uploaded photos
type Service struct {
	photos photo.Store
	blobs  BlobStore
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an ingestion service
func NewService(photos photo.Store, blobs BlobStore, config Config, logger *slog.Logger) *Service {
	if config.ThumbSmallWidth <= 0 {
		config.ThumbSmallWidth = 240
	}
	if config.ThumbMediumWidth <= 0 {
		config.ThumbMediumWidth = 640
	}
	if config.ThumbLargeWidth <= 0 {
		config.ThumbLargeWidth = 1280
	}

	return &Service{
		photos: photos,
		blobs:  blobs,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Upload describes one incoming photo
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Tags        []string
	Description string
}

// IngestUpload validates, stores, and registers one uploaded photo. The
// original blob and three thumbnail renditions are written before the record
// becomes visible in the photo store.
func (s *Service) IngestUpload(ctx context.Context, upload *Upload) (*photo.Record, error) {
	if len(upload.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUnsupportedMedia)
	}

	sum := md5.Sum(upload.Data)
	hash := hex.EncodeToString(sum[:])

	if existing, err := s.photos.GetByHash(ctx, hash); err == nil {
		s.logger.Info("Duplicate upload rejected",
			slog.String("md5", hash),
			slog.String("existing_id", existing.ID),
		)
		return existing, photo.ErrDuplicate
	} else if !errors.Is(err, photo.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	meta, err := extractMetadata(upload.Data)
	if err != nil {
		return nil, err
	}

	record := &photo.Record{
		ID:               uuid.New().String(),
		Latitude:         meta.latitude,
		Longitude:        meta.longitude,
		Altitude:         meta.altitude,
		CapturedAt:       meta.capturedAt,
		OriginalFilename: upload.Filename,
		FileSize:         int64(len(upload.Data)),
		MimeType:         upload.ContentType,
		CameraMake:       meta.cameraMake,
		CameraModel:      meta.cameraModel,
		Tags:             upload.Tags,
		Description:      upload.Description,
		MD5Hash:          hash,
		UploadedAt:       s.now().UTC(),
	}
	if record.CapturedAt.IsZero() {
		record.CapturedAt = record.UploadedAt
	}

	safe := photo.SafeFilename(upload.Filename)
	record.BlobKey = path.Join("photos", record.ID, safe)

	if err := s.blobs.Put(ctx, record.BlobKey, upload.Data, upload.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store original blob: %w", err)
	}

	s.renderThumbnails(ctx, record, upload.Data)

	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := s.photos.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to register photo: %w", err)
	}

	s.logger.Info("Photo ingested",
		slog.String("photo_id", record.ID),
		slog.String("filename", upload.Filename),
		slog.Float64("latitude", record.Latitude),
		slog.Float64("longitude", record.Longitude),
		slog.Time("captured_at", record.CapturedAt),
	)

	return record, nil
}

// renderThumbnails writes the three thumbnail renditions. Thumbnail failures
// never fail the ingest; exports fall back to the original blob.
func (s *Service) renderThumbnails(ctx context.Context, record *photo.Record, data []byte) {
	renditions := []struct {
		name  string
		width int
		key   *string
	}{
		{"small", s.config.ThumbSmallWidth, &record.ThumbSmallKey},
		{"medium", s.config.ThumbMediumWidth, &record.ThumbMediumKey},
		{"large", s.config.ThumbLargeWidth, &record.ThumbLargeKey},
	}

	for _, r := range renditions {
		thumb, err := renderThumbnail(data, r.width)
		if err != nil {
			s.logger.Warn("Failed to render thumbnail",
				slog.String("photo_id", record.ID),
				slog.String("rendition", r.name),
				slog.Any("error", err),
			)
			return
		}

		key := path.Join("photos", record.ID, "thumbs", r.name+".jpg")
		if err := s.blobs.Put(ctx, key, thumb, "image/jpeg"); err != nil {
			s.logger.Warn("Failed to store thumbnail blob",
				slog.String("photo_id", record.ID),
				slog.String("rendition", r.name),
				slog.Any("error", err),
			)
			return
		}
		*r.key = key
	}
}

type metadata struct {
	latitude    float64
	longitude   float64
	altitude    *float64
	capturedAt  time.Time
	cameraMake  string
	cameraModel string
}

// extractMetadata decodes the EXIF block and pulls out position, capture
// time, and camera identity
func extractMetadata(data []byte) (*metadata, error) {
	registerParsersOnce.Do(func() {
		exif.RegisterParsers(mknote.All...)
	})

	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoGPS, err)
	}

	lat, lon, err := exifData.LatLong()
	if err != nil {
		return nil, ErrNoGPS
	}

	meta := &metadata{latitude: lat, longitude: lon}

	if tag, err := exifData.Get(exif.GPSAltitude); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			alt := float64(num) / float64(den)
			if ref, err := exifData.Get(exif.GPSAltitudeRef); err == nil {
				if v, err := ref.Int(0); err == nil && v == 1 {
					alt = -alt
				}
			}
			meta.altitude = &alt
		}
	}

	if dt, err := exifData.DateTime(); err == nil {
		meta.capturedAt = dt.UTC()
	}

	if tag, err := exifData.Get(exif.Make); err == nil {
		meta.cameraMake = cleanEXIFString(tag.String())
	}
	if tag, err := exifData.Get(exif.Model); err == nil {
		meta.cameraModel = cleanEXIFString(tag.String())
	}

	return meta, nil
}

func cleanEXIFString(s string) string {
	s = strings.Trim(s, "\"")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
