package photo

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Record is a geotagged photo as stored in the photo record store. The export
// pipeline consumes records read-only; the ingest service produces them.
type Record struct {
	ID               string         `db:"id" json:"id"`
	Latitude         float64        `db:"latitude" json:"latitude"`
	Longitude        float64        `db:"longitude" json:"longitude"`
	Altitude         *float64       `db:"altitude" json:"altitude,omitempty"`
	CapturedAt       time.Time      `db:"captured_at" json:"captured_at"`
	BlobKey          string         `db:"blob_key" json:"blob_key"`
	ThumbSmallKey    string         `db:"thumb_small_key" json:"thumb_small_key,omitempty"`
	ThumbMediumKey   string         `db:"thumb_medium_key" json:"thumb_medium_key,omitempty"`
	ThumbLargeKey    string         `db:"thumb_large_key" json:"thumb_large_key,omitempty"`
	OriginalFilename string         `db:"original_filename" json:"original_filename"`
	FileSize         int64          `db:"file_size" json:"file_size"`
	MimeType         string         `db:"mime_type" json:"mime_type"`
	CameraMake       string         `db:"camera_make" json:"camera_make,omitempty"`
	CameraModel      string         `db:"camera_model" json:"camera_model,omitempty"`
	Tags             pq.StringArray `db:"tags" json:"tags"`
	Description      string         `db:"description" json:"description,omitempty"`
	MD5Hash          string         `db:"md5_hash" json:"md5_hash"`
	UploadedAt       time.Time      `db:"uploaded_at" json:"uploaded_at"`
}

// Validate checks the WGS84 coordinate invariants
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("photo id is required")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", r.Longitude)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("captured_at is required")
	}
	return nil
}

// CameraInfo returns a display string for the capturing camera, with EXIF
// null bytes stripped the way they arrive from some vendors
func (r *Record) CameraInfo() string {
	camMake := strings.TrimSpace(strings.ReplaceAll(r.CameraMake, "\x00", ""))
	camModel := strings.TrimSpace(strings.ReplaceAll(r.CameraModel, "\x00", ""))
	info := strings.TrimSpace(camMake + " " + camModel)
	if info == "" {
		return "Unknown"
	}
	return info
}

// SafeFilename reduces a filename to characters safe for archive entries and
// blob keys. Falls back to "photo.jpg" when nothing survives.
func SafeFilename(filename string) string {
	var b strings.Builder
	for _, c := range filename {
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}

	safe := b.String()
	if strings.Trim(safe, "._") == "" {
		return "photo.jpg"
	}
	return safe
}
