// Package builder contains the pure artifact builders. Each builder turns an
// ordered photo record sequence plus fetched blobs into a single artifact.
// Builders are side-effect free and deterministic: the provided GeneratedAt
// is the only timestamp that enters the output, so equal inputs produce
// byte-identical artifacts.
package builder

import (
	"fmt"
	"time"

	"github.com/photolog/backend/internal/photo"
)

// File is one fetched blob with its archive filename
type File struct {
	Name string
	Data []byte
}

// Input is the complete input of one build: records in filter-resolution
// order and the blobs the pipeline fetched for them, keyed by photo id.
type Input struct {
	Title       string
	GeneratedAt time.Time
	Records     []photo.Record
	// Originals holds full-resolution photo blobs (ZIP, PHOTOS_ONLY)
	Originals map[string]File
	// Thumbnails holds medium thumbnails for embedding (KMZ)
	Thumbnails map[string]File
}

// Artifact is the built payload with its content type
type Artifact struct {
	Data        []byte
	ContentType string
}

// Builder materializes one artifact format
type Builder interface {
	Build(input *Input) (*Artifact, error)
}

// ForFormat returns the builder for a format enum value
func ForFormat(format string) (Builder, error) {
	switch format {
	case "KML":
		return &KMLBuilder{}, nil
	case "KMZ":
		return &KMZBuilder{}, nil
	case "ZIP":
		return &ZIPBuilder{}, nil
	case "PHOTOS_ONLY":
		return &PhotosOnlyBuilder{}, nil
	default:
		return nil, fmt.Errorf("no builder for format %q", format)
	}
}
