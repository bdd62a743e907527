package builder

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/photolog/backend/internal/photo"
)

const zipContentType = "application/zip"

// ZIPBuilder packages the KML document together with the original
// full-resolution photo blobs, preserving original filenames. Colliding
// filenames get a numeric disambiguator.
type ZIPBuilder struct{}

func (b *ZIPBuilder) Build(input *Input) (*Artifact, error) {
	names := assignEntryNames(input)

	kmlData, err := buildKMLDocument(input, names)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeZipEntry(zw, "photos.kml", kmlData, input); err != nil {
		return nil, err
	}

	if err := writePhotoEntries(zw, input, names); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize ZIP archive: %w", err)
	}

	return &Artifact{
		Data:        buf.Bytes(),
		ContentType: zipContentType,
	}, nil
}

// PhotosOnlyBuilder packages original photo blobs without a KML wrapper. An
// empty record set yields a valid empty archive.
type PhotosOnlyBuilder struct{}

func (b *PhotosOnlyBuilder) Build(input *Input) (*Artifact, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writePhotoEntries(zw, input, assignEntryNames(input)); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize photos archive: %w", err)
	}

	return &Artifact{
		Data:        buf.Bytes(),
		ContentType: zipContentType,
	}, nil
}

// assignEntryNames maps photo ids to collision-free archive filenames,
// assigned in record order so output stays deterministic
func assignEntryNames(input *Input) map[string]string {
	set := newNameSet()
	names := make(map[string]string, len(input.Records))

	for _, record := range input.Records {
		original, ok := input.Originals[record.ID]
		if !ok {
			continue
		}
		names[record.ID] = set.unique(photo.SafeFilename(original.Name))
	}
	return names
}

// writePhotoEntries adds the records' original blobs in record order
func writePhotoEntries(zw *zip.Writer, input *Input, names map[string]string) error {
	for _, record := range input.Records {
		name, ok := names[record.ID]
		if !ok {
			continue
		}
		if err := writeZipEntry(zw, name, input.Originals[record.ID].Data, input); err != nil {
			return err
		}
	}
	return nil
}
