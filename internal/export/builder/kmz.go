package builder

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"

	"github.com/photolog/backend/internal/photo"
)

const (
	kmzContentType = "application/vnd.google-earth.kmz"
	// kmzDocName and kmzFilesDir are the fixed internal archive layout;
	// the KML's image hrefs use paths relative to the archive root.
	kmzDocName  = "doc.kml"
	kmzFilesDir = "files"
)

// KMZBuilder packages the KML document together with the records' thumbnail
// images into a single compressed archive.
type KMZBuilder struct{}

func (b *KMZBuilder) Build(input *Input) (*Artifact, error) {
	names := newNameSet()
	refs := make(map[string]string, len(input.Records))
	entries := make(map[string]string, len(input.Records))

	for _, record := range input.Records {
		thumb, ok := input.Thumbnails[record.ID]
		if !ok {
			continue
		}
		name := names.unique(thumbName(thumb.Name))
		archivePath := kmzFilesDir + "/" + name
		refs[record.ID] = archivePath
		entries[record.ID] = archivePath
	}

	kmlData, err := buildKMLDocument(input, refs)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeZipEntry(zw, kmzDocName, kmlData, input); err != nil {
		return nil, err
	}

	for _, record := range input.Records {
		archivePath, ok := entries[record.ID]
		if !ok {
			continue
		}
		if err := writeZipEntry(zw, archivePath, input.Thumbnails[record.ID].Data, input); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize KMZ archive: %w", err)
	}

	return &Artifact{
		Data:        buf.Bytes(),
		ContentType: kmzContentType,
	}, nil
}

// thumbName derives the embedded thumbnail filename from the original name
func thumbName(original string) string {
	safe := photo.SafeFilename(original)
	ext := path.Ext(safe)
	base := safe[:len(safe)-len(ext)]
	if ext == "" {
		ext = ".jpg"
	}
	return base + "_thumb" + ext
}

// writeZipEntry adds one deflated entry stamped with the build's GeneratedAt
// so archive bytes stay deterministic
func writeZipEntry(zw *zip.Writer, name string, data []byte, input *Input) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: input.GeneratedAt.UTC(),
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write archive entry %q: %w", name, err)
	}
	return nil
}

// nameSet disambiguates colliding archive filenames with numeric suffixes
type nameSet struct {
	seen map[string]bool
}

func newNameSet() *nameSet {
	return &nameSet{seen: make(map[string]bool)}
}

func (n *nameSet) unique(name string) string {
	if !n.seen[name] {
		n.seen[name] = true
		return name
	}

	ext := path.Ext(name)
	base := name[:len(name)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !n.seen[candidate] {
			n.seen[candidate] = true
			return candidate
		}
	}
}
