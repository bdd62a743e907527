package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photolog/backend/internal/photo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingBlobs struct {
	objects map[string][]byte
}

func newRecordingBlobs() *recordingBlobs {
	return &recordingBlobs{objects: make(map[string][]byte)}
}

func (b *recordingBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.objects[key] = data
	return nil
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRenderThumbnail_ScalesDown(t *testing.T) {
	data := encodePNG(t, 100, 50)

	thumb, err := renderThumbnail(data, 40)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())
	assert.Equal(t, 20, decoded.Bounds().Dy())
}

func TestRenderThumbnail_NeverUpscales(t *testing.T) {
	data := encodePNG(t, 100, 50)

	thumb, err := renderThumbnail(data, 640)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 50, decoded.Bounds().Dy())
}

func TestRenderThumbnail_RejectsGarbage(t *testing.T) {
	_, err := renderThumbnail([]byte("definitely not an image"), 240)
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestIngestUpload_EmptyPayload(t *testing.T) {
	svc := NewService(photo.NewMemoryStore(), newRecordingBlobs(), Config{}, testLogger())

	_, err := svc.IngestUpload(context.Background(), &Upload{Filename: "x.jpg"})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestIngestUpload_NoEXIFMeansNoGPS(t *testing.T) {
	svc := NewService(photo.NewMemoryStore(), newRecordingBlobs(), Config{}, testLogger())

	// A valid image without an EXIF block carries no coordinates
	_, err := svc.IngestUpload(context.Background(), &Upload{
		Filename: "plain.png",
		Data:     encodePNG(t, 10, 10),
	})
	assert.ErrorIs(t, err, ErrNoGPS)
}

func TestIngestUpload_DuplicateByHash(t *testing.T) {
	ctx := context.Background()
	photos := photo.NewMemoryStore()
	svc := NewService(photos, newRecordingBlobs(), Config{}, testLogger())

	payload := []byte("same-bytes")
	sum := md5.Sum(payload)

	existing := &photo.Record{
		ID:         "11111111-1111-1111-1111-111111111111",
		Latitude:   46.2,
		Longitude:  6.1,
		CapturedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		MD5Hash:    hex.EncodeToString(sum[:]),
	}
	require.NoError(t, photos.Insert(ctx, existing))

	got, err := svc.IngestUpload(ctx, &Upload{Filename: "again.jpg", Data: payload})
	assert.ErrorIs(t, err, photo.ErrDuplicate)
	require.NotNil(t, got)
	assert.Equal(t, existing.ID, got.ID)
}

func TestCleanEXIFString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Canon"`, "Canon"},
		{"NIKON\x00\x00", "NIKON"},
		{"  Apple ", "Apple"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanEXIFString(tt.in), tt.in)
	}
}
