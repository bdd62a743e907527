package export_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photolog/backend/internal/export"
	"github.com/photolog/backend/internal/export/jobstore"
	"github.com/photolog/backend/internal/photo"
)

func fastPipelineConfig() export.PipelineConfig {
	return export.PipelineConfig{
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
		CallTimeout:    time.Second,
		MaxSkipRatio:   0.25,
		RetentionTTL:   time.Hour,
	}
}

type pipelineFixture struct {
	pipeline *export.Pipeline
	jobs     *jobstore.Memory
	photos   *photo.MemoryStore
	blobs    *fakeBlobs
}

func newPipelineFixture(t *testing.T, config export.PipelineConfig) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		jobs:   jobstore.NewMemory(),
		photos: photo.NewMemoryStore(),
		blobs:  newFakeBlobs(),
	}
	f.pipeline = export.NewPipeline(f.jobs, f.photos, f.blobs, config, testLogger())
	return f
}

// seedPhotosWithBlobs inserts n records; records with index >= withBlobs get
// no stored original, so original-bundling formats must skip them
func (f *pipelineFixture) seedPhotosWithBlobs(t *testing.T, n, withBlobs int) {
	t.Helper()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("photo-%02d", i)
		r := &photo.Record{
			ID:               id,
			Latitude:         10,
			Longitude:        20,
			CapturedAt:       base.Add(time.Duration(i) * time.Minute),
			BlobKey:          "photos/" + id + "/original.jpg",
			OriginalFilename: fmt.Sprintf("img_%02d.jpg", i),
		}
		require.NoError(t, f.photos.Insert(context.Background(), r))

		if i < withBlobs {
			require.NoError(t, f.blobs.Put(context.Background(), r.BlobKey,
				[]byte("jpeg-"+id), "image/jpeg"))
		}
	}
}

func (f *pipelineFixture) createJob(t *testing.T, format export.Format, allowEmpty bool) *export.Job {
	t.Helper()

	job := export.NewJob(format, photo.Filter{}, allowEmpty)
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func TestPipeline_KMLHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())
	f.seedPhotosWithBlobs(t, 3, 3)

	job := f.createJob(t, export.FormatKML, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)

	assert.Equal(t, export.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 3, got.SelectedCount)
	assert.Equal(t, 3, got.ProcessedCount)
	assert.Equal(t, 0, got.SkippedCount)
	assert.True(t, strings.HasPrefix(got.ResultKey, "exports/"))
	assert.True(t, strings.HasSuffix(got.ResultKey, ".kml"))
	assert.Equal(t, "application/vnd.google-earth.kml+xml", got.ContentType)
	require.NotNil(t, got.ExpiresAt)

	data, err := f.blobs.Get(ctx, got.ResultKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), got.ResultSize)
	assert.Contains(t, string(data), "img_00.jpg")
}

func TestPipeline_ZIPHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())
	f.seedPhotosWithBlobs(t, 2, 2)

	job := f.createJob(t, export.FormatZIP, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, export.StatusCompleted, got.Status)
	assert.True(t, strings.HasSuffix(got.ResultKey, ".zip"))
	assert.Equal(t, "application/zip", got.ContentType)

	data, err := f.blobs.Get(ctx, got.ResultKey)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	assert.ElementsMatch(t, []string{"photos.kml", "img_00.jpg", "img_01.jpg"}, names)
}

func TestPipeline_KMZUsesThumbnails(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())

	r := &photo.Record{
		ID:               "p1",
		Latitude:         10,
		Longitude:        20,
		CapturedAt:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		BlobKey:          "photos/p1/original.jpg",
		ThumbMediumKey:   "photos/p1/thumbs/medium.jpg",
		OriginalFilename: "summit.jpg",
	}
	require.NoError(t, f.photos.Insert(ctx, r))
	require.NoError(t, f.blobs.Put(ctx, r.ThumbMediumKey, []byte("thumb-bytes"), "image/jpeg"))

	job := f.createJob(t, export.FormatKMZ, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, export.StatusCompleted, got.Status)
	assert.True(t, strings.HasSuffix(got.ResultKey, ".kmz"))

	data, err := f.blobs.Get(ctx, got.ResultKey)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	assert.ElementsMatch(t, []string{"doc.kml", "files/summit_thumb.jpg"}, names)
}

func TestPipeline_EmptyPhotosArchiveAllowed(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())

	job := f.createJob(t, export.FormatPhotosOnly, true)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusCompleted, got.Status)
	assert.Equal(t, 0, got.SelectedCount)

	data, err := f.blobs.Get(ctx, got.ResultKey)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestPipeline_EmptySelectionFails(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())

	job := f.createJob(t, export.FormatKML, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusFailed, got.Status)
	assert.Equal(t, export.ErrKindEmptySelection, got.ErrorKind)
}

func TestPipeline_SkipsRecordWithMissingBlob(t *testing.T) {
	ctx := context.Background()
	config := fastPipelineConfig()
	config.MaxSkipRatio = 0.5
	f := newPipelineFixture(t, config)
	// 1 of 3 missing, tolerated by the threshold
	f.seedPhotosWithBlobs(t, 3, 2)

	job := f.createJob(t, export.FormatZIP, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.SkippedCount)

	data, err := f.blobs.Get(ctx, got.ResultKey)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	// The embedded KML holds one placemark per processed record
	var kml []byte
	for _, file := range zr.File {
		if file.Name != "photos.kml" {
			continue
		}
		rc, err := file.Open()
		require.NoError(t, err)
		kml, err = io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}
	require.NotEmpty(t, kml)
	assert.Equal(t, 2, strings.Count(string(kml), "<Placemark>"))
}

func TestPipeline_MissingBlobWithinThreshold(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())
	// 1 of 4 missing; exactly at the 0.25 threshold, which tolerates it
	f.seedPhotosWithBlobs(t, 4, 3)

	job := f.createJob(t, export.FormatZIP, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusCompleted, got.Status)
	assert.Equal(t, 4, got.SelectedCount)
	assert.Equal(t, 3, got.ProcessedCount)
	assert.Equal(t, 1, got.SkippedCount)

	data, err := f.blobs.Get(ctx, got.ResultKey)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	// photos.kml plus the three fetchable originals
	assert.Len(t, zr.File, 4)
}

func TestPipeline_TooManyMissingBlobs(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())
	// 2 of 4 missing, above the 0.25 threshold
	f.seedPhotosWithBlobs(t, 4, 2)

	job := f.createJob(t, export.FormatZIP, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusFailed, got.Status)
	assert.Equal(t, export.ErrKindTooManyMissingAssets, got.ErrorKind)
	assert.Equal(t, 2, got.SkippedCount)
}

func TestPipeline_UploadFailsAfterRetries(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())
	f.seedPhotosWithBlobs(t, 1, 1)
	f.blobs.putErr = errors.New("storage 503")

	job := f.createJob(t, export.FormatKML, false)
	require.NoError(t, f.pipeline.Run(ctx, job.JobID))

	got, err := f.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusFailed, got.Status)
	assert.Equal(t, export.ErrKindUploadFailed, got.ErrorKind)
	assert.Contains(t, got.ErrorMessage, "after 2 attempts")
	assert.Equal(t, 2, f.blobs.putCalls, "upload attempted exactly the configured number of times")
}

// failingPhotoStore errors on every query
type failingPhotoStore struct{}

func (s *failingPhotoStore) Insert(ctx context.Context, record *photo.Record) error {
	return errors.New("unavailable")
}
func (s *failingPhotoStore) Get(ctx context.Context, id string) (*photo.Record, error) {
	return nil, errors.New("unavailable")
}
func (s *failingPhotoStore) GetByHash(ctx context.Context, md5Hash string) (*photo.Record, error) {
	return nil, errors.New("unavailable")
}
func (s *failingPhotoStore) Query(ctx context.Context, filter photo.Filter) ([]photo.Record, error) {
	return nil, errors.New("unavailable")
}
func (s *failingPhotoStore) Count(ctx context.Context, filter photo.Filter) (int, error) {
	return 0, errors.New("unavailable")
}

func TestPipeline_SourceUnavailable(t *testing.T) {
	ctx := context.Background()

	jobs := jobstore.NewMemory()
	blobs := newFakeBlobs()
	pipeline := export.NewPipeline(jobs, &failingPhotoStore{}, blobs, fastPipelineConfig(), testLogger())

	job := export.NewJob(export.FormatKML, photo.Filter{}, false)
	require.NoError(t, jobs.Create(ctx, job))

	require.NoError(t, pipeline.Run(ctx, job.JobID))

	got, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusFailed, got.Status)
	assert.Equal(t, export.ErrKindSourceUnavailable, got.ErrorKind)
}

func TestPipeline_AlreadyClaimedNotRequeued(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fastPipelineConfig())
	f.seedPhotosWithBlobs(t, 1, 1)

	job := f.createJob(t, export.FormatKML, false)
	_, err := f.jobs.Claim(ctx, job.JobID)
	require.NoError(t, err)

	err = f.pipeline.Run(ctx, job.JobID)
	require.Error(t, err)
	assert.ErrorIs(t, err, export.ErrJobAlreadyClaimed)

	var retryable *export.RetryableError
	assert.False(t, errors.As(err, &retryable), "duplicate delivery must not requeue")
}

// cancelFlaggedStore reports the cooperative cancellation flag as always set
type cancelFlaggedStore struct {
	*jobstore.Memory
}

func (s *cancelFlaggedStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	return true, nil
}

func TestPipeline_CancelledAtCheckpoint(t *testing.T) {
	ctx := context.Background()

	jobs := jobstore.NewMemory()
	photos := photo.NewMemoryStore()
	blobs := newFakeBlobs()

	r := &photo.Record{
		ID:               "p1",
		Latitude:         10,
		Longitude:        20,
		CapturedAt:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		BlobKey:          "photos/p1/original.jpg",
		OriginalFilename: "one.jpg",
	}
	require.NoError(t, photos.Insert(ctx, r))

	pipeline := export.NewPipeline(&cancelFlaggedStore{jobs}, photos, blobs, fastPipelineConfig(), testLogger())

	job := export.NewJob(export.FormatKML, photo.Filter{}, false)
	require.NoError(t, jobs.Create(ctx, job))

	require.NoError(t, pipeline.Run(ctx, job.JobID))

	got, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, export.StatusCancelled, got.Status)

	// Nothing was uploaded
	assert.Equal(t, 0, blobs.putCalls)
	assert.Empty(t, got.ResultKey)
}
