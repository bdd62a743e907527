package photo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() *Record {
	return &Record{
		ID:               "3e9a1f1c-0000-0000-0000-000000000001",
		Latitude:         37.7749,
		Longitude:        -122.4194,
		CapturedAt:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		BlobKey:          "photos/x/beach.jpg",
		OriginalFilename: "beach.jpg",
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *Record)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid record",
			mutate:  func(r *Record) {},
			wantErr: false,
		},
		{
			name:      "missing id",
			mutate:    func(r *Record) { r.ID = "" },
			wantErr:   true,
			errString: "photo id is required",
		},
		{
			name:      "latitude too high",
			mutate:    func(r *Record) { r.Latitude = 90.5 },
			wantErr:   true,
			errString: "latitude",
		},
		{
			name:      "latitude too low",
			mutate:    func(r *Record) { r.Latitude = -91 },
			wantErr:   true,
			errString: "latitude",
		},
		{
			name:      "longitude out of range",
			mutate:    func(r *Record) { r.Longitude = 181 },
			wantErr:   true,
			errString: "longitude",
		},
		{
			name:      "zero captured_at",
			mutate:    func(r *Record) { r.CapturedAt = time.Time{} },
			wantErr:   true,
			errString: "captured_at is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)

			err := r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRecord_CameraInfo(t *testing.T) {
	tests := []struct {
		name  string
		make  string
		model string
		want  string
	}{
		{"make and model", "Canon", "EOS R5", "Canon EOS R5"},
		{"model only", "", "iPhone 14", "iPhone 14"},
		{"empty", "", "", "Unknown"},
		{"null bytes stripped", "Canon\x00", "EOS\x00 R5", "Canon EOS R5"},
		{"whitespace only", "  ", " ", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{CameraMake: tt.make, CameraModel: tt.model}
			assert.Equal(t, tt.want, r.CameraInfo())
		})
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already safe", "beach_sunset-2.jpg", "beach_sunset-2.jpg"},
		{"spaces replaced", "my photo.jpg", "my_photo.jpg"},
		{"path separators replaced", "../../etc/passwd", ".._.._etc_passwd"},
		{"unicode replaced", "plageété.jpg", "plage_t_.jpg"},
		{"nothing survives", "éè", "photo.jpg"},
		{"only dots and underscores", "...", "photo.jpg"},
		{"empty", "", "photo.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeFilename(tt.in))
		})
	}
}
