package photo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestFilter_Validate(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"empty filter", Filter{}, false},
		{"valid range", Filter{From: timePtr(from), To: timePtr(to)}, false},
		{"inverted range", Filter{From: timePtr(to), To: timePtr(from)}, true},
		{"valid bbox", Filter{BBox: &BBox{MinLat: -10, MinLon: -10, MaxLat: 10, MaxLon: 10}}, false},
		{"bbox latitude out of range", Filter{BBox: &BBox{MinLat: -100, MaxLat: 10}}, true},
		{"bbox corners swapped", Filter{BBox: &BBox{MinLat: 10, MaxLat: -10}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFilter)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	record := &Record{
		ID:         "p1",
		Latitude:   48.8566,
		Longitude:  2.3522,
		CapturedAt: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
		Tags:       []string{"paris", "street"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches", Filter{}, true},
		{"from before capture", Filter{From: timePtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))}, true},
		{"from after capture", Filter{From: timePtr(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))}, false},
		{"to before capture", Filter{To: timePtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))}, false},
		{"single tag present", Filter{Tags: []string{"paris"}}, true},
		{"all tags must match", Filter{Tags: []string{"paris", "night"}}, false},
		{"bbox containing", Filter{BBox: &BBox{MinLat: 48, MinLon: 2, MaxLat: 49, MaxLon: 3}}, true},
		{"bbox excluding", Filter{BBox: &BBox{MinLat: 50, MinLon: 2, MaxLat: 51, MaxLon: 3}}, false},
		{"photo id match", Filter{PhotoIDs: []string{"p1", "p2"}}, true},
		{"photo id mismatch", Filter{PhotoIDs: []string{"p2"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(record))
		})
	}
}

func TestFilter_ValueScanRoundTrip(t *testing.T) {
	original := Filter{
		From: timePtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		Tags: []string{"beach"},
		BBox: &BBox{MinLat: -10, MinLon: -20, MaxLat: 10, MaxLon: 20},
	}

	value, err := original.Value()
	require.NoError(t, err)

	var restored Filter
	require.NoError(t, restored.Scan(value))

	assert.True(t, original.From.Equal(*restored.From))
	assert.Equal(t, original.Tags, restored.Tags)
	assert.Equal(t, original.BBox, restored.BBox)
	assert.Nil(t, restored.To)
}

func TestFilter_ScanNil(t *testing.T) {
	filter := Filter{Tags: []string{"stale"}}
	require.NoError(t, filter.Scan(nil))
	assert.Empty(t, filter.Tags)
}

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *BBox
		wantErr bool
	}{
		{
			name: "valid",
			in:   "-10,-20,10,20",
			want: &BBox{MinLat: -10, MinLon: -20, MaxLat: 10, MaxLon: 20},
		},
		{
			name: "with spaces",
			in:   " -10, -20, 10, 20 ",
			want: &BBox{MinLat: -10, MinLon: -20, MaxLat: 10, MaxLon: 20},
		},
		{name: "too few values", in: "1,2,3", wantErr: true},
		{name: "not a number", in: "a,b,c,d", wantErr: true},
		{name: "out of range", in: "-100,0,10,20", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBBox(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFilter)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
