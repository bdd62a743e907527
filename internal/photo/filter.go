package photo

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFilter indicates the filter criteria are malformed
var ErrInvalidFilter = errors.New("invalid filter")

// BBox is a rectangular latitude/longitude selection region
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Validate checks coordinate ranges and corner ordering
func (b *BBox) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("%w: bbox latitude out of range [-90, 90]", ErrInvalidFilter)
	}
	if b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("%w: bbox longitude out of range [-180, 180]", ErrInvalidFilter)
	}
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("%w: bbox min_lat %f greater than max_lat %f", ErrInvalidFilter, b.MinLat, b.MaxLat)
	}
	if b.MinLon > b.MaxLon {
		return fmt.Errorf("%w: bbox min_lon %f greater than max_lon %f", ErrInvalidFilter, b.MinLon, b.MaxLon)
	}
	return nil
}

// ParseBBox parses "min_lat,min_lon,max_lat,max_lon"
func ParseBBox(s string) (*BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: bbox needs 4 comma-separated values", ErrInvalidFilter)
	}

	coords := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bbox value %q is not a number", ErrInvalidFilter, part)
		}
		coords[i] = v
	}

	bbox := &BBox{MinLat: coords[0], MinLon: coords[1], MaxLat: coords[2], MaxLon: coords[3]}
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	return bbox, nil
}

// Contains reports whether a coordinate falls inside the box
func (b *BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Filter selects a subset of photo records. All set criteria are combined
// with AND; an empty filter selects every record. Query resolution is
// order-stable: captured_at ascending, ties broken by id, so repeated runs
// over unchanged data select the same sequence.
type Filter struct {
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Tags     []string   `json:"tags,omitempty"`
	BBox     *BBox      `json:"bbox,omitempty"`
	PhotoIDs []string   `json:"photo_ids,omitempty"`
}

// Validate checks the filter criteria
func (f *Filter) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("%w: date range from is after to", ErrInvalidFilter)
	}
	if f.BBox != nil {
		if err := f.BBox.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether a record satisfies every set criterion. Used by
// the in-memory store; the Postgres store compiles the same criteria to SQL.
func (f *Filter) Matches(r *Record) bool {
	if f.From != nil && r.CapturedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CapturedAt.After(*f.To) {
		return false
	}
	if f.BBox != nil && !f.BBox.Contains(r.Latitude, r.Longitude) {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, tag := range r.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.PhotoIDs) > 0 {
		found := false
		for _, id := range f.PhotoIDs {
			if id == r.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Value serializes the filter as JSON for persistence alongside an export
// job, snapshotting the criteria at creation time.
func (f Filter) Value() (driver.Value, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}
	return data, nil
}

// Scan restores a persisted filter snapshot
func (f *Filter) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	case nil:
		*f = Filter{}
		return nil
	default:
		return fmt.Errorf("cannot scan filter from %T", src)
	}
}
