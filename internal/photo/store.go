package photo

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a photo record does not exist
	ErrNotFound = errors.New("photo not found")

	// ErrDuplicate is returned when a photo with the same content hash
	// already exists
	ErrDuplicate = errors.New("photo already uploaded")
)

// Store is the photo record store the export core reads from and the ingest
// service writes to. Query and Count resolve the same filter; Query returns
// records ordered by captured_at ascending, ties broken by id.
type Store interface {
	Insert(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	GetByHash(ctx context.Context, md5Hash string) (*Record, error)
	Query(ctx context.Context, filter Filter) ([]Record, error)
	Count(ctx context.Context, filter Filter) (int, error)
}
