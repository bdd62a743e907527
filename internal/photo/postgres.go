package photo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore is the durable photo record store backed by the photos table
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a Postgres-backed photo store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const photoColumns = `
	id, latitude, longitude, altitude, captured_at,
	blob_key, thumb_small_key, thumb_medium_key, thumb_large_key,
	original_filename, file_size, mime_type,
	camera_make, camera_model, tags, description, md5_hash, uploaded_at
`

func (s *PostgresStore) Insert(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid photo record: %w", err)
	}

	query := `
		INSERT INTO photos (` + photoColumns + `)
		VALUES (
			:id, :latitude, :longitude, :altitude, :captured_at,
			:blob_key, :thumb_small_key, :thumb_medium_key, :thumb_large_key,
			:original_filename, :file_size, :mime_type,
			:camera_make, :camera_model, :tags, :description, :md5_hash, :uploaded_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	var record Record
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`

	if err := s.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return &record, nil
}

func (s *PostgresStore) GetByHash(ctx context.Context, md5Hash string) (*Record, error) {
	var record Record
	query := `SELECT ` + photoColumns + ` FROM photos WHERE md5_hash = $1 LIMIT 1`

	if err := s.db.GetContext(ctx, &record, query, md5Hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get photo by hash: %w", err)
	}
	return &record, nil
}

func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	where, args := buildFilterClauses(filter)

	query := `SELECT ` + photoColumns + ` FROM photos` + where +
		` ORDER BY captured_at ASC, id ASC`

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildFilterClauses(filter)

	var count int
	query := `SELECT COUNT(*) FROM photos` + where
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return count, nil
}

// buildFilterClauses compiles a Filter into a WHERE clause and ordered args
func buildFilterClauses(filter Filter) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.From != nil {
		query += fmt.Sprintf(" AND captured_at >= $%d", argIdx)
		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND captured_at <= $%d", argIdx)
		args = append(args, *filter.To)
		argIdx++
	}

	if len(filter.Tags) > 0 {
		query += fmt.Sprintf(" AND tags @> $%d", argIdx)
		args = append(args, pq.Array(filter.Tags))
		argIdx++
	}

	if filter.BBox != nil {
		query += fmt.Sprintf(
			" AND latitude BETWEEN $%d AND $%d AND longitude BETWEEN $%d AND $%d",
			argIdx, argIdx+1, argIdx+2, argIdx+3,
		)
		args = append(args, filter.BBox.MinLat, filter.BBox.MaxLat, filter.BBox.MinLon, filter.BBox.MaxLon)
		argIdx += 4
	}

	if len(filter.PhotoIDs) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", argIdx)
		args = append(args, pq.Array(filter.PhotoIDs))
		argIdx++
	}

	return query, args
}
