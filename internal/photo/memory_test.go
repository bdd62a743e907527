package photo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()

	store := NewMemoryStore()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	records := []Record{
		{ID: "c", Latitude: 1, Longitude: 1, CapturedAt: base.Add(2 * time.Hour), Tags: []string{"hike"}, MD5Hash: "h3"},
		{ID: "a", Latitude: 1, Longitude: 1, CapturedAt: base, Tags: []string{"hike", "summit"}, MD5Hash: "h1"},
		{ID: "b", Latitude: 1, Longitude: 1, CapturedAt: base, MD5Hash: "h2"},
	}
	for i := range records {
		require.NoError(t, store.Insert(context.Background(), &records[i]))
	}
	return store
}

func TestMemoryStore_QueryOrdering(t *testing.T) {
	store := seedStore(t)

	records, err := store.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	// captured_at ascending, ties broken by id
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, "c", records[2].ID)
}

func TestMemoryStore_QueryFiltered(t *testing.T) {
	store := seedStore(t)

	records, err := store.Query(context.Background(), Filter{Tags: []string{"hike"}})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "c", records[1].ID)

	count, err := store.Count(context.Background(), Filter{Tags: []string{"hike", "summit"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_Get(t *testing.T) {
	store := seedStore(t)

	record, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", record.ID)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetByHash(t *testing.T) {
	store := seedStore(t)

	record, err := store.GetByHash(context.Background(), "h2")
	require.NoError(t, err)
	assert.Equal(t, "b", record.ID)

	_, err = store.GetByHash(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_InsertValidates(t *testing.T) {
	store := NewMemoryStore()

	err := store.Insert(context.Background(), &Record{
		ID:         "bad",
		Latitude:   123,
		Longitude:  0,
		CapturedAt: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}
