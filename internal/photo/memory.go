package photo

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory photo record store used in tests
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory photo store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = *record
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, md5Hash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if record.MD5Hash == md5Hash {
			r := record
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for _, record := range s.records {
		r := record
		if filter.Matches(&r) {
			records = append(records, r)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CapturedAt.Equal(records[j].CapturedAt) {
			return records[i].CapturedAt.Before(records[j].CapturedAt)
		}
		return records[i].ID < records[j].ID
	})

	return records, nil
}

func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int, error) {
	records, err := s.Query(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
