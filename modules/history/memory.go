package history

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It is the default backend
// and disappears with its session.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	records []Record
}

// NewMemoryStore - limit < 1 falls back to DefaultLimit
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: normalizeLimit(limit)}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	evicted := 0
	if over := len(s.records) - s.limit; over > 0 {
		evicted = over
		kept := make([]Record, s.limit)
		copy(kept, s.records[over:])
		s.records = kept
	}
	return evicted, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	return nil
}
