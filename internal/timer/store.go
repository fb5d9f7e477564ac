package timer

import (
	"context"
	"sort"
	"sync"
)

// Store holds active timer records keyed by task id. Set replaces the
// whole record; concurrent writers are last-writer-wins, so callers that
// need read-modify-write go through the Engine's per-task lock.
type Store interface {
	Get(ctx context.Context, taskID int64) (Record, bool, error)
	Set(ctx context.Context, r Record) error
	Delete(ctx context.Context, taskID int64) error
	ListActive(ctx context.Context) ([]int64, error)
	Close() error
}

// MemoryStore keeps records in process memory. Timers do not survive a
// restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[int64]Record{}}
}

func (s *MemoryStore) Get(_ context.Context, taskID int64) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[taskID]
	if !ok {
		return Record{}, false, nil
	}
	return r.clone(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, r Record) error {
	s.mu.Lock()
	s.records[r.TaskID] = r.clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, taskID int64) error {
	s.mu.Lock()
	delete(s.records, taskID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
