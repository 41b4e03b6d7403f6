package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default per-kind capacity for [MemStore]. Far above what a single reset window produces.
const DefaultMemCapacity = 100_000

// Volatile, process-local store. Each kind is a bounded LRU set; if a set overflows between resets the oldest ids are evicted, which only widens the re-engagement window.
type MemStore struct {
	capacity int

	lk   sync.Mutex
	sets map[string]*lru.Cache[string, struct{}]
}

var _ Store = (*MemStore)(nil)
var _ Resetter = (*MemStore)(nil)

func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{
		capacity: capacity,
		sets:     make(map[string]*lru.Cache[string, struct{}]),
	}
}

func (s *MemStore) set(kind string) (*lru.Cache[string, struct{}], error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	c, ok := s.sets[kind]
	if ok {
		return c, nil
	}
	c, err := lru.New[string, struct{}](s.capacity)
	if err != nil {
		return nil, err
	}
	s.sets[kind] = c
	return c, nil
}

func (s *MemStore) HasProcessed(ctx context.Context, kind, id string) (bool, error) {
	c, err := s.set(kind)
	if err != nil {
		return false, err
	}
	return c.Contains(id), nil
}

func (s *MemStore) MarkProcessed(ctx context.Context, kind, id string) error {
	c, err := s.set(kind)
	if err != nil {
		return err
	}
	c.Add(id, struct{}{})
	return nil
}

func (s *MemStore) Len(ctx context.Context, kind string) (int, error) {
	c, err := s.set(kind)
	if err != nil {
		return 0, err
	}
	return c.Len(), nil
}

// Wipes every kind.
func (s *MemStore) Reset(ctx context.Context) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, c := range s.sets {
		c.Purge()
	}
	return nil
}
