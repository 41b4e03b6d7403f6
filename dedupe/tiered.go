package dedupe

import (
	"context"
	"fmt"
	"time"
)

// Puts a process-local [MemStore] in front of a remote durable store. Reads hit memory first; writes land in memory before the backing store, so a backing-store failure surfaces as [ErrPersist] while the id still counts as processed locally.
type TieredStore struct {
	fresh *MemStore
	base  Store
}

var _ Store = (*TieredStore)(nil)
var _ Pruner = (*TieredStore)(nil)

func NewTieredStore(base Store) *TieredStore {
	return &TieredStore{
		fresh: NewMemStore(DefaultMemCapacity),
		base:  base,
	}
}

func (s *TieredStore) HasProcessed(ctx context.Context, kind, id string) (bool, error) {
	ok, err := s.fresh.HasProcessed(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return s.base.HasProcessed(ctx, kind, id)
}

func (s *TieredStore) MarkProcessed(ctx context.Context, kind, id string) error {
	if err := s.fresh.MarkProcessed(ctx, kind, id); err != nil {
		return err
	}
	if err := s.base.MarkProcessed(ctx, kind, id); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// Reports the backing store's count.
func (s *TieredStore) Len(ctx context.Context, kind string) (int, error) {
	return s.base.Len(ctx, kind)
}

// Prunes the backing store, if it supports it. Ids already cached in memory stay processed until restart.
func (s *TieredStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	p, ok := s.base.(Pruner)
	if !ok {
		return 0, fmt.Errorf("backing dedupe store (%T) does not support pruning", s.base)
	}
	return p.Prune(ctx, olderThan)
}

// Returns the backing durable store.
func (s *TieredStore) Base() Store {
	return s.base
}
