// Package dedupe tracks which content identifiers have already triggered a remote action.
//
// Identifiers are partitioned by action kind (eg "repost", "like"): the same id marked under one kind is not processed under another. Membership is exact-match on the opaque id string.
//
// There are two families of implementation. [MemStore] is volatile and is expected to be wiped periodically with [Resetter.Reset]. The durable stores ([FileStore], [RedisStore], [SQLStore]) keep state across restarts and are never wiped; only [SQLStore] supports age-based pruning.
package dedupe

import (
	"context"
	"errors"
	"time"
)

// Returned (wrapped) when an id was recorded in memory but could not be written to durable storage. The in-memory record remains authoritative for the rest of the process lifetime.
var ErrPersist = errors.New("dedupe state not persisted")

type Store interface {
	HasProcessed(ctx context.Context, kind, id string) (bool, error)
	// Must only be called after the remote action for id succeeded.
	MarkProcessed(ctx context.Context, kind, id string) error
	Len(ctx context.Context, kind string) (int, error)
}

// Implemented by volatile stores which can be wiped wholesale.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Implemented by durable stores which can drop old entries.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
