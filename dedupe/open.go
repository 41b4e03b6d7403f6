package dedupe

import (
	"fmt"
	"log/slog"
	"strings"
)

// Picks a store implementation from a URL-ish config string:
//
// - "memory" (or empty): volatile [MemStore]
// - "file://dir" or a bare filesystem path: [FileStore]
// - "redis://..." / "rediss://...": [RedisStore], fronted by memory
// - "sqlite://..." / "postgres://..." / "postgresql://...": [SQLStore], fronted by memory
//
// kinds are pre-loaded by stores which load state eagerly.
func Open(storeURL string, logger *slog.Logger, kinds ...string) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case storeURL == "" || storeURL == "memory" || storeURL == "mem://":
		return NewMemStore(DefaultMemCapacity), nil
	case strings.HasPrefix(storeURL, "file://"):
		return LoadFileStore(storeURL[len("file://"):], logger, kinds...), nil
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		rs, err := NewRedisStore(storeURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis dedupe store: %w", err)
		}
		return NewTieredStore(rs), nil
	case strings.HasPrefix(storeURL, "sqlite://"), strings.HasPrefix(storeURL, "postgres://"), strings.HasPrefix(storeURL, "postgresql://"):
		db, err := OpenDatabase(storeURL)
		if err != nil {
			return nil, fmt.Errorf("opening dedupe database: %w", err)
		}
		ss, err := NewSQLStore(db)
		if err != nil {
			return nil, err
		}
		return NewTieredStore(ss), nil
	case strings.Contains(storeURL, "://"):
		return nil, fmt.Errorf("unsupported dedupe store URL scheme: %s", storeURL)
	default:
		return LoadFileStore(storeURL, logger, kinds...), nil
	}
}

// True for stores which lose their state on restart.
func IsVolatile(s Store) bool {
	_, ok := s.(Resetter)
	return ok
}

// True for stores on which [Pruner.Prune] actually evicts, looking through a [TieredStore] to its base.
func CanPrune(s Store) bool {
	if ts, ok := s.(*TieredStore); ok {
		s = ts.Base()
	}
	_, ok := s.(Pruner)
	return ok
}
