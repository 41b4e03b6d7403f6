package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Durable store backed by one JSON file per kind in a directory. Each file holds a JSON array of ids, and is rewritten wholesale after every successful mutation.
//
// Missing or unreadable files load as empty sets. Write failures are reported as [ErrPersist] but do not undo the in-memory mutation.
type FileStore struct {
	Dir    string
	Logger *slog.Logger

	lk   sync.Mutex
	sets map[string]map[string]struct{}
}

var _ Store = (*FileStore)(nil)

// Loads state for the given kinds from dir. Never fails: bad or absent files are logged and treated as empty. Kinds not listed are loaded on first use.
func LoadFileStore(dir string, logger *slog.Logger, kinds ...string) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		Dir:    dir,
		Logger: logger.With("component", "dedupe", "store", "file"),
		sets:   make(map[string]map[string]struct{}),
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, k := range kinds {
		s.loadLocked(k)
	}
	return s
}

// "like" -> "likes.json"
func (s *FileStore) Path(kind string) string {
	return filepath.Join(s.Dir, kind+"s.json")
}

func (s *FileStore) loadLocked(kind string) map[string]struct{} {
	if set, ok := s.sets[kind]; ok {
		return set
	}
	set := make(map[string]struct{})
	s.sets[kind] = set

	p := s.Path(kind)
	ids, err := readIDFile(p)
	if os.IsNotExist(err) {
		s.Logger.Info("no existing dedupe file, starting empty", "kind", kind, "path", p)
		return set
	} else if err != nil {
		s.Logger.Warn("failed to read dedupe file, starting empty", "kind", kind, "path", p, "err", err)
		return set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.Logger.Info("loaded dedupe file", "kind", kind, "path", p, "count", len(set))
	return set
}

func readIDFile(p string) ([]string, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	return ids, nil
}

func (s *FileStore) HasProcessed(ctx context.Context, kind, id string) (bool, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	_, ok := s.loadLocked(kind)[id]
	return ok, nil
}

func (s *FileStore) MarkProcessed(ctx context.Context, kind, id string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.loadLocked(kind)[id] = struct{}{}
	return s.persistLocked(kind)
}

func (s *FileStore) Len(ctx context.Context, kind string) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.loadLocked(kind)), nil
}

// Rewrites the file for kind from current in-memory state.
func (s *FileStore) Persist(kind string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.persistLocked(kind)
}

func (s *FileStore) persistLocked(kind string) error {
	set := s.loadLocked(kind)
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	p := s.Path(kind)
	if err := writeIDFile(p, ids); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, p, err)
	}
	return nil
}

// Writes to a temp file in the same directory, then renames over the target, so readers never see a partial array.
func writeIDFile(p string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
