package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
)

// ProgressFunc is called after each key of a batch finishes loading.
type ProgressFunc func(loaded, total int)

type fetchFunc func(ctx context.Context, key string) ([]byte, error)

// store writes fetched bytes into a directory once per key. Concurrent loads
// of one key share a single fetch.
type store struct {
	logger  zerolog.Logger
	dir     string
	prefix  string
	ext     string
	fetch   fetchFunc
	limit   int
	errKind string

	group singleflight.Group

	mu      sync.Mutex
	handles map[string]domain.Handle
}

type loadResult struct {
	handle domain.Handle
	fresh  bool
}

func newStore(logger zerolog.Logger, dir, prefix, ext string, limit int, fetch fetchFunc) *store {
	if limit <= 0 {
		limit = 8
	}
	return &store{
		logger:  logger,
		dir:     dir,
		prefix:  prefix,
		ext:     ext,
		fetch:   fetch,
		limit:   limit,
		handles: make(map[string]domain.Handle),
	}
}

func (s *store) cached(key string) (domain.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[key]
	return h, ok
}

func (s *store) load(ctx context.Context, key string) (loadResult, error) {
	if h, ok := s.cached(key); ok {
		return loadResult{handle: h}, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if h, ok := s.cached(key); ok {
			return loadResult{handle: h}, nil
		}

		data, err := s.fetch(ctx, key)
		if err != nil {
			return nil, err
		}

		path := filepath.Join(s.dir, s.fileName(key))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}

		h := domain.Handle{ID: key, Path: path, Size: int64(len(data))}
		s.mu.Lock()
		s.handles[key] = h
		s.mu.Unlock()

		return loadResult{handle: h, fresh: true}, nil
	})
	if err != nil {
		return loadResult{}, err
	}
	return v.(loadResult), nil
}

func (s *store) fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return s.prefix + "-" + hex.EncodeToString(sum[:8]) + s.ext
}

// loadAll loads every distinct key. Either all keys load or the handles this
// call wrote are removed again and a *LoadError lists every failed key.
func (s *store) loadAll(ctx context.Context, keys []string, progress ProgressFunc) (map[string]domain.Handle, error) {
	keys = dedup(keys)
	total := len(keys)
	out := make(map[string]domain.Handle, total)

	if progress != nil {
		progress(0, total)
	}
	if total == 0 {
		return out, nil
	}

	var (
		mu      sync.Mutex
		loaded  int
		fresh   []string
		failure = &LoadError{Failed: make(map[string]error)}
	)

	g := new(errgroup.Group)
	g.SetLimit(s.limit)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			res, err := s.load(ctx, key)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failure.Failed[key] = err
				return nil
			}
			out[key] = res.handle
			if res.fresh {
				fresh = append(fresh, key)
			}
			loaded++
			if progress != nil {
				progress(loaded, total)
			}
			return nil
		})
	}
	g.Wait()

	if len(failure.Failed) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return out, nil
	}

	s.rollback(fresh)
	failure.kind = s.errKind
	return nil, failure
}

func (s *store) rollback(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		h, ok := s.handles[key]
		if !ok {
			continue
		}
		delete(s.handles, key)
		if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", h.Path).Msg("failed to roll back loaded file")
		}
	}
}

// forget drops cached handles without touching their files.
func (s *store) forget(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.handles, key)
	}
}

func dedup(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// LoadError lists every key that failed in one batch.
type LoadError struct {
	Failed map[string]error
	kind   string
}

func (e *LoadError) Keys() []string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *LoadError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, k := range e.Keys() {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failed[k]))
	}
	kind := e.kind
	if kind == "" {
		kind = "asset"
	}
	return fmt.Sprintf("failed to load %d %s(s): %s", len(e.Failed), kind, strings.Join(parts, "; "))
}

// Unwrap exposes one typed asset error per failed key.
func (e *LoadError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, k := range e.Keys() {
		out = append(out, errs.Asset("load", k, e.Failed[k]))
	}
	return out
}

// FailedKeys returns the keys of a *LoadError in err, if any.
func FailedKeys(err error) []string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Keys()
	}
	return nil
}
