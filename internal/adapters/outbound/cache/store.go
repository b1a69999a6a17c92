// Package cache keeps fetched upstream diffs on disk. A diff between two
// tags does not change, so re-evaluations and retries reuse it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tollgate/tollgate/internal/domain"
)

// Store is a file-based domain.DiffSource that wraps another source.
type Store struct {
	dir    string
	next   domain.DiffSource
	logger *slog.Logger
}

// New caches diffs from next under dir.
func New(dir string, next domain.DiffSource, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, next: next, logger: logger}
}

// Diff returns the cached diff or fetches and stores it. Errors are never
// cached, and a failed cache write only costs a refetch later.
func (s *Store) Diff(ctx context.Context, upstream, from, to string) (domain.UpstreamDiff, error) {
	path := s.path(upstream, from, to)
	if diff, ok := s.load(path); ok {
		return diff, nil
	}

	diff, err := s.next.Diff(ctx, upstream, from, to)
	if err != nil {
		return diff, err
	}
	if err := s.save(path, diff); err != nil {
		s.logger.Warn("caching diff", slog.String("upstream", upstream), slog.String("error", err.Error()))
	}
	return diff, nil
}

// Invalidate removes the cached diff for one version pair.
func (s *Store) Invalidate(upstream, from, to string) error {
	if err := os.Remove(s.path(upstream, from, to)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) load(path string) (domain.UpstreamDiff, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UpstreamDiff{}, false
	}
	var diff domain.UpstreamDiff
	if err := json.Unmarshal(data, &diff); err != nil {
		s.logger.Warn("discarding corrupt cache entry", slog.String("path", path), slog.String("error", err.Error()))
		return domain.UpstreamDiff{}, false
	}
	return diff, true
}

func (s *Store) save(path string, diff domain.UpstreamDiff) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(diff)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) path(upstream, from, to string) string {
	sum := sha256.Sum256([]byte(upstream + "\x00" + from + "\x00" + to))
	return filepath.Join(s.dir, "diffs", hex.EncodeToString(sum[:])+".json")
}
