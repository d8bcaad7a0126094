// Package yamlfile stores profiles in a single YAML document on disk.
//
// It backs the default local store and, pointed at a synced folder, the
// shared directory remote. Watch follows edits made by other processes.
package yamlfile

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// Option configures a Store.
type Option func(*Store)

// WithDebounce sets how long Watch waits for a burst of file events to
// settle before reloading.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a YAML file backed profile store.
type Store struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	feed     *store.Feed

	// mu serializes read-modify-write cycles and guards lastHash.
	mu       sync.Mutex
	lastHash [sha256.Size]byte

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// Open loads the file at path, creating its directory if needed. A missing
// file is an empty store.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		debounce: common.WatchDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = common.Component("yamlfile").With("path", path)
	}

	if err := common.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, common.WrapError(err, "create profiles directory")
	}
	profiles, data, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	s.lastHash = sha256.Sum256(data)
	s.feed = store.NewFeed(profiles)
	return s, nil
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// readLocked reads and decodes the file. Callers hold mu, or own s
// exclusively.
func (s *Store) readLocked() ([]vpn.Profile, []byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	profiles, err := vpn.DecodeYAML(data)
	if err != nil {
		return nil, nil, err
	}
	return store.Sorted(store.Index(profiles)), data, nil
}

// writeLocked atomically replaces the file and publishes the new content.
func (s *Store) writeLocked(profiles map[string]vpn.Profile) error {
	sorted := store.Sorted(profiles)
	data, err := vpn.EncodeYAML(sorted)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profiles-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace profiles file: %w", err)
	}

	s.lastHash = sha256.Sum256(data)
	s.feed.Publish(sorted)
	return nil
}

func (s *Store) mutate(ctx context.Context, fn func(m map[string]vpn.Profile)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, _, err := s.readLocked()
	if err != nil {
		return err
	}
	m := store.Index(profiles)
	fn(m)
	return s.writeLocked(m)
}

// FetchProfiles reads the file.
func (s *Store) FetchProfiles(ctx context.Context) ([]vpn.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, _, err := s.readLocked()
	return profiles, err
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile vpn.Profile) error {
	return s.mutate(ctx, func(m map[string]vpn.Profile) {
		m[profile.ID] = profile
	})
}

// RemoveProfiles deletes the given ids.
func (s *Store) RemoveProfiles(ctx context.Context, ids []string) error {
	return s.mutate(ctx, func(m map[string]vpn.Profile) {
		for _, id := range ids {
			delete(m, id)
		}
	})
}

// RemoveAllProfiles empties the file.
func (s *Store) RemoveAllProfiles(ctx context.Context) error {
	return s.mutate(ctx, func(m map[string]vpn.Profile) {
		clear(m)
	})
}

// ProfilesPublisher returns the live stream of file contents.
func (s *Store) ProfilesPublisher() *store.Feed {
	return s.feed
}

// Close stops the watcher and ends every subscription.
func (s *Store) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		w := s.watcher
		s.mu.Unlock()
		if w != nil {
			err = w.Close()
		}
		s.wg.Wait()
		s.feed.Close()
	})
	return err
}
