package yamlfile

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch follows changes made to the file by other processes until ctx is
// done or the store is closed. Bursts of events are debounced, and content
// identical to the last one seen (including this store's own writes) is not
// published again.
func (s *Store) Watch(ctx context.Context) error {
	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		return errors.New("store is already watched")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Writes replace the file by rename, so the directory is watched.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		s.mu.Unlock()
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = w
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchLoop(ctx, w)
	}()
	return nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	name := filepath.Base(s.path)

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(s.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			s.reload()
		}
	}
}

// reload publishes the file content if it differs from the last one seen.
func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, data, err := s.readLocked()
	if err != nil {
		s.logger.Warn("failed to reload profiles", "error", err)
		return
	}
	hash := sha256.Sum256(data)
	if hash == s.lastHash {
		return
	}
	s.lastHash = hash
	s.logger.Info("profiles changed on disk", "count", len(profiles))
	s.feed.Publish(profiles)
}
