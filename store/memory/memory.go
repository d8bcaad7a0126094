// Package memory provides an in-process profile store.
// It backs tests and serves as an ephemeral shared store when no
// persistent remote is configured.
package memory

import (
	"context"
	"sync"

	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// Store keeps profiles in a map guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]vpn.Profile
	feed     *store.Feed
}

// New creates a store holding the given profiles.
func New(initial ...vpn.Profile) *Store {
	s := &Store{profiles: store.Index(initial)}
	s.feed = store.NewFeed(s.snapshotLocked())
	return s
}

// FetchProfiles returns the profiles sorted by id.
func (s *Store) FetchProfiles(ctx context.Context) ([]vpn.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile vpn.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
	s.feed.Publish(s.snapshotLocked())
	return nil
}

// RemoveProfiles deletes the given ids.
func (s *Store) RemoveProfiles(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.profiles, id)
	}
	s.feed.Publish(s.snapshotLocked())
	return nil
}

// RemoveAllProfiles empties the store.
func (s *Store) RemoveAllProfiles(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.profiles)
	s.feed.Publish(nil)
	return nil
}

// Replace swaps the whole content in one publication, the way a sync
// service delivers a new snapshot.
func (s *Store) Replace(profiles ...vpn.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = store.Index(profiles)
	s.feed.Publish(s.snapshotLocked())
}

// ProfilesPublisher returns the live stream of store contents.
func (s *Store) ProfilesPublisher() *store.Feed {
	return s.feed
}

// Close ends every subscription.
func (s *Store) Close() error {
	s.feed.Close()
	return nil
}

func (s *Store) snapshotLocked() []vpn.Profile {
	return store.Sorted(s.profiles)
}
