// Package store defines the persistence contract consumed by the registry
// and the replay-latest broadcast used by every implementation to publish
// its contents.
//
// Implementations live in subpackages:
//
//   - memory: in-process store for tests and ephemeral remotes
//   - yamlfile: profiles.yaml on disk, watched for external edits
//   - badgerstore: embedded key/value backend
//   - sqlitestore: SQLite file, used as the backup mirror
//   - postgres: shared remote store with LISTEN/NOTIFY updates
package store

import (
	"context"
	"sort"

	"github.com/yllada/vpn-registry/vpn"
)

// ProfileStore is a persistence backend for profiles.
//
// Every successful mutation publishes the full, updated contents on the
// store's Feed. The Feed replays its latest value to new subscribers flagged
// Replay, so a consumer that subscribes before calling FetchProfiles can skip
// it without missing later writes.
type ProfileStore interface {
	// FetchProfiles returns the current contents of the store.
	FetchProfiles(ctx context.Context) ([]vpn.Profile, error)
	// SaveProfile inserts or replaces a profile.
	SaveProfile(ctx context.Context, profile vpn.Profile) error
	// RemoveProfiles deletes the given ids. Unknown ids are ignored.
	RemoveProfiles(ctx context.Context, ids []string) error
	// RemoveAllProfiles empties the store.
	RemoveAllProfiles(ctx context.Context) error
	// ProfilesPublisher returns the live stream of store contents.
	ProfilesPublisher() *Feed
}

// Closer is implemented by stores holding resources (files, pools,
// watchers) that must be released.
type Closer interface {
	Close() error
}

// Index returns the profiles keyed by id.
func Index(profiles []vpn.Profile) map[string]vpn.Profile {
	m := make(map[string]vpn.Profile, len(profiles))
	for _, p := range profiles {
		m[p.ID] = p
	}
	return m
}

// Sorted returns the values of m ordered by id.
func Sorted(m map[string]vpn.Profile) []vpn.Profile {
	out := make([]vpn.Profile, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
