// Package badgerstore keeps profiles in an embedded Badger database, one
// JSON value per profile under the "profile/" key prefix.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

var keyPrefix = []byte("profile/")

func profileKey(id string) []byte {
	return append(append([]byte(nil), keyPrefix...), id...)
}

// Config configures the database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives Badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns a durable configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a Badger backed profile store.
type Store struct {
	db   *badger.DB
	feed *store.Feed

	// mu orders commits with their publications.
	mu sync.Mutex
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0700); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger database: %v", common.ErrStoreUnavailable, err)
	}

	s := &Store{db: db}
	profiles, err := s.load()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.feed = store.NewFeed(profiles)
	return s, nil
}

func (s *Store) load() ([]vpn.Profile, error) {
	var profiles []vpn.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				p, err := vpn.DecodeJSON(val)
				if err != nil {
					return err
				}
				profiles = append(profiles, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return store.Sorted(store.Index(profiles)), nil
}

// update commits fn and publishes the resulting contents.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Update(fn); err != nil {
		return err
	}
	profiles, err := s.load()
	if err != nil {
		return err
	}
	s.feed.Publish(profiles)
	return nil
}

// FetchProfiles returns every profile sorted by id.
func (s *Store) FetchProfiles(ctx context.Context) ([]vpn.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	return s.load()
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile vpn.Profile) error {
	data, err := vpn.EncodeJSON(profile)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(profileKey(profile.ID), data)
	})
}

// RemoveProfiles deletes the given ids.
func (s *Store) RemoveProfiles(ctx context.Context, ids []string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(profileKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveAllProfiles deletes every profile.
func (s *Store) RemoveAllProfiles(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DropPrefix(keyPrefix); err != nil {
		return fmt.Errorf("drop profiles: %w", err)
	}
	s.feed.Publish(nil)
	return nil
}

// ProfilesPublisher returns the live stream of store contents.
func (s *Store) ProfilesPublisher() *store.Feed {
	return s.feed
}

// Close ends every subscription and closes the database.
func (s *Store) Close() error {
	s.feed.Close()
	return s.db.Close()
}
