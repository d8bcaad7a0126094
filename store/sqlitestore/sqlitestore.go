// Package sqlitestore keeps profiles in a SQLite file. The registry uses it
// as the backup mirror of local saves.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	data        BLOB NOT NULL,
	updated_at  INTEGER NOT NULL
);`

// Store is a SQLite backed profile store.
type Store struct {
	db   *sql.DB
	feed *store.Feed

	// mu orders commits with their publications.
	mu sync.Mutex
}

// Open opens or creates the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	// A single connection serializes writers inside the process.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", common.ErrStoreUnavailable, err)
	}

	s := &Store{db: db}
	profiles, err := s.FetchProfiles(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.feed = store.NewFeed(profiles)
	return s, nil
}

// FetchProfiles returns every profile sorted by id.
func (s *Store) FetchProfiles(ctx context.Context) ([]vpn.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []vpn.Profile
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p, err := vpn.DecodeJSON(data)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// update runs fn in a transaction and publishes the resulting contents.
func (s *Store) update(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	profiles, err := s.FetchProfiles(ctx)
	if err != nil {
		return err
	}
	s.feed.Publish(profiles)
	return nil
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile vpn.Profile) error {
	data, err := vpn.EncodeJSON(profile)
	if err != nil {
		return err
	}
	return s.update(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (id, name, fingerprint, data, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				fingerprint = excluded.fingerprint,
				data = excluded.data,
				updated_at = excluded.updated_at`,
			profile.ID, profile.Name, profile.Attributes.Fingerprint, data, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("save profile %s: %w", profile.ID, err)
		}
		return nil
	})
}

// RemoveProfiles deletes the given ids.
func (s *Store) RemoveProfiles(ctx context.Context, ids []string) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id); err != nil {
				return fmt.Errorf("remove profile %s: %w", id, err)
			}
		}
		return nil
	})
}

// RemoveAllProfiles deletes every profile.
func (s *Store) RemoveAllProfiles(ctx context.Context) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM profiles`); err != nil {
			return fmt.Errorf("remove profiles: %w", err)
		}
		return nil
	})
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
