// Package postgres implements the shared remote store on PostgreSQL.
//
// Profiles live in one table as JSONB documents. A statement trigger
// notifies a channel on every change; Listen follows it and republishes
// the table, so writes from other installations reach the registry.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// Channel is the notification channel the table trigger signals.
const Channel = "vpn_profiles_changed"

const schema = `
CREATE TABLE IF NOT EXISTS vpn_profiles (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL DEFAULT '',
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION vpn_profiles_notify() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + Channel + `', '');
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS vpn_profiles_changed ON vpn_profiles;
CREATE TRIGGER vpn_profiles_changed
	AFTER INSERT OR UPDATE OR DELETE OR TRUNCATE ON vpn_profiles
	FOR EACH STATEMENT EXECUTE FUNCTION vpn_profiles_notify();
`

// Store is a PostgreSQL backed profile store.
type Store struct {
	pool   *pgxpool.Pool
	feed   *store.Feed
	logger *slog.Logger

	// mu orders refetches with their publications.
	mu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open connects, creates the schema if needed and loads the table.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	s := &Store{
		pool:   pool,
		logger: common.Component("postgres").With("host", cfg.Host, "database", cfg.Name),
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	profiles, err := s.FetchProfiles(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.feed = store.NewFeed(profiles)
	return s, nil
}

// EnsureSchema creates the table and its notification trigger.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FetchProfiles returns every profile sorted by id.
func (s *Store) FetchProfiles(ctx context.Context) ([]vpn.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM vpn_profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	profiles := make([]vpn.Profile, 0, len(docs))
	for _, doc := range docs {
		p, err := vpn.DecodeJSON(doc)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile vpn.Profile) error {
	data, err := vpn.EncodeJSON(profile)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vpn_profiles (id, fingerprint, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			data = EXCLUDED.data,
			updated_at = now()`,
		profile.ID, profile.Attributes.Fingerprint, data)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", profile.ID, err)
	}
	return s.refresh(ctx)
}

// RemoveProfiles deletes the given ids.
func (s *Store) RemoveProfiles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM vpn_profiles WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("remove profiles: %w", err)
	}
	return s.refresh(ctx)
}

// RemoveAllProfiles empties the table.
func (s *Store) RemoveAllProfiles(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE vpn_profiles`); err != nil {
		return fmt.Errorf("remove profiles: %w", err)
	}
	return s.refresh(ctx)
}

// refresh reloads the table and publishes it unless it is unchanged, so a
// write followed by its own notification yields a single publication.
func (s *Store) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.FetchProfiles(ctx)
	if err != nil {
		return err
	}
	if slices.EqualFunc(profiles, s.feed.Latest(), vpn.Profile.Equal) {
		return nil
	}
	s.feed.Publish(profiles)
	return nil
}

// Listen follows table notifications until ctx is done or the store is
// closed. Lost connections are retried with a capped backoff.
func (s *Store) Listen(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := time.Second
		for ctx.Err() == nil {
			err := s.listenOnce(ctx)
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("notification listener stopped, retrying", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, time.Minute)
		}
	}()
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	s.logger.Info("listening for profile changes", "channel", Channel)

	// Changes made while no listener was attached.
	if err := s.refresh(ctx); err != nil {
		return err
	}
	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		if err := s.refresh(ctx); err != nil {
			return err
		}
	}
}

// ProfilesPublisher returns the live stream of table contents.
func (s *Store) ProfilesPublisher() *store.Feed {
	return s.feed
}

// Close stops listening, ends every subscription and closes the pool.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.feed.Close()
	s.pool.Close()
	return nil
}
