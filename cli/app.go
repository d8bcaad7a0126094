package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/config"
	"github.com/yllada/vpn-registry/events"
	"github.com/yllada/vpn-registry/keyring"
	"github.com/yllada/vpn-registry/policy"
	"github.com/yllada/vpn-registry/registry"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/store/badgerstore"
	"github.com/yllada/vpn-registry/store/postgres"
	"github.com/yllada/vpn-registry/store/sqlitestore"
	"github.com/yllada/vpn-registry/store/yamlfile"
)

// App wires configuration, stores and the registry for one command.
type App struct {
	Config   *config.Config
	Registry *registry.Registry
	Creds    *keyring.Store

	local   store.ProfileStore
	remote  store.ProfileStore
	stores  []store.Closer
	offline bool
	logger  *slog.Logger
}

// NewApp opens the local stores and creates the registry. Nothing is
// loaded until Start. An offline app never contacts the remote store.
func NewApp(ctx context.Context, cfg *config.Config, creds *keyring.Store, offline bool) (*App, error) {
	a := &App{
		Config:  cfg,
		Creds:   creds,
		offline: offline,
		logger:  common.Component("app"),
	}

	pol, err := policy.New(cfg.Policy.Platform, cfg.Policy.Include)
	if err != nil {
		return nil, err
	}

	if a.local, err = a.openLocal(); err != nil {
		a.closeStores()
		return nil, err
	}

	opts := []registry.Option{
		registry.WithPolicy(pol),
		registry.WithMirrorsRemoteRepository(cfg.Sync.MirrorsRemote),
		registry.WithQuiescence(cfg.Sync.QuiescenceDelay),
	}
	if cfg.Storage.BackupPath != "" {
		backup, err := sqlitestore.Open(ctx, cfg.Storage.BackupPath)
		if err != nil {
			a.closeStores()
			return nil, common.WrapError(err, "open backup store")
		}
		a.stores = append(a.stores, backup)
		opts = append(opts, registry.WithBackup(backup))
	}
	if a.usesRemote() && cfg.Sync.WaitForRemote {
		opts = append(opts, registry.ExpectRemote())
	}

	a.Registry = registry.New(a.local, opts...)
	return a, nil
}

func (a *App) usesRemote() bool {
	return !a.offline && a.Config.HasRemote()
}

func (a *App) openLocal() (store.ProfileStore, error) {
	switch a.Config.Storage.Backend {
	case common.BackendBadger:
		s, err := badgerstore.Open(badgerstore.DefaultConfig(a.Config.Storage.BadgerDir))
		if err != nil {
			return nil, err
		}
		a.stores = append(a.stores, s)
		return s, nil
	default:
		s, err := yamlfile.Open(a.Config.Storage.ProfilesPath)
		if err != nil {
			return nil, err
		}
		a.stores = append(a.stores, s)
		return s, nil
	}
}

func (a *App) openRemote(ctx context.Context) (store.ProfileStore, error) {
	switch a.Config.Remote.Kind {
	case common.RemoteDirectory:
		s, err := yamlfile.Open(filepath.Join(a.Config.Remote.Directory, common.ProfilesFileName))
		if err != nil {
			return nil, err
		}
		a.stores = append(a.stores, s)
		return s, nil

	case common.RemotePostgres:
		pg := a.Config.Remote.Postgres
		if err := pg.Finalize(postgres.DefaultEnv(common.EnvPrefix)); err != nil {
			return nil, fmt.Errorf("%w: remote.postgres: %v", common.ErrConfigInvalid, err)
		}
		if pg.Password == "" && a.Creds != nil {
			password, err := a.Creds.Get(keyring.PostgresPasswordKey)
			switch {
			case err == nil:
				pg.Password = password
			case !errors.Is(err, common.ErrCredentialsNotFound):
				return nil, err
			}
		}
		connectCtx, cancel := context.WithTimeout(ctx, common.StoreTimeout)
		defer cancel()
		s, err := postgres.Open(connectCtx, pg)
		if err != nil {
			return nil, err
		}
		a.stores = append(a.stores, s)
		return s, nil
	}
	return nil, common.ErrNoRemoteStore
}

// StartOptions controls Start.
type StartOptions struct {
	// Watch keeps following external changes to the stores.
	Watch bool
	// SyncTimeout bounds the wait for the first import pass.
	SyncTimeout time.Duration
}

// Start loads the local store and, unless offline, observes the remote one
// and waits for its first import pass to finish. A remote store that cannot
// be opened or read is logged and the app keeps running on the local store
// alone; commands that need the remote then fail with ErrNoRemoteStore.
func (a *App) Start(ctx context.Context, opts StartOptions) error {
	if opts.Watch {
		if w, ok := a.local.(*yamlfile.Store); ok {
			if err := w.Watch(ctx); err != nil {
				return err
			}
		}
	}
	if err := a.Registry.ObserveLocal(ctx); err != nil {
		return err
	}
	if !a.usesRemote() {
		return nil
	}

	remote, err := a.openRemote(ctx)
	if errors.Is(err, common.ErrConfigInvalid) {
		return err
	}
	if err != nil {
		a.logger.Warn("remote store unavailable, continuing with local profiles only",
			"kind", a.Config.Remote.Kind, "error", err)
		return nil
	}

	if opts.Watch {
		switch r := remote.(type) {
		case *yamlfile.Store:
			if err := r.Watch(ctx); err != nil {
				a.logger.Warn("failed to watch remote store", "error", err)
			}
		case *postgres.Store:
			r.Listen(ctx)
		}
	}

	sub := a.Registry.Subscribe(events.TypeStopRemoteImport)
	defer sub.Close()
	if err := a.Registry.ObserveRemote(ctx, remote); err != nil {
		if errors.Is(err, common.ErrClosed) {
			return err
		}
		a.logger.Warn("remote store unreadable, continuing with local profiles only",
			"kind", a.Config.Remote.Kind, "error", err)
		return nil
	}
	a.remote = remote

	timeout := opts.SyncTimeout
	if timeout <= 0 {
		timeout = common.StoreTimeout
	}
	select {
	case <-sub.Events():
	case <-time.After(timeout):
		a.logger.Warn("initial remote import still running", "timeout", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Close shuts the registry down and closes every store.
func (a *App) Close() error {
	var errs []error
	if a.Registry != nil {
		errs = append(errs, a.Registry.Close())
	}
	errs = append(errs, a.closeStores())
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	for i := len(a.stores) - 1; i >= 0; i-- {
		if err := a.stores[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.stores = nil
	return errors.Join(errs...)
}
