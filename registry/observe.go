package registry

import (
	"context"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/events"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// ObserveLocal loads the local store and follows its later changes. Calling
// it again replaces the previous observation. It returns once the initial
// contents are applied.
func (r *Registry) ObserveLocal(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(r.ctx)
	updates := r.local.ProfilesPublisher().Subscribe(subCtx)

	profiles, err := r.local.FetchProfiles(ctx)
	if err != nil {
		cancel()
		return common.WrapError(err, "fetch local profiles")
	}

	if err := r.exec(func(st *state) {
		st.stopLocal()
		st.localCancel = cancel
	}); err != nil {
		cancel()
		return err
	}

	if err := r.reloadLocal(profiles); err != nil {
		return err
	}

	r.spawn(func() {
		for u := range updates {
			if u.Replay {
				continue
			}
			if err := r.reloadLocal(u.Profiles); err != nil {
				return
			}
		}
	})
	return nil
}

// ObserveRemote starts importing from remote: the current snapshot is
// imported right away and every later one replaces any import in flight.
// Calling it again switches to the new store.
func (r *Registry) ObserveRemote(ctx context.Context, remote store.ProfileStore) error {
	subCtx, cancel := context.WithCancel(r.ctx)
	updates := remote.ProfilesPublisher().Subscribe(subCtx)

	profiles, err := remote.FetchProfiles(ctx)
	if err != nil {
		cancel()
		return common.WrapError(err, "fetch remote profiles")
	}

	if err := r.exec(func(st *state) {
		if st.remoteCancel != nil {
			st.remoteCancel()
		}
		st.remoteCancel = cancel
		wasEnabled := st.remote != nil
		st.remote = remote
		if !wasEnabled {
			st.emit(events.RemoteImportingToggled(true))
		}
	}); err != nil {
		cancel()
		return err
	}

	if err := r.reloadRemote(profiles); err != nil {
		return err
	}

	r.spawn(func() {
		for u := range updates {
			if u.Replay {
				continue
			}
			if err := r.reloadRemote(u.Profiles); err != nil {
				return
			}
		}
	})
	return nil
}

// StopRemote ends remote observation and cancels any running import.
func (r *Registry) StopRemote() {
	_ = r.exec(func(st *state) {
		st.stopRemote()
		if st.importTask != nil {
			st.importTask.cancel()
		}
	})
}

// reloadLocal applies a local snapshot. Excluded profiles are left out of
// the map and deleted from the local store in the background.
func (r *Registry) reloadLocal(profiles []vpn.Profile) error {
	included := make(map[string]vpn.Profile, len(profiles))
	var excluded []string
	for _, p := range profiles {
		if !r.policy.IsIncluded(p) {
			excluded = append(excluded, p.ID)
			continue
		}
		included[p.ID] = p
	}

	if err := r.exec(func(st *state) {
		st.setAll(included)
		st.complete(SourceLocal)
		st.emit(events.LocalProfilesChanged())
	}); err != nil {
		return err
	}

	r.logger.Debug("local profiles loaded", "included", len(included), "excluded", len(excluded))

	if len(excluded) > 0 {
		r.spawn(func() {
			err := r.local.RemoveProfiles(r.ctx, excluded)
			storeWrites.WithLabelValues("local", "remove", writeStatus(err)).Inc()
			if err != nil {
				r.logger.Warn("failed to remove excluded local profiles", "ids", excluded, "error", err)
			}
		})
	}
	return nil
}

// reloadRemote applies a remote snapshot and starts an import pass for it.
// The new task is registered before this call returns, so snapshots are
// imported in arrival order even though passes run in the background.
func (r *Registry) reloadRemote(profiles []vpn.Profile) error {
	ids := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		ids[p.ID] = struct{}{}
	}

	task := newImportTask(r.ctx)
	var prev *importTask
	detached := false
	if err := r.exec(func(st *state) {
		if st.remote == nil {
			detached = true
			return
		}
		st.setRemoteIDs(ids)
		st.complete(SourceRemote)
		prev = st.importTask
		st.importTask = task
	}); err != nil {
		task.cancel()
		close(task.done)
		return err
	}
	if detached {
		task.cancel()
		close(task.done)
		return nil
	}
	if prev != nil {
		prev.cancel()
	}

	r.spawn(func() {
		_ = r.exec(func(st *state) { st.emit(events.StartRemoteImport()) })
		r.importRemoteProfiles(task, prev, profiles)
		_ = r.exec(func(st *state) { st.emit(events.StopRemoteImport()) })
	})
	return nil
}
