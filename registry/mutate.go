package registry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/events"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// Save writes profile to the local store and applies sharing to the remote
// one.
//
// A local save (isLocal) is a user edit: the policy may rewrite it and it
// gets a fresh fingerprint. A non-local save stores the value as given.
// Saving a value equal to the current one skips the local write and the
// Saved event. Local store errors are returned; remote errors are logged.
// The saved value is returned.
func (r *Registry) Save(ctx context.Context, profile vpn.Profile, isLocal bool, sharing Sharing) (vpn.Profile, error) {
	ctx, span := tracer.Start(ctx, "registry.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("profile.id", profile.ID),
		attribute.Bool("local", isLocal),
	)

	if err := r.saves.Acquire(ctx, 1); err != nil {
		return vpn.Profile{}, err
	}
	defer r.saves.Release(1)

	p, err := r.save(ctx, profile, isLocal, sharing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return p, err
}

func (r *Registry) save(ctx context.Context, profile vpn.Profile, isLocal bool, sharing Sharing) (vpn.Profile, error) {
	p := profile
	if isLocal {
		b, err := r.policy.WillRebuild(profile.Builder())
		if err != nil {
			return vpn.Profile{}, common.WrapError(err, "rebuild profile")
		}
		p, err = b.Stamp(r.now()).Build()
		if err != nil {
			return vpn.Profile{}, err
		}
	}
	if !r.policy.IsIncluded(p) {
		return vpn.Profile{}, common.ErrProfileExcluded
	}

	var existing vpn.Profile
	var found, shared bool
	var remote store.ProfileStore
	if err := r.exec(func(st *state) {
		existing, found = st.all[p.ID]
		_, shared = st.remoteIDs[p.ID]
		remote = st.remote
	}); err != nil {
		return vpn.Profile{}, err
	}

	if found && existing.Equal(p) {
		r.logger.Debug("profile not modified", "id", p.ID)
	} else {
		err := r.local.SaveProfile(ctx, p)
		storeWrites.WithLabelValues("local", "save", writeStatus(err)).Inc()
		if err != nil {
			return vpn.Profile{}, common.WrapError(err, "save local profile")
		}
		if r.backupQ != nil {
			r.backupQ.enqueue(p)
		}
		if err := r.exec(func(st *state) {
			prev := st.put(p)
			st.emit(events.Saved(p, prev))
		}); err != nil {
			return vpn.Profile{}, err
		}
		r.logger.Info("profile saved", "id", p.ID, "name", p.Name, "local", isLocal)
	}

	if remote == nil {
		return p, nil
	}
	switch {
	case sharing == Share, sharing == KeepSharing && isLocal && shared:
		err := remote.SaveProfile(ctx, p)
		storeWrites.WithLabelValues("remote", "save", writeStatus(err)).Inc()
		if err != nil {
			r.logger.Warn("failed to share profile", "id", p.ID, "error", err)
		}
	case sharing == Unshare:
		err := remote.RemoveProfiles(ctx, []string{p.ID})
		storeWrites.WithLabelValues("remote", "remove", writeStatus(err)).Inc()
		if err != nil {
			r.logger.Warn("failed to unshare profile", "id", p.ID, "error", err)
		}
	}
	return p, nil
}

// Remove deletes profiles locally and, best effort, remotely.
func (r *Registry) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.local.RemoveProfiles(ctx, ids)
	storeWrites.WithLabelValues("local", "remove", writeStatus(err)).Inc()
	if err != nil {
		return common.WrapError(err, "remove local profiles")
	}

	var remote store.ProfileStore
	if err := r.exec(func(st *state) {
		st.drop(ids)
		remote = st.remote
		st.emit(events.Removed(ids))
	}); err != nil {
		return err
	}
	r.logger.Info("profiles removed", "ids", ids)

	if remote != nil {
		err := remote.RemoveProfiles(ctx, ids)
		storeWrites.WithLabelValues("remote", "remove", writeStatus(err)).Inc()
		if err != nil {
			r.logger.Warn("failed to remove remote profiles", "ids", ids, "error", err)
		}
	}
	return nil
}

// Duplicate saves a copy of a profile under a new id and the first free
// variant of its name. Concurrent saves wait until the copy is applied, so
// two duplicates never get the same name.
func (r *Registry) Duplicate(ctx context.Context, id string) (vpn.Profile, error) {
	ctx, span := tracer.Start(ctx, "registry.duplicate")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", id))

	if err := r.saves.Acquire(ctx, 1); err != nil {
		return vpn.Profile{}, err
	}
	defer r.saves.Release(1)

	var src vpn.Profile
	var found bool
	var name string
	if err := r.exec(func(st *state) {
		src, found = st.all[id]
		if found {
			name = st.firstUniqueName(src.Name)
		}
	}); err != nil {
		return vpn.Profile{}, err
	}
	if !found {
		return vpn.Profile{}, common.ErrProfileNotFound
	}

	b := src.BuilderWithNewID()
	b.Name = name
	dup, err := b.Build()
	if err != nil {
		return vpn.Profile{}, err
	}
	return r.save(ctx, dup, true, KeepSharing)
}

// ResaveAll saves every profile again as a local edit, so each one goes
// through the policy and gets a new fingerprint. It keeps going after a
// failure and returns all errors joined.
func (r *Registry) ResaveAll(ctx context.Context) error {
	var errs []error
	for _, p := range r.Profiles() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := r.Save(ctx, p, true, KeepSharing); err != nil {
			r.logger.Warn("failed to resave profile", "id", p.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EraseAllRemote empties the remote store.
func (r *Registry) EraseAllRemote(ctx context.Context) error {
	var remote store.ProfileStore
	if err := r.exec(func(st *state) { remote = st.remote }); err != nil {
		return err
	}
	if remote == nil {
		return common.ErrNoRemoteStore
	}
	err := remote.RemoveAllProfiles(ctx)
	storeWrites.WithLabelValues("remote", "remove", writeStatus(err)).Inc()
	if err != nil {
		return common.WrapError(err, "erase remote profiles")
	}
	r.logger.Info("remote profiles erased")
	return nil
}
