package registry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yllada/vpn-registry/vpn"
)

// importTask is the handle of one import pass. At most one task is
// registered at a time; a new snapshot cancels the registered task and
// waits on done before touching the local store.
type importTask struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newImportTask(parent context.Context) *importTask {
	ctx, cancel := context.WithCancel(parent)
	return &importTask{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// importRemoteProfiles copies a remote snapshot into the local store.
//
// Profiles whose fingerprint matches the local copy are skipped. Excluded
// profiles, and with mirroring enabled local profiles missing from the
// snapshot, are deleted locally once the pass completes. Cancellation is
// checked between profiles; a cancelled pass skips the deletions. Writes
// already started run to completion.
func (r *Registry) importRemoteProfiles(task *importTask, prev *importTask, profiles []vpn.Profile) {
	defer func() {
		close(task.done)
		_ = r.exec(func(st *state) {
			if st.importTask == task {
				st.importTask = nil
			}
		})
	}()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	ctx, span := tracer.Start(task.ctx, "registry.import")
	defer span.End()
	span.SetAttributes(attribute.Int("profiles", len(profiles)))

	if ctx.Err() != nil {
		importPasses.WithLabelValues("cancelled").Inc()
		return
	}
	started := time.Now()

	var localFingerprints map[string]string
	var toRemove []string
	if err := r.exec(func(st *state) {
		localFingerprints = st.fingerprints()
		if r.mirrorsRemote {
			remote := make(map[string]struct{}, len(profiles))
			for _, p := range profiles {
				remote[p.ID] = struct{}{}
			}
			for id := range st.all {
				if _, ok := remote[id]; !ok {
					toRemove = append(toRemove, id)
				}
			}
		}
	}); err != nil {
		return
	}

	// Writes must not be torn by a newer snapshot, only by Close.
	writeCtx := r.ctx

	r.logger.Info("importing remote profiles", "count", len(profiles), "mirrors", r.mirrorsRemote)
	for _, remote := range profiles {
		if ctx.Err() != nil {
			r.logger.Info("import cancelled")
			importPasses.WithLabelValues("cancelled").Inc()
			return
		}
		if !r.policy.IsIncluded(remote) {
			r.logger.Debug("remote profile excluded", "id", remote.ID)
			importedProfiles.WithLabelValues("excluded").Inc()
			toRemove = append(toRemove, remote.ID)
			continue
		}
		if fp, ok := localFingerprints[remote.ID]; ok && fp != "" && fp == remote.Attributes.Fingerprint {
			importedProfiles.WithLabelValues("skipped").Inc()
			continue
		}
		if _, err := r.Save(writeCtx, remote, false, KeepSharing); err != nil {
			r.logger.Warn("failed to import remote profile", "id", remote.ID, "error", err)
			importedProfiles.WithLabelValues("failed").Inc()
			continue
		}
		importedProfiles.WithLabelValues("imported").Inc()
	}

	if ctx.Err() != nil {
		importPasses.WithLabelValues("cancelled").Inc()
		return
	}

	if len(toRemove) > 0 {
		r.logger.Info("removing local profiles after import", "ids", toRemove)
		err := r.local.RemoveProfiles(writeCtx, toRemove)
		storeWrites.WithLabelValues("local", "remove", writeStatus(err)).Inc()
		if err != nil {
			r.logger.Warn("failed to remove local profiles after import", "error", err)
		} else {
			_ = r.exec(func(st *state) { st.drop(toRemove) })
		}
	}

	select {
	case <-time.After(r.quiescence):
	case <-ctx.Done():
	}

	importPasses.WithLabelValues("completed").Inc()
	importDuration.Observe(time.Since(started).Seconds())
}
