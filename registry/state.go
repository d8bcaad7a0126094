package registry

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/yllada/vpn-registry/events"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// state is the registry data owned by the loop goroutine. Every method runs
// on the loop and publishes events synchronously, so subscribers observe
// changes in the order they were applied.
type state struct {
	all       map[string]vpn.Profile
	remoteIDs map[string]struct{}
	headers   map[string]vpn.ProfileHeader
	readiness Readiness

	remote       store.ProfileStore
	importTask   *importTask
	localCancel  context.CancelFunc
	remoteCancel context.CancelFunc

	policy InclusionPolicy
	bus    *events.Bus
}

func (st *state) emit(ev events.Event) {
	st.bus.Publish(ev)
}

// setAll replaces the profile map and refreshes headers.
func (st *state) setAll(all map[string]vpn.Profile) {
	st.all = all
	st.reloadHeaders()
}

// setRemoteIDs replaces the shared id set and refreshes headers.
func (st *state) setRemoteIDs(ids map[string]struct{}) {
	st.remoteIDs = ids
	st.reloadHeaders()
}

// put stores a single profile and returns the value it replaced.
func (st *state) put(p vpn.Profile) *vpn.Profile {
	var prev *vpn.Profile
	if old, ok := st.all[p.ID]; ok {
		prev = &old
	}
	st.all[p.ID] = p
	st.reloadHeaders()
	return prev
}

// drop deletes ids from the profile map and reports whether any was present.
func (st *state) drop(ids []string) bool {
	changed := false
	for _, id := range ids {
		if _, ok := st.all[id]; ok {
			delete(st.all, id)
			changed = true
		}
	}
	if changed {
		st.reloadHeaders()
	}
	return changed
}

func (st *state) reloadHeaders() {
	headers := make(map[string]vpn.ProfileHeader, len(st.all))
	for id, p := range st.all {
		_, shared := st.remoteIDs[id]
		headers[id] = vpn.NewHeader(p, shared, st.policy.RequiredFeatures(p))
	}
	st.headers = headers
	st.emit(events.Refresh(maps.Clone(headers)))
}

func (st *state) complete(s Source) {
	next, becameReady := st.readiness.Complete(s)
	st.readiness = next
	if becameReady {
		st.emit(events.Ready())
	}
}

func (st *state) fingerprints() map[string]string {
	fps := make(map[string]string, len(st.all))
	for id, p := range st.all {
		fps[id] = p.Attributes.Fingerprint
	}
	return fps
}

func (st *state) firstUniqueName(base string) string {
	taken := make(map[string]struct{}, len(st.all))
	for _, p := range st.all {
		taken[p.Name] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.%d", base, i)
		if _, ok := taken[name]; !ok {
			return name
		}
	}
}

func (st *state) stopLocal() {
	if st.localCancel != nil {
		st.localCancel()
		st.localCancel = nil
	}
}

func (st *state) stopRemote() {
	if st.remoteCancel != nil {
		st.remoteCancel()
		st.remoteCancel = nil
	}
	if len(st.remoteIDs) > 0 {
		st.setRemoteIDs(make(map[string]struct{}))
	}
	if st.remote != nil {
		st.remote = nil
		st.emit(events.RemoteImportingToggled(false))
	}
}

func sortedHeaders(headers map[string]vpn.ProfileHeader) []vpn.ProfileHeader {
	out := make([]vpn.ProfileHeader, 0, len(headers))
	for _, h := range headers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
