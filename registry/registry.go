// Package registry reconciles VPN profiles between a local store and an
// optional shared remote store.
//
// A Registry keeps the authoritative in-memory view of the included
// profiles, derives list headers from it and announces every change on an
// event bus. All of that state is owned by a single goroutine: public
// methods submit closures to it and wait, while store I/O runs outside of it
// and re-enters with the results.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/events"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy sets the inclusion policy. The default includes everything.
func WithPolicy(p InclusionPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithBackup mirrors every accepted save to b. Backup failures are logged.
func WithBackup(b store.ProfileStore) Option {
	return func(r *Registry) { r.backup = b }
}

// WithBus publishes events on bus instead of a private one. The registry
// does not close a bus it did not create.
func WithBus(bus *events.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMirrorsRemoteRepository makes imports delete local profiles that are
// missing from the remote snapshot.
func WithMirrorsRemoteRepository(mirrors bool) Option {
	return func(r *Registry) { r.mirrorsRemote = mirrors }
}

// WithQuiescence sets the pause that ends every import pass.
func WithQuiescence(d time.Duration) Option {
	return func(r *Registry) { r.quiescence = d }
}

// WithClock overrides the time source used to stamp local edits.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// ExpectRemote delays readiness until the first remote snapshot has been
// loaded as well.
func ExpectRemote() Option {
	return func(r *Registry) { r.expectRemote = true }
}

// Sharing tells Save what to do with the remote copy of a profile.
type Sharing int

const (
	// KeepSharing re-publishes local edits of profiles that are already
	// shared and leaves everything else alone.
	KeepSharing Sharing = iota
	// Share writes the profile to the remote store.
	Share
	// Unshare removes the profile from the remote store.
	Unshare
)

// Registry is the reconciliation engine.
type Registry struct {
	local         store.ProfileStore
	backup        store.ProfileStore
	policy        InclusionPolicy
	bus           *events.Bus
	ownsBus       bool
	logger        *slog.Logger
	mirrorsRemote bool
	expectRemote  bool
	quiescence    time.Duration
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
	quit   chan struct{}
	exited chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	backupQ   *backupQueue

	// saves admits one save at a time, from reading the current state to
	// applying the result.
	saves *semaphore.Weighted

	// st is only touched from the loop goroutine.
	st *state
}

// New creates a registry over the local store and starts its loop. Call
// ObserveLocal to load it and Close to release it.
func New(local store.ProfileStore, opts ...Option) *Registry {
	r := &Registry{
		local:      local,
		policy:     AllowAll{},
		quiescence: common.ImportQuiescence,
		now:        time.Now,
		ops:        make(chan func()),
		quit:       make(chan struct{}),
		exited:     make(chan struct{}),
		saves:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bus == nil {
		r.bus = events.NewBus()
		r.ownsBus = true
	}
	if r.logger == nil {
		r.logger = common.Component("registry")
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	waiting := []Source{SourceLocal}
	if r.expectRemote {
		waiting = append(waiting, SourceRemote)
	}
	r.st = &state{
		all:       make(map[string]vpn.Profile),
		remoteIDs: make(map[string]struct{}),
		headers:   make(map[string]vpn.ProfileHeader),
		readiness: NewReadiness(waiting...),
		policy:    r.policy,
		bus:       r.bus,
	}
	if r.backup != nil {
		r.backupQ = newBackupQueue(r.backup, r.logger)
		r.spawn(func() { r.backupQ.run(r.ctx) })
	}

	go r.loop()
	return r
}

func (r *Registry) loop() {
	defer close(r.exited)
	for {
		select {
		case op := <-r.ops:
			op()
		case <-r.quit:
			return
		}
	}
}

// exec runs fn on the loop goroutine and waits for it to finish. fn must not
// call exec.
func (r *Registry) exec(fn func(st *state)) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn(r.st)
	}
	select {
	case r.ops <- op:
	case <-r.quit:
		return common.ErrClosed
	}
	<-done
	return nil
}

// spawn runs fn in a goroutine that Close waits for.
func (r *Registry) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Subscribe returns a subscription to registry events of the given types,
// or to all events when none are given.
func (r *Registry) Subscribe(types ...events.Type) *events.Subscription {
	return r.bus.Subscribe(types...)
}

// Bus returns the event bus the registry publishes on.
func (r *Registry) Bus() *events.Bus {
	return r.bus
}

// Close stops observation and any running import, waits for background
// work and shuts the loop down. It is safe to call more than once.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		_ = r.exec(func(st *state) {
			st.stopLocal()
			st.stopRemote()
			if st.importTask != nil {
				st.importTask.cancel()
			}
		})
		r.cancel()
		r.wg.Wait()
		close(r.quit)
		<-r.exited
		if r.ownsBus {
			r.bus.Close()
		}
	})
	return nil
}

// Profile returns the profile with the given id.
func (r *Registry) Profile(id string) (vpn.Profile, bool) {
	var p vpn.Profile
	var ok bool
	_ = r.exec(func(st *state) { p, ok = st.all[id] })
	return p, ok
}

// Profiles returns every profile ordered by name, then id.
func (r *Registry) Profiles() []vpn.Profile {
	var out []vpn.Profile
	_ = r.exec(func(st *state) {
		out = make([]vpn.Profile, 0, len(st.all))
		for _, p := range st.all {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Header returns the header of the profile with the given id.
func (r *Registry) Header(id string) (vpn.ProfileHeader, bool) {
	var h vpn.ProfileHeader
	var ok bool
	_ = r.exec(func(st *state) { h, ok = st.headers[id] })
	return h, ok
}

// Headers returns every header ordered by name, then id.
func (r *Registry) Headers() []vpn.ProfileHeader {
	var out []vpn.ProfileHeader
	_ = r.exec(func(st *state) { out = sortedHeaders(st.headers) })
	return out
}

// Search returns the headers whose name contains term, ignoring case. An
// empty term matches everything.
func (r *Registry) Search(term string) []vpn.ProfileHeader {
	headers := r.Headers()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return headers
	}
	out := headers[:0]
	for _, h := range headers {
		if strings.Contains(strings.ToLower(h.Name), term) {
			out = append(out, h)
		}
	}
	return out
}

// HasProfiles reports whether at least one profile is loaded.
func (r *Registry) HasProfiles() bool {
	var ok bool
	_ = r.exec(func(st *state) { ok = len(st.all) > 0 })
	return ok
}

// IsReady reports whether every expected source has loaded once.
func (r *Registry) IsReady() bool {
	var ok bool
	_ = r.exec(func(st *state) { ok = st.readiness.IsReady() })
	return ok
}

// IsRemotelyShared reports whether the latest remote snapshot contains id.
func (r *Registry) IsRemotelyShared(id string) bool {
	var ok bool
	_ = r.exec(func(st *state) { _, ok = st.remoteIDs[id] })
	return ok
}

// IsAvailableForTV reports whether the profile is shared and marked for TV
// devices.
func (r *Registry) IsAvailableForTV(id string) bool {
	var ok bool
	_ = r.exec(func(st *state) {
		p, found := st.all[id]
		_, shared := st.remoteIDs[id]
		ok = found && shared && p.Attributes.IsAvailableForTV
	})
	return ok
}

// RequiredFeatures returns the features the profile needs, or nil.
func (r *Registry) RequiredFeatures(id string) vpn.FeatureSet {
	var p vpn.Profile
	var ok bool
	_ = r.exec(func(st *state) { p, ok = st.all[id] })
	if !ok {
		return nil
	}
	return r.policy.RequiredFeatures(p)
}

// IsRemoteImportingEnabled reports whether a remote store is observed.
func (r *Registry) IsRemoteImportingEnabled() bool {
	var ok bool
	_ = r.exec(func(st *state) { ok = st.remote != nil })
	return ok
}

// FirstUniqueName returns base if no profile uses it, otherwise the first
// of "base.1", "base.2", ... that is free.
func (r *Registry) FirstUniqueName(base string) string {
	name := base
	_ = r.exec(func(st *state) { name = st.firstUniqueName(base) })
	return name
}
