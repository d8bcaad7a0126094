package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-registry/events"
	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/store/memory"
	"github.com/yllada/vpn-registry/vpn"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func profile(id, name, fingerprint string) vpn.Profile {
	return vpn.Profile{
		ID:   id,
		Name: name,
		Modules: []vpn.Module{
			{ID: "ovpn", Type: vpn.ModuleOpenVPN, ConfigPath: "/etc/" + id + ".ovpn"},
		},
		ActiveModuleIDs: []string{"ovpn"},
		Attributes:      vpn.Attributes{Fingerprint: fingerprint},
	}
}

// recorder collects registry events in delivery order.
type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func record(t *testing.T, r *Registry, types ...events.Type) *recorder {
	t.Helper()
	rec := &recorder{}
	sub := r.Subscribe(types...)
	t.Cleanup(sub.Close)
	go func() {
		for ev := range sub.Events() {
			rec.mu.Lock()
			rec.evs = append(rec.evs, ev)
			rec.mu.Unlock()
		}
	}()
	return rec
}

func (rec *recorder) all() []events.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]events.Event(nil), rec.evs...)
}

func (rec *recorder) count(typ events.Type) int {
	n := 0
	for _, ev := range rec.all() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// probeStore counts writes going through a store.
type probeStore struct {
	store.ProfileStore
	saves   atomic.Int32
	removes atomic.Int32
	failAll atomic.Bool
}

func probe(s store.ProfileStore) *probeStore {
	return &probeStore{ProfileStore: s}
}

func (p *probeStore) SaveProfile(ctx context.Context, profile vpn.Profile) error {
	p.saves.Add(1)
	if p.failAll.Load() {
		return errProbe
	}
	return p.ProfileStore.SaveProfile(ctx, profile)
}

func (p *probeStore) RemoveProfiles(ctx context.Context, ids []string) error {
	p.removes.Add(1)
	if p.failAll.Load() {
		return errProbe
	}
	return p.ProfileStore.RemoveProfiles(ctx, ids)
}

var errProbe = errors.New("probe failure")

// gateStore holds every save until release is called and tracks how many
// saves run at the same time.
type gateStore struct {
	store.ProfileStore
	gate    chan struct{}
	once    sync.Once
	entered chan string
	active  atomic.Int32
	peak    atomic.Int32
}

func gated(s store.ProfileStore) *gateStore {
	return &gateStore{ProfileStore: s, gate: make(chan struct{}), entered: make(chan string, 64)}
}

func (g *gateStore) SaveProfile(ctx context.Context, p vpn.Profile) error {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	g.entered <- p.ID
	<-g.gate
	return g.ProfileStore.SaveProfile(ctx, p)
}

func (g *gateStore) release() {
	g.once.Do(func() { close(g.gate) })
}

// excludeByName drops profiles with the given name.
type excludeByName struct {
	AllowAll
	name string
}

func (e excludeByName) IsIncluded(p vpn.Profile) bool { return p.Name != e.name }

func (e excludeByName) RequiredFeatures(p vpn.Profile) vpn.FeatureSet {
	if p.HasModule(vpn.ModuleDNS) {
		return vpn.NewFeatureSet(vpn.FeatureDNS)
	}
	return nil
}

// rejectRebuild refuses every local edit.
type rejectRebuild struct {
	AllowAll
}

var errRebuild = errors.New("rebuild rejected")

func (rejectRebuild) WillRebuild(*vpn.Builder) (*vpn.Builder, error) { return nil, errRebuild }

func newRegistry(t *testing.T, local store.ProfileStore, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithQuiescence(0)}, opts...)
	r := New(local, opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func observed(t *testing.T, local store.ProfileStore, opts ...Option) *Registry {
	t.Helper()
	r := newRegistry(t, local, opts...)
	require.NoError(t, r.ObserveLocal(context.Background()))
	return r
}

func localIDs(t *testing.T, s *memory.Store) []string {
	t.Helper()
	profiles, err := s.FetchProfiles(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	return ids
}

// observeRemote starts remote observation and waits for the initial import
// pass to finish.
func observeRemote(t *testing.T, r *Registry, remote store.ProfileStore) {
	t.Helper()
	rec := record(t, r, events.TypeStopRemoteImport)
	require.NoError(t, r.ObserveRemote(context.Background(), remote))
	require.Eventually(t, func() bool { return rec.count(events.TypeStopRemoteImport) >= 1 }, waitFor, tick)
}
