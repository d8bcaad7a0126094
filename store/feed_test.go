package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-registry/vpn"
)

func named(id, name string) vpn.Profile {
	return vpn.Profile{ID: id, Name: name, Attributes: vpn.Attributes{Fingerprint: id + "-" + name}}
}

func receive(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return Update{}
	}
}

func TestFeed_ReplaysCurrentValue(t *testing.T) {
	f := NewFeed([]vpn.Profile{named("a", "x")})

	u := receive(t, f.Subscribe(context.Background()))
	assert.True(t, u.Replay)
	require.Len(t, u.Profiles, 1)
	assert.Equal(t, "a", u.Profiles[0].ID)
}

func TestFeed_LatestWins(t *testing.T) {
	f := NewFeed(nil)
	ch := f.Subscribe(context.Background())

	f.Publish([]vpn.Profile{named("a", "1")})
	f.Publish([]vpn.Profile{named("a", "2")})

	u := receive(t, ch)
	assert.False(t, u.Replay, "replay must be superseded by newer publications")
	assert.Equal(t, "2", u.Profiles[0].Name)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra update %+v", extra)
	default:
	}
}

func TestFeed_MultipleSubscribers(t *testing.T) {
	f := NewFeed(nil)
	a := f.Subscribe(context.Background())
	b := f.Subscribe(context.Background())
	receive(t, a)
	receive(t, b)

	f.Publish([]vpn.Profile{named("x", "y")})

	assert.Equal(t, "x", receive(t, a).Profiles[0].ID)
	assert.Equal(t, "x", receive(t, b).Profiles[0].ID)
}

func TestFeed_PublishedSliceIsCopied(t *testing.T) {
	f := NewFeed(nil)
	ch := f.Subscribe(context.Background())
	receive(t, ch)

	profiles := []vpn.Profile{named("a", "1")}
	f.Publish(profiles)
	profiles[0].Name = "mutated"

	assert.Equal(t, "1", receive(t, ch).Profiles[0].Name)
	assert.Equal(t, "1", f.Latest()[0].Name)
}

func TestFeed_ContextCancelClosesChannel(t *testing.T) {
	f := NewFeed(nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := f.Subscribe(ctx)
	receive(t, ch)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestFeed_Close(t *testing.T) {
	f := NewFeed(nil)
	ch := f.Subscribe(context.Background())
	receive(t, ch)

	f.Close()
	_, ok := <-ch
	assert.False(t, ok)

	f.Publish([]vpn.Profile{named("a", "1")})
	_, ok = <-f.Subscribe(context.Background())
	assert.False(t, ok, "subscribing to a closed feed yields a closed channel")
}
