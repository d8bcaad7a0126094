package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-registry/vpn"
)

func TestStore_CRUDPublishes(t *testing.T) {
	ctx := context.Background()
	s := New(vpn.Profile{ID: "b", Name: "B"})
	updates := s.ProfilesPublisher().Subscribe(ctx)

	replay := <-updates
	assert.True(t, replay.Replay)
	assert.Len(t, replay.Profiles, 1)

	require.NoError(t, s.SaveProfile(ctx, vpn.Profile{ID: "a", Name: "A"}))
	u := <-updates
	require.Len(t, u.Profiles, 2)
	assert.Equal(t, "a", u.Profiles[0].ID, "profiles are sorted by id")

	require.NoError(t, s.RemoveProfiles(ctx, []string{"b", "unknown"}))
	u = <-updates
	require.Len(t, u.Profiles, 1)

	require.NoError(t, s.RemoveAllProfiles(ctx))
	u = <-updates
	assert.Empty(t, u.Profiles)

	profiles, err := s.FetchProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestStore_Replace(t *testing.T) {
	s := New(vpn.Profile{ID: "a"})
	s.Replace(vpn.Profile{ID: "b"}, vpn.Profile{ID: "c"})

	profiles, err := s.FetchProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "b", profiles[0].ID)
}

func TestStore_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	s := New()
	assert.Error(t, s.SaveProfile(ctx, vpn.Profile{ID: "a"}))
	_, err := s.FetchProfiles(ctx)
	assert.Error(t, err)
}
