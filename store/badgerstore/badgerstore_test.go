package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-registry/vpn"
)

func sample(id string) vpn.Profile {
	return vpn.Profile{
		ID:              id,
		Name:            "Profile " + id,
		Modules:         []vpn.Module{{ID: "ovpn", Type: vpn.ModuleOpenVPN, Routes: []string{"10.0.0.0/8"}}},
		ActiveModuleIDs: []string{"ovpn"},
		Attributes:      vpn.Attributes{Fingerprint: "fp-" + id},
	}
}

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)
	updates := s.ProfilesPublisher().Subscribe(ctx)
	<-updates

	require.NoError(t, s.SaveProfile(ctx, sample("b")))
	require.NoError(t, s.SaveProfile(ctx, sample("a")))

	profiles, err := s.FetchProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "a", profiles[0].ID)
	assert.True(t, sample("a").Equal(profiles[0]))

	u := <-updates
	assert.Len(t, u.Profiles, 2, "latest publication carries both profiles")

	require.NoError(t, s.RemoveProfiles(ctx, []string{"a", "missing"}))
	profiles, err = s.FetchProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "b", profiles[0].ID)

	require.NoError(t, s.RemoveAllProfiles(ctx))
	profiles, err = s.FetchProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)
	assert.Empty(t, s.ProfilesPublisher().Latest())
}

func TestStore_PersistsOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.SaveProfile(ctx, sample("a")))
	require.NoError(t, s.Close())

	reopened, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	profiles, err := reopened.FetchProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "a", profiles[0].ID)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStore_CancelledContext(t *testing.T) {
	s := openInMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.SaveProfile(ctx, sample("a")), context.Canceled)
	_, err := s.FetchProfiles(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
