package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-registry/vpn"
)

func sample(id, fingerprint string) vpn.Profile {
	return vpn.Profile{
		ID:         id,
		Name:       "Profile " + id,
		Modules:    []vpn.Module{{ID: "dns", Type: vpn.ModuleDNS, Servers: []string{"9.9.9.9"}}},
		Attributes: vpn.Attributes{Fingerprint: fingerprint, LastUpdate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backup.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)

	require.NoError(t, s.SaveProfile(ctx, sample("a", "fp-1")))
	require.NoError(t, s.SaveProfile(ctx, sample("a", "fp-2")))
	require.NoError(t, s.SaveProfile(ctx, sample("b", "fp-1")))

	profiles, err := s.FetchProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.True(t, sample("a", "fp-2").Equal(profiles[0]))
	assert.Len(t, s.ProfilesPublisher().Latest(), 2)

	require.NoError(t, s.RemoveProfiles(ctx, []string{"a"}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	profiles, err = reopened.FetchProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "b", profiles[0].ID)

	require.NoError(t, reopened.RemoveAllProfiles(ctx))
	profiles, err = reopened.FetchProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}
