package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-registry/store"
	"github.com/yllada/vpn-registry/vpn"
)

// openTestStore connects to the database described by VPNREG_TEST_PG_*
// variables and skips the test when none is configured.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("VPNREG_TEST_PG_NAME") == "" {
		t.Skip("VPNREG_TEST_PG_NAME not set")
	}
	cfg := Config{}
	require.NoError(t, cfg.Finalize(DefaultEnv("VPNREG_TEST")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.RemoveAllProfiles(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Integration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProfile(ctx, vpn.Profile{ID: "a", Name: "Office", Attributes: vpn.Attributes{Fingerprint: "fp"}}))
	profiles, err := s.FetchProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "Office", profiles[0].Name)

	require.NoError(t, s.RemoveProfiles(ctx, []string{"a"}))
	profiles, err = s.FetchProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestStore_ListenSeesForeignWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.Listen(ctx)

	updates := s.ProfilesPublisher().Subscribe(ctx)
	<-updates

	_, err := s.pool.Exec(ctx,
		`INSERT INTO vpn_profiles (id, data) VALUES ('b', '{"id":"b","name":"Foreign"}')`)
	require.NoError(t, err)

	select {
	case u := <-updates:
		require.Len(t, u.Profiles, 1)
		assert.Equal(t, "Foreign", u.Profiles[0].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not received")
	}
	var _ store.ProfileStore = s
}
