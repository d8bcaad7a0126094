package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/config"
	"github.com/yllada/vpn-registry/keyring"
	"github.com/yllada/vpn-registry/vpn"
)

type env struct {
	t         *testing.T
	dir       string
	cfgPath   string
	remoteDir string
}

// newEnv writes a configuration using a YAML local store, a SQLite backup
// and a directory remote, all under a temporary HOME.
func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	e := &env{
		t:         t,
		dir:       dir,
		cfgPath:   filepath.Join(dir, "config.yaml"),
		remoteDir: filepath.Join(dir, "shared"),
	}
	cfg := config.DefaultConfig()
	cfg.Sync.QuiescenceDelay = 0
	cfg.Remote.Kind = common.RemoteDirectory
	cfg.Remote.Directory = e.remoteDir
	require.NoError(t, cfg.SaveTo(e.cfgPath))
	return e
}

func (e *env) run(args ...string) (string, error) {
	e.t.Helper()
	return e.runWithInput("", args...)
}

func (e *env) runWithInput(input string, args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCommand(BuildInfo{Version: "test"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *env) ovpn(name string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name+".ovpn")
	require.NoError(e.t, os.WriteFile(path, []byte("client\nremote vpn.example.com 1194\n"), 0600))
	return path
}

func (e *env) remoteProfiles() []vpn.Profile {
	e.t.Helper()
	path := filepath.Join(e.remoteDir, common.ProfilesFileName)
	if !common.FileExists(path) {
		return nil
	}
	profiles, err := vpn.ReadYAMLFile(path)
	require.NoError(e.t, err)
	return profiles
}

func TestImportAndList(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun("import", e.ovpn("office"))
	assert.Contains(t, out, "Imported office")

	out = e.mustRun("list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "office")
	assert.Contains(t, out, string(vpn.ModuleOpenVPN))

	out = e.mustRun("list", "--search", "nothing")
	assert.Contains(t, out, "No profiles match")
}

func TestListEmpty(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun("list")
	assert.Contains(t, out, "No VPN profiles configured.")
}

func TestImportYAMLDocument(t *testing.T) {
	e := newEnv(t)
	data, err := vpn.EncodeYAML([]vpn.Profile{
		{Name: "alpha"},
		{ID: "fixed-id", Name: "beta"},
	})
	require.NoError(t, err)
	path := filepath.Join(e.dir, "import.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))

	out := e.mustRun("import", path)
	assert.Contains(t, out, "Imported alpha")
	assert.Contains(t, out, "Imported beta")

	out = e.mustRun("show", "fixed-id", "--yaml")
	assert.Contains(t, out, "name: beta")
}

func TestImportUnsupportedFile(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	_, err := e.run("import", path)
	assert.ErrorIs(t, err, common.ErrInvalidProfile)
}

func TestRenameDuplicateRemove(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", e.ovpn("home"))

	out := e.mustRun("rename", "home", "house")
	assert.Contains(t, out, "Renamed home to house")

	out = e.mustRun("duplicate", "house")
	assert.Contains(t, out, "Created house.1")

	_, err := e.run("show", "home")
	assert.ErrorIs(t, err, common.ErrProfileNotFound)

	e.mustRun("remove", "house.1")
	out = e.mustRun("list")
	assert.Contains(t, out, "house")
	assert.NotContains(t, out, "house.1")
}

func TestShareAndUnshare(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", e.ovpn("team"))

	out := e.mustRun("share", "team", "--tv")
	assert.Contains(t, out, "Shared team")

	remote := e.remoteProfiles()
	require.Len(t, remote, 1)
	assert.Equal(t, "team", remote[0].Name)
	assert.True(t, remote[0].Attributes.IsAvailableForTV)

	out = e.mustRun("show", "team")
	assert.Contains(t, out, "Shared:      yes")
	assert.Contains(t, out, "TV:          yes")

	out = e.mustRun("list")
	assert.Contains(t, out, string(vpn.SharingShared))

	e.mustRun("unshare", "team")
	assert.Empty(t, e.remoteProfiles())

	out = e.mustRun("list")
	assert.Contains(t, out, "team")
}

func TestRemoteProfilesAreImported(t *testing.T) {
	e := newEnv(t)
	b := vpn.NewBuilder("from-remote")
	b.Attributes.Fingerprint = "fp-1"
	p, err := b.Build()
	require.NoError(t, err)
	data, err := vpn.EncodeYAML([]vpn.Profile{p})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(e.remoteDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(e.remoteDir, common.ProfilesFileName), data, 0600))

	out := e.mustRun("list")
	assert.Contains(t, out, "from-remote")

	// The import persisted the profile locally.
	out = e.mustRun("--offline", "list")
	assert.Contains(t, out, "from-remote")
}

func TestOfflineShareFails(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", e.ovpn("solo"))

	_, err := e.run("--offline", "share", "solo")
	assert.ErrorIs(t, err, common.ErrNoRemoteStore)
}

func TestEraseRemote(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", "--share", e.ovpn("shared"))
	require.Len(t, e.remoteProfiles(), 1)

	_, err := e.run("erase-remote")
	require.Error(t, err)
	assert.Len(t, e.remoteProfiles(), 1)

	e.mustRun("erase-remote", "--yes")
	assert.Empty(t, e.remoteProfiles())
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", e.ovpn("one"))

	out := e.mustRun("status")
	assert.Contains(t, out, "Ready")
	assert.Contains(t, out, common.RemoteDirectory)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	e := newEnv(t)
	t.Setenv("VPNREG_POLICY_PLATFORM", "toaster")

	_, err := e.run("list")
	assert.ErrorIs(t, err, common.ErrConfigInvalid)
}

func TestFlagOverridesConfig(t *testing.T) {
	e := newEnv(t)
	e.mustRun("import", e.ovpn("desk"))

	// On the tv platform only TV profiles are included, and excluded local
	// profiles are dropped from the view.
	out := e.mustRun("--offline", "--platform", common.PlatformTV, "list")
	assert.NotContains(t, out, "desk")
}

func TestVersionSkipsConfig(t *testing.T) {
	cmd := NewRootCommand(BuildInfo{Version: "1.2.3", Time: "2026-01-01", Commit: "abc"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "v1.2.3")
	assert.Contains(t, out.String(), "Commit: abc")
}

func TestRemoteLogin(t *testing.T) {
	gokeyring.MockInit()
	e := newEnv(t)

	out, err := e.runWithInput("s3cret\n", "remote", "login", "--password-stdin")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Password saved")

	got, err := keyring.New().Get(keyring.PostgresPasswordKey)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	e.mustRun("remote", "logout")
	_, err = keyring.New().Get(keyring.PostgresPasswordKey)
	assert.ErrorIs(t, err, common.ErrCredentialsNotFound)
}

func TestRemoteLoginRejectsEmptyPassword(t *testing.T) {
	gokeyring.MockInit()
	e := newEnv(t)

	_, err := e.runWithInput("\n", "remote", "login", "--password-stdin")
	assert.ErrorIs(t, err, common.ErrCredentialStorage)
}

func TestUnreadableRemoteFallsBackToLocal(t *testing.T) {
	e := newEnv(t)
	e.mustRun("--offline", "import", e.ovpn("kept"))
	require.NoError(t, os.MkdirAll(e.remoteDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(e.remoteDir, common.ProfilesFileName), []byte("profiles: [unterminated"), 0600))

	out := e.mustRun("list")
	assert.Contains(t, out, "kept")

	out = e.mustRun("status")
	assert.Regexp(t, `Importing\s+no`, out)

	_, err := e.run("share", "kept")
	assert.ErrorIs(t, err, common.ErrNoRemoteStore)
	_, err = e.run("erase-remote", "--yes")
	assert.ErrorIs(t, err, common.ErrNoRemoteStore)
}

func TestOfflineIsReadyWhenWaitingForRemote(t *testing.T) {
	e := newEnv(t)
	cfg, err := config.LoadFrom(e.cfgPath)
	require.NoError(t, err)
	cfg.Sync.WaitForRemote = true
	require.NoError(t, cfg.SaveTo(e.cfgPath))

	out := e.mustRun("--offline", "status")
	assert.Regexp(t, `Ready\s+yes`, out)

	out = e.mustRun("status")
	assert.Regexp(t, `Ready\s+yes`, out)
}
