// Package cli provides the vpnreg command-line interface.
// Every command loads the configuration, opens the configured stores and
// drives the profile registry for the duration of one invocation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/config"
	"github.com/yllada/vpn-registry/keyring"
)

// BuildInfo is injected by the main package at link time.
type BuildInfo struct {
	Version string
	Time    string
	Commit  string
}

type rootOptions struct {
	configFile string
	verbose    bool
	offline    bool

	build BuildInfo
	v     *viper.Viper
	cfg   *config.Config

	// credentials opens the credential store on first use.
	credentials func() *keyring.Store
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute(info BuildInfo) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand(info).ExecuteContext(ctx)
	stop()
	_ = common.CloseLogger()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	o := &rootOptions{
		build: info,
		v:     viper.New(),
		credentials: func() *keyring.Store {
			return keyring.New()
		},
	}

	root := &cobra.Command{
		Use:   common.BinaryName,
		Short: "Keep VPN profiles in sync between this device and a shared store",
		Long: `vpnreg manages the VPN profiles stored on this device and keeps them
in sync with a shared remote store: a synced folder or a PostgreSQL
database. Profiles edited here can be shared; shared profiles edited
elsewhere are imported automatically.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			if err := o.loadConfig(); err != nil {
				return err
			}
			o.setupLogging(cmd)
			return nil
		},
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "config file (default is $HOME/.config/vpn-registry/config.yaml)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVar(&o.offline, "offline", false, "do not contact the remote store")
	flags.String("backend", "", "local storage backend (yaml or badger)")
	flags.String("remote", "", "remote store kind (none, directory or postgres)")
	flags.String("remote-dir", "", "shared directory for the directory remote")
	flags.String("platform", "", "inclusion policy platform (desktop or tv)")
	flags.Bool("mirrors-remote", false, "delete local profiles missing from the remote store")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	for key, flag := range map[string]string{
		"storage.backend":     "backend",
		"remote.kind":         "remote",
		"remote.directory":    "remote-dir",
		"policy.platform":     "platform",
		"sync.mirrors_remote": "mirrors-remote",
		"logging.level":       "log-level",
	} {
		_ = o.v.BindPFlag(key, flags.Lookup(flag))
	}
	o.v.SetEnvPrefix(common.EnvPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	o.v.AutomaticEnv()

	root.AddCommand(
		newListCmd(o),
		newShowCmd(o),
		newStatusCmd(o),
		newImportCmd(o),
		newRenameCmd(o),
		newDuplicateCmd(o),
		newRemoveCmd(o),
		newShareCmd(o),
		newUnshareCmd(o),
		newResaveCmd(o),
		newEraseRemoteCmd(o),
		newWatchCmd(o),
		newRemoteCmd(o),
		newVersionCmd(o),
	)
	return root
}

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

func (o *rootOptions) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	o.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// applyOverrides layers flags and VPNREG_* environment variables over the
// file configuration.
func (o *rootOptions) applyOverrides(cfg *config.Config) {
	v := o.v
	if v.IsSet("sync.mirrors_remote") {
		cfg.Sync.MirrorsRemote = v.GetBool("sync.mirrors_remote")
	}
	if v.IsSet("sync.wait_for_remote") {
		cfg.Sync.WaitForRemote = v.GetBool("sync.wait_for_remote")
	}
	if v.IsSet("sync.quiescence_delay") {
		cfg.Sync.QuiescenceDelay = v.GetDuration("sync.quiescence_delay")
	}
	if v.IsSet("storage.backend") {
		cfg.Storage.Backend = v.GetString("storage.backend")
	}
	if v.IsSet("storage.profiles_path") {
		cfg.Storage.ProfilesPath = v.GetString("storage.profiles_path")
	}
	if v.IsSet("remote.kind") {
		cfg.Remote.Kind = v.GetString("remote.kind")
	}
	if v.IsSet("remote.directory") {
		cfg.Remote.Directory = v.GetString("remote.directory")
	}
	if v.IsSet("policy.platform") {
		cfg.Policy.Platform = v.GetString("policy.platform")
	}
	if v.IsSet("policy.include") {
		cfg.Policy.Include = v.GetString("policy.include")
	}
	if v.IsSet("logging.level") {
		cfg.Logging.Level = v.GetString("logging.level")
	}
}

func (o *rootOptions) setupLogging(cmd *cobra.Command) {
	logCfg := o.cfg.LogConfig()
	if o.verbose {
		logCfg.Level = common.LevelDebug
	}
	if err := common.InitLogger(logCfg); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not initialize file logging: %v\n", err)
	}
	common.LogDebug("configuration loaded",
		"command", cmd.Name(),
		"backend", o.cfg.Storage.Backend,
		"remote", o.cfg.Remote.Kind,
		"platform", o.cfg.Policy.Platform)
}

// withApp opens the application, starts it and runs fn. The application is
// closed when fn returns.
func (o *rootOptions) withApp(cmd *cobra.Command, start StartOptions, fn func(ctx context.Context, app *App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var creds *keyring.Store
	if o.cfg.Remote.Kind == common.RemotePostgres {
		creds = o.credentials()
	}
	app, err := NewApp(ctx, o.cfg, creds, o.offline)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := app.Start(ctx, start); err != nil {
		return err
	}
	return fn(ctx, app)
}
