package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/registry"
	"github.com/yllada/vpn-registry/vpn"
)

func newListCmd(o *rootOptions) *cobra.Command {
	var (
		search string
		long   bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List VPN profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, StartOptions{}, func(_ context.Context, app *App) error {
				out := newPrinter(cmd.OutOrStdout())
				headers := app.Registry.Headers()
				if search != "" {
					headers = app.Registry.Search(search)
				}
				if len(headers) == 0 {
					if search != "" {
						out.println("No profiles match", search)
						return nil
					}
					out.println("No VPN profiles configured.")
					out.println(out.render(out.muted, "Use 'vpnreg import FILE' to add profiles."))
					return nil
				}
				out.table([]string{"ID", "NAME", "MODULES", "SHARING", "FEATURES"}, headerRows(headers, long))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only list profiles whose name contains this text")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show full profile ids")
	return cmd
}

func newShowCmd(o *rootOptions) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "show NAME|ID",
		Short: "Show one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, StartOptions{}, func(_ context.Context, app *App) error {
				p, err := findProfile(app.Registry, args[0])
				if err != nil {
					return err
				}
				out := newPrinter(cmd.OutOrStdout())
				if asYAML {
					data, err := vpn.EncodeYAML([]vpn.Profile{p})
					if err != nil {
						return err
					}
					out.printf("%s", data)
					return nil
				}

				out.println(out.render(out.header, p.Name))
				rows := [][]string{
					{"ID", p.ID},
					{"Fingerprint", p.Attributes.Fingerprint},
					{"Last update", formatTime(p.Attributes.LastUpdate)},
					{"Shared", yesNo(app.Registry.IsRemotelyShared(p.ID))},
					{"TV", yesNo(app.Registry.IsAvailableForTV(p.ID))},
					{"Features", joinOr(app.Registry.RequiredFeatures(p.ID).Sorted(), "-")},
				}
				for _, m := range p.Modules {
					detail := m.ConfigPath
					if len(m.Servers) > 0 {
						detail = strings.Join(m.Servers, ",")
					}
					rows = append(rows, []string{"Module " + m.ID, strings.TrimSpace(string(m.Type) + " " + detail)})
				}
				for _, row := range rows {
					out.printf("  %-12s %s\n", row[0]+":", row[1])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the profile as YAML")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func newStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry and remote store status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, StartOptions{}, func(_ context.Context, app *App) error {
				out := newPrinter(cmd.OutOrStdout())
				headers := app.Registry.Headers()
				shared := 0
				for _, h := range headers {
					if h.IsShared() {
						shared++
					}
				}
				remote := app.Config.Remote.Kind
				if remote == "" {
					remote = common.RemoteNone
				}
				out.table([]string{"SETTING", "VALUE"}, [][]string{
					{"Ready", yesNo(app.Registry.IsReady())},
					{"Profiles", fmt.Sprint(len(headers))},
					{"Shared", fmt.Sprint(shared)},
					{"Backend", app.Config.Storage.Backend},
					{"Remote", remote},
					{"Importing", yesNo(app.Registry.IsRemoteImportingEnabled())},
					{"Mirrors remote", yesNo(app.Config.Sync.MirrorsRemote)},
					{"Platform", app.Config.Policy.Platform},
				})
				return nil
			})
		},
	}
}

func newImportCmd(o *rootOptions) *cobra.Command {
	var (
		name  string
		share bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import profiles from a YAML file or a provider configuration",
		Long: `Import profiles into the local store.

A .yaml or .yml file is read as a profiles document. A .ovpn file becomes
a profile with one OpenVPN module and a .conf file a profile with one
WireGuard module, both pointing at the given file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				profiles, err := readImport(app.Registry, args[0], name)
				if err != nil {
					return err
				}
				sharing := registry.KeepSharing
				if share {
					sharing = registry.Share
				}

				out := newPrinter(cmd.OutOrStdout())
				var errs []error
				for _, p := range profiles {
					saved, err := app.Registry.Save(ctx, p, true, sharing)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
						continue
					}
					out.done("Imported %s (%s)", saved.Name, shortID(saved.ID))
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "profile name for a provider configuration (default is the file name)")
	cmd.Flags().BoolVar(&share, "share", false, "also write the imported profiles to the remote store")
	return cmd
}

// readImport turns FILE into the profiles to save.
func readImport(reg *registry.Registry, path, name string) ([]vpn.Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	var moduleType vpn.ModuleType
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".yaml", ".yml":
		profiles, err := vpn.ReadYAMLFile(abs)
		if err != nil {
			return nil, err
		}
		for i, p := range profiles {
			if p.ID == "" {
				profiles[i].ID = common.GenerateID()
			}
		}
		return profiles, nil
	case ".ovpn":
		moduleType = vpn.ModuleOpenVPN
	case ".conf":
		moduleType = vpn.ModuleWireGuard
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", common.ErrInvalidProfile, filepath.Ext(abs))
	}

	if !common.FileExists(abs) {
		return nil, fmt.Errorf("configuration file not found: %s", abs)
	}
	if name == "" {
		name = reg.FirstUniqueName(strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)))
	}
	moduleID := strings.ToLower(string(moduleType))
	b := vpn.NewBuilder(name)
	b.Modules = []vpn.Module{{ID: moduleID, Type: moduleType, ConfigPath: abs}}
	b.ActiveModuleIDs = []string{moduleID}
	p, err := b.Build()
	if err != nil {
		return nil, err
	}
	return []vpn.Profile{p}, nil
}

func newRenameCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename NAME|ID NEW_NAME",
		Short: "Rename a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				p, err := findProfile(app.Registry, args[0])
				if err != nil {
					return err
				}
				b := p.Builder()
				b.Name = args[1]
				renamed, err := b.Build()
				if err != nil {
					return err
				}
				saved, err := app.Registry.Save(ctx, renamed, true, registry.KeepSharing)
				if err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).done("Renamed %s to %s", p.Name, saved.Name)
				return nil
			})
		},
	}
}

func newDuplicateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate NAME|ID",
		Short: "Copy a profile under a new id and a unique name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				p, err := findProfile(app.Registry, args[0])
				if err != nil {
					return err
				}
				dup, err := app.Registry.Duplicate(ctx, p.ID)
				if err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).done("Created %s (%s)", dup.Name, shortID(dup.ID))
				return nil
			})
		},
	}
}

func newRemoveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME|ID...",
		Aliases: []string{"rm"},
		Short:   "Remove profiles from this device and the remote store",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				ids := make([]string, 0, len(args))
				names := make([]string, 0, len(args))
				for _, arg := range args {
					p, err := findProfile(app.Registry, arg)
					if err != nil {
						return err
					}
					ids = append(ids, p.ID)
					names = append(names, p.Name)
				}
				if err := app.Registry.Remove(ctx, ids...); err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).done("Removed %s", strings.Join(names, ", "))
				return nil
			})
		},
	}
}

func newShareCmd(o *rootOptions) *cobra.Command {
	var tv bool
	cmd := &cobra.Command{
		Use:   "share NAME|ID",
		Short: "Write a profile to the remote store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				if !app.Registry.IsRemoteImportingEnabled() {
					return common.ErrNoRemoteStore
				}
				p, err := findProfile(app.Registry, args[0])
				if err != nil {
					return err
				}

				isLocal := false
				if cmd.Flags().Changed("tv") && tv != p.Attributes.IsAvailableForTV {
					b := p.Builder()
					b.Attributes.IsAvailableForTV = tv
					if p, err = b.Build(); err != nil {
						return err
					}
					isLocal = true
				}
				if _, err := app.Registry.Save(ctx, p, isLocal, registry.Share); err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).done("Shared %s", p.Name)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&tv, "tv", false, "make the profile available on TV devices")
	return cmd
}

func newUnshareCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare NAME|ID",
		Short: "Remove a profile from the remote store and keep it locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				if !app.Registry.IsRemoteImportingEnabled() {
					return common.ErrNoRemoteStore
				}
				p, err := findProfile(app.Registry, args[0])
				if err != nil {
					return err
				}
				if _, err := app.Registry.Save(ctx, p, false, registry.Unshare); err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).done("Stopped sharing %s", p.Name)
				return nil
			})
		},
	}
}

func newResaveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resave",
		Short: "Save every profile again, refreshing fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				if err := app.Registry.ResaveAll(ctx); err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).done("Saved %d profiles", len(app.Registry.Profiles()))
				return nil
			})
		},
	}
}

func newEraseRemoteCmd(o *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "erase-remote",
		Short: "Delete every profile from the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("erase-remote deletes shared profiles for every device, pass --yes to confirm")
			}
			return o.withApp(cmd, StartOptions{}, func(ctx context.Context, app *App) error {
				if err := app.Registry.EraseAllRemote(ctx); err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).done("Remote store erased")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func newVersionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			out := newPrinter(cmd.OutOrStdout())
			out.printf("%s v%s\n", common.AppName, o.build.Version)
			if o.build.Time != "" && o.build.Time != "unknown" {
				out.printf("  Build:  %s\n", o.build.Time)
				out.printf("  Commit: %s\n", o.build.Commit)
			}
		},
	}
}
