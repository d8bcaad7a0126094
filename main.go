// Package main provides the entry point for vpnreg.
//
// vpnreg keeps the VPN profiles stored on this device in sync with a shared
// remote store, either a synced folder or a PostgreSQL database.
//
// Features:
//   - Local profile storage in a YAML file or an embedded Badger database
//   - Automatic import of profiles shared by other devices
//   - Per-profile sharing, with a SQLite backup of every local write
//   - Inclusion policies filtering profiles per platform
//   - Secure database credentials in the system keyring
//
// Usage:
//
//	vpnreg [command] [flags]
package main

import "github.com/yllada/vpn-registry/cli"

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	cli.Execute(cli.BuildInfo{
		Version: appVersion,
		Time:    buildTime,
		Commit:  commitSHA,
	})
}
