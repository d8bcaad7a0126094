// Package common provides shared constants, types, and utilities
// used across the VPN Registry application.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "VPN Registry"
	// BinaryName is the name of the command-line executable.
	BinaryName = "vpnreg"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "vpn-registry"
	// EnvPrefix prefixes every environment variable read by the CLI.
	EnvPrefix = "VPNREG"
)

// File names used by the application.
const (
	ProfilesFileName    = "profiles.yaml"
	ConfigFileName      = "config.yaml"
	CredentialsFileName = ".credentials"
	LogFileName         = "vpn-registry.log"
	BackupFileName      = "backup.db"
	BadgerDirName       = "profiles.badger"
)

// Default timeouts and intervals.
const (
	// ImportQuiescence is the pause after a remote import pass that
	// coalesces bursts of remote updates.
	ImportQuiescence = 100 * time.Millisecond
	// WatchDebounce is how long a file watcher waits for further
	// changes before reloading.
	WatchDebounce = 150 * time.Millisecond
	// StoreTimeout bounds a single call into a remote store from the CLI.
	StoreTimeout = 30 * time.Second
)

// Platform values for the inclusion policy.
const (
	PlatformDesktop = "desktop"
	PlatformTV      = "tv"
)

// Storage backends for the local profile store.
const (
	BackendYAML   = "yaml"
	BackendBadger = "badger"
)

// Remote store kinds.
const (
	RemoteNone      = "none"
	RemoteDirectory = "directory"
	RemotePostgres  = "postgres"
)
