// Package config provides configuration management for VPN Registry.
// It handles loading, saving, and validating application settings.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yllada/vpn-registry/common"
	"github.com/yllada/vpn-registry/store/postgres"
)

// Config represents the application configuration.
// All settings are persisted to a YAML file in the user's config directory.
type Config struct {
	Sync    SyncConfig    `yaml:"sync"`
	Storage StorageConfig `yaml:"storage"`
	Remote  RemoteConfig  `yaml:"remote"`
	Policy  PolicyConfig  `yaml:"policy"`
	Logging LoggingConfig `yaml:"logging"`
}

// SyncConfig controls how remote profiles are imported.
type SyncConfig struct {
	// MirrorsRemote deletes local profiles missing from the remote store.
	MirrorsRemote bool `yaml:"mirrors_remote"`
	// QuiescenceDelay is the pause that ends every import pass.
	QuiescenceDelay time.Duration `yaml:"quiescence_delay"`
	// WaitForRemote delays readiness until the remote store has loaded.
	WaitForRemote bool `yaml:"wait_for_remote"`
}

// StorageConfig selects and locates the local stores.
type StorageConfig struct {
	// Backend is "yaml" or "badger".
	Backend string `yaml:"backend"`
	// ProfilesPath is the YAML profiles file.
	ProfilesPath string `yaml:"profiles_path"`
	// BadgerDir is the Badger database directory.
	BadgerDir string `yaml:"badger_dir"`
	// BackupPath is the SQLite backup file. Empty disables the backup.
	BackupPath string `yaml:"backup_path"`
}

// RemoteConfig selects the shared store.
type RemoteConfig struct {
	// Kind is "none", "directory" or "postgres".
	Kind string `yaml:"kind"`
	// Directory holds the shared profiles.yaml when Kind is "directory".
	Directory string `yaml:"directory"`
	// Postgres is used when Kind is "postgres".
	Postgres postgres.Config `yaml:"postgres"`
}

// PolicyConfig configures the inclusion policy.
type PolicyConfig struct {
	// Platform is "desktop" or "tv".
	Platform string `yaml:"platform"`
	// Include is an optional boolean expression over id, name, modules and tv.
	Include string `yaml:"include"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// File enables the rotated log file.
	File bool `yaml:"file"`
	// MaxSizeMB rotates the log file past this size.
	MaxSizeMB int `yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `yaml:"max_backups"`
}

// DefaultConfig returns the default configuration.
// Store paths live under the user's data directory.
func DefaultConfig() *Config {
	dataDir, err := common.GetDataDir()
	if err != nil {
		dataDir = "."
	}
	return &Config{
		Sync: SyncConfig{
			MirrorsRemote:   false,
			QuiescenceDelay: common.ImportQuiescence,
		},
		Storage: StorageConfig{
			Backend:      common.BackendYAML,
			ProfilesPath: filepath.Join(dataDir, common.ProfilesFileName),
			BadgerDir:    filepath.Join(dataDir, common.BadgerDirName),
			BackupPath:   filepath.Join(dataDir, common.BackupFileName),
		},
		Remote: RemoteConfig{
			Kind: common.RemoteNone,
		},
		Policy: PolicyConfig{
			Platform: common.PlatformDesktop,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 5,
		},
	}
}

// Path returns the default configuration file location.
func Path() (string, error) {
	dir, err := common.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.ConfigFileName), nil
}

// Load loads the configuration from the default config file.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if !common.FileExists(path) {
		cfg := DefaultConfig()
		if err := cfg.SaveTo(path); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration at path. Settings missing from the file
// keep their default values; unknown settings are rejected.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that configuration values are valid.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case common.BackendYAML:
		if c.Storage.ProfilesPath == "" {
			return fmt.Errorf("%w: storage.profiles_path is required", common.ErrConfigInvalid)
		}
	case common.BackendBadger:
		if c.Storage.BadgerDir == "" {
			return fmt.Errorf("%w: storage.badger_dir is required", common.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", common.ErrConfigInvalid, c.Storage.Backend)
	}

	switch c.Remote.Kind {
	case "", common.RemoteNone:
	case common.RemoteDirectory:
		if c.Remote.Directory == "" {
			return fmt.Errorf("%w: remote.directory is required", common.ErrConfigInvalid)
		}
	case common.RemotePostgres:
	default:
		return fmt.Errorf("%w: unknown remote kind %q", common.ErrConfigInvalid, c.Remote.Kind)
	}

	switch c.Policy.Platform {
	case common.PlatformDesktop, common.PlatformTV:
	default:
		return fmt.Errorf("%w: unknown platform %q", common.ErrConfigInvalid, c.Policy.Platform)
	}

	if c.Sync.QuiescenceDelay < 0 {
		return fmt.Errorf("%w: sync.quiescence_delay must not be negative", common.ErrConfigInvalid)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

// HasRemote reports whether a shared store is configured.
func (c *Config) HasRemote() bool {
	return c.Remote.Kind != "" && c.Remote.Kind != common.RemoteNone
}

// LogConfig converts the logging section for common.InitLogger.
func (c *Config) LogConfig() common.LogConfig {
	return common.LogConfig{
		Level:       common.ParseLogLevel(c.Logging.Level),
		EnableFile:  c.Logging.File,
		MaxFileSize: int64(c.Logging.MaxSizeMB) * 1024 * 1024,
		MaxBackups:  c.Logging.MaxBackups,
	}
}

// Save saves the configuration to the default file.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo saves the configuration to path. The postgres password is never
// written; it belongs in the keyring.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	out := *c
	out.Remote.Postgres.Password = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}
	return nil
}
