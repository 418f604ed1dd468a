// Package config loads floortrack process configuration from a TOML file
// with environment variable overrides for deployment-specific settings.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"floortrack/pkg/domain"
)

// Config holds all application configuration.
type Config struct {
	Storage Storage `toml:"storage"`
	Ident   Ident   `toml:"ident"`
	Blob    Blob    `toml:"blob"`
	Legacy  Legacy  `toml:"legacy"`
	Archive Archive `toml:"archive"`
	Sync    Sync    `toml:"sync"`
	Logging Logging `toml:"logging"`
}

// Storage selects and configures the persistence driver.
type Storage struct {
	Driver      string `toml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Ident configures the device identity file.
type Ident struct {
	Path string `toml:"path"`
}

// Blob configures backup blob storage.
type Blob struct {
	Driver string `toml:"driver"` // fs|s3|memory
	FSRoot string `toml:"fs_root"`
}

// Legacy configures the legacy data import.
type Legacy struct {
	KVPath string `toml:"kv_path"`
}

// Archive configures the end-of-day archiver.
type Archive struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression
}

// Sync holds outward sync transport settings.
type Sync struct {
	Enabled       bool   `toml:"enabled"`
	Endpoint      string `toml:"endpoint"`
	RetryAttempts int    `toml:"retry_attempts"`
	RetryDelayMS  int    `toml:"retry_delay_ms"`
	BatchSize     int    `toml:"batch_size"`
}

// Logging configures log output.
type Logging struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Driver:      "sqlite",
			SQLitePath:  "floortrack.db",
			PostgresDSN: "",
		},
		Ident: Ident{
			Path: "floortrack.device.json",
		},
		Blob: Blob{
			Driver: "fs",
			FSRoot: "./backups",
		},
		Legacy: Legacy{
			KVPath: "legacy_localstorage.json",
		},
		Archive: Archive{
			Enabled:  true,
			Schedule: "5 0 * * *",
		},
		Sync: Sync{
			Enabled:       false,
			RetryAttempts: 3,
			RetryDelayMS:  5000,
			BatchSize:     50,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.Storage.SQLitePath = ExpandPath(cfg.Storage.SQLitePath)
	cfg.Ident.Path = ExpandPath(cfg.Ident.Path)
	cfg.Blob.FSRoot = ExpandPath(cfg.Blob.FSRoot)
	cfg.Legacy.KVPath = ExpandPath(cfg.Legacy.KVPath)
	return cfg, nil
}

// applyEnv overlays FLOORTRACK_* environment variables onto the loaded
// file. Environment wins so containers can override without a file edit.
func (c *Config) applyEnv() {
	setString := func(target *string, key string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setBool := func(target *bool, key string) {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				*target = parsed
			}
		}
	}
	setString(&c.Storage.Driver, "FLOORTRACK_STORAGE_DRIVER")
	setString(&c.Storage.SQLitePath, "FLOORTRACK_SQLITE_PATH")
	setString(&c.Storage.PostgresDSN, "FLOORTRACK_POSTGRES_DSN")
	setString(&c.Ident.Path, "FLOORTRACK_IDENT_PATH")
	setString(&c.Blob.Driver, "FLOORTRACK_BLOB_DRIVER")
	setString(&c.Blob.FSRoot, "FLOORTRACK_BLOB_FS_ROOT")
	setString(&c.Legacy.KVPath, "FLOORTRACK_LEGACY_KV_PATH")
	setString(&c.Archive.Schedule, "FLOORTRACK_ARCHIVE_SCHEDULE")
	setBool(&c.Archive.Enabled, "FLOORTRACK_ARCHIVE_ENABLED")
	setString(&c.Sync.Endpoint, "FLOORTRACK_SYNC_ENDPOINT")
	setBool(&c.Sync.Enabled, "FLOORTRACK_SYNC_ENABLED")
	setString(&c.Logging.Level, "FLOORTRACK_LOG_LEVEL")
}

// SyncSettings converts the transport section to the stored configuration
// shape.
func (c *Config) SyncSettings() domain.SyncSettings {
	return domain.SyncSettings{
		Enabled:       c.Sync.Enabled,
		Endpoint:      c.Sync.Endpoint,
		RetryAttempts: c.Sync.RetryAttempts,
		RetryDelayMS:  c.Sync.RetryDelayMS,
		BatchSize:     c.Sync.BatchSize,
	}
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "floortrack", "config.toml")
}
