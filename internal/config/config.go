// Package config loads tsync settings.
//
// Values are resolved in this order, later sources winning:
//  1. Built-in defaults
//  2. A config file (tsync.toml or tsync.yaml in the state directory, or an
//     explicit --config path)
//  3. A .env file in the working directory
//  4. TSYNC_* environment variables (dots in keys become underscores, so
//     remote.dsn is TSYNC_REMOTE_DSN)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fieldwork/tasksync/internal/connectivity"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TSYNC"

// FileName is the config file base name searched for in the state directory.
const FileName = "tsync"

// Config is the resolved configuration.
type Config struct {
	StateDir     string             `mapstructure:"state_dir" yaml:"state_dir"`
	Remote       RemoteConfig       `mapstructure:"remote" yaml:"remote"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard" yaml:"dashboard"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// RemoteConfig selects the remote task store.
type RemoteConfig struct {
	Driver       string        `mapstructure:"driver" yaml:"driver"`
	DSN          string        `mapstructure:"dsn" yaml:"dsn"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	AutoMigrate  bool          `mapstructure:"auto_migrate" yaml:"auto_migrate"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// Configured reports whether a remote store has been set up.
func (r RemoteConfig) Configured() bool {
	return r.Driver != "" && r.DSN != ""
}

// CacheConfig locates the local cache database.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ConnectivityConfig picks how online state is decided.
type ConnectivityConfig struct {
	Mode      string        `mapstructure:"mode" yaml:"mode"`
	ProbeAddr string        `mapstructure:"probe_addr" yaml:"probe_addr"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	Marker    string        `mapstructure:"marker" yaml:"marker"`
}

// DashboardConfig configures the daemon's HTTP server.
type DashboardConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LogConfig configures the shared log writer.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultStateDir is ~/.tsync, or .tsync when there is no home directory.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".tsync"
	}
	return filepath.Join(home, ".tsync")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state_dir", DefaultStateDir())

	v.SetDefault("remote.driver", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("remote.auto_migrate", true)
	v.SetDefault("remote.max_open_conns", 10)

	v.SetDefault("cache.path", "")

	v.SetDefault("connectivity.mode", "online")
	v.SetDefault("connectivity.probe_addr", "")
	v.SetDefault("connectivity.interval", 15*time.Second)
	v.SetDefault("connectivity.marker", "")

	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 8080)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
}

// Load resolves the configuration. An empty path searches the state
// directory for tsync.toml or tsync.yaml; a missing file there is fine, but
// an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(v.GetString("state_dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	if err := cfg.resolve(); err != nil {
		panic(fmt.Sprintf("config defaults are invalid: %v", err))
	}
	return &cfg
}

// resolve validates cfg and fills paths derived from the state directory.
func (c *Config) resolve() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir cannot be empty")
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(c.StateDir, "cache.db")
	}
	if c.Connectivity.Marker == "" {
		c.Connectivity.Marker = filepath.Join(c.StateDir, "offline")
	}

	mode, err := connectivity.ParseMode(strings.ToLower(strings.TrimSpace(c.Connectivity.Mode)))
	if err != nil {
		return err
	}
	c.Connectivity.Mode = mode
	if mode == "probe" && c.Connectivity.ProbeAddr == "" {
		return fmt.Errorf("connectivity.probe_addr is required when connectivity.mode is probe")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard.port %d", c.Dashboard.Port)
	}
	return nil
}

// WriteDefault writes the default configuration to path as TOML. It
// refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(fileFormat(Default())); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileFormat is cfg as written to disk: durations as strings, derived
// paths left out so they keep following state_dir.
func fileFormat(cfg *Config) map[string]any {
	return map[string]any{
		"remote": map[string]any{
			"driver":         cfg.Remote.Driver,
			"dsn":            cfg.Remote.DSN,
			"timeout":        cfg.Remote.Timeout.String(),
			"auto_migrate":   cfg.Remote.AutoMigrate,
			"max_open_conns": cfg.Remote.MaxOpenConns,
		},
		"connectivity": map[string]any{
			"mode":       cfg.Connectivity.Mode,
			"probe_addr": cfg.Connectivity.ProbeAddr,
			"interval":   cfg.Connectivity.Interval.String(),
		},
		"dashboard": map[string]any{
			"host": cfg.Dashboard.Host,
			"port": cfg.Dashboard.Port,
		},
		"log": map[string]any{
			"file":         cfg.Log.File,
			"max_size_mb":  cfg.Log.MaxSizeMB,
			"max_backups":  cfg.Log.MaxBackups,
			"max_age_days": cfg.Log.MaxAgeDays,
			"compress":     cfg.Log.Compress,
		},
	}
}
