// Package config loads service configuration from defaults, an optional
// config file, environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the service configuration. It is intended to be mapped by viper.
type Config struct {
	MmdbPath     string        `mapstructure:"mmdb_path"`
	Port         int           `mapstructure:"port"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	LogLevel     string        `mapstructure:"log_level"`
	VerifyOnOpen bool          `mapstructure:"verify_on_open"`
	Watch        bool          `mapstructure:"watch"`
	Debounce     time.Duration `mapstructure:"watch_debounce"`
	Metrics      bool          `mapstructure:"metrics"`
}

// envBindings keeps the plain environment variable names the service has
// always used.
var envBindings = map[string]string{
	"mmdb_path":      "MMDB_PATH",
	"port":           "PORT",
	"grpc_port":      "GRPC_PORT",
	"log_level":      "LOG_LEVEL",
	"verify_on_open": "VERIFY_ON_OPEN",
	"watch":          "WATCH",
	"watch_debounce": "WATCH_DEBOUNCE",
	"metrics":        "METRICS",
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"db":        "mmdb_path",
	"port":      "port",
	"grpc-port": "grpc_port",
	"log-level": "log_level",
	"verify":    "verify_on_open",
	"watch":     "watch",
	"metrics":   "metrics",
}

// DefaultViper returns a new viper instance with all default values and
// environment bindings set.
func DefaultViper() *viper.Viper {
	vip := viper.New()

	vip.SetDefault("mmdb_path", "")
	vip.SetDefault("port", 8080)
	vip.SetDefault("grpc_port", 0)
	vip.SetDefault("log_level", "info")
	vip.SetDefault("verify_on_open", false)
	vip.SetDefault("watch", false)
	vip.SetDefault("watch_debounce", "500ms")
	vip.SetDefault("metrics", true)

	for key, env := range envBindings {
		// BindEnv only fails when called without a key.
		_ = vip.BindEnv(key, env)
	}

	return vip
}

// BindFlags makes any of the known flags present in fs override their
// config keys when set.
func BindFlags(vip *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := vip.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional config file and unmarshals vip into a Config.
func Load(vip *viper.Viper, file string) (*Config, error) {
	if file != "" {
		vip.SetConfigFile(file)
		if err := vip.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values a lookup service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.MmdbPath == "" {
		errs = append(errs, errors.New("MMDB_PATH environment variable is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid grpc port %d", c.GRPCPort))
	}
	if c.GRPCPort != 0 && c.GRPCPort == c.Port {
		errs = append(errs, errors.New("http and grpc ports must differ"))
	}
	return errors.Join(errs...)
}

// Level converts the configured log level to slog.Level.
func (c *Config) Level() slog.Level {
	return ParseLevel(c.LogLevel)
}

// ParseLevel converts string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
