// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (CHATKIT_* runtime override)
//  2. Config file (~/.chatkit/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Assistant: base endpoint and bearer token for the assistant backend
//   - Uploads: attachment count and cumulative size caps
//   - History: backward-pagination page size
//   - Log: level and format
//
// Error Handling:
//   - Sentinel errors for Go-idiomatic checking with errors.Is()
//   - Wrapped with context using fmt.Errorf("...: %w", err)
//
// Security: the bearer token is never logged and is masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingEndpoint indicates the assistant endpoint is not set.
	ErrMissingEndpoint = errors.New("missing assistant endpoint")

	// ErrInvalidEndpoint indicates the assistant endpoint is not a valid URL.
	ErrInvalidEndpoint = errors.New("invalid assistant endpoint")

	// ErrMissingToken indicates the bearer token is not set.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidUploadLimit indicates an upload cap is out of range.
	ErrInvalidUploadLimit = errors.New("invalid upload limit")

	// ErrInvalidPageSize indicates the history page size is out of range.
	ErrInvalidPageSize = errors.New("invalid history page size")
)

const (
	// DefaultMaxUploadFiles is the maximum number of attachments per message.
	DefaultMaxUploadFiles = 5

	// DefaultMaxUploadBytes is the cumulative attachment size cap (25 MiB).
	DefaultMaxUploadBytes int64 = 25 << 20

	// DefaultHistoryPageSize is the number of messages fetched per history page.
	DefaultHistoryPageSize = 20

	// MaxHistoryPageSize is the absolute maximum page size accepted by the backend.
	MaxHistoryPageSize = 100
)

// Config stores application configuration.
// SECURITY: the Token field is masked in MarshalJSON(). When adding new
// sensitive fields, update MarshalJSON.
type Config struct {
	// Assistant backend
	Endpoint string `mapstructure:"endpoint" json:"endpoint"` // Base URL, e.g. "https://api.shop.example"
	Token    string `mapstructure:"token" json:"token"`       // SENSITIVE: masked in MarshalJSON

	// Upload caps enforced before any network call
	MaxUploadFiles int   `mapstructure:"max_upload_files" json:"max_upload_files"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`

	// History pagination
	HistoryPageSize int `mapstructure:"history_page_size" json:"history_page_size"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // "debug", "info", "warn", "error"
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".chatkit")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "http://localhost:8080")
	v.SetDefault("max_upload_files", DefaultMaxUploadFiles)
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("history_page_size", DefaultHistoryPageSize)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds CHATKIT_* environment variables.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("CHATKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate checks the configuration for invalid values.
// The token is not required here: commands that talk to the backend check it
// themselves so read-only commands (version) work without one.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.Endpoint)
	}

	if c.MaxUploadFiles < 1 {
		return fmt.Errorf("%w: max_upload_files must be >= 1, got %d", ErrInvalidUploadLimit, c.MaxUploadFiles)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("%w: max_upload_bytes must be >= 1, got %d", ErrInvalidUploadLimit, c.MaxUploadBytes)
	}

	if c.HistoryPageSize < 1 || c.HistoryPageSize > MaxHistoryPageSize {
		return fmt.Errorf("%w: history_page_size must be in [1, %d], got %d",
			ErrInvalidPageSize, MaxHistoryPageSize, c.HistoryPageSize)
	}

	return nil
}

// Level parses the configured log level. Unknown values fall back to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MarshalJSON masks sensitive fields.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := *c
	if masked.Token != "" {
		masked.Token = "***"
	}
	return json.Marshal((*alias)(&masked))
}
