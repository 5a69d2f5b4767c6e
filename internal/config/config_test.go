package config

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Endpoint:        "https://api.shop.example",
		Token:           "tok_secret",
		MaxUploadFiles:  DefaultMaxUploadFiles,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		HistoryPageSize: DefaultHistoryPageSize,
		LogLevel:        "info",
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("nil config", func(t *testing.T) {
		var cfg *Config
		assert.ErrorIs(t, cfg.Validate(), ErrConfigNil)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Endpoint = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingEndpoint)
	})

	t.Run("invalid endpoint URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Endpoint = "not a url"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidEndpoint)
	})

	t.Run("empty token is allowed", func(t *testing.T) {
		cfg := validConfig()
		cfg.Token = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero upload file cap", func(t *testing.T) {
		cfg := validConfig()
		cfg.MaxUploadFiles = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidUploadLimit)
	})

	t.Run("negative upload byte cap", func(t *testing.T) {
		cfg := validConfig()
		cfg.MaxUploadBytes = -1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidUploadLimit)
	})

	t.Run("page size bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.HistoryPageSize = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPageSize)

		cfg.HistoryPageSize = MaxHistoryPageSize + 1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPageSize)

		cfg.HistoryPageSize = MaxHistoryPageSize
		assert.NoError(t, cfg.Validate())
	})
}

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := validConfig()
		cfg.LogLevel = tt.in
		assert.Equal(t, tt.want, cfg.Level(), "level %q", tt.in)
	}
}

func TestMarshalJSONMasksToken(t *testing.T) {
	data, err := json.Marshal(validConfig())
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, "tok_secret")
	assert.Contains(t, s, `"token":"***"`)
}
