package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.SaveInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"localhost:5173", "localhost:3000"}, cfg.OriginPatterns())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SAVE_INTERVAL", "500ms")
	t.Setenv("ALLOWED_ORIGINS", "*")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.SaveInterval)
	assert.Equal(t, []string{"*"}, cfg.OriginPatterns())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadRejects(t *testing.T) {
	t.Setenv("SAVE_INTERVAL", "0s")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SAVE_INTERVAL", "1s")
	t.Setenv("PORT", "eighty")
	_, err = Load()
	assert.Error(t, err)
}
