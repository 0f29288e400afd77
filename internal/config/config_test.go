package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STRIPE_PLANS", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3, cfg.ImageMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.ImageRetryBaseDelay)
	assert.Equal(t, 6, cfg.ReferenceMaxCount)
	assert.Equal(t, 15*time.Second, cfg.AuthProviderTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "local", cfg.StorageBackend)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("IMAGE_RETRY_BASE_DELAY", "750ms")
	t.Setenv("STRIPE_PLANS", `{"pro":[{"price_id":"price_1","credits":100},{"price_id":"price_2","credits":250}]}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.ImageRetryBaseDelay)

	plans, err := cfg.Plans()
	require.NoError(t, err)
	require.Len(t, plans["pro"], 2)
	assert.Equal(t, "price_2", plans["pro"][1].PriceID)
	assert.Equal(t, 250, plans["pro"][1].Credits)
}

func TestLoad_InvalidPlans(t *testing.T) {
	t.Setenv("STRIPE_PLANS", `{"pro":`)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_PLANS")
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		c := &Config{LogLevel: in}
		assert.Equal(t, want, c.SlogLevel(), "level %q", in)
	}
}
