package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8083", cfg.Port)
	require.Equal(t, "test-secret", cfg.JWTSecret)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Empty(t, cfg.AMQPURL)
	require.False(t, cfg.OTEL.Enabled)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9000")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, 30*time.Minute, cfg.TokenTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.True(t, cfg.OTEL.Enabled)
	require.InDelta(t, 0.25, cfg.OTEL.SampleRatio, 1e-9)
}

func TestLoadRejectsBadSampleRatio(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.5")

	_, err := Load()
	require.Error(t, err)
}
