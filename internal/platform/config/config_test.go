package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, 60*time.Second, cfg.OTPResendCooldown)
	assert.Equal(t, 24*time.Hour, cfg.GrantTTL)
	assert.Equal(t, 3*time.Second, cfg.DraftSaveDelay)
	assert.Equal(t, 5*time.Minute, cfg.ClockResyncInterval)
	assert.Equal(t, time.Second, cfg.SessionTickInterval)
	assert.Equal(t, "gateway:sweep_lock", cfg.SweepLockKey)
	assert.Equal(t, "+91", cfg.DefaultCountryCode)
	assert.True(t, cfg.TreatPublishedAsUpcoming)
	assert.Equal(t, 24*time.Hour, cfg.JWTExp)
	assert.Equal(t, []byte("defaultsecret"), cfg.JWTKey)
	assert.Contains(t, cfg.DBConnStr, "dbname=challenge_gateway")
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DRAFT_SAVE_DELAY", "500ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.DraftSaveDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.JWTExp)
}

func TestParseRejectsBadValues(t *testing.T) {
	t.Run("rate", func(t *testing.T) {
		t.Setenv("OTP_SEND_RATE_PER_MINUTE", "0")
		_, err := Parse()
		assert.Error(t, err)
	})
	t.Run("timezone", func(t *testing.T) {
		t.Setenv("DISPLAY_TIMEZONE", "Mars/Olympus")
		_, err := Parse()
		assert.Error(t, err)
	})
}
