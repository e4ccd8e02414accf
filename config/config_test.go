package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafeelangel/mesalista/config"
	"github.com/cafeelangel/mesalista/reservation"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 7, cfg.UpcomingWindowDays)
	assert.Equal(t, 60*time.Second, cfg.UpcomingCacheTTL)
	assert.Equal(t, reservation.OverpaymentAllow, cfg.Overpayment())
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OVERPAYMENT_POLICY", "reject")
	t.Setenv("UPCOMING_CACHE_TTL", "5m")
	t.Setenv("TIMEZONE", "America/Mexico_City")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, reservation.OverpaymentReject, cfg.Overpayment())
	assert.Equal(t, 5*time.Minute, cfg.UpcomingCacheTTL)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", loc.String())
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("UPCOMING_WINDOW_DAYS=14\nEVENTS_QUEUE=reservas\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("UPCOMING_WINDOW_DAYS")
		os.Unsetenv("EVENTS_QUEUE")
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.UpcomingWindowDays)
	assert.Equal(t, "reservas", cfg.EventsQueue)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"OVERPAYMENT_POLICY":   "sometimes",
		"UPCOMING_WINDOW_DAYS": "0",
		"TIMEZONE":             "Mars/Olympus",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
