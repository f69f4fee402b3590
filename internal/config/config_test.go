// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "1", cfg.FinePerDay.String())
	assert.Equal(t, 14, cfg.DefaultLoanDays)
	assert.Equal(t, 30, cfg.MaxLoanDays)
	assert.Equal(t, 7, cfg.ReservationDays)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE", StorageMemory)
	t.Setenv("FINE_PER_DAY", "0.25")
	t.Setenv("DEFAULT_LOAN_DAYS", "21")
	t.Setenv("SWEEP_INTERVAL", "15m")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("LIBRARY_TIMEZONE", "Europe/Berlin")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "0.25", cfg.FinePerDay.String())
	assert.Equal(t, 21, cfg.DefaultLoanDays)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown storage", "STORAGE", "sqlite"},
		{"negative fine", "FINE_PER_DAY", "-1"},
		{"unparsable fine", "FINE_PER_DAY", "lots"},
		{"default above max", "DEFAULT_LOAN_DAYS", "31"},
		{"zero reservation window", "RESERVATION_DAYS", "0"},
		{"unknown time zone", "LIBRARY_TIMEZONE", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("does-not-exist.env")
			assert.Error(t, err)
		})
	}
}

func TestGetEnvFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_BOOL", "maybe")
	t.Setenv("SOME_DURATION", "soon")

	assert.Equal(t, 3, GetEnvInt("SOME_INT", 3))
	assert.False(t, GetEnvBool("SOME_BOOL", false))
	assert.Equal(t, time.Second, GetEnvDuration("SOME_DURATION", time.Second))
}
