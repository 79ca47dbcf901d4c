package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/errors"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.80, cfg.ConfidenceThreshold)
	assert.Equal(t, 9, cfg.Planner.WorkdayStartHour)
	assert.Equal(t, 22, cfg.Planner.WorkdayEndHour)
	assert.Equal(t, "00:30", cfg.Planner.SleepStart)
	assert.Equal(t, "08:00", cfg.Planner.SleepEnd)
	assert.Equal(t, 240, cfg.Planner.MaxDeepWorkMinutesPerDay)
	assert.Equal(t, 90, cfg.Planner.BreakEveryMinutes)
	assert.Equal(t, 10, cfg.Planner.BreakDurationMinutes)
	assert.Equal(t, 23, cfg.Planner.AvoidAfterHour)
	assert.Equal(t, 45, cfg.Planner.FreeSpaceBufferMinutes)
	assert.Equal(t, 10, cfg.Sync.ActivePollingMinutes)
	assert.Equal(t, 15, cfg.Sync.NormalPollingMinutes)
	assert.Equal(t, 45, cfg.Sync.IdlePollingMinutes)
	assert.Equal(t, 120, cfg.Sync.MaxBackoffMinutes)
}

func TestValidateFailsFast(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing database path", func(c *Config) { c.DatabasePath = "" }, "database_path"},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"inverted workday", func(c *Config) { c.Planner.WorkdayStartHour = 23 }, "planner"},
		{"empty calendar name", func(c *Config) { c.ManagedCalendarName = "" }, "managed_calendar_name"},
		{"zero polling", func(c *Config) { c.Sync.ActivePollingMinutes = 0 }, "sync"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.DatabasePath = "/tmp/mira.db"
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var confErr *errors.ConfigurationError
			require.ErrorAs(t, err, &confErr)
			assert.Equal(t, tc.field, confErr.Field)
		})
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
database_path: ` + filepath.Join(dir, "mira.db") + `
confidence_threshold: 0.65
planner:
  workday_start_hour: 8
sync:
  idle_polling_minutes: 60
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values win over defaults.
	assert.Equal(t, 0.65, cfg.ConfidenceThreshold)
	assert.Equal(t, 8, cfg.Planner.WorkdayStartHour)
	assert.Equal(t, 60, cfg.Sync.IdlePollingMinutes)
	// Untouched fields keep defaults.
	assert.Equal(t, 22, cfg.Planner.WorkdayEndHour)
	assert.Equal(t, 10, cfg.Sync.ActivePollingMinutes)
	// Log dir falls back beside the database.
	assert.Equal(t, dir, cfg.LogDir)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("confidence_threshold: 2.0\ndatabase_path: x.db\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	var confErr *errors.ConfigurationError
	assert.ErrorAs(t, err, &confErr)
}
