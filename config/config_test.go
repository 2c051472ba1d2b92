package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "planning.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "Europe/Paris", cfg.Planning.Timezone)
	assert.Equal(t, 6, cfg.Counters.PeriodicStartMonth)
	assert.False(t, cfg.Scheduler.RolloverEnabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)

	alloc := cfg.Counters.Allocation()
	assert.True(t, alloc.AnnualDays.Equal(decimal.NewFromInt(218)))
	assert.True(t, alloc.PeriodicDays.Equal(decimal.NewFromInt(25)))
	assert.True(t, alloc.MaxCarryover.IsZero())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planning.yaml")
	content := `
server:
  port: 9090
  write_timeout: 30s
database:
  driver: postgres
  dsn: postgres://planning@localhost/planning
log:
  format: json
counters:
  annual_days: 210
  periodic_start_month: 1
  max_carryover: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "json", cfg.Log.Format)

	periods := cfg.Counters.Periods(time.UTC)
	assert.Equal(t, time.January, periods.PeriodicStartMonth)
	assert.True(t, cfg.Counters.Allocation().MaxCarryover.Equal(decimal.NewFromInt(5)))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("PLANNING_SERVER_PORT", "7070")
	t.Setenv("PLANNING_SCHEDULER_ROLLOVER_ENABLED", "true")
	t.Setenv("PLANNING_PLANNING_TIMEZONE", "UTC")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Scheduler.RolloverEnabled)

	loc, err := cfg.Planning.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"PLANNING_DATABASE_DRIVER": "mysql"}},
		{"bad log format", map[string]string{"PLANNING_LOG_FORMAT": "xml"}},
		{"bad timezone", map[string]string{"PLANNING_PLANNING_TIMEZONE": "Mars/Olympus"}},
		{"bad start month", map[string]string{"PLANNING_COUNTERS_PERIODIC_START_MONTH": "13"}},
		{"port out of range", map[string]string{"PLANNING_SERVER_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
