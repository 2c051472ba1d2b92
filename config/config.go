/*
config.go - Runtime configuration

PURPOSE:
  Loads the settings of the planning server and CLI from, in increasing
  priority: built-in defaults, an optional YAML file, a .env file and
  PLANNING_* environment variables.

ENVIRONMENT:
  Keys map to variables by upper-casing and replacing dots with
  underscores:
    server.port           -> PLANNING_SERVER_PORT
    database.dsn          -> PLANNING_DATABASE_DSN
    counters.annual_days  -> PLANNING_COUNTERS_ANNUAL_DAYS

SEE ALSO:
  - logging/logging.go: consumes Log
  - cmd/planning/main.go: --config flag
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/villacare/planning-engine/counter"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PLANNING"

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Planning  PlanningConfig  `mapstructure:"planning"`
	Counters  CountersConfig  `mapstructure:"counters"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Addr is the listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	File   string `mapstructure:"file"`
}

type PlanningConfig struct {
	Timezone string `mapstructure:"timezone" validate:"required,timezone"`
}

// Location loads the planning time zone.
func (c PlanningConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type CountersConfig struct {
	AnnualDays         float64 `mapstructure:"annual_days" validate:"gte=0"`
	PeriodicDays       float64 `mapstructure:"periodic_days" validate:"gte=0"`
	PeriodicStartMonth int     `mapstructure:"periodic_start_month" validate:"min=1,max=12"`
	MaxCarryover       float64 `mapstructure:"max_carryover" validate:"gte=0"`
}

// Allocation converts the counter settings for the ledger.
func (c CountersConfig) Allocation() counter.Allocation {
	return counter.Allocation{
		AnnualDays:   decimal.NewFromFloat(c.AnnualDays),
		PeriodicDays: decimal.NewFromFloat(c.PeriodicDays),
		MaxCarryover: decimal.NewFromFloat(c.MaxCarryover),
	}
}

// Periods builds the period calculator in loc.
func (c CountersConfig) Periods(loc *time.Location) counter.Periods {
	return counter.Periods{
		PeriodicStartMonth: time.Month(c.PeriodicStartMonth),
		Location:           loc,
	}
}

type SchedulerConfig struct {
	RolloverEnabled bool          `mapstructure:"rollover_enabled"`
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// =============================================================================
// LOADING
// =============================================================================

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "planning.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("planning.timezone", "Europe/Paris")

	v.SetDefault("counters.annual_days", 218)
	v.SetDefault("counters.periodic_days", 25)
	v.SetDefault("counters.periodic_start_month", 6)
	v.SetDefault("counters.max_carryover", 0)

	v.SetDefault("scheduler.rollover_enabled", false)
	v.SetDefault("scheduler.interval", time.Hour)
}

// Load reads the configuration. path names an optional YAML file; an empty
// path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
