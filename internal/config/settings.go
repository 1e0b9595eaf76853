package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/saffron/internal/common"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultDatabasePath is where the SQLite store lives unless configured.
const DefaultDatabasePath = "$HOME/.local/share/saffron/saffron.db"

// Settings is the resolved application configuration.
type Settings struct {
	Database Database
	Logging  Logging
	Matching Matching
	Rules    Rules
	Harness  Harness
}

// Database selects and locates the store.
type Database struct {
	Driver string
	Path   string
	DSN    string
}

// Logging configures the default slog handler.
type Logging struct {
	Level  string
	Format string
}

// Matching tunes condition evaluation for every path.
type Matching struct {
	AmountTolerance float64
}

// Rules tunes rule application.
type Rules struct {
	AttachAttempts int
	AttachDelay    time.Duration
}

// Harness tunes dry runs against the store.
type Harness struct {
	Limit int
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.dsn", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("matching.amount_tolerance", 0.0)
	v.SetDefault("rules.attach_attempts", 3)
	v.SetDefault("rules.attach_delay", 50*time.Millisecond)
	v.SetDefault("harness.limit", 5)
}

// Load reads and validates settings from v.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Database: Database{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
			Path:   ExpandPath(v.GetString("database.path")),
			DSN:    v.GetString("database.dsn"),
		},
		Logging: Logging{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Matching: Matching{
			AmountTolerance: v.GetFloat64("matching.amount_tolerance"),
		},
		Rules: Rules{
			AttachAttempts: v.GetInt("rules.attach_attempts"),
			AttachDelay:    v.GetDuration("rules.attach_delay"),
		},
		Harness: Harness{
			Limit: v.GetInt("harness.limit"),
		},
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch s.Database.Driver {
	case DriverSQLite:
		if s.Database.Path == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	case DriverPostgres:
		if s.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for the postgres driver", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: database.driver %q (valid: sqlite, postgres)", common.ErrInvalidConfig, s.Database.Driver)
	}

	if s.Matching.AmountTolerance < 0 {
		return fmt.Errorf("%w: matching.amount_tolerance must not be negative", common.ErrInvalidConfig)
	}
	if s.Rules.AttachAttempts < 1 {
		return fmt.Errorf("%w: rules.attach_attempts must be at least 1", common.ErrInvalidConfig)
	}
	if s.Harness.Limit < 1 {
		return fmt.Errorf("%w: harness.limit must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
