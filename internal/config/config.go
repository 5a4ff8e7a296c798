// apps/go-server/internal/config/config.go
//
// Environment configuration for the server.
// Values come from the process environment (optionally seeded from .env by
// main) and are decoded with envdecode struct tags. Every field has a
// development default so a bare `go run .` works.

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Backends for the remote round store.
const (
	BackendSQL      = "sql"
	BackendSupabase = "supabase"
)

// Config holds every tunable of the server.
type Config struct {
	Port         string `env:"PORT,default=5175"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	Env          string `env:"APP_ENV,default=development"`
	ClientOrigin string `env:"CLIENT_ORIGIN,default=http://localhost:5173"`

	JWTSecret     string `env:"JWT_SECRET,default=dev_secret_change_me"`
	AuthCookie    string `env:"AUTH_COOKIE,default=golf_token"`
	SessionCookie string `env:"SESSION_COOKIE,default=golf_session"`

	Backend     string `env:"ROUND_BACKEND,default=sql"`
	DBDriver    string `env:"DB_DRIVER,default=sqlite3"`
	DatabaseURL string `env:"DATABASE_URL,default=./data/golf.db"`
	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_KEY"`
	RedisURL    string `env:"REDIS_URL"`

	SaveWatchdog   time.Duration `env:"SAVE_WATCHDOG,default=10s"`
	HoleWriteRate  float64       `env:"HOLE_WRITE_RATE,default=5"`
	HoleWriteBurst int           `env:"HOLE_WRITE_BURST,default=10"`

	CourseSeedFile string `env:"COURSE_SEED_FILE"`
}

// Load decodes Config from the environment and validates it.
func Load() (*Config, error) {
	var c Config
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQL:
		switch c.DBDriver {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
		}
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL required")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("config: SUPABASE_URL and SUPABASE_KEY required for supabase backend")
		}
	default:
		return fmt.Errorf("config: unsupported ROUND_BACKEND %q", c.Backend)
	}
	if c.SaveWatchdog <= 0 {
		return errors.New("config: SAVE_WATCHDOG must be positive")
	}
	if c.HoleWriteRate <= 0 || c.HoleWriteBurst <= 0 {
		return errors.New("config: HOLE_WRITE_RATE and HOLE_WRITE_BURST must be positive")
	}
	return nil
}

// Production reports whether cookies should be Secure/SameSite=None.
func (c *Config) Production() bool { return c.Env == "production" }
