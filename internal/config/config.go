package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBolt     = "bolt"

	// devRememberMeKey is only accepted when ENV=development.
	devRememberMeKey = "remember-me-key"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	StoreDriver        string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	BoltPath           string        `mapstructure:"BOLT_PATH"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
	AutoMigrate        bool          `mapstructure:"AUTO_MIGRATE"`
	RememberMeKey      string        `mapstructure:"REMEMBER_ME_KEY"`
	RememberMeValidity int           `mapstructure:"REMEMBER_ME_VALIDITY"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	LoginSuccessURL    string        `mapstructure:"LOGIN_SUCCESS_URL"`
	BcryptCost         int           `mapstructure:"BCRYPT_COST"`
	CSRFEnabled        bool          `mapstructure:"CSRF_ENABLED"`
	CookieSecure       bool          `mapstructure:"COOKIE_SECURE"`
	SeedDemoData       bool          `mapstructure:"SEED_DEMO_DATA"`
	// LoginRateLimit is the per-IP POST /login rate in requests per second; 0 disables it.
	LoginRateLimit float64 `mapstructure:"LOGIN_RATE_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", StoreDriverBolt)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("BOLT_PATH", "data/patients.db")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("REMEMBER_ME_VALIDITY", 40000)
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("LOGIN_SUCCESS_URL", "/")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CSRF_ENABLED", true)
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("SEED_DEMO_DATA", false)
	v.SetDefault("LOGIN_RATE_LIMIT", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"BOLT_PATH", "MIGRATIONS_DIR", "AUTO_MIGRATE", "REMEMBER_ME_KEY",
		"REMEMBER_ME_VALIDITY", "SESSION_TTL", "LOGIN_SUCCESS_URL", "BCRYPT_COST",
		"CSRF_ENABLED", "COOKIE_SECURE", "SEED_DEMO_DATA", "LOGIN_RATE_LIMIT",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.IsDev() && cfg.RememberMeKey == "" {
		cfg.RememberMeKey = devRememberMeKey
		log.Println("WARNING: REMEMBER_ME_KEY not set, using the development signing key.")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RememberMeDuration converts REMEMBER_ME_VALIDITY (seconds) to a duration.
func (c *Config) RememberMeDuration() time.Duration {
	return time.Duration(c.RememberMeValidity) * time.Second
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StoreDriverPostgres)
		}
	case StoreDriverBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required when STORE_DRIVER is %q", StoreDriverBolt)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverBolt, c.StoreDriver)
	}

	if c.RememberMeKey == "" {
		return fmt.Errorf("REMEMBER_ME_KEY is required outside development (current ENV=%q)", c.Env)
	}
	if !c.IsDev() && c.RememberMeKey == devRememberMeKey {
		return fmt.Errorf("REMEMBER_ME_KEY must not use the development key when ENV=%q", c.Env)
	}
	if c.RememberMeValidity <= 0 {
		return fmt.Errorf("REMEMBER_ME_VALIDITY must be positive, got %d", c.RememberMeValidity)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if !strings.HasPrefix(c.LoginSuccessURL, "/") {
		return fmt.Errorf("LOGIN_SUCCESS_URL must be a local path, got %q", c.LoginSuccessURL)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.LoginRateLimit < 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must not be negative, got %v", c.LoginRateLimit)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
