package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const devJWTSecret = "dev-secret-change-in-production"

const minProductionSecretLength = 32

// Config holds runtime settings. Values come from defaults, an optional YAML
// file named by CONFIG_FILE and then the environment, later sources winning.
type Config struct {
	Port      string `yaml:"port" env:"PORT"`
	Env       string `yaml:"env" env:"ENV"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	DatabaseDriver  string        `yaml:"database_driver" env:"DATABASE_DRIVER"`
	DatabaseDSN     string        `yaml:"database_dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int           `yaml:"db_max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"db_max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"db_conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"db_auto_migrate" env:"DB_AUTO_MIGRATE"`

	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiry time.Duration `yaml:"jwt_expiry" env:"JWT_EXPIRY"`

	SessionTransport string `yaml:"session_transport" env:"SESSION_TRANSPORT"`
	CookieSecure     bool   `yaml:"cookie_secure" env:"COOKIE_SECURE"`
	CookieSameSite   string `yaml:"cookie_same_site" env:"COOKIE_SAME_SITE"`
	CookieDomain     string `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// TrustProxy takes the client IP from X-Forwarded-For and friends. Enable
	// only behind a reverse proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Port:      "8080",
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "",

		DatabaseDriver:  "mysql",
		DatabaseDSN:     "root:password@tcp(127.0.0.1:3306)/resumeai?parseTime=true",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,

		JWTSecret: devJWTSecret,
		JWTExpiry: 30 * 24 * time.Hour,

		SessionTransport: "cookie",
		CookieSameSite:   "strict",

		RateLimitRPS:   5,
		RateLimitBurst: 10,

		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration and validates it.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment reports whether internal error details may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}

	switch c.SessionTransport {
	case "cookie", "bearer":
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_TRANSPORT %q", c.SessionTransport))
	}

	switch strings.ToLower(c.CookieSameSite) {
	case "strict", "lax", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown COOKIE_SAME_SITE %q", c.CookieSameSite))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTExpiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.IsProduction() {
		if c.JWTSecret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production environment"))
		} else if len(c.JWTSecret) < minProductionSecretLength {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLength))
		}
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger: JSON in production, text elsewhere,
// unless LOG_FORMAT says otherwise.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}

	format := c.LogFormat
	if format == "" {
		format = "text"
		if c.IsProduction() {
			format = "json"
		}
	}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
