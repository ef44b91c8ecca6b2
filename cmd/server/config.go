package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/benseddik/idp-backend/internal/keycloak"
	"github.com/benseddik/idp-backend/pkg/auth"
	"github.com/benseddik/idp-backend/pkg/clients/minio"
	"github.com/benseddik/idp-backend/pkg/clients/postgres"
	"github.com/benseddik/idp-backend/pkg/clients/redis"
	apperr "github.com/benseddik/idp-backend/pkg/errors"
	"github.com/benseddik/idp-backend/pkg/ratelimit"
)

// appConfig is the full server configuration, assembled from struct tag
// defaults, an optional YAML file (CONFIG_FILE), and environment
// variables.
type appConfig struct {
	Server    serverConfig         `yaml:"server"`
	Log       logConfig            `yaml:"log"`
	Auth      auth.ValidatorConfig `yaml:"auth"`
	Keycloak  keycloak.Config      `yaml:"keycloak"`
	Postgres  postgres.Config      `yaml:"postgres"`
	Minio     minio.Config         `yaml:"minio"`
	Redis     redis.Config         `yaml:"redis"`
	RateLimit rateLimitConfig      `yaml:"ratelimit"`
}

// serverConfig holds the HTTP listener settings.
type serverConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `yaml:"port" env:"SERVER_PORT" envDefault:"8080"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`

	// ShutdownTimeout bounds how long in-flight requests may take to
	// drain after a termination signal.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// AllowedOrigins are the origins granted cross-origin access to the
	// API. Empty keeps the API same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS"`
}

// Addr returns the host:port listen address.
func (c *serverConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// logConfig holds the structured logging settings.
type logConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	Level string `yaml:"level" env:"LOG_LEVEL" envDefault:"info"`

	// Format selects the handler: "json" for production, "text" for
	// local development.
	Format string `yaml:"format" env:"LOG_FORMAT" envDefault:"json"`
}

// rateLimitConfig wraps the limiter settings with backend selection.
type rateLimitConfig struct {
	// Enabled toggles the rate limiting middleware entirely.
	Enabled bool `yaml:"enabled" env:"RATELIMIT_ENABLED" envDefault:"true"`

	// Backend is "memory" for per-instance token buckets or "redis"
	// for a fixed-window limit shared across replicas.
	Backend string `yaml:"backend" env:"RATELIMIT_BACKEND" envDefault:"memory"`

	Limits ratelimit.Config `yaml:",inline"`
}

// Validate cross-checks the composed configuration beyond what each
// section validates on client construction.
func (c *appConfig) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return apperr.Newf(apperr.CodeValidation,
			"config: unknown log level %q (use debug, info, warn, or error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return apperr.Newf(apperr.CodeValidation,
			"config: unknown log format %q (use json or text)", c.Log.Format)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return apperr.Newf(apperr.CodeValidation,
			"config: server port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory", "redis":
		default:
			return apperr.Newf(apperr.CodeValidation,
				"config: unknown rate limit backend %q (use memory or redis)", c.RateLimit.Backend)
		}
	}
	return nil
}

// newLogger builds the process slog.Logger from the log section.
func newLogger(cfg logConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
