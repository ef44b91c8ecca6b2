// Package redis provides the Redis client backing the distributed rate
// limiter, with OpenTelemetry tracing and structured error handling.
//
// The client wraps go-redis (github.com/redis/go-redis/v9) and adds
// tracing and error classification transparently to all operations.
// Connection pooling, reconnection, and retry are handled internally by
// go-redis.
//
// Create a client using [NewClient] with a [Config]:
//
//	cfg := redis.DefaultConfig()
//	cfg.Password = redis.Secret(os.Getenv("REDIS_PASSWORD"))
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// For testing, use [NewFromClient] to inject a mock:
//
//	mock := &mockCmdable{}
//	client := redis.NewFromClient(mock, &redis.Config{DB: 0})
//
// All operations create OpenTelemetry spans with standard database
// semantic attributes (db.system, db.redis.database_index,
// db.statement). Statements are truncated to 100 characters in spans to
// prevent sensitive data leakage.
package redis

import (
	"fmt"
	"net/url"
	"time"
)

// maxStatementTruncateLen is the maximum length for Redis command
// statements recorded in OpenTelemetry trace spans. Statements longer
// than this are truncated to prevent sensitive data from leaking into
// telemetry systems.
const maxStatementTruncateLen = 100

// Default connection pool and timeout settings.
const (
	// DefaultHost is the default Redis server hostname.
	DefaultHost = "localhost"

	// DefaultPort is the standard Redis port.
	DefaultPort = 6379

	// DefaultDB is the default Redis database index. Redis supports
	// databases numbered 0-15 by default.
	DefaultDB = 0

	// DefaultPoolSize is the maximum number of connections in the pool.
	DefaultPoolSize = 25

	// DefaultMinIdleConns is the minimum number of idle connections
	// maintained in the pool. Keeping idle connections avoids the
	// latency of establishing new connections for burst traffic.
	DefaultMinIdleConns = 5

	// DefaultMaxRetries is the maximum number of retries before giving
	// up on a command. Set to 3 to handle transient network failures.
	DefaultMaxRetries = 3

	// DefaultDialTimeout is the maximum time to wait when establishing
	// a new connection to Redis.
	DefaultDialTimeout = 10 * time.Second

	// DefaultReadTimeout is the maximum time to wait for a read
	// response from Redis.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum time to wait for a write to
	// complete on the Redis connection.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultHealthTimeout is the maximum time for a health check ping
	// when the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string type that prevents accidental logging of sensitive
// values such as Redis passwords. Its [Secret.String] and
// [Secret.GoString] methods return a redacted placeholder. Use
// [Secret.Value] to retrieve the actual secret value.
type Secret string

// redacted is the placeholder string returned by Secret's string methods.
const redacted = "[REDACTED]"

// String returns "[REDACTED]" to prevent accidental logging of the secret.
func (s Secret) String() string {
	return redacted
}

// GoString returns "[REDACTED]" for fmt.Sprintf("%#v", secret) safety.
func (s Secret) GoString() string {
	return redacted
}

// Value returns the actual secret string. Handle the returned value with
// care; avoid logging, serializing, or storing it in plaintext.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]"
// to prevent the secret from appearing in JSON, YAML, or other
// text-based serialization formats.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config holds the Redis connection configuration. It supports both
// URI-based and structured configuration. When [Config.URI] is set, it
// takes precedence over the individual Host, Port, DB, and Password
// fields.
type Config struct {
	// URI is a Redis connection string (e.g.,
	// "redis://:password@host:6379/0"). When set, Host, Port, DB, and
	// Password are ignored. Supports both "redis://" and "rediss://"
	// (TLS) schemes.
	URI string `yaml:"uri,omitempty" env:"REDIS_URI"`

	// Host is the Redis server hostname or IP address.
	Host string `yaml:"host,omitempty" env:"REDIS_HOST"`

	// Port is the Redis server port.
	Port int `yaml:"port,omitempty" env:"REDIS_PORT"`

	// DB is the Redis database index (0-15 by default).
	DB int `yaml:"db" env:"REDIS_DB"`

	// Password is the Redis password. Uses the [Secret] type to prevent
	// accidental logging.
	Password Secret `yaml:"-" env:"REDIS_PASSWORD"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `yaml:"pool_size,omitempty" env:"REDIS_POOL_SIZE"`

	// MinIdleConns is the minimum number of idle connections maintained
	// in the pool.
	MinIdleConns int `yaml:"min_idle_conns,omitempty" env:"REDIS_MIN_IDLE_CONNS"`

	// MaxRetries is the maximum number of retries before giving up on a
	// command. Set to -1 to disable retries.
	MaxRetries int `yaml:"max_retries,omitempty" env:"REDIS_MAX_RETRIES"`

	// DialTimeout is the maximum time to wait when establishing a new
	// connection to Redis.
	DialTimeout time.Duration `yaml:"dial_timeout,omitempty" env:"REDIS_DIAL_TIMEOUT"`

	// ReadTimeout is the maximum time to wait for a read response from
	// Redis.
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty" env:"REDIS_READ_TIMEOUT"`

	// WriteTimeout is the maximum time to wait for a write to complete
	// on the Redis connection.
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" env:"REDIS_WRITE_TIMEOUT"`

	// TLSEnabled indicates whether to use TLS for the Redis connection.
	// When URI uses the "rediss://" scheme, TLS is enabled
	// automatically.
	TLSEnabled bool `yaml:"tls_enabled,omitempty" env:"REDIS_TLS_ENABLED"`
}

// DefaultConfig returns a Config with default values. Callers should
// override fields as needed before passing the config to [NewClient].
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		DB:           DefaultDB,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate checks the configuration for invalid values and applies
// defaults for zero-valued fields. Returns the first validation error
// encountered, or nil if the configuration is valid.
//
// When [Config.URI] is set, structured fields (Host, Port, DB) are not
// validated because the URI takes precedence. Pool and timeout defaults
// are always applied when zero.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: config pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.MinIdleConns < 0 {
		return fmt.Errorf("redis: config min_idle_conns must be >= 0, got %d", c.MinIdleConns)
	}
	if c.PoolSize < c.MinIdleConns {
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("redis: config dial_timeout must not be negative, got %v", c.DialTimeout)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("redis: config read_timeout must not be negative, got %v", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("redis: config write_timeout must not be negative, got %v", c.WriteTimeout)
	}

	return nil
}

// applyDefaults sets default values for zero-valued pool and timeout
// fields.
func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement truncates a Redis command statement to
// [maxStatementTruncateLen] runes for safe inclusion in OpenTelemetry
// trace spans. Truncated statements are suffixed with "..." to indicate
// truncation. The truncation is rune-aware to avoid splitting multi-byte
// UTF-8 characters.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
