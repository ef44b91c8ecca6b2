package minio

import (
	"errors"
	"strings"
	"time"
)

// maxStatementTruncateLen is the maximum length for operation descriptions
// recorded in OpenTelemetry trace spans. Statements longer than this are
// truncated to prevent object keys containing PII from leaking into
// telemetry systems.
const maxStatementTruncateLen = 100

// Default configuration settings.
const (
	// DefaultEndpoint is the default MinIO endpoint for local
	// development.
	DefaultEndpoint = "localhost:9000"

	// DefaultRegion is the default S3 region for MinIO.
	DefaultRegion = "us-east-1"

	// DefaultBucket is the bucket holding uploaded media objects.
	DefaultBucket = "media"

	// DefaultUseSSL disables application-level TLS by default; direct
	// internet-facing deployments should set UseSSL to true.
	DefaultUseSSL = false

	// DefaultHealthTimeout is the maximum time for a health check probe
	// when the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string type that prevents accidental logging of sensitive
// values such as MinIO secret keys. Its String and GoString methods
// return a redacted placeholder; use [Secret.Value] for the actual value.
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
// so the secret never appears in serialized configuration.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config holds the MinIO object storage connection configuration for the
// media store.
type Config struct {
	// Endpoint is the MinIO server hostname and port (e.g.,
	// "localhost:9000").
	Endpoint string `yaml:"endpoint,omitempty" env:"MINIO_ENDPOINT"`

	// PublicEndpoint is the base URL clients use to fetch objects, when
	// it differs from Endpoint (e.g., a CDN or reverse proxy in front
	// of the store). When empty, public URLs are built from Endpoint
	// and UseSSL.
	PublicEndpoint string `yaml:"public_endpoint,omitempty" env:"MINIO_PUBLIC_ENDPOINT"`

	// AccessKey is the MinIO access key for authentication.
	AccessKey string `yaml:"access_key,omitempty" env:"MINIO_ACCESS_KEY"`

	// SecretKey is the MinIO secret key. Uses the [Secret] type to
	// prevent accidental logging.
	SecretKey Secret `yaml:"-" env:"MINIO_SECRET_KEY"`

	// Region is the S3 region for the MinIO server.
	Region string `yaml:"region,omitempty" env:"MINIO_REGION"`

	// Bucket is the bucket holding uploaded media objects. The client
	// creates it at startup if it does not exist.
	Bucket string `yaml:"bucket,omitempty" env:"MINIO_BUCKET"`

	// UseSSL enables TLS for the connection to MinIO.
	UseSSL bool `yaml:"use_ssl,omitempty" env:"MINIO_USE_SSL"`
}

// DefaultConfig returns a Config with default values. Callers should
// override fields as needed before passing the config to [NewClient].
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Region:   DefaultRegion,
		Bucket:   DefaultBucket,
		UseSSL:   DefaultUseSSL,
	}
}

// Validate checks the configuration for invalid values and applies
// defaults for zero-valued fields.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: config endpoint must not be empty")
	}
	if c.AccessKey == "" {
		return errors.New("minio: config access_key must not be empty")
	}
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	return nil
}

// publicBaseURL returns the base URL under which stored objects are
// publicly reachable, without a trailing slash.
func (c *Config) publicBaseURL() string {
	if c.PublicEndpoint != "" {
		return strings.TrimRight(c.PublicEndpoint, "/")
	}
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.Endpoint
}

// truncateStatement truncates an operation description to
// [maxStatementTruncateLen] runes for safe inclusion in OpenTelemetry
// trace spans. The truncation is rune-aware to avoid splitting multi-byte
// UTF-8 characters.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
