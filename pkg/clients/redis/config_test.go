package redis

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDB, cfg.DB)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultMinIdleConns, cfg.MinIdleConns)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:   "redis URI scheme",
			mutate: func(cfg *Config) { cfg.URI = "redis://:pw@localhost:6379/0" },
		},
		{
			name:   "rediss URI scheme",
			mutate: func(cfg *Config) { cfg.URI = "rediss://:pw@localhost:6380/1" },
		},
		{
			name:    "unknown URI scheme",
			mutate:  func(cfg *Config) { cfg.URI = "http://localhost:6379" },
			wantErr: "scheme must be redis:// or rediss://",
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.Port = 70000 },
			wantErr: "port must be between",
		},
		{
			name:    "negative min idle conns",
			mutate:  func(cfg *Config) { cfg.MinIdleConns = -1 },
			wantErr: "min_idle_conns must be >= 0",
		},
		{
			name: "pool smaller than min idle",
			mutate: func(cfg *Config) {
				cfg.PoolSize = 2
				cfg.MinIdleConns = 10
			},
			wantErr: "pool_size (2) must be >= min_idle_conns (10)",
		},
		{
			name:    "negative dial timeout",
			mutate:  func(cfg *Config) { cfg.DialTimeout = -time.Second },
			wantErr: "dial_timeout must not be negative",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestConfigValidate_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
}

func TestSecretRedaction(t *testing.T) {
	t.Parallel()

	secret := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", secret))

	text, err := secret.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(text))

	assert.Equal(t, "hunter2", secret.Value())
}

func TestTruncateStatement(t *testing.T) {
	t.Parallel()

	short := "GET session:abc"
	assert.Equal(t, short, truncateStatement(short))

	long := "SET " + strings.Repeat("k", 200)
	truncated := truncateStatement(long)
	assert.Len(t, []rune(truncated), maxStatementTruncateLen+len("..."))
	assert.True(t, strings.HasSuffix(truncated, "..."))
}
