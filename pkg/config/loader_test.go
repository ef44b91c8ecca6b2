package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

// testSecret mimics the client packages' Secret types: a named string
// type with a redacted String() method. Verifies that setField works for
// named string types without importing a client package.
type testSecret string

func (s testSecret) String() string { return "[REDACTED]" }
func (s testSecret) Value() string  { return string(s) }

type serverTestConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0" yaml:"host"`
	Port            int           `env:"PORT" envDefault:"8080" yaml:"port"`
	TLSEnabled      bool          `env:"TLS_ENABLED" envDefault:"false" yaml:"tls_enabled"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdown_timeout"`
}

type requiredTestConfig struct {
	Realm string `env:"REALM" required:"true"`
	Port  int    `env:"PORT"`
}

type secretTestConfig struct {
	Host   string     `env:"HOST"`
	Secret testSecret `env:"SECRET"`
}

type nestedTestConfig struct {
	App      string           `env:"APP" yaml:"app"`
	Keycloak keycloakTestConf `env:"KEYCLOAK" yaml:"keycloak"`
}

type keycloakTestConf struct {
	BaseURL string `env:"BASE_URL" yaml:"base_url"`
	Realm   string `env:"REALM" yaml:"realm"`
}

type issuersTestConfig struct {
	Issuers []string `env:"ISSUERS" envDefault:"https://a.example.com,https://b.example.com"`
}

type validatableTestConfig struct {
	Port int `env:"PORT"`
}

func (c *validatableTestConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return apperr.Newf(apperr.CodeValidation,
			"config: port %d is out of range [1, 65535]", c.Port)
	}
	return nil
}

type validatableStdlibConfig struct {
	Name string `env:"NAME"`
}

func (c *validatableStdlibConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// writeTestFile creates a file in the test's temp directory and returns
// its path. The test is failed if the file cannot be written.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTestFile() error: %v", err)
	}
	return path
}

// ===========================================================================
// Loader Builder Tests
// ===========================================================================

func TestNew_ReturnsNonNilLoader(t *testing.T) {
	if New() == nil {
		t.Fatal("New() = nil, want non-nil Loader")
	}
}

func TestLoader_Chaining(t *testing.T) {
	l := New()
	if l.WithEnvPrefix("APP") != l {
		t.Error("WithEnvPrefix() did not return the same Loader")
	}
	if l.WithFile("config.yaml") != l {
		t.Error("WithFile() did not return the same Loader")
	}
}

// ===========================================================================
// Load — Input Validation Tests
// ===========================================================================

func TestLoader_Load_NilPointer(t *testing.T) {
	err := New().Load((*serverTestConfig)(nil))
	if err == nil {
		t.Fatal("Load(nil) expected error, got nil")
	}
	if !apperr.IsInternal(err) {
		t.Error("IsInternal() = false, want true for nil pointer")
	}
}

func TestLoader_Load_NonPointer(t *testing.T) {
	err := New().Load(serverTestConfig{})
	if err == nil {
		t.Fatal("Load(struct) expected error, got nil")
	}
	if !apperr.IsInternal(err) {
		t.Error("IsInternal() = false, want true for non-pointer")
	}
}

func TestLoader_Load_PointerToNonStruct(t *testing.T) {
	n := 42
	if err := New().Load(&n); err == nil {
		t.Fatal("Load(*int) expected error, got nil")
	}
}

// ===========================================================================
// Load — envDefault Tag Tests
// ===========================================================================

func TestLoader_Load_Defaults_Applied(t *testing.T) {
	var cfg serverTestConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want %q", cfg.Host, "0.0.0.0")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.TLSEnabled {
		t.Error("TLSEnabled = true, want false")
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
}

func TestLoader_Load_Defaults_NotOverwriteExisting(t *testing.T) {
	cfg := serverTestConfig{Host: "idp.internal", Port: 9090}
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Host != "idp.internal" {
		t.Errorf("Host = %q, want preset value kept", cfg.Host)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want preset value kept", cfg.Port)
	}
}

func TestLoader_Load_Defaults_StringSlice(t *testing.T) {
	var cfg issuersTestConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Issuers) != len(want) {
		t.Fatalf("Issuers = %v, want %v", cfg.Issuers, want)
	}
	for i := range want {
		if cfg.Issuers[i] != want[i] {
			t.Errorf("Issuers[%d] = %q, want %q", i, cfg.Issuers[i], want[i])
		}
	}
}

// ===========================================================================
// Load — File Tests
// ===========================================================================

func TestLoader_Load_YAMLFile(t *testing.T) {
	path := writeTestFile(t, "config.yaml", "host: keycloak.internal\nport: 9443\ntls_enabled: true\n")

	var cfg serverTestConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Host != "keycloak.internal" {
		t.Errorf("Host = %q, want %q", cfg.Host, "keycloak.internal")
	}
	if cfg.Port != 9443 {
		t.Errorf("Port = %d, want 9443", cfg.Port)
	}
	if !cfg.TLSEnabled {
		t.Error("TLSEnabled = false, want true")
	}
	// Fields absent from the file keep their defaults.
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 15s", cfg.ShutdownTimeout)
	}
}

func TestLoader_Load_MissingFile_NoError(t *testing.T) {
	var cfg serverTestConfig
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() with missing file error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
}

func TestLoader_Load_UnsupportedExtension(t *testing.T) {
	path := writeTestFile(t, "config.toml", "host = 'x'\n")

	var cfg serverTestConfig
	err := New().WithFile(path).Load(&cfg)
	if err == nil {
		t.Fatal("Load() expected error for unsupported extension, got nil")
	}
	if got := apperr.GetCode(err); got != apperr.CodeInternalConfiguration {
		t.Errorf("got code %q, want %q", got, apperr.CodeInternalConfiguration)
	}
}

func TestLoader_Load_DirectoryTraversal(t *testing.T) {
	var cfg serverTestConfig
	err := New().WithFile("../../etc/passwd.yaml").Load(&cfg)
	if err == nil {
		t.Fatal("Load() expected error for traversal path, got nil")
	}
	if !strings.Contains(err.Error(), "traversal") {
		t.Errorf("error %q should mention traversal", err)
	}
}

func TestLoader_Load_InvalidYAML(t *testing.T) {
	path := writeTestFile(t, "config.yaml", "host: [unclosed\n")

	var cfg serverTestConfig
	if err := New().WithFile(path).Load(&cfg); err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

// ===========================================================================
// Load — Environment Variable Tests
// ===========================================================================

func TestLoader_Load_EnvOverridesFile(t *testing.T) {
	path := writeTestFile(t, "config.yaml", "host: from-file\nport: 1111\n")
	t.Setenv("HOST", "from-env")

	var cfg serverTestConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Host != "from-env" {
		t.Errorf("Host = %q, want env value to win", cfg.Host)
	}
	if cfg.Port != 1111 {
		t.Errorf("Port = %d, want file value kept when env unset", cfg.Port)
	}
}

func TestLoader_Load_EnvPrefix(t *testing.T) {
	t.Setenv("IDP_HOST", "prefixed-host")
	t.Setenv("HOST", "unprefixed-host")

	var cfg serverTestConfig
	if err := New().WithEnvPrefix("idp").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Host != "prefixed-host" {
		t.Errorf("Host = %q, want prefixed env var (prefix uppercased)", cfg.Host)
	}
}

func TestLoader_Load_SecretFromEnv(t *testing.T) {
	t.Setenv("SECRET", "hunter2")

	var cfg secretTestConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Secret.Value() != "hunter2" {
		t.Errorf("Secret.Value() = %q, want %q", cfg.Secret.Value(), "hunter2")
	}
	if cfg.Secret.String() != "[REDACTED]" {
		t.Errorf("Secret.String() = %q, want redacted", cfg.Secret.String())
	}
}

func TestLoader_Load_NestedStruct_Env(t *testing.T) {
	t.Setenv("KEYCLOAK_BASE_URL", "https://kc.example.com")
	t.Setenv("KEYCLOAK_REALM", "app")

	var cfg nestedTestConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Keycloak.BaseURL != "https://kc.example.com" {
		t.Errorf("Keycloak.BaseURL = %q, want nested env applied", cfg.Keycloak.BaseURL)
	}
	if cfg.Keycloak.Realm != "app" {
		t.Errorf("Keycloak.Realm = %q, want %q", cfg.Keycloak.Realm, "app")
	}
}

func TestLoader_Load_InvalidInt_FromEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	var cfg serverTestConfig
	err := New().Load(&cfg)
	if err == nil {
		t.Fatal("Load() expected error for invalid int, got nil")
	}
	if got := apperr.GetCode(err); got != apperr.CodeInternalConfiguration {
		t.Errorf("got code %q, want %q", got, apperr.CodeInternalConfiguration)
	}
}

func TestLoader_Load_InvalidDuration_FromEnv(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "fifteen seconds")

	var cfg serverTestConfig
	if err := New().Load(&cfg); err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
}

// ===========================================================================
// Load — Validation Tests
// ===========================================================================

func TestLoader_Load_RequiredField_Missing(t *testing.T) {
	var cfg requiredTestConfig
	err := New().Load(&cfg)
	if err == nil {
		t.Fatal("Load() expected error for missing required field, got nil")
	}
	if got := apperr.GetCode(err); got != apperr.CodeValidationRequired {
		t.Errorf("got code %q, want %q", got, apperr.CodeValidationRequired)
	}
	if !strings.Contains(err.Error(), "Realm") {
		t.Errorf("error %q should name the missing field", err)
	}
}

func TestLoader_Load_RequiredField_Set(t *testing.T) {
	t.Setenv("REALM", "app")

	var cfg requiredTestConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}

func TestLoader_Load_Validator_ReturnsError(t *testing.T) {
	t.Setenv("PORT", "99999")

	var cfg validatableTestConfig
	err := New().Load(&cfg)
	if err == nil {
		t.Fatal("Load() expected validator error, got nil")
	}
	if !apperr.IsValidation(err) {
		t.Error("IsValidation() = false, want true")
	}
}

func TestLoader_Load_Validator_StdlibError(t *testing.T) {
	var cfg validatableStdlibConfig
	err := New().Load(&cfg)
	if err == nil {
		t.Fatal("Load() expected validator error, got nil")
	}
	// Non-platform validator errors are wrapped as validation errors.
	if got := apperr.GetCode(err); got != apperr.CodeValidation {
		t.Errorf("got code %q, want %q", got, apperr.CodeValidation)
	}
}

// ===========================================================================
// MustLoad Tests
// ===========================================================================

func TestMustLoad_Success(t *testing.T) {
	t.Setenv("HOST", "idp.internal")

	cfg := MustLoad[serverTestConfig](New())
	if cfg.Host != "idp.internal" {
		t.Errorf("Host = %q, want %q", cfg.Host, "idp.internal")
	}
}

func TestMustLoad_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad should panic on a missing required field")
		}
	}()
	_ = MustLoad[requiredTestConfig](New())
}
