// Package config provides configuration loading from environment
// variables, YAML files, and struct tag defaults for the identity
// backend. Values are resolved in priority order:
//
//	envDefault struct tags  (lowest priority)
//	YAML config file        (medium priority)
//	Environment variables   (highest priority)
//
// Sensible defaults are baked into the code, a config file provides
// environment-specific overrides, and env vars (from the deployment
// environment) take final precedence.
//
// # Struct Tags
//
// The loader uses three struct tags to control behavior:
//
//   - `env:"VAR_NAME"` — maps the field to an environment variable
//   - `envDefault:"value"` — sets a default when the field is zero-valued
//   - `required:"true"` — fails validation if the field remains zero after loading
//
// Fields must also carry `yaml` tags for file-based loading.
//
// # Usage
//
//	type ServerConfig struct {
//	    Host string `env:"HOST" envDefault:"0.0.0.0" yaml:"host"`
//	    Port int    `env:"PORT" envDefault:"8080" yaml:"port" required:"true"`
//	}
//
//	cfg := config.MustLoad[ServerConfig](
//	    config.New().WithEnvPrefix("APP").WithFile("config.yaml"),
//	)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperr "github.com/benseddik/idp-backend/pkg/errors"
)

// durationType caches the reflect.Type for time.Duration to distinguish
// it from plain int64 fields during struct traversal.
var durationType = reflect.TypeOf(time.Duration(0))

// Loader builds and executes configuration loading with a layered
// resolution strategy. Use [New] to create a Loader and configure it
// with [Loader.WithEnvPrefix] and [Loader.WithFile] before calling
// [Loader.Load].
//
// Loader is not safe for concurrent use. Create a new Loader for each
// Load call, or synchronize access externally.
type Loader struct {
	envPrefix string
	filePath  string
}

// New creates a new [Loader] with default settings: environment
// variables only, no file, no prefix.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix sets a prefix that is prepended (with an underscore
// separator) to all environment variable names derived from the "env"
// struct tag. For example, WithEnvPrefix("APP") causes a field tagged
// `env:"HOST"` to read from the APP_HOST environment variable.
//
// The prefix is automatically uppercased. An empty prefix disables
// prefixing. WithEnvPrefix returns the Loader for fluent chaining.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets the path to a YAML configuration file (.yaml or .yml).
// If the file does not exist, loading proceeds without file-based
// values; file configuration is optional.
//
// The file path must not contain directory traversal sequences ("..").
// WithFile returns the Loader for fluent chaining.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load populates the given struct pointer with configuration values
// resolved in priority order (highest wins):
//
//  1. envDefault struct tags (lowest priority)
//  2. YAML file values (if configured with [Loader.WithFile])
//  3. Environment variables from "env" struct tags (highest priority)
//
// After loading, the struct is validated: fields tagged `required:"true"`
// must hold non-zero values, and if the struct implements [Validator],
// its Validate method is called.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return apperr.New(apperr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return apperr.New(apperr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	if err := applyEnv(rv, l.envPrefix); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad is a generic convenience function that creates a zero-valued
// instance of T, loads configuration into it, and returns the populated
// value. It panics if loading or validation fails.
//
// Use MustLoad in application startup where a missing or invalid
// configuration should prevent the process from starting.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// loadFile reads a YAML file and unmarshals it into the config struct.
// Missing files are silently ignored.
func (l *Loader) loadFile(cfg any) error {
	// Security: reject directory traversal sequences.
	if strings.Contains(l.filePath, "..") {
		return apperr.New(apperr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	ext := strings.ToLower(filepath.Ext(l.filePath))
	if ext != ".yaml" && ext != ".yml" {
		return apperr.Newf(apperr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml or .yml)", ext)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
			"config: failed to parse YAML file %q", l.filePath)
	}

	return nil
}

// applyDefaults recursively traverses the struct and sets fields to
// their envDefault tag values when the field holds its zero value.
func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}

		tag := sf.Tag.Get("envDefault")
		if tag == "" {
			continue
		}

		if !field.IsZero() {
			continue
		}

		if err := setField(field, tag); err != nil {
			return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}

	return nil
}

// applyEnv recursively traverses the struct and sets fields from
// environment variables specified by the "env" struct tag. For nested
// structs, the parent's env tag value is prepended as a prefix (joined
// with "_") to the child's env tag.
func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := sf.Tag.Get("env")

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			nestedPrefix := prefix
			if envTag != "" {
				if nestedPrefix != "" {
					nestedPrefix = nestedPrefix + "_" + envTag
				} else {
					nestedPrefix = envTag
				}
			}
			if err := applyEnv(field, nestedPrefix); err != nil {
				return err
			}
			continue
		}

		if envTag == "" {
			continue
		}

		envKey := envTag
		if prefix != "" {
			envKey = prefix + "_" + envTag
		}

		val, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}

		if err := setField(field, val); err != nil {
			return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, envKey)
		}
	}

	return nil
}

// setField parses the string value and sets the reflect.Value according
// to its kind. Supported types:
//
//   - string (and named string types like postgres.Secret)
//   - bool
//   - int, int8, int16, int32, int64
//   - time.Duration (parsed with time.ParseDuration)
//   - []string (comma-separated, whitespace-trimmed)
func setField(field reflect.Value, value string) error {
	// time.Duration before the int64 case: its underlying kind is int64
	// but it requires time.ParseDuration.
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bitSize := field.Type().Bits()
		n, err := strconv.ParseInt(value, 10, bitSize)
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		// reflect.MakeSlice with the field's actual type supports named
		// slice types; reflect.ValueOf(parts) would panic on Set when
		// the field type differs from []string.
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}

	return nil
}
