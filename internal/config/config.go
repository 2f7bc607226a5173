// Package config loads the bootstrap configuration for signon.
//
// Precedence, lowest to highest: built-in defaults, ~/.signon/config.yaml,
// then SIGNON_* environment variables. The bootstrap credential is
// deliberately environment-only so it never lands in a config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes Go duration strings
// ("30s", "5m") in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// LogConfig controls the logger.
type LogConfig struct {
	// Level is the minimum level to log (debug, info, warn, error).
	Level string `yaml:"level" env:"LEVEL"`

	// Format is the log output format (text or json).
	Format string `yaml:"format" env:"FORMAT"`
}

// Config is the bootstrap configuration read once at process start.
//
// The identity service connection settings are opaque to the session
// controller; they are handed to the hosted provider as-is.
type Config struct {
	// Issuer is the identity service's OIDC issuer URL.
	Issuer string `yaml:"issuer" env:"ISSUER"`

	// ClientID identifies this application at the identity service.
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`

	// ClientSecret is optional; public clients rely on PKCE instead.
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`

	// TenantID is an optional tenant/application identifier forwarded to
	// the identity service. The session controller never reads it.
	TenantID string `yaml:"tenant_id" env:"TENANT_ID"`

	// Scopes requested during sign-in. Defaults to openid profile email.
	Scopes []string `yaml:"scopes" env:"SCOPES"`

	// RedirectPort is the loopback port for the interactive sign-in
	// callback. Zero picks an ephemeral port.
	RedirectPort int `yaml:"redirect_port" env:"REDIRECT_PORT"`

	// BootstrapToken is an externally issued credential enabling a
	// pre-authenticated start. Environment-only.
	BootstrapToken string `yaml:"-" env:"BOOTSTRAP_TOKEN"`

	// CallTimeout bounds every identity-service call.
	CallTimeout Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`

	// InteractiveTimeout bounds the browser sign-in flow end to end.
	InteractiveTimeout Duration `yaml:"interactive_timeout" env:"INTERACTIVE_TIMEOUT"`

	// Log configures logging.
	Log LogConfig `yaml:"log" envPrefix:"LOG_"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Scopes:             []string{"openid", "profile", "email"},
		CallTimeout:        Duration(30 * time.Second),
		InteractiveTimeout: Duration(5 * time.Minute),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dir returns the signon configuration directory (~/.signon).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".signon"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads configuration from the default path plus the environment.
func Load() (Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from path (which may not exist) and
// overlays SIGNON_* environment variables.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// No file is fine; defaults plus environment apply.
	default:
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	opts := env.Options{
		Prefix: "SIGNON_",
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(Duration(0)): func(v string) (any, error) {
				parsed, err := time.ParseDuration(v)
				if err != nil {
					return nil, fmt.Errorf("invalid duration %q: %w", v, err)
				}
				return Duration(parsed), nil
			},
		},
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	return cfg, nil
}

// Validate checks that the identity service connection is usable.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required (set issuer in config.yaml or SIGNON_ISSUER)")
	}
	if c.ClientID == "" {
		return errors.New("client_id is required (set client_id in config.yaml or SIGNON_CLIENT_ID)")
	}
	return nil
}
