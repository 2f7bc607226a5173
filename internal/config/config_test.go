package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	assert.Equal(t, Duration(30*time.Second), cfg.CallTimeout)
	assert.Equal(t, Duration(5*time.Minute), cfg.InteractiveTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFrom_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
issuer: https://id.example.com
client_id: signon-cli
tenant_id: acme
redirect_port: 8976
call_timeout: 10s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "https://id.example.com", cfg.Issuer)
	assert.Equal(t, "signon-cli", cfg.ClientID)
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, 8976, cfg.RedirectPort)
	assert.Equal(t, Duration(10*time.Second), cfg.CallTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults survive a partial file.
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("issuer: https://file.example.com\nclient_id: from-file\n"), 0o600))

	t.Setenv("SIGNON_ISSUER", "https://env.example.com")
	t.Setenv("SIGNON_BOOTSTRAP_TOKEN", "tok-123")
	t.Setenv("SIGNON_LOG_LEVEL", "warn")
	t.Setenv("SIGNON_CALL_TIMEOUT", "45s")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Issuer)
	assert.Equal(t, "from-file", cfg.ClientID)
	assert.Equal(t, "tok-123", cfg.BootstrapToken)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, Duration(45*time.Second), cfg.CallTimeout)
}

func TestLoadFrom_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("issuer: [unclosed"), 0o600))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestLoadFrom_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("call_timeout: banana\n"), 0o600))

	_, err := LoadFrom(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.Issuer = "https://id.example.com"
	assert.Error(t, cfg.Validate())

	cfg.ClientID = "signon-cli"
	assert.NoError(t, cfg.Validate())
}
