// Package credcache persists the refresh token from a successful sign-in
// so the next start can bootstrap without an interactive flow.
//
// The cache lives at ~/.signon/credentials.json with 0600 permissions.
// It implements the hosted provider's TokenStore hook.
package credcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credentials is the on-disk credential record.
type Credentials struct {
	// RefreshToken is redeemed at the identity service on the next start.
	RefreshToken string `json:"refresh_token"`

	// Email identifies whose credentials these are, for display only.
	Email string `json:"email,omitempty"`

	// ObtainedAt is when the credentials were saved.
	ObtainedAt time.Time `json:"obtained_at"`
}

// Cache reads and writes the credential file.
type Cache struct {
	path string
}

// New creates a Cache at the given file path.
func New(path string) *Cache {
	return &Cache{path: path}
}

// NewAt creates a Cache at dir/credentials.json.
func NewAt(dir string) *Cache {
	return New(filepath.Join(dir, "credentials.json"))
}

// Path returns the credential file location.
func (c *Cache) Path() string {
	return c.path
}

// Save writes the credentials, creating the parent directory if needed.
func (c *Cache) Save(creds Credentials) error {
	if creds.ObtainedAt.IsZero() {
		creds.ObtainedAt = time.Now()
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// Load reads the cached credentials. Returns ok=false when no cache
// exists or it cannot be parsed; a corrupt cache is treated as absent.
func (c *Cache) Load() (Credentials, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return Credentials{}, false
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, false
	}
	if creds.RefreshToken == "" {
		return Credentials{}, false
	}
	return creds, true
}

// Clear removes the credential file. Clearing an absent cache is not an
// error.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// SaveToken implements hosted.TokenStore.
func (c *Cache) SaveToken(refreshToken, email string) error {
	return c.Save(Credentials{RefreshToken: refreshToken, Email: email})
}

// ClearToken implements hosted.TokenStore.
func (c *Cache) ClearToken() error {
	return c.Clear()
}
