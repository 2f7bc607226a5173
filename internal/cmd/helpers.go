package cmd

import (
	"context"
	"fmt"

	"github.com/signonhq/signon/internal/config"
	"github.com/signonhq/signon/internal/credcache"
	"github.com/signonhq/signon/internal/idp"
	"github.com/signonhq/signon/internal/idp/hosted"
	"github.com/signonhq/signon/internal/log"
)

// loadConfig reads the config (honoring --config) and installs the
// configured logger as the process default.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	log.SetDefault(log.New(log.Config{
		Level:  log.ParseLevel(cfg.Log.Level),
		Format: log.ParseFormat(cfg.Log.Format),
	}))

	return cfg, nil
}

// newCredCache returns the credential cache under the signon config dir.
func newCredCache() (*credcache.Cache, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return credcache.NewAt(dir), nil
}

// buildHostedProvider validates the config and connects to the identity
// service.
func buildHostedProvider(ctx context.Context, cfg config.Config, store hosted.TokenStore) (idp.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := hosted.NewProvider(ctx, hosted.Config{
		Issuer:       cfg.Issuer,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TenantID:     cfg.TenantID,
		Scopes:       cfg.Scopes,
		RedirectPort: cfg.RedirectPort,
		TokenStore:   store,
		Logger:       log.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to identity service: %w", err)
	}
	return provider, nil
}
