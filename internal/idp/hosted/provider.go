// Package hosted implements the identity-provider capability against a
// hosted OIDC identity service.
//
// Configuration is discovered from the issuer's .well-known endpoint.
// Interactive sign-in runs the authorization-code flow with PKCE through
// the user's browser and a loopback callback listener. The provider owns
// the current session and reports every change through its session feed;
// the session controller consumes it as a black box.
package hosted

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/signonhq/signon/internal/idp"
	"github.com/signonhq/signon/internal/log"
)

// TokenStore persists the refresh token from a successful sign-in so the
// next start can bootstrap without an interactive flow.
type TokenStore interface {
	SaveToken(refreshToken, email string) error
	ClearToken() error
}

// Config holds the identity service connection settings.
type Config struct {
	// Issuer is the OIDC issuer URL of the identity service.
	Issuer string

	// ClientID identifies this application at the identity service.
	ClientID string

	// ClientSecret is optional; public clients rely on PKCE. When set it
	// also enables the client-credentials guest sign-in.
	ClientSecret string

	// TenantID is forwarded as a request parameter when set.
	TenantID string

	// Scopes requested during sign-in. Defaults to openid profile email.
	Scopes []string

	// RedirectPort is the loopback port for the interactive callback.
	// Zero picks an ephemeral port.
	RedirectPort int

	// TokenStore, when set, receives the refresh token after a
	// successful interactive sign-in and is cleared on sign-out.
	TokenStore TokenStore

	// HTTPClient overrides the HTTP client used for all identity service
	// calls. Intended for tests.
	HTTPClient *http.Client

	// OpenBrowser overrides how the authorization URL is opened.
	// Intended for tests; defaults to the OS browser.
	OpenBrowser func(url string) error

	// Logger defaults to the process logger.
	Logger *log.Logger
}

// Provider is a hosted-service implementation of idp.Provider.
type Provider struct {
	cfg           Config
	logger        *log.Logger
	oidcProvider  *oidc.Provider
	oauth         *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	openBrowser   func(url string) error

	mu       sync.Mutex
	identity *idp.Identity
	token    *oauth2.Token
	inFlight bool
	subs     map[int]func(*idp.Identity)
	nextSub  int
}

var _ idp.Provider = (*Provider)(nil)

// NewProvider discovers the identity service's endpoints and returns a
// ready provider. No session exists until one of the sign-in calls
// succeeds.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" {
		return nil, idp.NewError(idp.CodeProviderUnavailable, "issuer is required", nil)
	}
	if cfg.ClientID == "" {
		return nil, idp.NewError(idp.CodeProviderUnavailable, "client ID is required", nil)
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	discoveryCtx := ctx
	if cfg.HTTPClient != nil {
		discoveryCtx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	oidcProvider, err := oidc.NewProvider(discoveryCtx, cfg.Issuer)
	if err != nil {
		return nil, idp.WrapError(idp.CodeProviderUnavailable, "identity service discovery failed", err, map[string]interface{}{
			"issuer": cfg.Issuer,
		})
	}

	// The revocation endpoint is optional discovery metadata; sign-out
	// degrades to a local clear when the service does not advertise one.
	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	_ = oidcProvider.Claims(&extra)

	openBrowser := cfg.OpenBrowser
	if openBrowser == nil {
		openBrowser = defaultOpenBrowser
	}

	return &Provider{
		cfg:    cfg,
		logger: cfg.Logger,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		oidcProvider:  oidcProvider,
		verifier:      oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		revocationURL: extra.RevocationEndpoint,
		openBrowser:   openBrowser,
		subs:          make(map[int]func(*idp.Identity)),
	}, nil
}

// SignInWithToken redeems a bootstrap refresh token for a session.
func (p *Provider) SignInWithToken(ctx context.Context, token string) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	if reason, ok := rejectBootstrapToken(token); ok {
		return idp.NewError(idp.CodeProviderUnavailable, reason, nil)
	}

	ctx = p.clientContext(ctx)
	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: token})
	tok, err := src.Token()
	if err != nil {
		return idp.WrapError(idp.CodeProviderUnavailable, "bootstrap token exchange failed", err, nil)
	}

	identity, err := p.identityFromToken(ctx, tok)
	if err != nil {
		return err
	}

	p.setSession(identity, tok)
	return nil
}

// SignInAnonymously establishes a guest session. With client credentials
// configured, the identity service is asked for a guest token; without
// them the guest session is purely local. Either way the session feed
// reports absence: guests have no identity, and the login screen treats
// them as signed out.
func (p *Provider) SignInAnonymously(ctx context.Context) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	var tok *oauth2.Token
	if p.cfg.ClientSecret != "" {
		cc := clientcredentials.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			TokenURL:     p.oauth.Endpoint.TokenURL,
		}
		var err error
		tok, err = cc.Token(p.clientContext(ctx))
		if err != nil {
			return idp.WrapError(idp.CodeProviderUnavailable, "guest sign-in failed", err, nil)
		}
	}

	p.logger.Debug("guest session established")
	p.setSession(nil, tok)
	return nil
}

// SignOut revokes the current token and clears the session. Revocation
// failures leave the session intact so the caller can retry.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	p.mu.Lock()
	tok := p.token
	p.mu.Unlock()

	if p.revocationURL != "" && tok != nil && tok.RefreshToken != "" {
		if err := p.revoke(ctx, tok.RefreshToken); err != nil {
			return err
		}
	}

	if p.cfg.TokenStore != nil {
		if err := p.cfg.TokenStore.ClearToken(); err != nil {
			p.logger.WithError(err).Warn("clearing cached credentials failed")
		}
	}

	p.setSession(nil, nil)
	return nil
}

// SubscribeSessionChange implements idp.Provider. The subscriber receives
// the current session immediately, then every change.
func (p *Provider) SubscribeSessionChange(fn func(*idp.Identity)) idp.Unsubscribe {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	current := p.identity
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// begin gates provider calls: at most one sign-in or sign-out in flight.
func (p *Provider) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return idp.NewError(idp.CodeDuplicateRequest, "another request is already in flight", nil)
	}
	p.inFlight = true
	return nil
}

func (p *Provider) end() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}

// setSession records the session and fans the change out to subscribers.
func (p *Provider) setSession(identity *idp.Identity, tok *oauth2.Token) {
	p.mu.Lock()
	p.identity = identity
	p.token = tok
	fns := make([]func(*idp.Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}

// identityFromToken builds the Identity from the token's ID token, or
// from the userinfo endpoint when the response carried none.
func (p *Provider) identityFromToken(ctx context.Context, tok *oauth2.Token) (*idp.Identity, error) {
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, idp.WrapError(idp.CodeProviderFailure, "ID token verification failed", err, nil)
		}
		return identityFromIDToken(idToken)
	}

	info, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, idp.WrapError(idp.CodeProviderFailure, "userinfo request failed", err, nil)
	}
	var claims profileClaims
	if err := info.Claims(&claims); err != nil {
		return nil, idp.WrapError(idp.CodeProviderFailure, "userinfo claims unreadable", err, nil)
	}
	return &idp.Identity{
		ID:          info.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
	}, nil
}

type profileClaims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

func identityFromIDToken(idToken *oidc.IDToken) (*idp.Identity, error) {
	var claims profileClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, idp.WrapError(idp.CodeProviderFailure, "ID token claims unreadable", err, nil)
	}
	return &idp.Identity{
		ID:          idToken.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
	}, nil
}

// rejectBootstrapToken inspects a JWT-shaped bootstrap credential without
// verifying it, so an obviously expired token fails fast instead of
// burning a round trip. Opaque tokens pass through untouched.
func rejectBootstrapToken(token string) (string, bool) {
	if token == "" {
		return "bootstrap token is empty", true
	}
	if strings.Count(token, ".") != 2 {
		return "", false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", false
	}
	if exp.Before(time.Now()) {
		return "bootstrap token expired at " + exp.Format(time.RFC3339), true
	}
	return "", false
}

// revoke posts the token to the service's revocation endpoint.
func (p *Provider) revoke(ctx context.Context, token string) error {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"refresh_token"},
		"client_id":       {p.cfg.ClientID},
	}
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return idp.WrapError(idp.CodeProviderFailure, "building revocation request failed", err, nil)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return idp.WrapError(idp.CodeProviderFailure, "token revocation failed", err, nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return idp.NewError(idp.CodeProviderFailure, "token revocation rejected", map[string]interface{}{
			"status": resp.StatusCode,
		})
	}
	return nil
}

func (p *Provider) httpClient() *http.Client {
	if p.cfg.HTTPClient != nil {
		return p.cfg.HTTPClient
	}
	return http.DefaultClient
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.cfg.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}
	return ctx
}
