package hosted

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/signonhq/signon/internal/idp"
)

func defaultOpenBrowser(url string) error {
	return browser.OpenURL(url)
}

type callbackResult struct {
	code string
	err  error
}

// SignInInteractive runs the authorization-code flow with PKCE.
//
// A loopback listener receives the redirect, the user's browser is opened
// on the authorization URL, and the returned code is exchanged for
// tokens. The call resolves when the callback arrives, the context is
// cancelled (user abandoned the flow), or its deadline passes.
func (p *Provider) SignInInteractive(ctx context.Context) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.cfg.RedirectPort))
	if err != nil {
		return idp.WrapError(idp.CodeProviderFailure, "starting callback listener failed", err, map[string]interface{}{
			"port": p.cfg.RedirectPort,
		})
	}
	defer lis.Close()

	state := uuid.NewString()
	verifier, err := randomURLString(43)
	if err != nil {
		return idp.WrapError(idp.CodeProviderFailure, "generating PKCE verifier failed", err, nil)
	}

	oauthCfg := *p.oauth
	oauthCfg.RedirectURL = fmt.Sprintf("http://%s/callback", lis.Addr().String())

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", pkceChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if p.cfg.TenantID != "" {
		opts = append(opts, oauth2.SetAuthURLParam("tenant", p.cfg.TenantID))
	}
	authURL := oauthCfg.AuthCodeURL(state, opts...)

	results := make(chan callbackResult, 1)
	srv := &http.Server{Handler: p.callbackHandler(state, results)}
	go srv.Serve(lis) //nolint:errcheck // shut down via Close below
	defer srv.Close()

	// Opening the browser can block on some platforms; never let it
	// wedge the flow.
	go func() {
		if err := p.openBrowser(authURL); err != nil {
			p.logger.WithError(err).Warn("could not open browser, navigate to the authorization URL manually", "url", authURL)
		}
	}()
	p.logger.Info("waiting for sign-in in browser", "url", authURL)

	var code string
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return idp.NewError(idp.CodeUserCancelled, "sign-in flow abandoned", nil)
		}
		return idp.WrapError(idp.CodeProviderFailure, "interactive sign-in timed out", ctx.Err(), nil)
	case res := <-results:
		if res.err != nil {
			return res.err
		}
		code = res.code
	}

	exchangeCtx := p.clientContext(ctx)
	tok, err := oauthCfg.Exchange(exchangeCtx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return idp.WrapError(idp.CodeProviderFailure, "authorization code exchange failed", err, nil)
	}

	identity, err := p.identityFromToken(exchangeCtx, tok)
	if err != nil {
		return err
	}

	if p.cfg.TokenStore != nil && tok.RefreshToken != "" {
		if err := p.cfg.TokenStore.SaveToken(tok.RefreshToken, identity.Email); err != nil {
			p.logger.WithError(err).Warn("caching credentials failed")
		}
	}

	p.setSession(identity, tok)
	return nil
}

// callbackHandler terminates the redirect leg of the flow. The first
// valid callback wins; anything else gets a 404.
func (p *Provider) callbackHandler(state string, results chan<- callbackResult) http.Handler {
	var once sync.Once
	deliver := func(res callbackResult) {
		once.Do(func() { results <- res })
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()

		if errCode := q.Get("error"); errCode != "" {
			desc := q.Get("error_description")
			if desc == "" {
				desc = errCode
			}
			writeCallbackPage(w, "Sign-in was not completed. You can close this window.")
			if errCode == "access_denied" {
				deliver(callbackResult{err: idp.NewError(idp.CodeUserCancelled, desc, nil)})
			} else {
				deliver(callbackResult{err: idp.NewError(idp.CodeProviderFailure, desc, map[string]interface{}{
					"error": errCode,
				})})
			}
			return
		}

		if q.Get("state") != state {
			writeCallbackPage(w, "Sign-in failed: state mismatch. You can close this window.")
			deliver(callbackResult{err: idp.NewError(idp.CodeProviderFailure, "authorization state mismatch", nil)})
			return
		}

		code := q.Get("code")
		if code == "" {
			writeCallbackPage(w, "Sign-in failed: no authorization code. You can close this window.")
			deliver(callbackResult{err: idp.NewError(idp.CodeProviderFailure, "authorization response carried no code", nil)})
			return
		}

		writeCallbackPage(w, "Signed in. You can close this window and return to the terminal.")
		deliver(callbackResult{code: code})
	})
}

func writeCallbackPage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><body><p>%s</p></body></html>", msg)
}
