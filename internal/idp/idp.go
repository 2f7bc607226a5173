// Package idp defines the identity-provider capability consumed by the
// session controller.
//
// The provider is a black box: it owns credential validation, token
// refresh, and the interactive sign-in transport. This package only fixes
// the capability surface and the error taxonomy; concrete implementations
// live in subpackages (hosted, idptest).
package idp

import "context"

// Identity describes the user reported by the identity provider.
//
// ID is the only required field; the rest is best-effort profile data the
// presentation layer may render.
type Identity struct {
	// ID is the provider-scoped unique identifier for the user.
	ID string

	// DisplayName is the user's human-readable name, if the provider
	// reported one.
	DisplayName string

	// Email is the user's email address, if the provider reported one.
	Email string

	// AvatarURL points at the user's profile picture, if any.
	AvatarURL string
}

// Unsubscribe removes a session-change subscription. Safe to call more
// than once.
type Unsubscribe func()

// Provider is the capability set every identity backend must satisfy.
//
// All sign-in/sign-out calls are asynchronous with respect to session
// state: success means the provider accepted the request, and the
// resulting session (or its absence) is reported through the
// session-change feed. Implementations must be safe for concurrent use.
type Provider interface {
	// SignInWithToken exchanges an externally supplied bootstrap
	// credential for a session.
	SignInWithToken(ctx context.Context, token string) error

	// SignInAnonymously establishes a guest session with no credential.
	SignInAnonymously(ctx context.Context) error

	// SignInInteractive runs the provider's interactive sign-in flow.
	// Returns a ProviderError with code CodeUserCancelled if the user
	// abandoned the flow, and CodeDuplicateRequest if another
	// interactive flow is already running.
	SignInInteractive(ctx context.Context) error

	// SignOut terminates the current session.
	SignOut(ctx context.Context) error

	// SubscribeSessionChange registers fn on the provider's session feed.
	// fn is invoked immediately with the current session (nil when there
	// is none), then on every subsequent change. The returned handle
	// removes the subscription.
	SubscribeSessionChange(fn func(*Identity)) Unsubscribe
}
