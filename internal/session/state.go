package session

import "github.com/signonhq/signon/internal/idp"

// Phase is the controller's top-level session state. Exactly one phase
// holds at any time.
type Phase int

// Session phases
const (
	// PhaseLoading means a sign-in or sign-out is being resolved.
	PhaseLoading Phase = iota

	// PhaseAuthenticated means the provider reported an active session.
	PhaseAuthenticated

	// PhaseUnauthenticated means there is no active session.
	PhaseUnauthenticated
)

// String returns the phase name for logs and rendering.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of the session, handed to subscribers on
// every transition.
//
// Identity is non-nil if and only if Phase is PhaseAuthenticated.
// LastError is presentational only; it never drives phase transitions.
type State struct {
	// Phase is the current session phase.
	Phase Phase

	// Identity is the signed-in user, present only in PhaseAuthenticated.
	Identity *idp.Identity

	// LastError is a human-readable message from the most recent failed
	// command. Cleared on every provider session-change event.
	LastError string
}
