// Package session implements the client-side session state machine behind
// the login screen.
//
// The Controller owns a single State, mirrors the identity provider's
// session feed into it, and exposes the two commands the presentation
// layer may invoke: RequestSignIn and RequestSignOut. At most one command
// is in flight at a time; the provider's session-change feed is the
// authoritative source of truth for the phase, with last-write-wins
// semantics between command results and feed events.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/signonhq/signon/internal/idp"
	"github.com/signonhq/signon/internal/log"
)

// DefaultCallTimeout bounds every provider call so the UI cannot sit in
// PhaseLoading forever behind an unresponsive provider.
const DefaultCallTimeout = 30 * time.Second

// DefaultInteractiveTimeout bounds the interactive sign-in flow. It is
// much longer than DefaultCallTimeout: the user is typing a password in
// a browser somewhere.
const DefaultInteractiveTimeout = 5 * time.Minute

const (
	cmdSignIn  = "sign-in"
	cmdSignOut = "sign-out"
)

// Controller drives the session state machine.
//
// Create with New, then call Start once. All methods are safe for
// concurrent use; state updates are serialized internally and fan out to
// subscribers in apply order.
type Controller struct {
	provider           idp.Provider
	logger             *log.Logger
	callTimeout        time.Duration
	interactiveTimeout time.Duration
	bootstrapToken     string

	mu          sync.Mutex
	state       State
	settled     bool   // a provider event has taken authority over the phase
	eventSeq    uint64 // provider events applied so far
	inFlight    string // "", cmdSignIn or cmdSignOut
	prevState   State  // state when the in-flight command began
	subscribers map[int]func(State)
	nextSub     int
	unsubscribe idp.Unsubscribe
	started     bool
	closed      bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithCallTimeout sets the deadline applied to non-interactive provider
// calls. A zero or negative value disables the deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) { c.callTimeout = d }
}

// WithInteractiveTimeout sets the deadline for the interactive sign-in
// flow. A zero or negative value disables the deadline.
func WithInteractiveTimeout(d time.Duration) Option {
	return func(c *Controller) { c.interactiveTimeout = d }
}

// WithBootstrapToken supplies an externally issued credential for the
// initial authentication attempt. When absent, the controller signs in
// anonymously at start.
func WithBootstrapToken(token string) Option {
	return func(c *Controller) { c.bootstrapToken = token }
}

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a Controller bound to the given provider. The controller
// starts in PhaseLoading and stays there until Start wires it up.
func New(provider idp.Provider, opts ...Option) *Controller {
	c := &Controller{
		provider:           provider,
		logger:             log.Default(),
		callTimeout:        DefaultCallTimeout,
		interactiveTimeout: DefaultInteractiveTimeout,
		state:              State{Phase: PhaseLoading},
		subscribers:        make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the provider's session-change feed and launches the
// initial authentication attempt. It must be called exactly once.
//
// The feed subscription lives for the controller's lifetime and is the
// authoritative source for the phase: the bootstrap attempt's own phase
// write is discarded once any feed event has settled the phase, so a late
// bootstrap resolution can never downgrade a session a feed event already
// established.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	token := c.bootstrapToken
	c.mu.Unlock()

	c.unsubscribeSet(c.provider.SubscribeSessionChange(c.onSessionChange))

	go c.bootstrap(ctx, token)
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn on the controller's state feed. fn is invoked
// immediately with the current state, then after every transition. The
// returned handle removes the subscription.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	current := c.state
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// RequestSignIn runs the provider's interactive sign-in flow.
//
// The phase moves to PhaseLoading for the duration of the call. On
// success the phase is left to the provider's session-change event; if no
// event has arrived by the time the call resolves, the phase falls back
// to PhaseUnauthenticated so the UI is never stuck loading. Failures
// revert to PhaseUnauthenticated and surface a message in LastError.
//
// A call issued while another command is in flight is rejected without
// touching the pending command.
func (c *Controller) RequestSignIn(ctx context.Context) error {
	mark, err := c.begin(cmdSignIn)
	if err != nil {
		return err
	}

	callCtx, cancel := c.timeoutContext(ctx, c.interactiveTimeout)
	defer cancel()
	callErr := c.provider.SignInInteractive(callCtx)

	c.mu.Lock()
	c.inFlight = ""
	noEvent := c.eventSeq == mark
	switch {
	case callErr == nil:
		if c.state.Phase == PhaseLoading && noEvent {
			c.state.Phase = PhaseUnauthenticated
			c.state.Identity = nil
		}
	case idp.IsUserCancelled(callErr):
		c.state.Phase = PhaseUnauthenticated
		c.state.Identity = nil
		c.state.LastError = "sign-in cancelled by user"
	case idp.IsDuplicateRequest(callErr):
		c.state.Phase = PhaseUnauthenticated
		c.state.Identity = nil
		c.state.LastError = "sign-in request already in progress"
	default:
		c.state.Phase = PhaseUnauthenticated
		c.state.Identity = nil
		c.state.LastError = "sign-in failed: " + idp.Reason(callErr)
	}
	snapshot := c.state
	c.mu.Unlock()

	if callErr != nil {
		c.logger.WithError(callErr).Warn("interactive sign-in did not complete")
	}
	c.notify(snapshot)
	return callErr
}

// RequestSignOut terminates the current session through the provider.
//
// On success the phase is left to the provider's absence event, with the
// same loading fallback as RequestSignIn. On failure the pre-command
// identity is restored and LastError describes the failure.
func (c *Controller) RequestSignOut(ctx context.Context) error {
	mark, err := c.begin(cmdSignOut)
	if err != nil {
		return err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	callErr := c.provider.SignOut(callCtx)

	c.mu.Lock()
	c.inFlight = ""
	noEvent := c.eventSeq == mark
	if callErr == nil {
		if c.state.Phase == PhaseLoading && noEvent {
			c.state.Phase = PhaseUnauthenticated
			c.state.Identity = nil
		}
	} else {
		// Restore the session that was live before the command.
		c.state.Phase = c.prevState.Phase
		c.state.Identity = c.prevState.Identity
		c.state.LastError = "sign-out failed: " + idp.Reason(callErr)
	}
	snapshot := c.state
	c.mu.Unlock()

	if callErr != nil {
		c.logger.WithError(callErr).Warn("sign-out failed")
	}
	c.notify(snapshot)
	return callErr
}

// Close removes the provider subscription. The controller keeps serving
// snapshots but no longer reacts to provider events.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return nil
}

// begin gates command entry: at most one command may be in flight. On
// rejection the state reverts to the snapshot taken before the pending
// command began, so a duplicate can never leave the UI stuck loading.
func (c *Controller) begin(cmd string) (uint64, error) {
	c.mu.Lock()
	if c.inFlight != "" {
		// The rejection names the command that is pending, not the one
		// being refused.
		msg := c.inFlight + " request already in progress"
		c.state.Phase = c.prevState.Phase
		c.state.Identity = c.prevState.Identity
		c.state.LastError = msg
		snapshot := c.state
		c.mu.Unlock()

		c.notify(snapshot)
		return 0, idp.NewError(idp.CodeDuplicateRequest, msg, nil)
	}
	c.inFlight = cmd
	c.prevState = c.state
	mark := c.eventSeq
	c.state.Phase = PhaseLoading
	c.state.Identity = nil
	c.state.LastError = ""
	snapshot := c.state
	c.mu.Unlock()

	c.notify(snapshot)
	return mark, nil
}

// bootstrap performs the initial authentication attempt: token exchange
// when a bootstrap credential exists, anonymous sign-in otherwise. Its
// resolution clears PhaseLoading at the latest, but never overrides a
// phase a provider event has already settled.
func (c *Controller) bootstrap(ctx context.Context, token string) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	var err error
	if token != "" {
		err = c.provider.SignInWithToken(callCtx, token)
	} else {
		err = c.provider.SignInAnonymously(callCtx)
	}

	c.mu.Lock()
	if err != nil {
		c.state.LastError = "initial sign-in failed: " + idp.Reason(err)
	}
	if !c.settled && c.state.Phase == PhaseLoading {
		c.state.Phase = PhaseUnauthenticated
		c.state.Identity = nil
	}
	snapshot := c.state
	c.mu.Unlock()

	if err != nil {
		c.logger.WithError(err).Warn("initial authentication attempt failed")
	} else {
		c.logger.Debug("initial authentication attempt resolved")
	}
	c.notify(snapshot)
}

// onSessionChange applies a provider feed event. Feed events always clear
// LastError and take authority over the phase.
func (c *Controller) onSessionChange(identity *idp.Identity) {
	c.mu.Lock()
	c.settled = true
	c.eventSeq++
	c.state.LastError = ""
	if identity != nil {
		c.state.Phase = PhaseAuthenticated
		c.state.Identity = identity
	} else {
		c.state.Phase = PhaseUnauthenticated
		c.state.Identity = nil
	}
	snapshot := c.state
	c.mu.Unlock()

	c.logger.Debug("session change applied", "phase", snapshot.Phase.String())
	c.notify(snapshot)
}

func (c *Controller) notify(snapshot State) {
	c.mu.Lock()
	fns := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return c.timeoutContext(ctx, c.callTimeout)
}

func (c *Controller) timeoutContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) unsubscribeSet(unsub idp.Unsubscribe) {
	c.mu.Lock()
	c.unsubscribe = unsub
	c.mu.Unlock()
}
