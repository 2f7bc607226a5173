// Package idptest provides an in-memory identity provider for tests and
// for demo mode.
//
// Call results are scripted through the per-operation func fields; session
// change events are emitted manually with Emit. A nil func means the call
// succeeds without side effects.
package idptest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signonhq/signon/internal/idp"
)

// Fake is a scriptable idp.Provider.
//
// The zero value is usable: every call succeeds and no events fire until
// Emit is called. Safe for concurrent use.
type Fake struct {
	// SignInWithTokenFunc, when set, handles SignInWithToken calls.
	SignInWithTokenFunc func(ctx context.Context, token string) error

	// SignInAnonymouslyFunc, when set, handles SignInAnonymously calls.
	SignInAnonymouslyFunc func(ctx context.Context) error

	// SignInInteractiveFunc, when set, handles SignInInteractive calls.
	SignInInteractiveFunc func(ctx context.Context) error

	// SignOutFunc, when set, handles SignOut calls.
	SignOutFunc func(ctx context.Context) error

	mu       sync.Mutex
	identity *idp.Identity
	subs     map[int]func(*idp.Identity)
	nextSub  int
	calls    []string
}

var _ idp.Provider = (*Fake)(nil)

// SignInWithToken implements idp.Provider.
func (f *Fake) SignInWithToken(ctx context.Context, token string) error {
	f.record("SignInWithToken")
	if f.SignInWithTokenFunc != nil {
		return f.SignInWithTokenFunc(ctx, token)
	}
	return nil
}

// SignInAnonymously implements idp.Provider.
func (f *Fake) SignInAnonymously(ctx context.Context) error {
	f.record("SignInAnonymously")
	if f.SignInAnonymouslyFunc != nil {
		return f.SignInAnonymouslyFunc(ctx)
	}
	return nil
}

// SignInInteractive implements idp.Provider.
func (f *Fake) SignInInteractive(ctx context.Context) error {
	f.record("SignInInteractive")
	if f.SignInInteractiveFunc != nil {
		return f.SignInInteractiveFunc(ctx)
	}
	return nil
}

// SignOut implements idp.Provider.
func (f *Fake) SignOut(ctx context.Context) error {
	f.record("SignOut")
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	return nil
}

// SubscribeSessionChange implements idp.Provider. The subscriber receives
// the current session immediately, then every Emit.
func (f *Fake) SubscribeSessionChange(fn func(*idp.Identity)) idp.Unsubscribe {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]func(*idp.Identity))
	}
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	current := f.identity
	f.mu.Unlock()

	fn(current)

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Emit records identity as the current session and fans it out to all
// subscribers. Pass nil to report "no session".
func (f *Fake) Emit(identity *idp.Identity) {
	f.mu.Lock()
	f.identity = identity
	fns := make([]func(*idp.Identity), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}

// Calls returns the provider operations invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

// NewDemo returns a Fake wired to behave like a small hosted provider:
// interactive sign-in settles after a short delay and emits a demo
// identity, sign-out emits an absence event, and anonymous sign-in
// emits nothing (the session stays absent, like a guest with no profile).
func NewDemo() *Fake {
	f := &Fake{}
	f.SignInInteractiveFunc = func(ctx context.Context) error {
		go func() {
			select {
			case <-time.After(700 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			f.Emit(&idp.Identity{
				ID:          "demo-" + uuid.NewString()[:8],
				DisplayName: "Demo User",
				Email:       "demo@example.com",
			})
		}()
		return nil
	}
	f.SignInAnonymouslyFunc = func(ctx context.Context) error {
		go f.Emit(nil)
		return nil
	}
	f.SignOutFunc = func(ctx context.Context) error {
		go f.Emit(nil)
		return nil
	}
	return f
}
