package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signonhq/signon/internal/idp"
	"github.com/signonhq/signon/internal/idp/idptest"
)

func waitPhase(t *testing.T, c *Controller, phase Phase) State {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().Phase == phase
	}, 2*time.Second, 5*time.Millisecond, "phase never reached %s", phase)
	return c.Snapshot()
}

func TestController_InitialPhaseIsLoading(t *testing.T) {
	c := New(&idptest.Fake{})

	state := c.Snapshot()
	assert.Equal(t, PhaseLoading, state.Phase)
	assert.Nil(t, state.Identity)
	assert.Empty(t, state.LastError)
}

// Fresh start, no bootstrap token: the controller signs in anonymously and
// the provider's absence event leaves the session signed out with no error.
func TestController_AnonymousBootstrap(t *testing.T) {
	fake := &idptest.Fake{}
	c := New(fake)
	defer c.Close()

	c.Start(context.Background())

	state := waitPhase(t, c, PhaseUnauthenticated)
	assert.Nil(t, state.Identity)
	assert.Empty(t, state.LastError)

	require.Eventually(t, func() bool {
		for _, call := range fake.Calls() {
			if call == "SignInAnonymously" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "anonymous sign-in never attempted")
}

func TestController_BootstrapWithToken(t *testing.T) {
	var gotToken string
	var mu sync.Mutex
	fake := &idptest.Fake{
		SignInWithTokenFunc: func(ctx context.Context, token string) error {
			mu.Lock()
			gotToken = token
			mu.Unlock()
			return nil
		},
	}
	c := New(fake, WithBootstrapToken("bootstrap-tok"))
	defer c.Close()

	c.Start(context.Background())

	waitPhase(t, c, PhaseUnauthenticated)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotToken == "bootstrap-tok"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestController_BootstrapFailureRecordsError(t *testing.T) {
	fake := &idptest.Fake{
		SignInAnonymouslyFunc: func(ctx context.Context) error {
			return idp.NewError(idp.CodeProviderUnavailable, "service unreachable", nil)
		},
	}
	c := New(fake)
	defer c.Close()

	c.Start(context.Background())

	require.Eventually(t, func() bool {
		return c.Snapshot().LastError != ""
	}, 2*time.Second, 5*time.Millisecond)
	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Equal(t, "initial sign-in failed: service unreachable", state.LastError)
}

// A slow bootstrap resolution must not downgrade a session a provider
// event already established.
func TestController_BootstrapNeverDowngradesProviderEvent(t *testing.T) {
	release := make(chan struct{})
	fake := &idptest.Fake{
		SignInAnonymouslyFunc: func(ctx context.Context) error {
			<-release
			return errors.New("too late")
		},
	}
	c := New(fake)
	defer c.Close()

	c.Start(context.Background())

	fake.Emit(&idp.Identity{ID: "u1", DisplayName: "Ann"})
	state := waitPhase(t, c, PhaseAuthenticated)
	require.NotNil(t, state.Identity)

	close(release)

	// Give the bootstrap goroutine time to resolve, then confirm the
	// authenticated session survived it.
	time.Sleep(50 * time.Millisecond)
	state = c.Snapshot()
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u1", state.Identity.ID)
}

// sign-in followed by a provider event carrying an identity yields
// Authenticated with that identity.
func TestController_SignInThenEventAuthenticates(t *testing.T) {
	fake := &idptest.Fake{}
	fake.SignInInteractiveFunc = func(ctx context.Context) error {
		fake.Emit(&idp.Identity{ID: "u1", DisplayName: "Ann"})
		return nil
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	err := c.RequestSignIn(context.Background())
	require.NoError(t, err)

	state := c.Snapshot()
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u1", state.Identity.ID)
	assert.Equal(t, "Ann", state.Identity.DisplayName)
	assert.Empty(t, state.LastError)
}

// Sign-in success with no provider event must still exit Loading.
func TestController_SignInSuccessWithoutEventExitsLoading(t *testing.T) {
	fake := &idptest.Fake{}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	err := c.RequestSignIn(context.Background())
	require.NoError(t, err)

	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Nil(t, state.Identity)
}

func TestController_SignInCancelled(t *testing.T) {
	fake := &idptest.Fake{
		SignInInteractiveFunc: func(ctx context.Context) error {
			return idp.NewError(idp.CodeUserCancelled, "browser window closed", nil)
		},
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	err := c.RequestSignIn(context.Background())
	require.Error(t, err)
	assert.True(t, idp.IsUserCancelled(err))

	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Equal(t, "sign-in cancelled by user", state.LastError)
}

func TestController_SignInFailure(t *testing.T) {
	fake := &idptest.Fake{
		SignInInteractiveFunc: func(ctx context.Context) error {
			return idp.NewError(idp.CodeProviderFailure, "token exchange rejected", nil)
		},
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	err := c.RequestSignIn(context.Background())
	require.Error(t, err)

	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Equal(t, "sign-in failed: token exchange rejected", state.LastError)
}

// a second sign-in while one is pending is rejected, and the state is
// never left stuck in Loading.
func TestController_DuplicateSignInRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &idptest.Fake{
		SignInInteractiveFunc: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.RequestSignIn(context.Background()) }()
	<-started

	err := c.RequestSignIn(context.Background())
	require.Error(t, err)
	assert.True(t, idp.IsDuplicateRequest(err))

	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Equal(t, "sign-in request already in progress", state.LastError)

	// The pending command is unaffected by the rejection.
	close(release)
	require.NoError(t, <-firstDone)

	// Only one interactive flow ever reached the provider.
	interactive := 0
	for _, call := range fake.Calls() {
		if call == "SignInInteractive" {
			interactive++
		}
	}
	assert.Equal(t, 1, interactive)
}

// a rejection names the command that is pending, not the one being
// refused: sign-out during a pending sign-in reports the sign-in.
func TestController_SignOutDuringPendingSignIn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &idptest.Fake{
		SignInInteractiveFunc: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.RequestSignIn(context.Background()) }()
	<-started

	err := c.RequestSignOut(context.Background())
	require.Error(t, err)
	assert.True(t, idp.IsDuplicateRequest(err))
	assert.Equal(t, "sign-in request already in progress", idp.Reason(err))

	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Equal(t, "sign-in request already in progress", state.LastError)

	// SignOut never reached the provider.
	for _, call := range fake.Calls() {
		assert.NotEqual(t, "SignOut", call)
	}

	close(release)
	require.NoError(t, <-firstDone)
}

// a failed sign-out restores the previous identity; a successful one
// followed by the provider's absence event signs the session out.
func TestController_SignOutFailureRestoresIdentity(t *testing.T) {
	fake := &idptest.Fake{
		SignOutFunc: func(ctx context.Context) error {
			return idp.NewError(idp.CodeProviderFailure, "revocation endpoint 500", nil)
		},
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	fake.Emit(&idp.Identity{ID: "u1", DisplayName: "Ann", Email: "ann@example.com"})
	waitPhase(t, c, PhaseAuthenticated)

	err := c.RequestSignOut(context.Background())
	require.Error(t, err)

	state := c.Snapshot()
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u1", state.Identity.ID)
	assert.Equal(t, "sign-out failed: revocation endpoint 500", state.LastError)
}

func TestController_SignOutThenAbsenceEvent(t *testing.T) {
	fake := &idptest.Fake{}
	fake.SignOutFunc = func(ctx context.Context) error {
		fake.Emit(nil)
		return nil
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	fake.Emit(&idp.Identity{ID: "u1"})
	waitPhase(t, c, PhaseAuthenticated)

	require.NoError(t, c.RequestSignOut(context.Background()))

	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Nil(t, state.Identity)
	assert.Empty(t, state.LastError)
}

// a provider session-change event clears LastError regardless of
// prior error state.
func TestController_EventClearsLastError(t *testing.T) {
	fake := &idptest.Fake{
		SignInInteractiveFunc: func(ctx context.Context) error {
			return idp.NewError(idp.CodeProviderFailure, "boom", nil)
		},
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	_ = c.RequestSignIn(context.Background())
	require.NotEmpty(t, c.Snapshot().LastError)

	fake.Emit(nil)
	assert.Empty(t, c.Snapshot().LastError)

	_ = c.RequestSignIn(context.Background())
	require.NotEmpty(t, c.Snapshot().LastError)

	fake.Emit(&idp.Identity{ID: "u1"})
	state := c.Snapshot()
	assert.Empty(t, state.LastError)
	assert.Equal(t, PhaseAuthenticated, state.Phase)
}

// a second sign-out issued while the first is pending is rejected as
// a duplicate; the session is not lost twice.
func TestController_DuplicateSignOutRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &idptest.Fake{
		SignOutFunc: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	c := New(fake)
	defer c.Close()
	c.Start(context.Background())
	fake.Emit(&idp.Identity{ID: "u1", DisplayName: "Ann"})
	waitPhase(t, c, PhaseAuthenticated)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.RequestSignOut(context.Background()) }()
	<-started

	err := c.RequestSignOut(context.Background())
	require.Error(t, err)
	assert.True(t, idp.IsDuplicateRequest(err))

	// The rejection reverts to the pre-command session.
	state := c.Snapshot()
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u1", state.Identity.ID)
	assert.Equal(t, "sign-out request already in progress", state.LastError)

	close(release)
	require.NoError(t, <-firstDone)

	signOuts := 0
	for _, call := range fake.Calls() {
		if call == "SignOut" {
			signOuts++
		}
	}
	assert.Equal(t, 1, signOuts)
}

// across an entire session lifecycle, every observed state carries an
// identity exactly when it is authenticated.
func TestController_IdentityIffAuthenticated(t *testing.T) {
	fake := &idptest.Fake{}
	fake.SignInInteractiveFunc = func(ctx context.Context) error {
		fake.Emit(&idp.Identity{ID: "u1"})
		return nil
	}
	fake.SignOutFunc = func(ctx context.Context) error {
		fake.Emit(nil)
		return nil
	}
	c := New(fake)
	defer c.Close()

	var mu sync.Mutex
	var observed []State
	unsubscribe := c.Subscribe(func(s State) {
		mu.Lock()
		observed = append(observed, s)
		mu.Unlock()
	})
	defer unsubscribe()

	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)
	require.NoError(t, c.RequestSignIn(context.Background()))
	require.NoError(t, c.RequestSignOut(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, observed)
	for i, s := range observed {
		if s.Phase == PhaseAuthenticated {
			assert.NotNil(t, s.Identity, "state %d authenticated without identity", i)
		} else {
			assert.Nil(t, s.Identity, "state %d has identity outside authenticated", i)
		}
	}
}

func TestController_SubscribeDeliversImmediately(t *testing.T) {
	c := New(&idptest.Fake{})

	var got []State
	unsubscribe := c.Subscribe(func(s State) { got = append(got, s) })
	require.Len(t, got, 1)
	assert.Equal(t, PhaseLoading, got[0].Phase)

	unsubscribe()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	// No deliveries after unsubscribe beyond the immediate one.
	assert.Len(t, got, 1)
}

func TestController_InteractiveTimeout(t *testing.T) {
	fake := &idptest.Fake{
		SignInInteractiveFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c := New(fake, WithInteractiveTimeout(20*time.Millisecond))
	defer c.Close()
	c.Start(context.Background())
	waitPhase(t, c, PhaseUnauthenticated)

	err := c.RequestSignIn(context.Background())
	require.Error(t, err)

	state := c.Snapshot()
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
	assert.Contains(t, state.LastError, "sign-in failed:")
}

func TestController_BootstrapCallTimeout(t *testing.T) {
	fake := &idptest.Fake{
		SignInAnonymouslyFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c := New(fake, WithCallTimeout(20*time.Millisecond))
	defer c.Close()
	c.Start(context.Background())

	waitPhase(t, c, PhaseUnauthenticated)
	require.Eventually(t, func() bool {
		return strings.Contains(c.Snapshot().LastError, "initial sign-in failed:")
	}, 2*time.Second, 5*time.Millisecond)
}
