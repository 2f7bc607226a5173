package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/signonhq/signon/internal/session"
)

// Run starts the login screen and blocks until the user quits or the
// context is cancelled. Controller state changes are bridged into the
// program as StateMsg values.
func Run(ctx context.Context, ctrl *session.Controller) error {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe, stop := forwardStates(ctrl, p.Send)
	defer stop()
	defer unsubscribe()

	_, err := p.Run()
	return err
}

// forwardStates bridges controller notifications into send, preserving
// notification order. Send blocks until the program loop is running, so
// a single forwarding goroutine drains a buffered channel instead of
// the subscriber calling send directly.
func forwardStates(ctrl *session.Controller, send func(tea.Msg)) (unsubscribe, stop func()) {
	states := make(chan session.State, 16)
	done := make(chan struct{})

	unsubscribe = ctrl.Subscribe(func(s session.State) {
		select {
		case states <- s:
		case <-done:
		}
	})

	go func() {
		for {
			select {
			case s := <-states:
				send(StateMsg(s))
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop = func() { once.Do(func() { close(done) }) }
	return unsubscribe, stop
}
