// Package tui renders the login screen.
//
// The screen is a view over the session controller's state: it renders
// whichever of the three phases holds and invokes the controller's two
// commands. It never mutates session state itself.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/signonhq/signon/internal/session"
)

// Model is the Bubble Tea model for the login screen.
type Model struct {
	ctrl  *session.Controller
	state session.State

	spin     spinner.Model
	width    int
	height   int
	ready    bool
	quitting bool
	showHelp bool

	styles Styles
}

// Styles contains lipgloss styles for the login screen.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Muted    lipgloss.Style
	Card     lipgloss.Style
	Badge    lipgloss.Style
	Key      lipgloss.Style
	KeyDesc  lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")). // Purple
			Padding(1, 2),
		Badge: lipgloss.NewStyle().
			Background(lipgloss.Color("63")).  // Purple
			Foreground(lipgloss.Color("230")). // Light yellow
			Bold(true).
			Padding(0, 1),
		Key: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")), // Purple
		KeyDesc: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
	}
}

// NewModel creates the login screen model bound to a controller.
func NewModel(ctrl *session.Controller) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	return Model{
		ctrl:   ctrl,
		state:  ctrl.Snapshot(),
		spin:   spin,
		styles: DefaultStyles(),
	}
}

// StateMsg carries a session state snapshot into the program.
type StateMsg session.State

// SignInResultMsg reports the outcome of a sign-in command.
type SignInResultMsg struct {
	Err error
}

// SignOutResultMsg reports the outcome of a sign-out command.
type SignOutResultMsg struct {
	Err error
}

// Init starts the spinner (required by Bubble Tea).
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles messages and updates the model state (required by Bubble Tea).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case StateMsg:
		m.state = session.State(msg)
		return m, nil

	case SignInResultMsg, SignOutResultMsg:
		// The controller already pushed the resulting state through the
		// subscription; resync defensively in case the message raced it.
		m.state = m.ctrl.Snapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKeyPress handles keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "enter":
		if m.state.Phase == session.PhaseUnauthenticated {
			return m, m.signInCmd()
		}

	case "o":
		if m.state.Phase == session.PhaseAuthenticated {
			return m, m.signOutCmd()
		}
	}

	return m, nil
}

func (m Model) signInCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return SignInResultMsg{Err: ctrl.RequestSignIn(context.Background())}
	}
}

func (m Model) signOutCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return SignOutResultMsg{Err: ctrl.RequestSignOut(context.Background())}
	}
}
