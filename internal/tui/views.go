package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/signonhq/signon/internal/idp"
	"github.com/signonhq/signon/internal/session"
)

// View renders the login screen (required by Bubble Tea).
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.quitting {
		return ""
	}

	var body string
	switch m.state.Phase {
	case session.PhaseLoading:
		body = m.renderLoading()
	case session.PhaseAuthenticated:
		body = m.renderSignedIn()
	default:
		body = m.renderSignedOut()
	}

	sections := []string{body}
	if m.state.LastError != "" && m.state.Phase != session.PhaseLoading {
		sections = append(sections, m.styles.Error.Render("✗ "+m.state.LastError))
	}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, m.styles.Muted.Render("? help · q quit"))
	}

	content := strings.Join(sections, "\n\n")
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	return content
}

func (m Model) renderLoading() string {
	return lipgloss.JoinVertical(lipgloss.Center,
		m.styles.Title.Render("signon"),
		m.spin.View()+" "+m.styles.Subtitle.Render("Checking your session…"),
	)
}

func (m Model) renderSignedOut() string {
	return lipgloss.JoinVertical(lipgloss.Center,
		m.styles.Title.Render("signon"),
		m.styles.Subtitle.Render("You are not signed in."),
		"",
		m.styles.Key.Render("enter")+m.styles.KeyDesc.Render(" sign in with your identity provider"),
	)
}

func (m Model) renderSignedIn() string {
	identity := m.state.Identity

	lines := []string{
		m.styles.Badge.Render(initials(identity)) + "  " + m.styles.Success.Render(displayName(identity)),
	}
	if identity.Email != "" {
		lines = append(lines, m.styles.Subtitle.Render(identity.Email))
	}
	if identity.AvatarURL != "" {
		lines = append(lines, m.styles.Muted.Render(identity.AvatarURL))
	}
	card := m.styles.Card.Render(strings.Join(lines, "\n"))

	return lipgloss.JoinVertical(lipgloss.Center,
		m.styles.Title.Render("signon"),
		card,
		"",
		m.styles.Key.Render("o")+m.styles.KeyDesc.Render(" sign out"),
	)
}

func (m Model) renderHelp() string {
	rows := []struct{ key, desc string }{
		{"enter", "sign in (when signed out)"},
		{"o", "sign out (when signed in)"},
		{"?", "toggle this help"},
		{"q", "quit"},
	}
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.styles.Key.Render(row.key) + "  " + m.styles.KeyDesc.Render(row.desc))
	}
	return b.String()
}

// displayName picks the best available label for the signed-in user.
func displayName(identity *idp.Identity) string {
	switch {
	case identity == nil:
		return ""
	case identity.DisplayName != "":
		return identity.DisplayName
	case identity.Email != "":
		return identity.Email
	default:
		return identity.ID
	}
}

// initials derives a one- or two-letter badge from the identity, the
// fallback rendering when there is no avatar to show.
func initials(identity *idp.Identity) string {
	name := displayName(identity)
	if name == "" {
		return "?"
	}
	parts := strings.Fields(name)
	if len(parts) >= 2 {
		return strings.ToUpper(string([]rune(parts[0])[0]) + string([]rune(parts[1])[0]))
	}
	return strings.ToUpper(string([]rune(name)[0]))
}
