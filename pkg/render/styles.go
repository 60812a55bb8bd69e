package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/killallgit/chatstream/pkg/chat"
)

// Color constants for consistent styling
const (
	ColorUser      = "#f5b761" // Warm amber - user messages
	ColorAssistant = "#93b56b" // Green - assistant messages
	ColorEvent     = "#976bb5" // Purple - out-of-band events
	ColorMuted     = "#5c5044" // Status lines, hints
	ColorError     = "#d95f5f"
)

var (
	UserLabel      = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorUser)).Bold(true)
	AssistantLabel = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAssistant)).Bold(true)
	EventStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorEvent)).Italic(true)
	MutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted))
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Bold(true)
)

// Label returns the styled speaker prefix for a role.
func Label(role chat.Role) string {
	switch role {
	case chat.RoleUser:
		return UserLabel.Render("you ›")
	case chat.RoleAssistant:
		return AssistantLabel.Render("assistant ›")
	default:
		return MutedStyle.Render(string(role) + " ›")
	}
}

// Event formats an event message as a single status line.
func Event(e chat.EventMessage) string {
	line := "• " + e.Name
	if len(e.Payload) > 0 {
		line += " " + strings.TrimSpace(string(e.Payload))
	}
	return EventStyle.Render(line)
}

// Error formats a request error for the terminal.
func Error(err error) string {
	return ErrorStyle.Render(fmt.Sprintf("error: %v", err))
}

// Status formats a muted hint line.
func Status(format string, args ...any) string {
	return MutedStyle.Render(fmt.Sprintf(format, args...))
}
