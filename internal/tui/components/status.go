package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/simonyos/roundtable/internal/tui/theme"
)

// Run states shown in the status bar
const (
	StateWaiting  = "waiting"
	StateSpeaking = "speaking"
	StatePaused   = "paused"
	StateFinished = "finished"
	StateFailed   = "failed"
)

// Status renders the status bar at the bottom
type Status struct {
	Width    int
	State    string
	Speaker  string
	Turns    int
	MaxTurns int
	Remote   bool
	Spinner  string
	Message  string
}

// NewStatus creates a new status bar
func NewStatus(width, maxTurns int) *Status {
	return &Status{
		Width:    width,
		State:    StateWaiting,
		MaxTurns: maxTurns,
	}
}

// SetWidth updates the status bar width
func (s *Status) SetWidth(width int) {
	s.Width = width
}

// View renders the status bar
func (s *Status) View() string {
	t := theme.Current

	hints := "q quit · ↑/↓ scroll · ? help"
	if !s.Remote {
		hints = "q stop · p pause · ↑/↓ scroll · ? help"
	}
	hint := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Render(hints)

	var state string
	switch s.State {
	case StateSpeaking:
		state = lipgloss.NewStyle().
			Foreground(t.Primary).
			Render(fmt.Sprintf("%s %s is speaking", s.Spinner, s.Speaker))
	case StatePaused:
		state = lipgloss.NewStyle().
			Foreground(t.Warning).
			Render("❚❚ paused")
	case StateFinished:
		state = lipgloss.NewStyle().
			Foreground(t.Success).
			Render("✓ finished")
	case StateFailed:
		state = lipgloss.NewStyle().
			Foreground(t.Error).
			Render("✗ " + s.Message)
	default:
		state = lipgloss.NewStyle().
			Foreground(t.TextMuted).
			Render(s.Spinner + " waiting")
	}

	turns := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.BackgroundSecondary).
		Padding(0, 1).
		Render(fmt.Sprintf("turn %d/%d", s.Turns, s.MaxTurns))

	right := lipgloss.JoinHorizontal(lipgloss.Center, state, "  ", turns)

	spacing := s.Width - lipgloss.Width(hint) - lipgloss.Width(right) - 2
	if spacing < 0 {
		spacing = 0
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Center,
		hint,
		lipgloss.NewStyle().Width(spacing).Render(""),
		right,
	)
}
