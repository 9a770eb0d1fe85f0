package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/simonyos/roundtable/internal/tui/theme"
)

// Shortcut is one key binding of the watch view
type Shortcut struct {
	Keys   string
	Action string
}

// Shortcuts lists the bindings available when watching locally or remotely.
// Remote viewers cannot pause a conversation they do not run.
func Shortcuts(remote bool) []Shortcut {
	quit := Shortcut{"q  ctrl+c", "stop the conversation and quit"}
	if remote {
		quit.Action = "quit; the conversation keeps running"
	}

	list := []Shortcut{quit}
	if !remote {
		list = append(list, Shortcut{"p", "pause or resume after this turn"})
	}
	return append(list,
		Shortcut{"f", "follow new messages"},
		Shortcut{"↑ ↓  pgup pgdn", "scroll"},
		Shortcut{"tab", "show or hide participants"},
		Shortcut{"?", "close this help"},
	)
}

// HelpDialog shows the watch view's keyboard shortcuts
type HelpDialog struct {
	Width     int
	Shortcuts []Shortcut
}

func NewHelpDialog(remote bool) *HelpDialog {
	return &HelpDialog{Width: 54, Shortcuts: Shortcuts(remote)}
}

func (h *HelpDialog) View() string {
	t := theme.Current
	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	actionStyle := lipgloss.NewStyle().Foreground(t.Text)

	keys := make([]string, len(h.Shortcuts))
	actions := make([]string, len(h.Shortcuts))
	for i, s := range h.Shortcuts {
		keys[i] = keyStyle.Render(s.Keys)
		actions[i] = actionStyle.Render(s.Action)
	}
	table := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().PaddingRight(3).Render(strings.Join(keys, "\n")),
		strings.Join(actions, "\n"),
	)

	body := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1).Render("Keys"),
		table,
		lipgloss.NewStyle().Foreground(t.TextMuted).MarginTop(1).Render("any key closes this window"),
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(1, 2).
		Width(h.Width).
		Render(body)
}

// PlaceOverlay centers overlay in a width x height area
func PlaceOverlay(overlay string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay,
		lipgloss.WithWhitespaceForeground(theme.Current.Background))
}
