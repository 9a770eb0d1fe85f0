package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/simonyos/roundtable/internal/tui/theme"
)

// Header is the three-line title bar: name, mode and title, then the topic, then a rule
type Header struct {
	Width   int
	Title   string
	Topic   string
	Mode    string
	Version string
}

func NewHeader(width int, title, topic, mode, version string) *Header {
	return &Header{Width: width, Title: title, Topic: topic, Mode: mode, Version: version}
}

func (h *Header) SetWidth(width int) {
	h.Width = width
}

// truncate shortens s to n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func (h *Header) View() string {
	t := theme.Current

	badge := lipgloss.NewStyle().Foreground(t.TextInverse).Background(t.Primary).Padding(0, 1)
	left := strings.Join([]string{
		lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render("◯ roundtable"),
		badge.Render(h.Mode),
		lipgloss.NewStyle().Foreground(t.Text).Bold(true).Render(h.Title),
	}, "  ")
	right := lipgloss.NewStyle().Foreground(t.TextMuted).Render("v" + h.Version)

	gap := max(h.Width-lipgloss.Width(left)-lipgloss.Width(right)-1, 1)
	top := left + strings.Repeat(" ", gap) + right

	topic := lipgloss.NewStyle().Foreground(t.TextMuted).Italic(true).
		Render("Topic: " + truncate(h.Topic, h.Width-10))
	rule := lipgloss.NewStyle().Foreground(t.Border).Render(strings.Repeat("─", max(h.Width, 0)))

	return lipgloss.JoinVertical(lipgloss.Left, top, topic, rule)
}
