package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/simonyos/roundtable/internal/orchestrator"
	"github.com/simonyos/roundtable/internal/tui/theme"
)

func titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Current.Primary)
}

func mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.Current.TextMuted)
}

func errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.Current.Error)
}

// speakerStyle colors a persona by its seat in the conversation
func speakerStyle(conv orchestrator.Conversation, personaID string) lipgloss.Style {
	seat := -1
	for i, id := range conv.PersonaIDs {
		if id == personaID {
			seat = i
			break
		}
	}
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Current.PersonaColor(seat))
}

func statusBadge(status orchestrator.Status) string {
	color := theme.Current.TextMuted
	switch status {
	case orchestrator.StatusRunning:
		color = theme.Current.Warning
	case orchestrator.StatusCompleted:
		color = theme.Current.Success
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(status))
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// renderMarkdown falls back to the raw text when glamour cannot render it
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func printMessage(conv orchestrator.Conversation, msg orchestrator.Message) {
	header := speakerStyle(conv, msg.PersonaID).Render(msg.PersonaName)
	fmt.Printf("%s %s\n", header, mutedStyle().Render(fmt.Sprintf("%s · %s", msg.Model, formatTime(msg.CreatedAt))))
	fmt.Println(renderMarkdown(msg.Content, 100))
	fmt.Println()
}
