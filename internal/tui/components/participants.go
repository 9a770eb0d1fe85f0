package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/simonyos/roundtable/internal/tui/theme"
)

// Participant is a persona seated at the table
type Participant struct {
	ID       string
	Name     string
	Avatar   string
	Model    string
	Position string
	Messages int
}

// Participants lists the personas and highlights the current speaker
type Participants struct {
	people  []Participant
	speaker string
	width   int
	height  int
}

// NewParticipants creates the panel. Seats follow the order of people.
func NewParticipants(width, height int, people []Participant) *Participants {
	return &Participants{
		people: people,
		width:  width,
		height: height,
	}
}

// SetSize updates the panel dimensions
func (p *Participants) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Seat returns the seat index of persona id, or -1
func (p *Participants) Seat(id string) int {
	for i, person := range p.people {
		if person.ID == id {
			return i
		}
	}
	return -1
}

// SetSpeaker marks persona id as speaking ("" for nobody)
func (p *Participants) SetSpeaker(id string) {
	p.speaker = id
}

// CountMessage records a finished turn of persona id
func (p *Participants) CountMessage(id string) {
	if i := p.Seat(id); i >= 0 {
		p.people[i].Messages++
	}
}

// Total returns the number of finished turns
func (p *Participants) Total() int {
	total := 0
	for _, person := range p.people {
		total += person.Messages
	}
	return total
}

// View renders the panel
func (p *Participants) View() string {
	t := theme.Current

	var sb strings.Builder
	title := lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true).
		Render("At the table")
	sb.WriteString(title + "\n\n")

	for i, person := range p.people {
		color := t.PersonaColor(i)
		marker := "  "
		if person.ID == p.speaker {
			marker = lipgloss.NewStyle().Foreground(color).Bold(true).Render("▶ ")
		}

		avatar := person.Avatar
		if avatar == "" {
			avatar = "●"
		}
		name := lipgloss.NewStyle().
			Foreground(color).
			Bold(person.ID == p.speaker).
			Render(avatar + " " + person.Name)
		count := lipgloss.NewStyle().
			Foreground(t.TextMuted).
			Render(fmt.Sprintf(" (%d)", person.Messages))
		sb.WriteString(marker + name + count + "\n")

		detail := person.Model
		if person.Position != "" {
			detail = person.Position + " · " + detail
		}
		sb.WriteString(lipgloss.NewStyle().
			Foreground(t.TextMuted).
			PaddingLeft(4).
			Render(detail) + "\n")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder(), false, false, false, true).
		BorderForeground(t.Border).
		PaddingLeft(1).
		Width(max(p.width-2, 0)).
		Height(max(p.height, 0)).
		Render(sb.String())
}
