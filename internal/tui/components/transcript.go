package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/simonyos/roundtable/internal/tui/theme"
)

// Entry kinds
const (
	EntryTurn   = "turn"
	EntryNotice = "notice"
	EntryError  = "error"
)

// Entry is one block of the transcript
type Entry struct {
	Kind    string
	Speaker string
	Avatar  string
	Model   string
	Seat    int // index into the persona palette
	Content string
}

// Transcript is the scrollable conversation view
type Transcript struct {
	viewport  viewport.Model
	entries   []Entry
	renderer  *glamour.TermRenderer
	width     int
	height    int
	follow    bool
	streaming *Entry // turn currently being generated
}

// NewTranscript creates a transcript of the given size
func NewTranscript(width, height int) *Transcript {
	t := &Transcript{
		viewport: viewport.New(width, height),
		width:    width,
		height:   height,
		follow:   true,
	}
	t.renderer = newRenderer(width)
	return t
}

func newRenderer(width int) *glamour.TermRenderer {
	// Use dark style explicitly to avoid terminal color queries
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(width-10, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}

// SetSize updates the component dimensions
func (t *Transcript) SetSize(width, height int) {
	t.width = width
	t.height = height
	t.viewport.Width = width
	t.viewport.Height = height
	t.renderer = newRenderer(width)
	t.refresh()
}

// Viewport returns the viewport for handling scroll input
func (t *Transcript) Viewport() *viewport.Model {
	return &t.viewport
}

// Add appends a finished entry
func (t *Transcript) Add(e Entry) {
	t.entries = append(t.entries, e)
	t.refresh()
}

// Entries returns the finished entries
func (t *Transcript) Entries() []Entry {
	return t.entries
}

// StartTurn begins a streaming entry
func (t *Transcript) StartTurn(e Entry) {
	e.Kind = EntryTurn
	t.streaming = &e
	t.refresh()
}

// AppendStreaming adds a fragment to the streaming entry
func (t *Transcript) AppendStreaming(text string) {
	if t.streaming == nil {
		return
	}
	t.streaming.Content += text
	t.refresh()
}

// FinishTurn replaces the streaming entry with its persisted content
func (t *Transcript) FinishTurn(content string) {
	if t.streaming == nil {
		return
	}
	e := *t.streaming
	e.Content = content
	t.streaming = nil
	t.Add(e)
}

// DropStreaming discards the streaming entry
func (t *Transcript) DropStreaming() {
	t.streaming = nil
	t.refresh()
}

// Streaming reports whether a turn is being generated
func (t *Transcript) Streaming() bool {
	return t.streaming != nil
}

// SetFollow controls whether new content scrolls the view to the bottom
func (t *Transcript) SetFollow(follow bool) {
	t.follow = follow
	if follow {
		t.viewport.GotoBottom()
	}
}

func (t *Transcript) render(sb *strings.Builder, e Entry, live bool) {
	th := theme.Current
	contentWidth := t.width - 4

	switch e.Kind {
	case EntryTurn:
		color := th.PersonaColor(e.Seat)
		avatar := e.Avatar
		if avatar == "" {
			avatar = "●"
		}
		nameStyle := lipgloss.NewStyle().
			Foreground(color).
			Bold(true)
		modelStyle := lipgloss.NewStyle().
			Foreground(th.TextMuted)
		sb.WriteString(nameStyle.Render(avatar+" "+e.Speaker) + " " + modelStyle.Render(e.Model) + "\n")

		rendered := e.Content
		if t.renderer != nil && !live {
			if r, err := t.renderer.Render(e.Content); err == nil {
				rendered = strings.TrimSpace(r)
			}
		}

		bodyStyle := lipgloss.NewStyle().
			Foreground(th.Text).
			PaddingLeft(2).
			Width(contentWidth)
		body := bodyStyle.Render(rendered)
		if live {
			cursorStyle := lipgloss.NewStyle().
				Foreground(color).
				Bold(true)
			body += cursorStyle.Render("▌")
		}
		sb.WriteString(body + "\n\n")

	case EntryNotice:
		iconStyle := lipgloss.NewStyle().
			Foreground(th.Info)
		noticeStyle := lipgloss.NewStyle().
			Foreground(th.TextMuted).
			Italic(true)
		sb.WriteString(iconStyle.Render("ℹ") + " " + noticeStyle.Render(e.Content) + "\n\n")

	case EntryError:
		iconStyle := lipgloss.NewStyle().
			Foreground(th.Error).
			Bold(true)
		errStyle := lipgloss.NewStyle().
			Foreground(th.Error).
			Width(contentWidth)
		sb.WriteString(iconStyle.Render("✗") + " " + errStyle.Render(e.Content) + "\n\n")
	}
}

// refresh rebuilds the viewport content
func (t *Transcript) refresh() {
	var sb strings.Builder
	for _, e := range t.entries {
		t.render(&sb, e, false)
	}
	// Streaming text is shown raw; markdown is rendered once the turn is persisted
	if t.streaming != nil {
		t.render(&sb, *t.streaming, true)
	}

	t.viewport.SetContent(sb.String())
	if t.follow {
		t.viewport.GotoBottom()
	}
}

// View renders the transcript
func (t *Transcript) View() string {
	return t.viewport.View()
}

// StreamingContent returns the text generated so far in the current turn
func (t *Transcript) StreamingContent() string {
	if t.streaming == nil {
		return ""
	}
	return t.streaming.Content
}
