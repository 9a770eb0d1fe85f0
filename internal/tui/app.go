package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/simonyos/roundtable/internal/orchestrator"
	"github.com/simonyos/roundtable/internal/tui/components"
	"github.com/simonyos/roundtable/internal/tui/layout"
	"github.com/simonyos/roundtable/internal/tui/theme"
)

// Version is shown in the header
var Version = "0.1.0"

// Message types for Bubble Tea
type eventMsg struct {
	event orchestrator.Event
}

type closedMsg struct {
	err error
}

// Model is the watch view of one conversation
type Model struct {
	session Session
	remote  bool

	// Components
	header       *components.Header
	transcript   *components.Transcript
	participants *components.Participants
	status       *components.Status
	help         *components.HelpDialog
	spinner      spinner.Model

	// Layout
	layout *layout.SplitPane

	// State
	width    int
	height   int
	ready    bool
	showHelp bool
	follow   bool
	paused   bool
	failed   bool
	finished bool
	speaker  string
}

// New creates the watch view. history is rendered before live events arrive.
func New(conv orchestrator.Conversation, personas []orchestrator.Persona, history []orchestrator.Message, session Session) Model {
	_, pausable := session.(Pausable)

	people := make([]components.Participant, len(personas))
	for i, p := range personas {
		people[i] = components.Participant{
			ID:       p.ID,
			Name:     p.Name,
			Avatar:   p.Avatar,
			Model:    p.ModelLabel(),
			Position: p.Position,
		}
	}
	participants := components.NewParticipants(24, 20, people)

	transcript := components.NewTranscript(80, 20)
	for _, msg := range history {
		participants.CountMessage(msg.PersonaID)
		seat := participants.Seat(msg.PersonaID)
		avatar := ""
		if seat >= 0 {
			avatar = personas[seat].Avatar
		}
		transcript.Add(components.Entry{
			Kind:    components.EntryTurn,
			Speaker: msg.PersonaName,
			Avatar:  avatar,
			Model:   msg.Model,
			Seat:    seat,
			Content: msg.Content,
		})
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	status := components.NewStatus(80, orchestrator.MaxTurns)
	status.Remote = !pausable
	status.Turns = participants.Total()

	return Model{
		session:      session,
		remote:       !pausable,
		header:       components.NewHeader(80, conv.Title, conv.Topic, string(conv.Mode), Version),
		transcript:   transcript,
		participants: participants,
		status:       status,
		help:         components.NewHelpDialog(!pausable),
		spinner:      sp,
		layout:       layout.NewSplitPane(80, 24),
		follow:       true,
	}
}

// Init starts the spinner and the event pump
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.session))
}

// waitForEvent reads the next event from the session
func waitForEvent(s Session) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.Events()
		if !ok {
			return closedMsg{err: s.Err()}
		}
		return eventMsg{event: ev}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.session.Stop()
			return m, tea.Quit

		case "?":
			m.showHelp = true
			return m, nil

		case "p":
			if pausable, ok := m.session.(Pausable); ok && !m.finished {
				m.paused = !m.paused
				pausable.SetPaused(m.paused)
				m.refreshState()
			}
			return m, nil

		case "f":
			m.follow = !m.follow
			m.transcript.SetFollow(m.follow)
			return m, nil

		case "tab":
			m.layout.ShowRight = !m.layout.ShowRight
			m.resize()
			return m, nil

		case "up", "down", "pgup", "pgdown", "home", "end":
			vp := m.transcript.Viewport()
			var cmd tea.Cmd
			*vp, cmd = vp.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout.SetSize(msg.Width, msg.Height)
		m.resize()
		m.ready = true

	case tea.MouseMsg:
		vp := m.transcript.Viewport()
		var cmd tea.Cmd
		*vp, cmd = vp.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		if !m.finished {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.status.Spinner = m.spinner.View()
			cmds = append(cmds, cmd)
		}

	case eventMsg:
		m.handleEvent(msg.event)
		cmds = append(cmds, waitForEvent(m.session))

	case closedMsg:
		m.finished = true
		m.speaker = ""
		m.participants.SetSpeaker("")
		m.transcript.DropStreaming()
		switch {
		case msg.err != nil && !m.failed:
			m.failed = true
			m.status.Message = msg.err.Error()
			m.transcript.Add(components.Entry{Kind: components.EntryError, Content: msg.err.Error()})
		case !m.failed:
			m.transcript.Add(components.Entry{
				Kind:    components.EntryNotice,
				Content: fmt.Sprintf("Conversation ended after %d turns.", m.participants.Total()),
			})
		}
		m.refreshState()
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventPersona:
		if ev.Persona == nil {
			return
		}
		m.speaker = ev.Persona.ID
		m.participants.SetSpeaker(ev.Persona.ID)
		m.status.Speaker = ev.Persona.Name
		m.transcript.StartTurn(components.Entry{
			Speaker: ev.Persona.Name,
			Avatar:  ev.Persona.Avatar,
			Model:   ev.Persona.Model,
			Seat:    m.participants.Seat(ev.Persona.ID),
		})

	case orchestrator.EventContent:
		m.transcript.AppendStreaming(ev.Content)

	case orchestrator.EventDone:
		content := m.transcript.StreamingContent()
		speaker := m.speaker
		if ev.Message != nil {
			content = ev.Message.Content
			speaker = ev.Message.PersonaID
		}
		m.transcript.FinishTurn(content)
		m.participants.CountMessage(speaker)
		m.participants.SetSpeaker("")
		m.speaker = ""

	case orchestrator.EventError:
		m.transcript.DropStreaming()
		text := "turn failed"
		if ev.Err != nil {
			text = ev.Err.Error()
		}
		m.transcript.Add(components.Entry{Kind: components.EntryError, Content: text})
		m.participants.SetSpeaker("")
		m.speaker = ""
		// A remote viewer keeps listening; the publisher may start another run
		if !m.remote {
			m.failed = true
			m.status.Message = text
		}
	}
	m.refreshState()
}

func (m *Model) refreshState() {
	m.status.Turns = m.participants.Total()
	switch {
	case m.failed:
		m.status.State = components.StateFailed
	case m.finished:
		m.status.State = components.StateFinished
	case m.speaker != "":
		m.status.State = components.StateSpeaking
	case m.paused:
		m.status.State = components.StatePaused
	default:
		m.status.State = components.StateWaiting
	}
}

func (m *Model) resize() {
	m.header.SetWidth(m.width)
	m.status.SetWidth(m.width)
	m.transcript.SetSize(m.layout.LeftWidth(), m.layout.BodyHeight())
	m.participants.SetSize(m.layout.RightWidth(), m.layout.BodyHeight())
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	t := theme.Current

	var side string
	if m.layout.RightVisible() {
		side = m.participants.View()
	}
	view := m.layout.Render(m.header.View(), m.transcript.View(), side, m.status.View())

	if m.showHelp {
		view = components.PlaceOverlay(m.help.View(), m.width, m.height)
	}

	return lipgloss.NewStyle().
		Background(t.Background).
		Width(m.width).
		Height(m.height).
		Render(view)
}

// Run shows the watch view until the user quits
func Run(m Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithoutBracketedPaste(),
	)
	_, err := p.Run()
	return err
}
