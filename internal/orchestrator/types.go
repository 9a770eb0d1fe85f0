package orchestrator

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Mode selects how the next speaker is chosen.
type Mode string

const (
	ModeFree       Mode = "free"
	ModeDebate     Mode = "debate"
	ModeInterview  Mode = "interview"
	ModeRoundRobin Mode = "round-robin"
)

// AllModes returns every supported mode.
func AllModes() []Mode {
	return []Mode{ModeFree, ModeDebate, ModeInterview, ModeRoundRobin}
}

// ModeNames returns the supported modes joined by sep.
func ModeNames(sep string) string {
	names := make([]string, 0, len(AllModes()))
	for _, m := range AllModes() {
		names = append(names, string(m))
	}
	return strings.Join(names, sep)
}

// Valid reports whether m is a supported mode.
func (m Mode) Valid() bool {
	return slices.Contains(AllModes(), m)
}

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", configError(ErrUnknownMode, "%q, want one of %s", s, ModeNames(", "))
	}
	return m, nil
}

// Status is the lifecycle status of a conversation.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Persona is a named generation configuration taking part in conversations.
type Persona struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Avatar       string  `json:"avatar,omitempty"`
	SystemPrompt string  `json:"systemPrompt"`
	Position     string  `json:"position,omitempty"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	Backend      string  `json:"backend"`
	Model        string  `json:"model"`
}

// ModelLabel returns the "backend/model" label stored on messages.
func (p Persona) ModelLabel() string {
	return fmt.Sprintf("%s/%s", p.Backend, p.Model)
}

// Message is one persisted turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	PersonaID      string    `json:"personaId"`
	PersonaName    string    `json:"personaName"`
	Model          string    `json:"model"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Conversation is a topic discussed by an ordered set of personas.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Topic      string    `json:"topic"`
	Mode       Mode      `json:"mode"`
	PersonaIDs []string  `json:"personaIds"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Validate checks the parts of a conversation the engine relies on.
func (c *Conversation) Validate() error {
	if !c.Mode.Valid() {
		return configError(ErrUnknownMode, "%q", c.Mode)
	}
	if len(c.PersonaIDs) < 2 {
		return configError(ErrTooFewPersonas, "got %d", len(c.PersonaIDs))
	}
	return nil
}
