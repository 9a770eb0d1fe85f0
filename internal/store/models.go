package store

import (
	"time"

	"github.com/simonyos/roundtable/internal/orchestrator"
)

type personaRecord struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Name         string  `gorm:"size:100;not null"`
	Avatar       string  `gorm:"size:16"`
	SystemPrompt string  `gorm:"type:text;not null"`
	Position     string  `gorm:"size:200"`
	Temperature  float64 `gorm:"not null"`
	MaxTokens    int     `gorm:"not null"`
	Backend      string  `gorm:"size:50;not null"`
	Model        string  `gorm:"size:200;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (personaRecord) TableName() string { return "personas" }

func (r *personaRecord) toPersona() orchestrator.Persona {
	return orchestrator.Persona{
		ID:           r.ID,
		Name:         r.Name,
		Avatar:       r.Avatar,
		SystemPrompt: r.SystemPrompt,
		Position:     r.Position,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
		Backend:      r.Backend,
		Model:        r.Model,
	}
}

func newPersonaRecord(p orchestrator.Persona) personaRecord {
	return personaRecord{
		ID:           p.ID,
		Name:         p.Name,
		Avatar:       p.Avatar,
		SystemPrompt: p.SystemPrompt,
		Position:     p.Position,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		Backend:      p.Backend,
		Model:        p.Model,
	}
}

type conversationRecord struct {
	ID         string   `gorm:"primaryKey;size:36"`
	Title      string   `gorm:"size:200;not null"`
	Topic      string   `gorm:"type:text;not null"`
	Mode       string   `gorm:"size:20;not null"`
	PersonaIDs []string `gorm:"serializer:json;type:text"`
	Status     string   `gorm:"size:20;not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (conversationRecord) TableName() string { return "conversations" }

func (r *conversationRecord) toConversation() orchestrator.Conversation {
	return orchestrator.Conversation{
		ID:         r.ID,
		Title:      r.Title,
		Topic:      r.Topic,
		Mode:       orchestrator.Mode(r.Mode),
		PersonaIDs: r.PersonaIDs,
		Status:     orchestrator.Status(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// messageRecord keeps an autoincrement sequence so messages written within one clock tick stay ordered
type messageRecord struct {
	Seq            uint   `gorm:"primaryKey;autoIncrement"`
	ID             string `gorm:"uniqueIndex;size:36;not null"`
	ConversationID string `gorm:"index:idx_messages_conversation;size:36;not null"`
	PersonaID      string `gorm:"size:36;not null"`
	PersonaName    string `gorm:"size:100;not null"`
	Model          string `gorm:"size:250;not null"`
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

func (messageRecord) TableName() string { return "messages" }

func (r *messageRecord) toMessage() orchestrator.Message {
	return orchestrator.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		PersonaID:      r.PersonaID,
		PersonaName:    r.PersonaName,
		Model:          r.Model,
		Content:        r.Content,
		CreatedAt:      r.CreatedAt,
	}
}
