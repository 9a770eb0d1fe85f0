// Package store persists personas, conversations and messages with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/simonyos/roundtable/internal/llm"
	"github.com/simonyos/roundtable/internal/orchestrator"
)

// Store is a gorm-backed implementation of orchestrator.Store
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ orchestrator.Store = (*Store)(nil)

// Open opens (creating if needed) the sqlite database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer; a single connection also keeps ":memory:" databases shared
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return New(db, logger)
}

// New wraps an open gorm connection and migrates the schema
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&personaRecord{}, &conversationRecord{}, &messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "store"))}, nil
}

// Close closes the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SavePersona creates or replaces a persona. An empty ID gets a new one.
func (s *Store) SavePersona(ctx context.Context, p *orchestrator.Persona) error {
	if p.Name == "" {
		return fmt.Errorf("persona name is required")
	}
	if p.Backend == "" || p.Model == "" {
		return fmt.Errorf("persona %q needs a backend and a model", p.Name)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("persona %q temperature %.2f is outside 0.0-2.0", p.Name, p.Temperature)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = llm.DefaultMaxTokens
	}

	rec := newPersonaRecord(*p)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to save persona: %w", err)
	}
	return nil
}

// GetPersona returns a persona by id
func (s *Store) GetPersona(ctx context.Context, id string) (*orchestrator.Persona, error) {
	var rec personaRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", orchestrator.ErrPersonaNotFound, id)
		}
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	p := rec.toPersona()
	return &p, nil
}

// GetPersonas returns personas in the order of ids
func (s *Store) GetPersonas(ctx context.Context, ids []string) ([]orchestrator.Persona, error) {
	var recs []personaRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get personas: %w", err)
	}

	byID := make(map[string]personaRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}

	result := make([]orchestrator.Persona, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", orchestrator.ErrPersonaNotFound, id)
		}
		result = append(result, rec.toPersona())
	}
	return result, nil
}

// ListPersonas returns all personas by name
func (s *Store) ListPersonas(ctx context.Context) ([]orchestrator.Persona, error) {
	var recs []personaRecord
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	result := make([]orchestrator.Persona, 0, len(recs))
	for i := range recs {
		result = append(result, recs[i].toPersona())
	}
	return result, nil
}

// DeletePersona removes a persona
func (s *Store) DeletePersona(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&personaRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete persona: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", orchestrator.ErrPersonaNotFound, id)
	}
	return nil
}

// CreateConversation validates and stores a new conversation
func (s *Store) CreateConversation(ctx context.Context, conv *orchestrator.Conversation) error {
	if err := conv.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(conv.Topic) == "" {
		return orchestrator.ErrEmptyTopic
	}
	if _, err := s.GetPersonas(ctx, conv.PersonaIDs); err != nil {
		return err
	}

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Title == "" {
		conv.Title = conv.Topic
	}
	conv.Status = orchestrator.StatusCreated

	rec := conversationRecord{
		ID:         conv.ID,
		Title:      conv.Title,
		Topic:      conv.Topic,
		Mode:       string(conv.Mode),
		PersonaIDs: conv.PersonaIDs,
		Status:     string(conv.Status),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	conv.CreatedAt, conv.UpdatedAt = rec.CreatedAt, rec.UpdatedAt

	s.logger.Debug("conversation created", zap.String("id", conv.ID), zap.String("mode", string(conv.Mode)))
	return nil
}

// GetConversation returns a conversation by id
func (s *Store) GetConversation(ctx context.Context, id string) (*orchestrator.Conversation, error) {
	var rec conversationRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", orchestrator.ErrConversationNotFound, id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv := rec.toConversation()
	return &conv, nil
}

// ListConversations returns conversations, newest first
func (s *Store) ListConversations(ctx context.Context) ([]orchestrator.Conversation, error) {
	var recs []conversationRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	result := make([]orchestrator.Conversation, 0, len(recs))
	for i := range recs {
		result = append(result, recs[i].toConversation())
	}
	return result, nil
}

// SetStatus updates a conversation's lifecycle status
func (s *Store) SetStatus(ctx context.Context, id string, status orchestrator.Status) error {
	res := s.db.WithContext(ctx).Model(&conversationRecord{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", orchestrator.ErrConversationNotFound, id)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&messageRecord{}, "conversation_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res := tx.Delete(&conversationRecord{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", orchestrator.ErrConversationNotFound, id)
		}
		return nil
	})
}

// CreateMessage appends a message to a conversation
func (s *Store) CreateMessage(ctx context.Context, conversationID, personaID, personaName, modelLabel, content string) (*orchestrator.Message, error) {
	rec := messageRecord{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		PersonaID:      personaID,
		PersonaName:    personaName,
		Model:          modelLabel,
		Content:        content,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	msg := rec.toMessage()
	return &msg, nil
}

// ListMessages returns a conversation's messages, oldest first
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]orchestrator.Message, error) {
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	result := make([]orchestrator.Message, 0, len(recs))
	for i := range recs {
		result = append(result, recs[i].toMessage())
	}
	return result, nil
}
