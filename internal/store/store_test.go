package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/simonyos/roundtable/internal/orchestrator"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPersonas(t *testing.T, s *Store, names ...string) []string {
	t.Helper()
	var ids []string
	for _, name := range names {
		p := &orchestrator.Persona{
			Name:         name,
			SystemPrompt: "You are " + name,
			Temperature:  0.7,
			Backend:      "ollama",
			Model:        "llama3",
		}
		require.NoError(t, s.SavePersona(context.Background(), p))
		ids = append(ids, p.ID)
	}
	return ids
}

func TestPersonaLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := &orchestrator.Persona{Name: "Ada", Avatar: "🦉", SystemPrompt: "Curious.", Position: "Pro", Temperature: 0, Backend: "anthropic", Model: "claude-3-haiku-20240307"}
	require.NoError(t, s.SavePersona(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1024, p.MaxTokens)

	got, err := s.GetPersona(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, *p, *got)

	p.Position = "Con"
	require.NoError(t, s.SavePersona(ctx, p))
	got, err = s.GetPersona(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Con", got.Position)

	list, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeletePersona(ctx, p.ID))
	_, err = s.GetPersona(ctx, p.ID)
	assert.ErrorIs(t, err, orchestrator.ErrPersonaNotFound)
	assert.ErrorIs(t, s.DeletePersona(ctx, p.ID), orchestrator.ErrPersonaNotFound)
}

func TestSavePersonaValidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		persona orchestrator.Persona
	}{
		{"missing name", orchestrator.Persona{Backend: "ollama", Model: "m"}},
		{"missing backend", orchestrator.Persona{Name: "x", Model: "m"}},
		{"temperature too high", orchestrator.Persona{Name: "x", Backend: "ollama", Model: "m", Temperature: 2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.SavePersona(ctx, &tt.persona))
		})
	}
}

func TestGetPersonasKeepsOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedPersonas(t, s, "Ada", "Bob", "Cy")

	got, err := s.GetPersonas(ctx, []string{ids[2], ids[0], ids[1]})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Cy", got[0].Name)
	assert.Equal(t, "Ada", got[1].Name)
	assert.Equal(t, "Bob", got[2].Name)

	_, err = s.GetPersonas(ctx, []string{ids[0], "missing"})
	assert.ErrorIs(t, err, orchestrator.ErrPersonaNotFound)
}

func TestConversationLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedPersonas(t, s, "Ada", "Bob")

	conv := &orchestrator.Conversation{Topic: "Tabs or spaces?", Mode: orchestrator.ModeDebate, PersonaIDs: ids}
	require.NoError(t, s.CreateConversation(ctx, conv))
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "Tabs or spaces?", conv.Title)
	assert.Equal(t, orchestrator.StatusCreated, conv.Status)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, got.PersonaIDs)
	assert.Equal(t, orchestrator.ModeDebate, got.Mode)

	require.NoError(t, s.SetStatus(ctx, conv.ID, orchestrator.StatusCompleted))
	got, err = s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, got.Status)

	list, err := s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.CreateMessage(ctx, conv.ID, ids[0], "Ada", "ollama/llama3", "hello")
	require.NoError(t, err)
	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, orchestrator.ErrConversationNotFound)
	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateConversationValidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedPersonas(t, s, "Ada", "Bob")

	err := s.CreateConversation(ctx, &orchestrator.Conversation{Topic: "t", Mode: orchestrator.ModeFree, PersonaIDs: ids[:1]})
	assert.ErrorIs(t, err, orchestrator.ErrTooFewPersonas)

	err = s.CreateConversation(ctx, &orchestrator.Conversation{Topic: "t", Mode: "panel", PersonaIDs: ids})
	assert.ErrorIs(t, err, orchestrator.ErrUnknownMode)

	err = s.CreateConversation(ctx, &orchestrator.Conversation{Topic: "t", Mode: orchestrator.ModeFree, PersonaIDs: []string{ids[0], "ghost"}})
	assert.ErrorIs(t, err, orchestrator.ErrPersonaNotFound)

	err = s.CreateConversation(ctx, &orchestrator.Conversation{Topic: "  ", Mode: orchestrator.ModeFree, PersonaIDs: ids})
	assert.ErrorIs(t, err, orchestrator.ErrEmptyTopic)

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestMessagesOrderedByCreation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		msg, err := s.CreateMessage(ctx, "c1", "p1", "Ada", "ollama/llama3", content)
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	}
	_, err := s.CreateMessage(ctx, "c2", "p1", "Ada", "ollama/llama3", "elsewhere")
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)
	assert.Equal(t, "ollama/llama3", msgs[0].Model)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "roundtable.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	ids := seedPersonas(t, s, "Ada")
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	p, err := s.GetPersona(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
}
