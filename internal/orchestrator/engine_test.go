package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/simonyos/roundtable/internal/llm"
)

// memStore is an in-memory Store
type memStore struct {
	mu        sync.Mutex
	convs     map[string]*Conversation
	personas  map[string]Persona
	messages  []Message
	createErr error

	// listing blocks ListMessages until released is closed
	listing  chan struct{}
	released chan struct{}
}

func newMemStore() *memStore {
	return &memStore{convs: map[string]*Conversation{}, personas: map[string]Persona{}}
}

func (s *memStore) CreateMessage(ctx context.Context, conversationID, personaID, personaName, modelLabel, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	msg := Message{
		ID:             fmt.Sprintf("m%d", len(s.messages)+1),
		ConversationID: conversationID,
		PersonaID:      personaID,
		PersonaName:    personaName,
		Model:          modelLabel,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if s.released != nil {
		s.listing <- struct{}{}
		<-s.released
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *memStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return c, nil
}

func (s *memStore) GetPersonas(ctx context.Context, ids []string) ([]Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Persona
	for _, id := range ids {
		p, ok := s.personas[id]
		if !ok {
			return nil, ErrPersonaNotFound
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeProvider streams fixed fragments. When gate is set, each fragment waits for a receive from it.
type fakeProvider struct {
	fragments []string
	failAfter int // send an error after this many fragments when > 0
	chatErr   error
	gate      chan struct{}

	// errOnCancel sends nothing until ctx is done, then a terminal error
	errOnCancel bool

	mu      sync.Mutex
	configs []llm.ChatConfig
	keys    []string
}

func (f *fakeProvider) ID() string        { return "fake" }
func (f *fakeProvider) Name() string      { return "Fake" }
func (f *fakeProvider) RequiresKey() bool { return true }

func (f *fakeProvider) ValidateKey(ctx context.Context, key string) bool {
	return key != ""
}

func (f *fakeProvider) FetchModels(ctx context.Context, key string) []llm.Model {
	return []llm.Model{{ID: "model-a", Name: "Model A", Backend: "fake"}}
}

func (f *fakeProvider) Chat(ctx context.Context, cfg llm.ChatConfig, credential string) (<-chan llm.StreamChunk, error) {
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.keys = append(f.keys, credential)
	f.mu.Unlock()

	if f.chatErr != nil {
		return nil, f.chatErr
	}

	ch := make(chan llm.StreamChunk)
	if f.errOnCancel {
		go func() {
			defer close(ch)
			<-ctx.Done()
			ch <- llm.StreamChunk{Error: errors.New("connection reset")}
		}()
		return ch, nil
	}
	go func() {
		defer close(ch)
		for i, text := range f.fragments {
			if f.failAfter > 0 && i == f.failAfter {
				select {
				case ch <- llm.StreamChunk{Error: errors.New("upstream exploded")}:
				case <-ctx.Done():
				}
				return
			}
			if f.gate != nil {
				select {
				case <-f.gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- llm.StreamChunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

type fakeCredentials map[string]string

func (f fakeCredentials) Credential(backend string) (string, bool) {
	v, ok := f[backend]
	return v, ok
}

type recordingObserver struct {
	mu        sync.Mutex
	started   int
	fragments int
	outcomes  []string
}

func (r *recordingObserver) TurnStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recordingObserver) FragmentReceived(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragments++
}

func (r *recordingObserver) TurnFinished(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type engineFixture struct {
	engine   *Engine
	store    *memStore
	provider *fakeProvider
	observer *recordingObserver
}

func newFixture(t *testing.T, mode Mode, provider *fakeProvider) *engineFixture {
	t.Helper()

	store := newMemStore()
	list := []Persona{
		{ID: "ada", Name: "Ada", Avatar: "🦉", SystemPrompt: "Be curious.", Temperature: 0.7, MaxTokens: 256, Backend: "fake", Model: "model-a"},
		{ID: "bob", Name: "Bob", SystemPrompt: "Be blunt.", Position: "Con", Temperature: 1.1, MaxTokens: 512, Backend: "fake", Model: "model-b"},
	}
	for _, p := range list {
		store.personas[p.ID] = p
	}
	store.convs["c1"] = &Conversation{ID: "c1", Title: "T", Topic: "Tabs or spaces", Mode: mode, PersonaIDs: []string{"ada", "bob"}}

	observer := &recordingObserver{}
	engine, err := OpenEngine(context.Background(), "c1", Config{
		Store:       store,
		Providers:   llm.NewRegistry(provider),
		Credentials: fakeCredentials{"fake": "secret"},
		Observer:    observer,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	return &engineFixture{engine: engine, store: store, provider: provider, observer: observer}
}

func drain(events <-chan Event) []Event {
	var result []Event
	for ev := range events {
		result = append(result, ev)
	}
	return result
}

func TestExecuteTurnSuccess(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"Tabs", " are", " better."}})

	events, err := f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	got := drain(events)

	require.Len(t, got, 5)
	assert.Equal(t, EventPersona, got[0].Type)
	assert.Equal(t, &PersonaInfo{ID: "ada", Name: "Ada", Avatar: "🦉", Model: "model-a"}, got[0].Persona)
	assert.Equal(t, "Tabs", got[1].Content)
	assert.Equal(t, " are", got[2].Content)
	assert.Equal(t, " better.", got[3].Content)
	assert.Equal(t, EventDone, got[4].Type)

	require.Equal(t, 1, f.store.count())
	msg := f.store.messages[0]
	assert.Equal(t, "Tabs are better.", msg.Content)
	assert.Equal(t, "ada", msg.PersonaID)
	assert.Equal(t, "Ada", msg.PersonaName)
	assert.Equal(t, "fake/model-a", msg.Model)
	assert.Equal(t, msg.ID, got[4].Message.ID)

	assert.Equal(t, StateIdle, f.engine.State())

	// The request carries the persona's sampling settings, prompt and credential
	cfg := f.provider.configs[0]
	assert.Equal(t, "model-a", cfg.Model)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 256, cfg.MaxTokens)
	assert.Equal(t, BuildPrompt("Tabs or spaces", f.store.personas["ada"], nil), cfg.Messages)
	assert.Equal(t, "secret", f.provider.keys[0])

	assert.Equal(t, []string{OutcomeSuccess}, f.observer.outcomes)
	assert.Equal(t, 3, f.observer.fragments)
}

func TestSecondTurnUsesHistory(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"ok"}})

	for i := 0; i < 2; i++ {
		events, err := f.engine.ExecuteTurn(context.Background())
		require.NoError(t, err)
		drain(events)
	}

	require.Equal(t, 2, f.store.count())
	assert.Equal(t, "bob", f.store.messages[1].PersonaID)
	assert.Equal(t, "fake/model-b", f.store.messages[1].Model)

	prompt := f.provider.configs[1].Messages
	require.Len(t, prompt, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Ada: ok"}, prompt[1])
}

func TestCancelMidStreamPersistsNothing(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, ModeFree, &fakeProvider{fragments: []string{"1", "2", "3", "4", "5"}, gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := f.engine.ExecuteTurn(ctx)
	require.NoError(t, err)

	assert.Equal(t, EventPersona, (<-events).Type)
	for _, want := range []string{"1", "2"} {
		gate <- struct{}{}
		ev := <-events
		require.Equal(t, EventContent, ev.Type)
		assert.Equal(t, want, ev.Content)
	}

	cancel()
	rest := drain(events)
	for _, ev := range rest {
		assert.NotEqual(t, EventDone, ev.Type)
		assert.NotEqual(t, EventError, ev.Type)
	}

	assert.Equal(t, 0, f.store.count())
	assert.Equal(t, StateIdle, f.engine.State())
	assert.Equal(t, []string{OutcomeCancelled}, f.observer.outcomes)
}

func TestEngineCancel(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, ModeDebate, &fakeProvider{fragments: []string{"a", "b", "c"}, gate: gate})

	events, err := f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	<-events

	gate <- struct{}{}
	<-events

	f.engine.Cancel()
	drain(events)

	assert.Equal(t, 0, f.store.count())
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestCancelWhileLoadingHistory(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"too", " late"}})
	f.store.listing = make(chan struct{})
	f.store.released = make(chan struct{})

	type result struct {
		events <-chan Event
		err    error
	}
	done := make(chan result, 1)
	go func() {
		events, err := f.engine.ExecuteTurn(context.Background())
		done <- result{events, err}
	}()

	<-f.store.listing
	assert.Equal(t, StateRunning, f.engine.State())
	f.engine.Cancel()
	close(f.store.released)

	r := <-done
	require.NoError(t, r.err)
	assert.Empty(t, drain(r.events))
	assert.Equal(t, 0, f.store.count())
	assert.Empty(t, f.provider.configs, "no request may be sent")
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestStreamErrorAfterCancelIsSilent(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{errOnCancel: true})

	events, err := f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventPersona, (<-events).Type)

	f.engine.Cancel()
	for _, ev := range drain(events) {
		assert.NotEqual(t, EventError, ev.Type)
	}

	assert.Equal(t, 0, f.store.count())
	assert.Equal(t, StateIdle, f.engine.State())
	assert.Equal(t, []string{OutcomeCancelled}, f.observer.outcomes)
}

func TestExecuteTurnWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"x"}, gate: gate})

	events, err := f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	<-events
	assert.Equal(t, StateRunning, f.engine.State())

	_, err = f.engine.ExecuteTurn(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrTurnInProgress)

	close(gate)
	drain(events)
	assert.Equal(t, 1, f.store.count())

	// Idle again, so the next turn may start
	events, err = f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	drain(events)
	assert.Equal(t, 2, f.store.count())
}

func TestExecuteTurnUnknownBackend(t *testing.T) {
	provider := &fakeProvider{fragments: []string{"x"}}
	f := newFixture(t, ModeRoundRobin, provider)

	p := f.store.personas["ada"]
	p.Backend = "gemini"
	engine, err := NewEngine(*f.store.convs["c1"], []Persona{p, f.store.personas["bob"]}, Config{
		Store:     f.store,
		Providers: llm.NewRegistry(provider),
	})
	require.NoError(t, err)

	_, err = engine.ExecuteTurn(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Empty(t, provider.configs, "no request may be sent")
	assert.Equal(t, StateIdle, engine.State())
}

func TestStreamErrorDiscardsTurn(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"a", "b", "c"}, failAfter: 2})

	events, err := f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	got := drain(events)

	require.Len(t, got, 4)
	assert.Equal(t, EventContent, got[2].Type)
	assert.Equal(t, EventError, got[3].Type)
	assert.EqualError(t, got[3].Err, "upstream exploded")
	assert.Equal(t, 0, f.store.count())
	assert.Equal(t, []string{OutcomeError}, f.observer.outcomes)
}

func TestChatErrorBecomesEvent(t *testing.T) {
	authErr := &llm.Error{Kind: llm.KindAuthentication, Backend: "fake", Message: "API key not configured"}
	f := newFixture(t, ModeRoundRobin, &fakeProvider{chatErr: authErr})

	events, err := f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	got := drain(events)

	require.Len(t, got, 2)
	assert.Equal(t, EventPersona, got[0].Type)
	assert.Equal(t, EventError, got[1].Type)
	assert.True(t, llm.IsKind(got[1].Err, llm.KindAuthentication))
	assert.Len(t, f.provider.configs, 1, "no retry")
}

func TestPersistenceFailure(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"streamed", " anyway"}})
	f.store.createErr = errors.New("disk full")

	events, err := f.engine.ExecuteTurn(context.Background())
	require.NoError(t, err)
	got := drain(events)

	require.Len(t, got, 4)
	assert.Equal(t, "streamed", got[1].Content)
	assert.Equal(t, " anyway", got[2].Content)
	assert.Equal(t, EventError, got[3].Type)
	assert.ErrorIs(t, got[3].Err, ErrPersistence)
	assert.Equal(t, StateIdle, f.engine.State())
}

func TestRunStopsAtTurnCap(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"point"}})

	var done int
	err := f.engine.Run(context.Background(), func(ev Event) {
		if ev.Type == EventDone {
			done++
		}
	})
	require.NoError(t, err)

	assert.Equal(t, MaxTurns, done)
	assert.Equal(t, MaxTurns, f.store.count())
	for i, msg := range f.store.messages {
		want := "ada"
		if i%2 == 1 {
			want = "bob"
		}
		assert.Equal(t, want, msg.PersonaID, "turn %d", i)
	}

	more, err := f.engine.ShouldContinue(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
}

func TestRunStopsOnError(t *testing.T) {
	f := newFixture(t, ModeRoundRobin, &fakeProvider{fragments: []string{"a", "b"}, failAfter: 1})

	err := f.engine.Run(context.Background(), nil)
	require.Error(t, err)
	assert.EqualError(t, err, "upstream exploded")
	assert.Equal(t, 0, f.store.count())
}

func TestOpenEngineErrors(t *testing.T) {
	store := newMemStore()
	_, err := OpenEngine(context.Background(), "missing", Config{Store: store})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	store.personas["a"] = Persona{ID: "a"}
	store.convs["solo"] = &Conversation{ID: "solo", Mode: ModeFree, PersonaIDs: []string{"a"}}
	_, err = OpenEngine(context.Background(), "solo", Config{Store: store})
	assert.ErrorIs(t, err, ErrTooFewPersonas)

	store.convs["bad"] = &Conversation{ID: "bad", Mode: "chaos", PersonaIDs: []string{"a", "a"}}
	_, err = OpenEngine(context.Background(), "bad", Config{Store: store})
	assert.ErrorIs(t, err, ErrUnknownMode)
}
