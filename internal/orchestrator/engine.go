package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simonyos/roundtable/internal/llm"
)

// Store is the persistence the engine reads history from and appends messages to.
type Store interface {
	CreateMessage(ctx context.Context, conversationID, personaID, personaName, modelLabel, content string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetPersonas(ctx context.Context, ids []string) ([]Persona, error)
}

// Providers resolves a backend id to its client.
type Providers interface {
	Get(id string) (llm.Provider, bool)
}

// Turn outcomes reported to an Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Observer is notified about turn progress.
type Observer interface {
	TurnStarted(backend string)
	FragmentReceived(backend string)
	TurnFinished(backend, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) TurnStarted(string)                         {}
func (nopObserver) FragmentReceived(string)                    {}
func (nopObserver) TurnFinished(string, string, time.Duration) {}

// State is the engine's turn state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Config holds the collaborators an engine needs.
type Config struct {
	Store       Store
	Providers   Providers
	Credentials llm.CredentialSource
	Observer    Observer
	Logger      *zap.Logger
}

// Engine drives the turns of one conversation. At most one turn runs at a time.
type Engine struct {
	conversation Conversation
	policy       *SpeakerPolicy
	store        Store
	providers    Providers
	credentials  llm.CredentialSource
	observer     Observer
	logger       *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewEngine creates an engine for conv. personas must follow conv.PersonaIDs order.
func NewEngine(conv Conversation, personas []Persona, cfg Config) (*Engine, error) {
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	policy, err := NewSpeakerPolicy(conv.Mode, personas)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Engine{
		conversation: conv,
		policy:       policy,
		store:        cfg.Store,
		providers:    cfg.Providers,
		credentials:  cfg.Credentials,
		observer:     observer,
		logger:       logger.With(zap.String("component", "engine"), zap.String("conversation", conv.ID)),
	}, nil
}

// OpenEngine loads a conversation and its personas from cfg.Store and creates its engine.
func OpenEngine(ctx context.Context, conversationID string, cfg Config) (*Engine, error) {
	conv, err := cfg.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	personas, err := cfg.Store.GetPersonas(ctx, conv.PersonaIDs)
	if err != nil {
		return nil, err
	}
	return NewEngine(*conv, personas, cfg)
}

// Conversation returns the conversation the engine drives.
func (e *Engine) Conversation() Conversation {
	return e.conversation
}

// State returns the current turn state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cancel aborts the running turn, if any. Nothing from it is persisted.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// ShouldContinue reports whether the conversation has turns left.
func (e *Engine) ShouldContinue(ctx context.Context) (bool, error) {
	history, err := e.store.ListMessages(ctx, e.conversation.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load history: %w", err)
	}
	return ShouldContinue(history), nil
}

// turn is the in-flight state of one generation.
type turn struct {
	speaker    Persona
	provider   llm.Provider
	prompt     []llm.Message
	credential string
}

// ExecuteTurn starts the next turn and returns its events. The channel closes once
// the engine is idle again. Configuration problems are returned before anything is sent.
// A turn cancelled before it starts streaming yields a closed channel.
func (e *Engine) ExecuteTurn(ctx context.Context) (<-chan Event, error) {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return nil, configError(ErrTurnInProgress, "conversation %s", e.conversation.ID)
	}
	turnCtx, cancel := context.WithCancel(ctx)
	e.state = StateRunning
	e.cancel = cancel
	e.mu.Unlock()

	t, err := e.prepareTurn(turnCtx)
	if turnCtx.Err() != nil {
		e.setIdle()
		e.logger.Info("turn cancelled before streaming")
		events := make(chan Event)
		close(events)
		return events, nil
	}
	if err != nil {
		e.setIdle()
		return nil, err
	}

	events := make(chan Event)
	go e.run(turnCtx, t, events)
	return events, nil
}

func (e *Engine) prepareTurn(ctx context.Context) (*turn, error) {
	history, err := e.store.ListMessages(ctx, e.conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	speaker := e.policy.NextSpeaker(history)
	provider, ok := e.providers.Get(speaker.Backend)
	if !ok {
		return nil, configError(ErrUnknownBackend, "persona %q uses %q", speaker.Name, speaker.Backend)
	}

	var credential string
	if e.credentials != nil {
		credential, _ = e.credentials.Credential(speaker.Backend)
	}

	return &turn{
		speaker:    speaker,
		provider:   provider,
		prompt:     BuildPrompt(e.conversation.Topic, speaker, history),
		credential: credential,
	}, nil
}

func (e *Engine) setIdle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state = StateIdle
}

// run streams one turn. The accumulator is only persisted once the stream is exhausted.
func (e *Engine) run(ctx context.Context, t *turn, events chan<- Event) {
	defer close(events)
	defer e.setIdle()

	backend := t.speaker.Backend
	logger := e.logger.With(zap.String("persona", t.speaker.ID), zap.String("model", t.speaker.ModelLabel()))
	started := time.Now()
	e.observer.TurnStarted(backend)

	outcome := OutcomeCancelled
	defer func() {
		e.observer.TurnFinished(backend, outcome, time.Since(started))
	}()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		outcome = OutcomeError
		logger.Warn("turn failed", zap.Error(err))
		emit(Event{Type: EventError, Err: err})
	}

	logger.Info("turn started")
	if !emit(Event{Type: EventPersona, Persona: &PersonaInfo{
		ID:     t.speaker.ID,
		Name:   t.speaker.Name,
		Avatar: t.speaker.Avatar,
		Model:  t.speaker.Model,
	}}) {
		logger.Info("turn cancelled")
		return
	}

	stream, err := t.provider.Chat(ctx, llm.ChatConfig{
		Model:       t.speaker.Model,
		Messages:    t.prompt,
		Temperature: t.speaker.Temperature,
		MaxTokens:   t.speaker.MaxTokens,
	}, t.credential)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("turn cancelled")
			return
		}
		fail(err)
		return
	}

	var content strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			if ctx.Err() != nil {
				logger.Info("turn cancelled", zap.Int("discarded_bytes", content.Len()))
				return
			}
			fail(chunk.Error)
			return
		}
		content.WriteString(chunk.Text)
		e.observer.FragmentReceived(backend)
		if !emit(Event{Type: EventContent, Content: chunk.Text}) {
			break
		}
	}
	if ctx.Err() != nil {
		logger.Info("turn cancelled", zap.Int("discarded_bytes", content.Len()))
		return
	}

	msg, err := e.store.CreateMessage(ctx, e.conversation.ID, t.speaker.ID, t.speaker.Name, t.speaker.ModelLabel(), content.String())
	if err != nil {
		fail(fmt.Errorf("%w: %w", ErrPersistence, err))
		return
	}

	outcome = OutcomeSuccess
	logger.Info("turn finished", zap.Int("bytes", content.Len()), zap.Duration("elapsed", time.Since(started)))
	emit(Event{Type: EventDone, Message: msg})
}

// Run executes turns until the turn cap is reached, a turn fails or ctx is cancelled.
// Every event is passed to onEvent.
func (e *Engine) Run(ctx context.Context, onEvent func(Event)) error {
	for {
		more, err := e.ShouldContinue(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}

		events, err := e.ExecuteTurn(ctx)
		if err != nil {
			return err
		}

		var turnErr error
		for ev := range events {
			if ev.Type == EventError {
				turnErr = ev.Err
			}
			if onEvent != nil {
				onEvent(ev)
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if turnErr != nil {
			return turnErr
		}
	}
}
