package tui

import (
	"context"
	"errors"
	"sync"

	"github.com/simonyos/roundtable/internal/orchestrator"
	"github.com/simonyos/roundtable/internal/relay"
)

// Session feeds engine events to the watch view.
type Session interface {
	// Events closes when the conversation stops.
	Events() <-chan orchestrator.Event
	// Err reports why the conversation stopped, once Events is closed.
	Err() error
	Stop()
}

// Pausable sessions can hold back the next turn.
type Pausable interface {
	SetPaused(paused bool)
}

// LocalSession runs an engine in-process.
type LocalSession struct {
	events chan orchestrator.Event
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// StartLocal runs engine until its turn cap, a failure or Stop. Every event is
// passed to forward (which may be nil) before the view sees it.
func StartLocal(ctx context.Context, engine *orchestrator.Engine, forward func(orchestrator.Event)) *LocalSession {
	ctx, cancel := context.WithCancel(ctx)
	s := &LocalSession{
		events: make(chan orchestrator.Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.events)

		err := engine.Run(ctx, func(ev orchestrator.Event) {
			if forward != nil {
				forward(ev)
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == orchestrator.EventDone {
				s.waitWhilePaused(ctx)
			}
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.err = err
	}()
	return s
}

func (s *LocalSession) Events() <-chan orchestrator.Event {
	return s.events
}

func (s *LocalSession) Err() error {
	<-s.done
	return s.err
}

func (s *LocalSession) Stop() {
	s.cancel()
}

// SetPaused holds the next turn until unpaused. The turn in flight finishes.
func (s *LocalSession) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused == s.paused {
		return
	}
	s.paused = paused
	if paused {
		s.resume = make(chan struct{})
	} else {
		close(s.resume)
	}
}

func (s *LocalSession) waitWhilePaused(ctx context.Context) {
	for {
		s.mu.Lock()
		if !s.paused {
			s.mu.Unlock()
			return
		}
		resume := s.resume
		s.mu.Unlock()

		select {
		case <-resume:
		case <-ctx.Done():
			return
		}
	}
}

// RemoteSession follows a conversation published by another process.
type RemoteSession struct {
	relay  *relay.Relay
	events chan orchestrator.Event
	stop   chan struct{}
	once   sync.Once
}

// WatchRemote subscribes to the events of conversationID on r.
func WatchRemote(r *relay.Relay, conversationID string) (*RemoteSession, error) {
	envelopes, err := r.Subscribe(conversationID)
	if err != nil {
		return nil, err
	}

	s := &RemoteSession{
		relay:  r,
		events: make(chan orchestrator.Event, 64),
		stop:   make(chan struct{}),
	}
	go func() {
		defer close(s.events)
		for env := range envelopes {
			select {
			case s.events <- env.Event:
			case <-s.stop:
				return
			}
		}
	}()
	return s, nil
}

func (s *RemoteSession) Events() <-chan orchestrator.Event {
	return s.events
}

func (s *RemoteSession) Err() error {
	return nil
}

func (s *RemoteSession) Stop() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.relay.Close()
	})
}
