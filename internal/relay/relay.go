// Package relay publishes conversation events on NATS so other processes can
// follow a conversation live.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/simonyos/roundtable/internal/orchestrator"
)

var (
	ErrNotConnected     = errors.New("not connected to NATS")
	ErrConnectionFailed = errors.New("failed to connect to NATS")
	ErrPublishFailed    = errors.New("failed to publish event")
)

// SubjectPrefix is the root of every subject the relay uses.
const SubjectPrefix = "roundtable.conversations"

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL            string        `json:"url" yaml:"url"`
	CredsFile      string        `json:"creds_file,omitempty" yaml:"creds_file,omitempty"`
	Token          string        `json:"token,omitempty" yaml:"token,omitempty"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	ReconnectWait  time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	MaxReconnects  int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
}

// DefaultNATSConfig returns the default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL, // "nats://localhost:4222"
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  60,
	}
}

// Subject returns the subject carrying the events of one conversation.
// An empty id yields a wildcard over all conversations.
func Subject(conversationID string) string {
	if conversationID == "" {
		return SubjectPrefix + ".*.events"
	}
	return fmt.Sprintf("%s.%s.events", SubjectPrefix, conversationID)
}

// Envelope is the payload published for every engine event.
type Envelope struct {
	ConversationID string                `json:"conversation_id"`
	Seq            uint64                `json:"seq"`
	At             time.Time             `json:"at"`
	Event          orchestrator.Event    `json:"event"`
	Message        *orchestrator.Message `json:"message,omitempty"` // set on done events
}

// Relay is a NATS connection publishing and subscribing to conversation events.
type Relay struct {
	conn   *nats.Conn
	config NATSConfig
	logger *zap.Logger
	seq    atomic.Uint64

	mu        sync.Mutex
	subs      []*nats.Subscription
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an unconnected relay.
func New(config NATSConfig, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		config: config,
		logger: logger.With(zap.String("component", "relay")),
		done:   make(chan struct{}),
	}
}

// Connect establishes a connection to the NATS server.
func (r *Relay) Connect() error {
	opts := []nats.Option{
		nats.Name("roundtable-relay"),
		nats.Timeout(r.config.ConnectTimeout),
		nats.ReconnectWait(r.config.ReconnectWait),
		nats.MaxReconnects(r.config.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			r.logger.Warn("connection lost, attempting to reconnect", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			r.logger.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			r.logger.Debug("connection closed", zap.Error(nc.LastError()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			r.logger.Warn("nats error", zap.Error(err))
		}),
	}

	if r.config.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(r.config.CredsFile))
	}

	if r.config.Token != "" {
		opts = append(opts, nats.Token(r.config.Token))
	}

	conn, err := nats.Connect(r.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	r.conn = conn
	r.logger.Info("connected", zap.String("url", conn.ConnectedUrl()))
	return nil
}

// Publish sends one event of conversationID.
func (r *Relay) Publish(conversationID string, ev orchestrator.Event) error {
	if r.conn == nil {
		return ErrNotConnected
	}

	env := Envelope{
		ConversationID: conversationID,
		Seq:            r.seq.Add(1),
		At:             time.Now().UTC(),
		Event:          ev,
		Message:        ev.Message,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := r.conn.Publish(Subject(conversationID), data); err != nil {
		return fmt.Errorf("%w: %s", ErrPublishFailed, err)
	}
	return nil
}

// Forward returns an event callback that publishes every event of
// conversationID and then hands it to next. Publish failures are logged.
func (r *Relay) Forward(conversationID string, next func(orchestrator.Event)) func(orchestrator.Event) {
	return func(ev orchestrator.Event) {
		if err := r.Publish(conversationID, ev); err != nil {
			r.logger.Warn("relay publish failed", zap.String("conversation", conversationID), zap.Error(err))
		}
		if next != nil {
			next(ev)
		}
	}
}

// Subscribe delivers the envelopes published for conversationID ("" for all)
// on the returned channel, which closes when the relay is closed.
// Undecodable payloads are dropped.
func (r *Relay) Subscribe(conversationID string) (<-chan Envelope, error) {
	if r.conn == nil {
		return nil, ErrNotConnected
	}

	msgs := make(chan *nats.Msg, 100)
	sub, err := r.conn.ChanSubscribe(Subject(conversationID), msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := r.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-msgs:
				var env Envelope
				if err := json.Unmarshal(msg.Data, &env); err != nil {
					r.logger.Debug("dropping undecodable event", zap.String("subject", msg.Subject), zap.Error(err))
					continue
				}
				env.Event.Message = env.Message
				select {
				case out <- env:
				case <-r.done:
					return
				}
			case <-r.done:
				return
			}
		}
	}()
	return out, nil
}

// Close unsubscribes and closes the connection.
func (r *Relay) Close() error {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.subs = nil
	r.mu.Unlock()

	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	return nil
}
