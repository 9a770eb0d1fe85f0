package llm

import "context"

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTokens is sent when a ChatConfig leaves MaxTokens unset
const DefaultMaxTokens = 1024

// DefaultTemperature is the sampling temperature given to new personas
const DefaultTemperature = 0.7

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Model is a model offered by a backend
type Model struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Backend string `json:"backend,omitempty"`
}

// ChatConfig describes a single streaming generation request
type ChatConfig struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

func (c ChatConfig) maxTokens() int {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// StreamChunk represents a piece of streaming output.
// A chunk carrying an Error is always the last one sent before the channel closes.
type StreamChunk struct {
	Text  string // Fragment text
	Error error  // Terminal error if any
}

// Provider is the interface for generative-text backends
type Provider interface {
	// ID returns the backend identifier personas refer to
	ID() string

	// Name returns a display name
	Name() string

	// RequiresKey reports whether calls need a credential
	RequiresKey() bool

	// ValidateKey checks a credential against the backend. Failures report false.
	ValidateKey(ctx context.Context, credential string) bool

	// FetchModels lists the backend's models. Failures report an empty list.
	FetchModels(ctx context.Context, credential string) []Model

	// Chat starts a streaming generation. The channel is closed when the
	// response is exhausted, on a terminal error, or when ctx is cancelled.
	Chat(ctx context.Context, cfg ChatConfig, credential string) (<-chan StreamChunk, error)
}

// CredentialSource resolves the credential configured for a backend
type CredentialSource interface {
	Credential(backend string) (string, bool)
}
