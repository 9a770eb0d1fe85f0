// Package orchestrator drives multi-persona conversations: it picks the next speaker,
// assembles that persona's prompt and streams one turn at a time from its backend.
package orchestrator

import (
	"errors"
	"fmt"
)

// Domain-specific errors for conversation orchestration.
var (
	// Configuration errors
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrUnknownBackend = errors.New("unknown backend")
	ErrUnknownMode    = errors.New("unknown conversation mode")
	ErrTooFewPersonas = errors.New("a conversation needs at least 2 personas")
	ErrEmptyTopic     = errors.New("a conversation needs a topic")

	// Lookup errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrPersonaNotFound      = errors.New("persona not found")

	// Persistence errors
	ErrPersistence = errors.New("failed to persist message")
)

// ConfigurationError reports a turn that cannot start. It is returned before any network call.
type ConfigurationError struct {
	Err    error
	Detail string
}

func (e *ConfigurationError) Error() string {
	if e.Detail == "" {
		return "configuration error: " + e.Err.Error()
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Err, e.Detail)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(err error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
