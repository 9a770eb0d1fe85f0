package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
)

const anthropicVersion = "2023-06-01"

// anthropicProbeModel is the model used when probing a key
const anthropicProbeModel = "claude-3-haiku-20240307"

var anthropicModels = []Model{
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku"},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus"},
	{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet"},
	{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku"},
}

// Anthropic implements Provider using the Claude Messages API
type Anthropic struct {
	backend
}

// NewAnthropic creates an Anthropic client
func NewAnthropic(opts ...Option) *Anthropic {
	return &Anthropic{backend: newBackend("anthropic", "Anthropic", "https://api.anthropic.com/v1", opts)}
}

// Anthropic API types
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// RequiresKey reports that Anthropic needs an API key
func (a *Anthropic) RequiresKey() bool {
	return true
}

func (a *Anthropic) requestHeaders(credential string) map[string]string {
	return map[string]string{
		"x-api-key":         credential,
		"anthropic-version": anthropicVersion,
	}
}

// ValidateKey sends a one-token probe. A 400 still proves the key was accepted.
func (a *Anthropic) ValidateKey(ctx context.Context, credential string) bool {
	if credential == "" {
		return false
	}
	probe := anthropicRequest{
		Model:     anthropicProbeModel,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: RoleUser, Content: "hi"}},
	}
	status := a.probe(ctx, http.MethodPost, "/messages", probe, a.requestHeaders(credential))
	return status == http.StatusOK || status == http.StatusBadRequest
}

// FetchModels returns the fixed list of Claude models
func (a *Anthropic) FetchModels(ctx context.Context, credential string) []Model {
	models := slices.Clone(anthropicModels)
	for i := range models {
		models[i].Backend = a.id
	}
	return models
}

// convertMessages separates the system prompt and maps the remaining turns to Claude roles
func (a *Anthropic) convertMessages(messages []Message) (string, []anthropicMessage) {
	system, turns := splitSystem(messages)
	result := make([]anthropicMessage, 0, len(turns))
	for _, msg := range turns {
		role := RoleUser
		if msg.Role == RoleAssistant {
			role = RoleAssistant
		}
		result = append(result, anthropicMessage{Role: role, Content: msg.Content})
	}
	return system, result
}

// Chat streams a Claude response
func (a *Anthropic) Chat(ctx context.Context, cfg ChatConfig, credential string) (<-chan StreamChunk, error) {
	if credential == "" {
		return nil, authError(a.id, "API key not configured")
	}

	system, messages := a.convertMessages(cfg.Messages)
	temperature := cfg.Temperature
	reqBody := anthropicRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.maxTokens(),
		System:      system,
		Messages:    messages,
		Temperature: &temperature,
		Stream:      true,
	}

	body, err := a.openStream(ctx, "/messages", reqBody, a.requestHeaders(credential))
	if err != nil {
		return nil, err
	}
	return streamFragments(ctx, a.id, body, a.decodeLine, a.logger), nil
}

// decodeLine extracts delta.text from content_block_delta events
func (a *Anthropic) decodeLine(line string) (string, bool, error) {
	data, ok := sseData(line)
	if !ok {
		return "", false, nil
	}
	if data == sseDone {
		return "", true, nil
	}

	var event anthropicStreamEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return "", false, errMalformedLine
	}

	switch event.Type {
	case "content_block_delta":
		return event.Delta.Text, false, nil
	case "message_stop":
		return "", true, nil
	case "error":
		if event.Error != nil {
			return "", false, protocolError(a.id, event.Error.Message)
		}
		return "", false, protocolError(a.id, "")
	}
	return "", false, nil
}

var _ Provider = (*Anthropic)(nil)
