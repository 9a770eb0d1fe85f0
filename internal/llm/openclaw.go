package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
)

var openClawModels = []Model{
	{ID: "openclaw:main", Name: "OpenClaw (main)"},
}

// OpenClaw implements Provider for an OpenClaw gateway speaking the OpenResponses protocol
type OpenClaw struct {
	backend
}

// NewOpenClaw creates an OpenClaw client
func NewOpenClaw(opts ...Option) *OpenClaw {
	return &OpenClaw{backend: newBackend("openclaw", "OpenClaw", "http://localhost:18789", opts)}
}

// OpenResponses API types
type openResponsesRequest struct {
	Model           string   `json:"model"`
	Input           any      `json:"input"`
	Instructions    string   `json:"instructions,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens"`
	Stream          bool     `json:"stream,omitempty"`
}

type openResponsesInput struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openResponsesError struct {
	Message string `json:"message"`
}

type openResponsesEvent struct {
	Type     string              `json:"type"`
	Delta    string              `json:"delta"`
	Error    *openResponsesError `json:"error,omitempty"`
	Response *struct {
		Error *openResponsesError `json:"error,omitempty"`
	} `json:"response,omitempty"`
}

// RequiresKey reports that the gateway needs a token
func (o *OpenClaw) RequiresKey() bool {
	return true
}

func (o *OpenClaw) requestHeaders(credential string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + credential}
}

// ValidateKey sends a one-token probe to the responses endpoint
func (o *OpenClaw) ValidateKey(ctx context.Context, credential string) bool {
	if credential == "" {
		return false
	}
	probe := openResponsesRequest{
		Model:           openClawModels[0].ID,
		Input:           "hi",
		MaxOutputTokens: 1,
	}
	status := o.probe(ctx, http.MethodPost, "/v1/responses", probe, o.requestHeaders(credential))
	return status >= 200 && status <= 299
}

// FetchModels returns the gateway's agent models
func (o *OpenClaw) FetchModels(ctx context.Context, credential string) []Model {
	models := slices.Clone(openClawModels)
	for i := range models {
		models[i].Backend = o.id
	}
	return models
}

// Chat streams a response from the gateway
func (o *OpenClaw) Chat(ctx context.Context, cfg ChatConfig, credential string) (<-chan StreamChunk, error) {
	if credential == "" {
		return nil, authError(o.id, "API key not configured")
	}

	system, turns := splitSystem(cfg.Messages)
	input := make([]openResponsesInput, 0, len(turns))
	for _, msg := range turns {
		input = append(input, openResponsesInput{Type: "message", Role: msg.Role, Content: msg.Content})
	}

	temperature := cfg.Temperature
	reqBody := openResponsesRequest{
		Model:           cfg.Model,
		Input:           input,
		Instructions:    system,
		Temperature:     &temperature,
		MaxOutputTokens: cfg.maxTokens(),
		Stream:          true,
	}

	body, err := o.openStream(ctx, "/v1/responses", reqBody, o.requestHeaders(credential))
	if err != nil {
		return nil, err
	}
	return streamFragments(ctx, o.id, body, o.decodeLine, o.logger), nil
}

// decodeLine handles typed OpenResponses events. response.failed is terminal.
func (o *OpenClaw) decodeLine(line string) (string, bool, error) {
	data, ok := sseData(line)
	if !ok {
		return "", false, nil
	}
	if data == sseDone {
		return "", true, nil
	}

	var event openResponsesEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return "", false, errMalformedLine
	}

	switch event.Type {
	case "response.output_text.delta":
		return event.Delta, false, nil
	case "response.completed":
		return "", true, nil
	case "response.failed", "error":
		return "", false, protocolError(o.id, event.errorMessage())
	}
	return "", false, nil
}

func (e *openResponsesEvent) errorMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if e.Response != nil && e.Response.Error != nil {
		return e.Response.Error.Message
	}
	return "OpenClaw request failed"
}

var _ Provider = (*OpenClaw)(nil)
