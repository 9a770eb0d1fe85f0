package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Ollama implements Provider for a local Ollama server
type Ollama struct {
	backend
}

// NewOllama creates an Ollama client
func NewOllama(opts ...Option) *Ollama {
	return &Ollama{backend: newBackend("ollama", "Ollama", "http://localhost:11434", opts)}
}

// Ollama API types
type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	System   string        `json:"system,omitempty"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaStreamResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// RequiresKey reports that Ollama needs no key
func (o *Ollama) RequiresKey() bool {
	return false
}

// ValidateKey reports whether the server is reachable
func (o *Ollama) ValidateKey(ctx context.Context, credential string) bool {
	return o.probe(ctx, http.MethodGet, "/api/tags", nil, nil) == http.StatusOK
}

// FetchModels lists locally installed models
func (o *Ollama) FetchModels(ctx context.Context, credential string) []Model {
	var resp ollamaTagsResponse
	if err := o.getJSON(ctx, "/api/tags", nil, &resp); err != nil {
		o.logger.Debug("failed to fetch models", zap.Error(err))
		return []Model{}
	}

	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{ID: m.Name, Name: m.Name, Backend: o.id})
	}
	return models
}

// Chat streams a response as newline-delimited JSON
func (o *Ollama) Chat(ctx context.Context, cfg ChatConfig, credential string) (<-chan StreamChunk, error) {
	system, turns := splitSystem(cfg.Messages)
	reqBody := ollamaRequest{
		Model:    cfg.Model,
		Messages: turns,
		System:   system,
		Stream:   true,
		Options: ollamaOptions{
			Temperature: cfg.Temperature,
			NumPredict:  cfg.maxTokens(),
		},
	}

	body, err := o.openStream(ctx, "/api/chat", reqBody, nil)
	if err != nil {
		return nil, err
	}
	return streamFragments(ctx, o.id, body, o.decodeLine, o.logger), nil
}

// decodeLine reads one NDJSON object; done: true ends the stream
func (o *Ollama) decodeLine(line string) (string, bool, error) {
	var chunk ollamaStreamResponse
	if err := json.Unmarshal([]byte(line), &chunk); err != nil {
		return "", false, errMalformedLine
	}
	if chunk.Error != "" {
		return "", false, protocolError(o.id, chunk.Error)
	}
	return chunk.Message.Content, chunk.Done, nil
}

var _ Provider = (*Ollama)(nil)
