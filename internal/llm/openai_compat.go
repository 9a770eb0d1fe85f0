package llm

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"

	"go.uber.org/zap"
)

// OpenAICompatible implements Provider for backends speaking the OpenAI chat completions protocol
type OpenAICompatible struct {
	backend
	requiresKey  bool
	validatePath string
	headers      map[string]string
}

// NewOpenRouter creates an OpenRouter client
func NewOpenRouter(opts ...Option) *OpenAICompatible {
	return newOpenAICompatible("openrouter", "OpenRouter", "https://openrouter.ai/api/v1", true, "/auth/key",
		map[string]string{
			"HTTP-Referer": "https://github.com/simonyos/roundtable",
			"X-Title":      "Roundtable",
		}, opts)
}

// NewOpenAI creates an OpenAI client
func NewOpenAI(opts ...Option) *OpenAICompatible {
	return newOpenAICompatible("openai", "OpenAI", "https://api.openai.com/v1", true, "/models", nil, opts)
}

// NewXAI creates an xAI (Grok) client
func NewXAI(opts ...Option) *OpenAICompatible {
	return newOpenAICompatible("xai", "xAI (Grok)", "https://api.x.ai/v1", true, "/models", nil, opts)
}

// NewLMStudio creates a client for a local LM Studio server
func NewLMStudio(opts ...Option) *OpenAICompatible {
	return newOpenAICompatible("lmstudio", "LM Studio", "http://localhost:6969/v1", false, "/models", nil, opts)
}

func newOpenAICompatible(id, name, baseURL string, requiresKey bool, validatePath string, headers map[string]string, opts []Option) *OpenAICompatible {
	return &OpenAICompatible{
		backend:      newBackend(id, name, baseURL, opts),
		requiresKey:  requiresKey,
		validatePath: validatePath,
		headers:      headers,
	}
}

// OpenAI-compatible API types
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type openAIStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIModelsResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	} `json:"data"`
}

// RequiresKey reports whether the backend needs an API key
func (o *OpenAICompatible) RequiresKey() bool {
	return o.requiresKey
}

func (o *OpenAICompatible) requestHeaders(credential string) map[string]string {
	headers := maps.Clone(o.headers)
	if headers == nil {
		headers = make(map[string]string)
	}
	if credential != "" {
		headers["Authorization"] = "Bearer " + credential
	}
	return headers
}

// ValidateKey checks the credential against the backend's validation endpoint
func (o *OpenAICompatible) ValidateKey(ctx context.Context, credential string) bool {
	if o.requiresKey && credential == "" {
		return false
	}
	return o.probe(ctx, http.MethodGet, o.validatePath, nil, o.requestHeaders(credential)) == http.StatusOK
}

// FetchModels lists the models the backend serves
func (o *OpenAICompatible) FetchModels(ctx context.Context, credential string) []Model {
	if o.requiresKey && credential == "" {
		return []Model{}
	}

	var resp openAIModelsResponse
	if err := o.getJSON(ctx, "/models", o.requestHeaders(credential), &resp); err != nil {
		o.logger.Debug("failed to fetch models", zap.Error(err))
		return []Model{}
	}

	models := make([]Model, 0, len(resp.Data))
	for _, m := range resp.Data {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		models = append(models, Model{ID: m.ID, Name: name, Backend: o.id})
	}
	return models
}

// Chat streams a chat completion
func (o *OpenAICompatible) Chat(ctx context.Context, cfg ChatConfig, credential string) (<-chan StreamChunk, error) {
	if o.requiresKey && credential == "" {
		return nil, authError(o.id, "API key not configured")
	}

	reqBody := openAIRequest{
		Model:       cfg.Model,
		Messages:    cfg.Messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.maxTokens(),
		Stream:      true,
	}

	headers := o.requestHeaders(credential)
	headers["Accept"] = "text/event-stream"

	body, err := o.openStream(ctx, "/chat/completions", reqBody, headers)
	if err != nil {
		return nil, err
	}
	return streamFragments(ctx, o.id, body, o.decodeLine, o.logger), nil
}

// decodeLine extracts choices[0].delta.content from an SSE record
func (o *OpenAICompatible) decodeLine(line string) (string, bool, error) {
	data, ok := sseData(line)
	if !ok {
		return "", false, nil
	}
	if data == sseDone {
		return "", true, nil
	}

	var chunk openAIStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, errMalformedLine
	}
	if chunk.Error != nil {
		return "", false, protocolError(o.id, chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

var _ Provider = (*OpenAICompatible)(nil)
