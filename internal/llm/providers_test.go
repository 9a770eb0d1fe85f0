package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(t *testing.T, srv *httptest.Server) []Option {
	return []Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithLogger(zaptest.NewLogger(t))}
}

var sampleConfig = ChatConfig{
	Model: "test-model",
	Messages: []Message{
		{Role: RoleSystem, Content: "You are terse."},
		{Role: RoleUser, Content: "Bob: hello"},
		{Role: RoleAssistant, Content: "Alice: hi"},
		{Role: RoleUser, Content: "It's your turn to respond. Continue the discussion."},
	},
	Temperature: 0.4,
}

func TestOpenAICompatibleChat(t *testing.T) {
	var got map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, openAIPayload)
	})

	p := NewOpenRouter(testOptions(t, srv)...)
	ch, err := p.Chat(context.Background(), sampleConfig, "sk-test")
	require.NoError(t, err)

	fragments, err := collect(ch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", ", wörld", " 世界"}, fragments)

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, true, got["stream"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.InDelta(t, 0.4, got["temperature"], 0.0001)

	// System message stays inline for OpenAI-compatible backends
	messages := got["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestChatRequiresKey(t *testing.T) {
	providers := []Provider{NewOpenRouter(), NewOpenAI(), NewXAI(), NewAnthropic(), NewOpenClaw()}
	for _, p := range providers {
		t.Run(p.ID(), func(t *testing.T) {
			assert.True(t, p.RequiresKey())
			_, err := p.Chat(context.Background(), sampleConfig, "")
			require.Error(t, err)
			assert.True(t, IsKind(err, KindAuthentication))
			assert.False(t, p.ValidateKey(context.Background(), ""))
		})
	}
}

func TestChatStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusForbidden, KindAuthentication},
		{http.StatusTooManyRequests, KindProtocol},
		{http.StatusInternalServerError, KindProtocol},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := NewXAI(testOptions(t, srv)...).Chat(context.Background(), sampleConfig, "key")
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind))

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, "nope", perr.Message)
		})
	}
}

func TestChatTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLMStudio(WithBaseURL(url)).Chat(context.Background(), sampleConfig, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
}

func TestAnthropicChat(t *testing.T) {
	var got anthropicRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, anthropicPayload)
	})

	p := NewAnthropic(testOptions(t, srv)...)
	ch, err := p.Chat(context.Background(), sampleConfig, "sk-ant")
	require.NoError(t, err)

	fragments, err := collect(ch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pro", "position"}, fragments)

	assert.Equal(t, "You are terse.", got.System)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, RoleAssistant, got.Messages[1].Role)
	assert.True(t, got.Stream)
}

func TestAnthropicValidateKey(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, true},
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				var probe anthropicRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&probe))
				assert.Equal(t, 1, probe.MaxTokens)
				w.WriteHeader(tt.status)
			})

			got := NewAnthropic(testOptions(t, srv)...).ValidateKey(context.Background(), "sk-ant")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticModelLists(t *testing.T) {
	models := NewAnthropic().FetchModels(context.Background(), "")
	require.Len(t, models, 5)
	assert.Equal(t, "claude-3-5-sonnet-20241022", models[0].ID)
	assert.Equal(t, "anthropic", models[0].Backend)

	// Callers must not be able to mutate the package list
	models[0].Name = "changed"
	assert.Equal(t, "Claude 3.5 Sonnet", anthropicModels[0].Name)

	claw := NewOpenClaw().FetchModels(context.Background(), "")
	require.Len(t, claw, 1)
	assert.Equal(t, "openclaw:main", claw[0].ID)
}

func TestOpenRouterValidateAndModels(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/auth/key":
			fmt.Fprint(w, `{"data":{"label":"test"}}`)
		case "/models":
			fmt.Fprint(w, `{"data":[{"id":"meta/llama","name":"Llama"},{"id":"mistral/small"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p := NewOpenRouter(testOptions(t, srv)...)
	ctx := context.Background()

	assert.True(t, p.ValidateKey(ctx, "good"))
	assert.False(t, p.ValidateKey(ctx, "bad"))

	models := p.FetchModels(ctx, "good")
	assert.Equal(t, []Model{
		{ID: "meta/llama", Name: "Llama", Backend: "openrouter"},
		{ID: "mistral/small", Name: "mistral/small", Backend: "openrouter"},
	}, models)

	assert.Empty(t, p.FetchModels(ctx, "bad"))
	assert.NotNil(t, p.FetchModels(ctx, "bad"))
}

func TestOllamaChatAndModels(t *testing.T) {
	var got ollamaRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3:8b"},{"name":"qwen2:7b"}]}`)
		case "/api/chat":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			fmt.Fprint(w, ollamaPayload)
		}
	})

	p := NewOllama(testOptions(t, srv)...)
	ctx := context.Background()

	assert.False(t, p.RequiresKey())
	assert.True(t, p.ValidateKey(ctx, ""))
	assert.Len(t, p.FetchModels(ctx, ""), 2)

	ch, err := p.Chat(ctx, sampleConfig, "")
	require.NoError(t, err)
	fragments, err := collect(ch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Local", " models"}, fragments)

	assert.Equal(t, "You are terse.", got.System)
	assert.Len(t, got.Messages, 3)
	assert.Equal(t, DefaultMaxTokens, got.Options.NumPredict)
}

func TestUnreachableBackendDowngrades(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ctx := context.Background()
	for _, p := range []Provider{NewOllama(WithBaseURL(url)), NewLMStudio(WithBaseURL(url))} {
		assert.False(t, p.ValidateKey(ctx, ""), p.ID())
		assert.Empty(t, p.FetchModels(ctx, ""), p.ID())
	}
}

func TestOpenClawChat(t *testing.T) {
	var got map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer claw", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, openClawPayload)
	})

	ch, err := NewOpenClaw(testOptions(t, srv)...).Chat(context.Background(), sampleConfig, "claw")
	require.NoError(t, err)
	fragments, err := collect(ch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Agent", " reply"}, fragments)

	assert.Equal(t, "You are terse.", got["instructions"])
	input := got["input"].([]any)
	require.Len(t, input, 3)
	assert.Equal(t, "message", input[0].(map[string]any)["type"])
}
