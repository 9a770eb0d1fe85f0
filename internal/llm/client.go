package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// probeTimeout bounds key checks and model listing
const probeTimeout = 10 * time.Second

// Option configures a provider client
type Option func(*backend)

// WithBaseURL overrides the backend's default base URL
func WithBaseURL(url string) Option {
	return func(b *backend) {
		if url != "" {
			b.baseURL = url
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(client *http.Client) Option {
	return func(b *backend) {
		if client != nil {
			b.client = client
		}
	}
}

// WithLogger sets the logger used by the client
func WithLogger(logger *zap.Logger) Option {
	return func(b *backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// backend holds what every HTTP provider client shares
type backend struct {
	id      string
	name    string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func newBackend(id, name, baseURL string, opts []Option) backend {
	b := backend{
		id:      id,
		name:    name,
		baseURL: baseURL,
		// No client timeout: a turn streams for as long as the backend keeps the connection open
		client: &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With(zap.String("component", "llm"), zap.String("backend", id))
	return b
}

// ID returns the backend identifier
func (b *backend) ID() string {
	return b.id
}

// Name returns the backend display name
func (b *backend) Name() string {
	return b.name
}

// BaseURL returns the URL requests are sent to
func (b *backend) BaseURL() string {
	return b.baseURL
}

// do sends a request with an optional JSON body
func (b *backend) do(ctx context.Context, method, path string, payload any, headers map[string]string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, transportError(b.id, fmt.Errorf("request failed: %w", err))
	}
	return resp, nil
}

// openStream posts a streaming request and returns the body once a success status arrives
func (b *backend) openStream(ctx context.Context, path string, payload any, headers map[string]string) (io.ReadCloser, error) {
	b.logger.Debug("opening stream", zap.String("path", path))

	resp, err := b.do(ctx, http.MethodPost, path, payload, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(b.id, resp)
	}
	return resp.Body, nil
}

// probe sends a request and returns its status code, or 0 if the request failed
func (b *backend) probe(ctx context.Context, method, path string, payload any, headers map[string]string) int {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := b.do(ctx, method, path, payload, headers)
	if err != nil {
		b.logger.Debug("probe failed", zap.String("path", path), zap.Error(err))
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

// getJSON fetches path and decodes a success response into out
func (b *backend) getJSON(ctx context.Context, path string, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := b.do(ctx, http.MethodGet, path, nil, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(b.id, resp)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// splitSystem separates system messages from the conversation turns.
// Multiple system messages are joined with blank lines.
func splitSystem(messages []Message) (string, []Message) {
	var system []byte
	turns := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if len(system) > 0 {
				system = append(system, "\n\n"...)
			}
			system = append(system, msg.Content...)
			continue
		}
		turns = append(turns, msg)
	}
	return string(system), turns
}
