package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry holds provider clients keyed by backend id
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates a registry containing providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// NewDefaultRegistry registers every supported backend.
// endpoints maps backend ids to base URL overrides.
func NewDefaultRegistry(endpoints map[string]string, logger *zap.Logger) *Registry {
	opts := func(id string) []Option {
		return []Option{WithBaseURL(endpoints[id]), WithLogger(logger)}
	}
	return NewRegistry(
		NewOpenRouter(opts("openrouter")...),
		NewOpenAI(opts("openai")...),
		NewXAI(opts("xai")...),
		NewAnthropic(opts("anthropic")...),
		NewLMStudio(opts("lmstudio")...),
		NewOllama(opts("ollama")...),
		NewOpenClaw(opts("openclaw")...),
	)
}

// Register adds or replaces a provider
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
}

// Get returns the provider registered for a backend id
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	return p, ok
}

// List returns providers in registration order
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.providers[id])
	}
	return result
}

// AllModels fetches models from every backend that has a credential or needs none.
// Backends are queried concurrently; results keep registration order.
func (r *Registry) AllModels(ctx context.Context, creds CredentialSource) []Model {
	providers := r.List()
	results := make([][]Model, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		key, _ := creds.Credential(p.ID())
		if p.RequiresKey() && key == "" {
			continue
		}
		g.Go(func() error {
			results[i] = p.FetchModels(gctx, key)
			return nil
		})
	}
	_ = g.Wait()

	var models []Model
	for _, batch := range results {
		models = append(models, batch...)
	}
	return models
}

// Validation is the outcome of checking a backend credential
type Validation struct {
	Backend    string `json:"backend"`
	Valid      bool   `json:"valid"`
	ModelCount int    `json:"modelCount"`
}

// Validate checks credential against p and counts its models when valid
func Validate(ctx context.Context, p Provider, credential string) Validation {
	result := Validation{Backend: p.ID()}
	result.Valid = p.ValidateKey(ctx, credential)
	if result.Valid {
		result.ModelCount = len(p.FetchModels(ctx, credential))
	}
	return result
}
