package llm

import (
	"context"
	"sync"

	"github.com/periplon/metis/internal/apperr"
)

// Registry holds configured providers keyed by the name archetypes
// reference (spec §4.D), e.g. "openai", "anthropic-prod", "local-ollama".
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds or replaces a provider under key.
func (r *Registry) Register(key string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
}

// Get returns the provider registered under key.
func (r *Registry) Get(key string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	return p, ok
}

// CompleteText implements mockengine.LLMCaller: a single-turn completion
// convenience wrapper for the Mock Strategy Engine's `llm` strategy.
func (r *Registry) CompleteText(ctx context.Context, providerKey, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	p, ok := r.Get(providerKey)
	if !ok {
		return "", &apperr.Validation{Field: "llm.provider", Reason: "provider " + providerKey + " is not registered"}
	}

	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: userPrompt})

	resp, err := p.Complete(ctx, model, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
