package model

import (
	"context"
	"fmt"
	"sync"
)

// ProviderLookup resolves a qualified "provider::model_name" id to the short
// provider label ("anthropic", "openai", "bedrock") a Router dispatches on.
// registry.Registry satisfies this narrow slice of its own interface.
type ProviderLookup interface {
	Provider(modelID string) (string, error)
}

// Router dispatches GenerateStream to the Client registered for a model id's
// provider, so the rest of the core can hold a single model.Client and never
// juggle three provider-specific handles directly. Grounded on the uniform
// per-provider adapter shape in model/anthropic, model/openai, model/bedrock:
// each already satisfies Client identically, so routing is a provider-name
// switch rather than per-adapter special-casing.
type Router struct {
	lookup ProviderLookup

	mu      sync.RWMutex
	clients map[string]Client
}

// NewRouter constructs an empty Router bound to lookup for provider
// resolution. Register each provider's Client with Register before use.
func NewRouter(lookup ProviderLookup) *Router {
	return &Router{lookup: lookup, clients: make(map[string]Client)}
}

// Register binds provider (e.g. "anthropic") to the Client that serves it.
// Typically the registered Client is a *Facade wrapping the provider's SDK
// adapter with the per-call deadline.
func (r *Router) Register(provider string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = client
}

var _ Client = (*Router)(nil)

// GenerateStream resolves req.ModelID's provider and forwards to its
// registered Client.
func (r *Router) GenerateStream(ctx context.Context, req Request) (Streamer, error) {
	provider, err := r.lookup.Provider(req.ModelID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	client, ok := r.clients[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model: no client registered for provider %q (model %q)", provider, req.ModelID)
	}
	return client.GenerateStream(ctx, req)
}
