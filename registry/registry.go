// Package registry implements the Model Registry & Pricing catalog
// (spec.md §4.1, C1): a static map from a qualified "provider::model_name"
// id to its capabilities and per-million-token pricing, loaded from a YAML
// catalog the way the teacher loads its static Goa design configuration, and
// grounded in shape on the example pack's own model catalog
// (haasonsaas-nexus internal/models/catalog.go).
package registry

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/resumeforge/tailorcore/config"
)

// ModelInfo describes one catalog entry.
type ModelInfo struct {
	Provider      string `yaml:"provider"`
	ModelName     string `yaml:"model_name"`
	ContextLength int    `yaml:"context_length"`

	InputPricePerMillion    float64 `yaml:"input_price_per_million"`
	OutputPricePerMillion   float64 `yaml:"output_price_per_million"`
	ThinkingPricePerMillion float64 `yaml:"thinking_price_per_million"`

	// ThinkingBilledAsOutput marks providers (e.g. the long-context reasoning
	// family) that bill thinking tokens at the output rate instead of a
	// distinct thinking rate.
	ThinkingBilledAsOutput bool `yaml:"thinking_billed_as_output"`

	SupportsStreaming       bool `yaml:"supports_streaming"`
	SupportsFiles           bool `yaml:"supports_files"`
	SupportsImages          bool `yaml:"supports_images"`
	SupportsReasoningBudget bool `yaml:"supports_reasoning_budget"`

	// FallbackModelID, if set, is the qualified model id the Orchestrator may
	// retry a RECOVERABLE error on once (spec.md §4.7's retry policy).
	FallbackModelID string `yaml:"fallback_model_id,omitempty"`
}

// ID returns the qualified "provider::model_name" identifier.
func (m ModelInfo) ID() string {
	return m.Provider + "::" + m.ModelName
}

// ErrNotFound is returned by Lookup for an unknown model id.
var ErrNotFound = fmt.Errorf("registry: model not found")

// catalogFile is the on-disk YAML shape: a flat list of models.
type catalogFile struct {
	Models []ModelInfo `yaml:"models"`
}

// Registry is a read-mostly, concurrency-safe model catalog.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelInfo
	cfg    *config.Config
}

// New builds an empty registry bound to cfg for default_model_for resolution.
func New(cfg *config.Config) *Registry {
	return &Registry{models: make(map[string]ModelInfo), cfg: cfg}
}

// LoadYAML parses a YAML catalog document (see catalogFile) and merges its
// entries into the registry, overwriting any existing entry with the same id.
func (r *Registry) LoadYAML(data []byte) error {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("registry: parse catalog: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range doc.Models {
		r.models[m.ID()] = m
	}
	return nil
}

// LoadYAMLFile reads and loads a catalog file from disk.
func (r *Registry) LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read catalog %s: %w", path, err)
	}
	return r.LoadYAML(data)
}

// Register adds or replaces a single entry, mainly for tests and bootstrap.
func (r *Registry) Register(m ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID()] = m
}

// Lookup resolves a qualified model id to its ModelInfo.
func (r *Registry) Lookup(id string) (ModelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// Provider resolves a qualified model id to its short provider label
// ("anthropic", "openai", "bedrock"), satisfying model.ProviderLookup so a
// model.Router can dispatch a call without knowing about ModelInfo directly.
func (r *Registry) Provider(id string) (string, error) {
	m, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	return m.Provider, nil
}

// DefaultModelFor resolves the configured model id for a pipeline stage,
// given an optional per-request override, via config.Config.ModelFor.
func (r *Registry) DefaultModelFor(idx config.AgentIndex, requestOverride string) string {
	return r.cfg.ModelFor(idx, requestOverride)
}

// Price computes the cost in micro-USD ($1e-6) for a completed call, per
// spec.md §4.1: for models with ThinkingBilledAsOutput, thinking tokens are
// folded into the output-rate calculation instead of billed separately.
func (r *Registry) Price(id string, tokensIn, tokensOut, thinkingTokens int) (int64, error) {
	m, err := r.Lookup(id)
	if err != nil {
		return 0, err
	}
	return m.Price(tokensIn, tokensOut, thinkingTokens), nil
}

// Price computes the cost in micro-USD for the given token counts using this
// entry's per-million rates.
func (m ModelInfo) Price(tokensIn, tokensOut, thinkingTokens int) int64 {
	inputCost := microUSD(tokensIn, m.InputPricePerMillion)
	var outputCost, thinkingCost int64
	if m.ThinkingBilledAsOutput {
		outputCost = microUSD(tokensOut+thinkingTokens, m.OutputPricePerMillion)
	} else {
		outputCost = microUSD(tokensOut, m.OutputPricePerMillion)
		thinkingCost = microUSD(thinkingTokens, m.ThinkingPricePerMillion)
	}
	return inputCost + outputCost + thinkingCost
}

// microUSD converts a token count at a given per-million-token USD rate into
// integer micro-USD, rounding to the nearest unit.
func microUSD(tokens int, ratePerMillion float64) int64 {
	if tokens <= 0 || ratePerMillion <= 0 {
		return 0
	}
	usd := float64(tokens) * ratePerMillion / 1_000_000.0
	return int64(usd*1_000_000 + 0.5)
}
