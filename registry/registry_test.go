package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(config.FromEnv())
	require.NoError(t, r.LoadDefaultCatalog())
	return r
}

func TestLookupKnownModel(t *testing.T) {
	r := newTestRegistry(t)
	m, err := r.Lookup("anthropic::claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Provider)
	assert.True(t, m.SupportsReasoningBudget)
}

func TestLookupUnknownModel(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Lookup("anthropic::does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPriceSeparatesThinkingRate(t *testing.T) {
	r := newTestRegistry(t)
	cost, err := r.Price("anthropic::claude-haiku-4-5", 1_000_000, 1_000_000, 500_000)
	require.NoError(t, err)
	// input: 0.8 + output: 4.0 + thinking: 0.5*4.0 = 6.8 USD = 6_800_000 micro-USD.
	assert.Equal(t, int64(6_800_000), cost)
}

func TestPriceFoldsThinkingIntoOutputRate(t *testing.T) {
	r := newTestRegistry(t)
	cost, err := r.Price("openai::gpt-5", 0, 1_000_000, 500_000)
	require.NoError(t, err)
	// (out 1M + thinking 0.5M) * 10.0/million = 15.0 USD.
	assert.Equal(t, int64(15_000_000), cost)
}

func TestDefaultModelForPrecedence(t *testing.T) {
	cfg := config.FromEnv()
	cfg.DefaultModel = "anthropic::claude-sonnet-4-5"
	r := New(cfg)
	require.NoError(t, r.LoadDefaultCatalog())

	assert.Equal(t, "override::model", r.DefaultModelFor(config.AgentAnalyzer, "override::model"))
	assert.Equal(t, "anthropic::claude-sonnet-4-5", r.DefaultModelFor(config.AgentAnalyzer, ""))
}

func TestLoadYAMLOverridesExistingEntry(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.LoadYAML([]byte(`
models:
  - provider: anthropic
    model_name: claude-haiku-4-5
    input_price_per_million: 1.0
    output_price_per_million: 5.0
`)))
	m, err := r.Lookup("anthropic::claude-haiku-4-5")
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.InputPricePerMillion)
}
