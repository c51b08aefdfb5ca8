package registry

// defaultCatalogYAML seeds a Registry with the model family referenced by
// config defaults and SPEC_FULL's per-agent model overrides. A YAML file
// loaded afterwards with LoadYAMLFile replaces entries with the same id,
// which tracks pricing changes without a redeploy.
const defaultCatalogYAML = `
models:
  - provider: anthropic
    model_name: claude-sonnet-4-5
    context_length: 200000
    input_price_per_million: 3.0
    output_price_per_million: 15.0
    thinking_price_per_million: 15.0
    supports_streaming: true
    supports_files: true
    supports_images: true
    supports_reasoning_budget: true
    fallback_model_id: "anthropic::claude-haiku-4-5"
  - provider: anthropic
    model_name: claude-haiku-4-5
    context_length: 200000
    input_price_per_million: 0.8
    output_price_per_million: 4.0
    thinking_price_per_million: 4.0
    supports_streaming: true
    supports_files: false
    supports_images: true
    supports_reasoning_budget: true
  - provider: anthropic
    model_name: claude-opus-4-1
    context_length: 200000
    input_price_per_million: 15.0
    output_price_per_million: 75.0
    thinking_price_per_million: 75.0
    supports_streaming: true
    supports_files: true
    supports_images: true
    supports_reasoning_budget: true
  - provider: openai
    model_name: gpt-5
    context_length: 272000
    input_price_per_million: 1.25
    output_price_per_million: 10.0
    thinking_billed_as_output: true
    supports_streaming: true
    supports_files: true
    supports_images: true
    supports_reasoning_budget: true
    fallback_model_id: "openai::gpt-5-mini"
  - provider: openai
    model_name: gpt-5-mini
    context_length: 272000
    input_price_per_million: 0.25
    output_price_per_million: 2.0
    thinking_billed_as_output: true
    supports_streaming: true
    supports_files: false
    supports_images: true
    supports_reasoning_budget: true
  - provider: bedrock
    model_name: anthropic.claude-sonnet-4-5-v1:0
    context_length: 200000
    input_price_per_million: 3.0
    output_price_per_million: 15.0
    thinking_price_per_million: 15.0
    supports_streaming: true
    supports_files: false
    supports_images: true
    supports_reasoning_budget: true
`

// LoadDefaultCatalog seeds r with the built-in catalog above. Call before
// LoadYAMLFile for an operator override to win, or alone to start from the
// baked-in baseline.
func (r *Registry) LoadDefaultCatalog() error {
	return r.LoadYAML([]byte(defaultCatalogYAML))
}
