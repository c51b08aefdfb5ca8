package agents

import _ "embed"

// Each agent has a single well-known prompt file identifier (spec.md §4.6).
// Prompts are embedded at build time, matching the teacher's convention of
// shipping static assets alongside the code that interprets them.

//go:embed prompts/analyzer.txt
var analyzerPrompt string

//go:embed prompts/strategy.txt
var strategyPrompt string

//go:embed prompts/builder.txt
var builderPrompt string

//go:embed prompts/validator.txt
var validatorPrompt string

//go:embed prompts/polisher.txt
var polisherPrompt string
