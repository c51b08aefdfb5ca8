// Package polisher implements Agent 5 — Polisher (spec.md §4.6).
package polisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resumeforge/tailorcore/agents"
)

const Index = 4
const Name = "polisher"

// ExportSection is one rendered section of the export artifact.
type ExportSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// ExportStyle is the export artifact's styling directive.
type ExportStyle struct {
	Font        string `json:"font"`
	AccentColor string `json:"accent_color"`
}

// ExportArtifact is the self-contained specification Agent 5 hands to the
// external DOCX Renderer collaborator (spec.md §6). The core never renders
// it directly.
type ExportArtifact struct {
	Template string          `json:"template"`
	Sections []ExportSection `json:"sections"`
	Style    ExportStyle     `json:"style"`
}

// Output is Agent 5's parsed contract.
type Output struct {
	PolishedResumeText string         `json:"polished_resume_text"`
	ExportArtifact     ExportArtifact `json:"export_artifact"`
}

// Inputs is Agent 5's input contract: {optimized_resume_text, validation}.
type Inputs struct {
	OptimizedResumeText string
	Validation          json.RawMessage
}

// Run executes Agent 5 against the given RunContext.
func Run(ctx context.Context, rc agents.RunContext, in Inputs) (agents.AgentOutput, Output, error) {
	prompt := fmt.Sprintf(
		"Optimized resume:\n%s\n\nValidation findings:\n%s",
		in.OptimizedResumeText, string(in.Validation),
	)

	raw, err := agents.RunPolisher(ctx, rc, prompt)
	if err != nil {
		return agents.AgentOutput{}, Output{}, err
	}

	var out Output
	if err := json.Unmarshal(raw.OutputJSON, &out); err != nil {
		return agents.AgentOutput{}, Output{}, fmt.Errorf("polisher: decode output: %w", err)
	}
	return raw, out, nil
}
