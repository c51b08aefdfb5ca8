// Package builder implements Agent 3 — Resume Builder (spec.md §4.6).
package builder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resumeforge/tailorcore/agents"
)

const Index = 2
const Name = "builder"

// Change is a single tracked edit to the resume.
type Change struct {
	Section string `json:"section"`
	Before  string `json:"before,omitempty"`
	After   string `json:"after,omitempty"`
	Reason  string `json:"reason"`
}

// Output is Agent 3's parsed contract. OptimizedResumeText is the canonical
// form used by display and by subsequent agents (spec.md §4.6).
type Output struct {
	OptimizedResumeText string   `json:"optimized_resume_text"`
	Changes             []Change `json:"changes"`
}

// Inputs is Agent 3's input contract: {original_resume, strategy, job_analysis}.
type Inputs struct {
	OriginalResume string
	Strategy       json.RawMessage
	JobAnalysis    json.RawMessage
}

// Run executes Agent 3 against the given RunContext.
func Run(ctx context.Context, rc agents.RunContext, in Inputs) (agents.AgentOutput, Output, error) {
	prompt := fmt.Sprintf(
		"Original resume:\n%s\n\nStrategy:\n%s\n\nJob analysis:\n%s",
		in.OriginalResume, string(in.Strategy), string(in.JobAnalysis),
	)

	raw, err := agents.RunBuilder(ctx, rc, prompt)
	if err != nil {
		return agents.AgentOutput{}, Output{}, err
	}

	var out Output
	if err := json.Unmarshal(raw.OutputJSON, &out); err != nil {
		return agents.AgentOutput{}, Output{}, fmt.Errorf("builder: decode output: %w", err)
	}
	return raw, out, nil
}
