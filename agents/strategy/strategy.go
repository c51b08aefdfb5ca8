// Package strategy implements Agent 2 — Strategy Planner (spec.md §4.6).
package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resumeforge/tailorcore/agents"
)

const Index = 1
const Name = "strategy"

// Output is Agent 2's parsed contract.
type Output struct {
	Strategy struct {
		SectionsToModify  []string `json:"sections_to_modify"`
		KeywordPlan       []string `json:"keyword_plan"`
		ExperienceMapping []string `json:"experience_mapping"`
		Highlights        []string `json:"highlights"`
	} `json:"strategy"`
	Rationale string `json:"rationale"`
}

// Inputs is Agent 2's input contract: {resume_text, job_analysis}.
type Inputs struct {
	ResumeText  string
	JobAnalysis json.RawMessage
}

// Run executes Agent 2 against the given RunContext.
func Run(ctx context.Context, rc agents.RunContext, in Inputs) (agents.AgentOutput, Output, error) {
	prompt := fmt.Sprintf("Original resume:\n%s\n\nJob analysis:\n%s", in.ResumeText, string(in.JobAnalysis))

	raw, err := agents.RunStrategy(ctx, rc, prompt)
	if err != nil {
		return agents.AgentOutput{}, Output{}, err
	}

	var out Output
	if err := json.Unmarshal(raw.OutputJSON, &out); err != nil {
		return agents.AgentOutput{}, Output{}, fmt.Errorf("strategy: decode output: %w", err)
	}
	return raw, out, nil
}
