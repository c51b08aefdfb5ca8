// Package analyzer implements Agent 1 — Job Analyzer (spec.md §4.6).
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resumeforge/tailorcore/agents"
)

const Index = 0
const Name = "analyzer"

// Output is Agent 1's parsed contract.
type Output struct {
	JobTitle string `json:"job_title"`
	Company  string `json:"company,omitempty"`
	Requirements struct {
		MustHave   []string `json:"must_have"`
		NiceToHave []string `json:"nice_to_have"`
	} `json:"requirements"`
	Keywords    []string `json:"keywords"`
	RoleSignals struct {
		Seniority string   `json:"seniority"`
		TechStack []string `json:"tech_stack"`
		Domain    string   `json:"domain,omitempty"`
	} `json:"role_signals"`
}

// Inputs is Agent 1's input contract: the job posting text, already
// resolved from job_text or a fetched job_url by the Orchestrator (spec.md
// §4.7), plus optional profile enrichment context.
type Inputs struct {
	JobText      string
	ProfileIndex string // optional, from the Profile Enrichment collaborator
}

// Run executes Agent 1 against the given RunContext.
func Run(ctx context.Context, rc agents.RunContext, in Inputs) (agents.AgentOutput, Output, error) {
	prompt := in.JobText
	if in.ProfileIndex != "" {
		prompt = fmt.Sprintf("Candidate profile context:\n%s\n\nJob posting:\n%s", in.ProfileIndex, in.JobText)
	}

	raw, err := agents.RunAnalyzer(ctx, rc, prompt)
	if err != nil {
		return agents.AgentOutput{}, Output{}, err
	}

	var out Output
	if err := json.Unmarshal(raw.OutputJSON, &out); err != nil {
		return agents.AgentOutput{}, Output{}, fmt.Errorf("analyzer: decode output: %w", err)
	}
	return raw, out, nil
}
