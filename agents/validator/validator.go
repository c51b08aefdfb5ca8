// Package validator implements Agent 4 — Validator (spec.md §4.6). Its
// output parsing lives in the shared agents package (sentinel extraction and
// overall_score mean-backfill) since that logic is not specific to this
// thin typed wrapper.
package validator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resumeforge/tailorcore/agents"
)

const Index = 3
const Name = "validator"

// Scores is Agent 4's five-category plus overall score block.
type Scores struct {
	RequirementsMatch      int `json:"requirements_match"`
	ATSOptimization        int `json:"ats_optimization"`
	CulturalFit            int `json:"cultural_fit"`
	PresentationQuality    int `json:"presentation_quality"`
	CompetitivePositioning int `json:"competitive_positioning"`
	OverallScore           int `json:"overall_score"`
}

// Output is Agent 4's parsed contract.
type Output struct {
	Scores          Scores   `json:"scores"`
	RedFlags        []string `json:"red_flags"`
	Recommendations []string `json:"recommendations"`
}

// Inputs is Agent 4's input contract: {original_resume, optimized_resume_text, job_analysis}.
type Inputs struct {
	OriginalResume      string
	OptimizedResumeText string
	JobAnalysis         json.RawMessage
}

// Run executes Agent 4 against the given RunContext.
func Run(ctx context.Context, rc agents.RunContext, in Inputs) (agents.AgentOutput, Output, error) {
	prompt := fmt.Sprintf(
		"Original resume:\n%s\n\nOptimized resume:\n%s\n\nJob analysis:\n%s",
		in.OriginalResume, in.OptimizedResumeText, string(in.JobAnalysis),
	)

	raw, err := agents.RunValidator(ctx, rc, prompt)
	if err != nil {
		return agents.AgentOutput{}, Output{}, err
	}

	var out Output
	if err := json.Unmarshal(raw.OutputJSON, &out); err != nil {
		return agents.AgentOutput{}, Output{}, fmt.Errorf("validator: decode output: %w", err)
	}
	return raw, out, nil
}
