package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resumeforge/tailorcore/coreerrors"
)

// RunAnalyzer executes Agent 1 — Job Analyzer (spec.md §4.6) against the
// supplied user prompt (job text, optionally prefixed with profile
// enrichment context by the caller).
func RunAnalyzer(ctx context.Context, rc RunContext, userPrompt string) (AgentOutput, error) {
	return execute(ctx, rc, 0, "analyzer", analyzerPrompt, userPrompt, extractJSON)
}

// RunStrategy executes Agent 2 — Strategy Planner.
func RunStrategy(ctx context.Context, rc RunContext, userPrompt string) (AgentOutput, error) {
	return execute(ctx, rc, 1, "strategy", strategyPrompt, userPrompt, extractJSON)
}

// RunBuilder executes Agent 3 — Resume Builder.
func RunBuilder(ctx context.Context, rc RunContext, userPrompt string) (AgentOutput, error) {
	return execute(ctx, rc, 2, "builder", builderPrompt, userPrompt, extractJSON)
}

// validatorSentinelBegin / validatorSentinelEnd delimit Agent 4's structured
// score block (spec.md §4.6).
const (
	validatorSentinelBegin = "BEGIN_VALIDATION_SCORES_JSON"
	validatorSentinelEnd   = "END_VALIDATION_SCORES_JSON"
)

// RunValidator executes Agent 4 — Validator. Its parser differs from the
// other agents: the score block must appear between literal sentinel lines,
// and a missing overall_score is backfilled as the mean of the five category
// scores.
func RunValidator(ctx context.Context, rc RunContext, userPrompt string) (AgentOutput, error) {
	return execute(ctx, rc, 3, "validator", validatorPrompt, userPrompt, parseValidatorOutput)
}

// RunPolisher executes Agent 5 — Polisher.
func RunPolisher(ctx context.Context, rc RunContext, userPrompt string) (AgentOutput, error) {
	return execute(ctx, rc, 4, "polisher", polisherPrompt, userPrompt, extractJSON)
}

type validatorScores struct {
	RequirementsMatch      *int `json:"requirements_match"`
	ATSOptimization        *int `json:"ats_optimization"`
	CulturalFit            *int `json:"cultural_fit"`
	PresentationQuality    *int `json:"presentation_quality"`
	CompetitivePositioning *int `json:"competitive_positioning"`
	OverallScore           *int `json:"overall_score"`
}

type validatorPayload struct {
	Scores          validatorScores `json:"scores"`
	RedFlags        []string        `json:"red_flags"`
	Recommendations []string        `json:"recommendations"`
}

// parseValidatorOutput implements Agent 4's sentinel-delimited contract and
// overall_score mean-backfill invariant (spec.md §4.6).
func parseValidatorOutput(rawText string) (json.RawMessage, error) {
	block, ok := extractSentinelJSON(rawText, validatorSentinelBegin, validatorSentinelEnd)
	if !ok {
		return nil, coreerrors.New(coreerrors.Recoverable, coreerrors.TypeValidatorScoreMiss, "", "validator response is missing the BEGIN/END_VALIDATION_SCORES_JSON sentinel block", nil)
	}

	var payload validatorPayload
	if err := json.Unmarshal(block, &payload); err != nil {
		return nil, coreerrors.New(coreerrors.Recoverable, coreerrors.TypeValidatorScoreMiss, "", fmt.Sprintf("validator score block is not valid JSON: %v", err), err)
	}

	required := []*int{
		payload.Scores.RequirementsMatch,
		payload.Scores.ATSOptimization,
		payload.Scores.CulturalFit,
		payload.Scores.PresentationQuality,
		payload.Scores.CompetitivePositioning,
	}
	sum := 0
	for _, s := range required {
		if s == nil {
			return nil, coreerrors.New(coreerrors.Recoverable, coreerrors.TypeValidatorScoreMiss, "", "validator score block is missing one or more required category scores", nil)
		}
		sum += *s
	}

	if payload.Scores.OverallScore == nil {
		mean := int(roundHalfAwayFromZero(float64(sum) / float64(len(required))))
		payload.Scores.OverallScore = &mean
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("agents: marshal validator payload: %w", err)
	}
	return out, nil
}

func roundHalfAwayFromZero(f float64) float64 {
	if f >= 0 {
		return float64(int(f + 0.5))
	}
	return float64(int(f - 0.5))
}
