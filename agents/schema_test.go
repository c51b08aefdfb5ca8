package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchemaAcceptsWellFormedAnalyzerOutput(t *testing.T) {
	raw := []byte(`{"job_title":"Staff Engineer","requirements":{"must_have":["go"],"nice_to_have":[]},"keywords":["go"],"role_signals":{"seniority":"staff","tech_stack":["go"]}}`)
	assert.NoError(t, validateSchema("analyzer", raw))
}

func TestValidateSchemaRejectsMissingRequiredField(t *testing.T) {
	raw := []byte(`{"job_title":"Staff Engineer","keywords":[],"role_signals":{"seniority":"staff","tech_stack":[]}}`)
	err := validateSchema("analyzer", raw)
	require.Error(t, err)
}

func TestValidateSchemaRejectsOutOfRangeValidatorScore(t *testing.T) {
	raw := []byte(`{"scores":{"requirements_match":150,"ats_optimization":70,"cultural_fit":90,"presentation_quality":60,"competitive_positioning":100,"overall_score":80}}`)
	err := validateSchema("validator", raw)
	require.Error(t, err)
}

func TestValidateSchemaUnknownAgentNameIsNoOp(t *testing.T) {
	assert.NoError(t, validateSchema("unknown-agent", []byte(`{}`)))
}
