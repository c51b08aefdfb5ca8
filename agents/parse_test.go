package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFromFencedBlock(t *testing.T) {
	text := "Here is the analysis:\n```json\n{\"job_title\": \"Staff Engineer\", \"keywords\": [\"go\", \"distributed systems\"]}\n```\nLet me know if you need more."
	raw, err := extractJSON(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_title": "Staff Engineer", "keywords": ["go", "distributed systems"]}`, string(raw))
}

func TestExtractJSONFromProseWithoutFence(t *testing.T) {
	text := "Sure thing, the result is {\"job_title\": \"Data Scientist\", \"requirements\": {\"must_have\": [\"python\"], \"nice_to_have\": []}} and that's final."
	raw, err := extractJSON(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_title": "Data Scientist", "requirements": {"must_have": ["python"], "nice_to_have": []}}`, string(raw))
}

func TestExtractJSONNoObjectIsError(t *testing.T) {
	_, err := extractJSON("I could not analyze this job posting.")
	assert.ErrorIs(t, err, errNoJSON)
}

func TestExtractSentinelJSON(t *testing.T) {
	text := "Reasoning here...\nBEGIN_VALIDATION_SCORES_JSON\n{\"scores\": {\"requirements_match\": 80}}\nEND_VALIDATION_SCORES_JSON\nThanks."
	raw, ok := extractSentinelJSON(text, validatorSentinelBegin, validatorSentinelEnd)
	require.True(t, ok)
	assert.JSONEq(t, `{"scores": {"requirements_match": 80}}`, string(raw))
}

func TestExtractSentinelJSONMissingSentinelsReturnsFalse(t *testing.T) {
	_, ok := extractSentinelJSON("no sentinels here", validatorSentinelBegin, validatorSentinelEnd)
	assert.False(t, ok)
}
