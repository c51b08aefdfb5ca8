package bedrock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/model"
)

func TestToInputStripsQualifiedModelID(t *testing.T) {
	c := &Client{defaultModel: "bedrock::anthropic.claude-3-5-sonnet"}
	input, err := c.toInput(model.Request{
		ModelID:  "bedrock::anthropic.claude-3-5-haiku",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.NotNil(t, input.ModelId)
	assert.Equal(t, "anthropic.claude-3-5-haiku", *input.ModelId)
}

func TestToInputFallsBackToBareDefaultModel(t *testing.T) {
	c := &Client{defaultModel: "bedrock::anthropic.claude-3-5-sonnet"}
	input, err := c.toInput(model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.NotNil(t, input.ModelId)
	assert.Equal(t, "anthropic.claude-3-5-sonnet", *input.ModelId)
}

func TestToInputRequiresAMessage(t *testing.T) {
	c := &Client{defaultModel: "bedrock::anthropic.claude-3-5-sonnet"}
	_, err := c.toInput(model.Request{})
	assert.Error(t, err)
}

func TestNewRejectsNilRuntimeClient(t *testing.T) {
	_, err := New(nil, "bedrock::anthropic.claude-3-5-sonnet")
	assert.Error(t, err)
}
