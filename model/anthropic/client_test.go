package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/model"
)

func TestToParamsStripsQualifiedModelID(t *testing.T) {
	c := &Client{defaultModel: "anthropic::claude-haiku-4-5"}
	params, err := c.toParams(model.Request{
		ModelID:   "anthropic::claude-sonnet-4-5",
		MaxTokens: 128,
		Messages:  []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", string(params.Model))
}

func TestToParamsFallsBackToBareDefaultModel(t *testing.T) {
	c := &Client{defaultModel: "anthropic::claude-haiku-4-5"}
	params, err := c.toParams(model.Request{
		MaxTokens: 128,
		Messages:  []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", string(params.Model))
}

func TestToParamsRequiresMaxTokens(t *testing.T) {
	c := &Client{defaultModel: "anthropic::claude-haiku-4-5"}
	_, err := c.toParams(model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}})
	assert.Error(t, err)
}

func TestToParamsRequiresAMessage(t *testing.T) {
	c := &Client{defaultModel: "anthropic::claude-haiku-4-5"}
	_, err := c.toParams(model.Request{MaxTokens: 128})
	assert.Error(t, err)
}

func TestNewRejectsNilMessagesClient(t *testing.T) {
	_, err := New(nil, "anthropic::claude-haiku-4-5")
	assert.Error(t, err)
}
