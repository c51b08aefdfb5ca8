package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/model"
)

func TestToParamsStripsQualifiedModelID(t *testing.T) {
	c := &Client{defaultModel: "openai::gpt-4.1"}
	params, err := c.toParams(model.Request{
		ModelID:  "openai::gpt-4.1-mini",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", string(params.Model))
}

func TestToParamsFallsBackToBareDefaultModel(t *testing.T) {
	c := &Client{defaultModel: "openai::gpt-4.1"}
	params, err := c.toParams(model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", string(params.Model))
}

func TestToParamsRequiresAMessageOrSystemInstruction(t *testing.T) {
	c := &Client{defaultModel: "openai::gpt-4.1"}
	_, err := c.toParams(model.Request{})
	assert.Error(t, err)
}

func TestNewRejectsNilChatClient(t *testing.T) {
	_, err := New(nil, "openai::gpt-4.1")
	assert.Error(t, err)
}
