package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	providers map[string]string
}

func (f fakeLookup) Provider(modelID string) (string, error) {
	p, ok := f.providers[modelID]
	if !ok {
		return "", assertErr{modelID}
	}
	return p, nil
}

type assertErr struct{ modelID string }

func (e assertErr) Error() string { return "unknown model " + e.modelID }

type recordingClient struct {
	called  bool
	lastReq Request
}

func (c *recordingClient) GenerateStream(ctx context.Context, req Request) (Streamer, error) {
	c.called = true
	c.lastReq = req
	return nil, nil
}

func TestRouterDispatchesToRegisteredProvider(t *testing.T) {
	anthropic := &recordingClient{}
	openai := &recordingClient{}

	r := NewRouter(fakeLookup{providers: map[string]string{
		"anthropic::claude-sonnet-4-5": "anthropic",
		"openai::gpt-5":                "openai",
	}})
	r.Register("anthropic", anthropic)
	r.Register("openai", openai)

	_, err := r.GenerateStream(context.Background(), Request{ModelID: "openai::gpt-5"})
	require.NoError(t, err)
	assert.True(t, openai.called)
	assert.False(t, anthropic.called)
}

func TestRouterForwardsTheQualifiedModelIDUnchanged(t *testing.T) {
	// The Router only resolves a provider label to dispatch on; stripping the
	// "provider::" qualifier down to a wire-level model id is each adapter's
	// own responsibility (model.BareModelID), since req.ModelID must stay
	// qualified for anything upstream of the adapter (e.g. Registry pricing).
	rec := &recordingClient{}
	r := NewRouter(fakeLookup{providers: map[string]string{"anthropic::claude-sonnet-4-5": "anthropic"}})
	r.Register("anthropic", rec)

	_, err := r.GenerateStream(context.Background(), Request{ModelID: "anthropic::claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic::claude-sonnet-4-5", rec.lastReq.ModelID)
}

func TestRouterUnregisteredProviderIsError(t *testing.T) {
	r := NewRouter(fakeLookup{providers: map[string]string{"x::y": "x"}})
	_, err := r.GenerateStream(context.Background(), Request{ModelID: "x::y"})
	assert.Error(t, err)
}

func TestRouterUnknownModelPropagatesLookupError(t *testing.T) {
	r := NewRouter(fakeLookup{providers: map[string]string{}})
	_, err := r.GenerateStream(context.Background(), Request{ModelID: "nope::nope"})
	assert.Error(t, err)
}
