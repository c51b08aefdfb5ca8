// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// model.Client streaming contract, grounded on the teacher's
// features/model/anthropic adapter.
package anthropic

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/model"
)

// MessagesClient captures the subset of the Anthropic SDK used here so tests
// can substitute a fake without a live API key.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements model.Client on top of Anthropic's Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
}

// New builds an adapter from an explicit Messages client, useful for tests.
func New(msg MessagesClient, defaultModel string) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	return &Client{msg: msg, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP
// transport and the given apiKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultModel)
}

// GenerateStream issues a streaming Messages call and adapts the SSE events
// into model.Chunk values.
func (c *Client) GenerateStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.toParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) toParams(req model.Request) (*sdk.MessageNewParams, error) {
	modelID := model.BareModelID(req.ModelID)
	if modelID == "" {
		modelID = model.BareModelID(c.defaultModel)
	}
	if modelID == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}

	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	var system []sdk.TextBlockParam
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case model.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if req.SystemInstruction != "" {
		system = append([]sdk.TextBlockParam{{Text: req.SystemInstruction}}, system...)
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.Thinking != nil && req.Thinking.Enable && req.Thinking.BudgetTokens > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(req.Thinking.BudgetTokens))
	}
	return params, nil
}

// classify maps an Anthropic SDK error into the shared coreerrors taxonomy.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeAuth, "", "anthropic auth failed", err)
		case 429:
			return coreerrors.New(coreerrors.Transient, coreerrors.TypeRateLimited, "", "anthropic rate limited", err)
		case 400, 413:
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "anthropic rejected the request", err)
		default:
			if apiErr.StatusCode >= 500 {
				return coreerrors.New(coreerrors.Transient, coreerrors.TypeUpstream5xx, "", "anthropic upstream error", err)
			}
		}
	}
	return coreerrors.New(coreerrors.Transient, coreerrors.TypeNetwork, "", "anthropic request failed", err)
}
