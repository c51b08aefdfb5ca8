// Package openai adapts github.com/openai/openai-go to the model.Client
// streaming contract, grounded on the teacher's features/model/openai
// adapter (request/response translation) and the Anthropic adapter's
// streaming idiom (the teacher's own openai adapter predates streaming
// support and falls back to a single Complete call).
package openai

import (
	"context"
	"errors"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/model"
)

// ChatClient captures the subset of the OpenAI SDK used by the adapter.
type ChatClient interface {
	NewStreaming(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.ChatCompletionChunk]
}

// Client implements model.Client via the OpenAI Chat Completions streaming API.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New builds an adapter from an explicit chat-completions client.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, defaultModel)
}

// GenerateStream issues a streaming chat-completion call and adapts the SSE
// chunk events into model.Chunk values.
func (c *Client) GenerateStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.toParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) toParams(req model.Request) (*sdk.ChatCompletionNewParams, error) {
	modelID := model.BareModelID(req.ModelID)
	if modelID == "" {
		modelID = model.BareModelID(c.defaultModel)
	}
	if modelID == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	if len(req.Messages) == 0 && req.SystemInstruction == "" {
		return nil, errors.New("openai: at least one message is required")
	}

	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		msgs = append(msgs, sdk.SystemMessage(req.SystemInstruction))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			msgs = append(msgs, sdk.SystemMessage(m.Content))
		case model.RoleUser:
			msgs = append(msgs, sdk.UserMessage(m.Content))
		case model.RoleAssistant:
			msgs = append(msgs, sdk.AssistantMessage(m.Content))
		}
	}

	params := &sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: msgs,
		StreamOptions: sdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: sdk.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = sdk.Float(req.TopP)
	}
	if len(req.Stop) > 0 {
		params.Stop = sdk.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if req.Seed != nil {
		params.Seed = sdk.Int(*req.Seed)
	}
	return params, nil
}

// classify maps an OpenAI SDK error into the shared coreerrors taxonomy.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeAuth, "", "openai auth failed", err)
		case 429:
			return coreerrors.New(coreerrors.Transient, coreerrors.TypeRateLimited, "", "openai rate limited", err)
		case 400, 413:
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "openai rejected the request", err)
		default:
			if apiErr.StatusCode >= 500 {
				return coreerrors.New(coreerrors.Transient, coreerrors.TypeUpstream5xx, "", "openai upstream error", err)
			}
		}
	}
	return coreerrors.New(coreerrors.Transient, coreerrors.TypeNetwork, "", "openai request failed", err)
}
