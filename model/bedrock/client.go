// Package bedrock adapts the AWS Bedrock Converse streaming API to the
// model.Client contract, grounded on the teacher's features/model/bedrock
// adapter (request encoding, ConverseStream event handling) but dropping its
// tool-use and ledger-replay machinery since no agent in this system calls
// tools.
package bedrock

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/model"
)

// RuntimeClient mirrors the subset of the Bedrock runtime client the adapter
// calls, so tests can substitute a fake.
type RuntimeClient interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New builds an adapter from an explicit runtime client, useful for tests.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

// GenerateStream invokes ConverseStream and adapts incremental events into
// model.Chunk values.
func (c *Client) GenerateStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	input, err := c.toInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, classify(err)
	}
	return newStreamer(ctx, out.GetStream()), nil
}

func (c *Client) toInput(req model.Request) (*bedrockruntime.ConverseStreamInput, error) {
	modelID := model.BareModelID(req.ModelID)
	if modelID == "" {
		modelID = model.BareModelID(c.defaultModel)
	}
	if modelID == "" {
		return nil, errors.New("bedrock: model identifier is required")
	}

	var messages []brtypes.Message
	var system []brtypes.SystemContentBlock
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case model.RoleUser:
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case model.RoleAssistant:
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	if req.SystemInstruction != "" {
		system = append([]brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.SystemInstruction}}, system...)
	}
	if len(messages) == 0 {
		return nil, errors.New("bedrock: at least one user/assistant message is required")
	}

	infCfg := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		mt := int32(req.MaxTokens)
		infCfg.MaxTokens = &mt
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		infCfg.Temperature = &t
	}
	if req.TopP > 0 {
		p := float32(req.TopP)
		infCfg.TopP = &p
	}
	if len(req.Stop) > 0 {
		infCfg.StopSequences = req.Stop
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         &modelID,
		Messages:        messages,
		InferenceConfig: infCfg,
	}
	if len(system) > 0 {
		input.System = system
	}
	return input, nil
}

// classify maps a Bedrock SDK error into the shared coreerrors taxonomy.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return coreerrors.New(coreerrors.Transient, coreerrors.TypeRateLimited, "", "bedrock rate limited", err)
		case "AccessDeniedException", "UnrecognizedClientException":
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeAuth, "", "bedrock auth failed", err)
		case "ValidationException", "ModelNotReadyException":
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "bedrock rejected the request", err)
		case "ServiceUnavailableException", "InternalServerException":
			return coreerrors.New(coreerrors.Transient, coreerrors.TypeUpstream5xx, "", "bedrock upstream error", err)
		}
	}
	return coreerrors.New(coreerrors.Transient, coreerrors.TypeNetwork, "", "bedrock request failed", err)
}
