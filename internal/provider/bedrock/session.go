package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/provider"
)

type session struct {
	client *bedrockruntime.Client
	model  string
	system string
	tools  *types.ToolConfiguration

	history jaato.History
	msgs    []types.Message
	usage   jaato.TokenUsage
}

func (s *session) SendMessage(ctx context.Context, text string, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	return s.SendMessageWithParts(ctx, []jaato.Part{jaato.NewTextPart(text)}, responseSchema)
}

func (s *session) SendMessageWithParts(ctx context.Context, parts []jaato.Part, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	blocks, err := convertParts(parts)
	if err != nil {
		return nil, err
	}
	s.msgs = append(s.msgs, types.Message{Role: types.ConversationRoleUser, Content: blocks})
	s.history = append(s.history, userMsg)
	return s.send(ctx)
}

func (s *session) SendToolResults(ctx context.Context, results []jaato.ToolResult, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	var parts []jaato.Part
	for _, r := range results {
		parts = append(parts, jaato.NewFunctionResponsePart(r))
	}
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	blocks, err := convertParts(parts)
	if err != nil {
		return nil, err
	}
	s.msgs = append(s.msgs, types.Message{Role: types.ConversationRoleUser, Content: blocks})
	s.history = append(s.history, userMsg)
	return s.send(ctx)
}

// send issues one non-streaming Converse call, grounded on
// BedrockProvider.Complete's ConverseStreamInput construction (model,
// messages, system, tool config, inference config) adapted to Converse's
// non-streaming sibling; the Orchestrator consumes one complete
// ProviderResponse per turn (spec §4.G) rather than an incremental
// event stream.
func (s *session) send(ctx context.Context) (*jaato.ProviderResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(s.model),
		Messages: s.msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(defaultMaxTokens),
		},
	}
	if s.system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: s.system}}
	}
	if s.tools != nil {
		input.ToolConfig = s.tools
	}

	out, err := s.client.Converse(ctx, input)
	if err != nil {
		return nil, wrapError(err)
	}

	resp := convertResponse(out.Output, out.Usage, out.StopReason)
	s.usage = resp.Usage

	var modelParts []jaato.Part
	if resp.Text != "" {
		modelParts = append(modelParts, jaato.NewTextPart(resp.Text))
	}
	for _, fc := range resp.FunctionCalls {
		modelParts = append(modelParts, jaato.NewFunctionCallPart(fc))
	}
	modelMsg := jaato.Message{Role: jaato.RoleModel, Parts: modelParts}
	s.history = append(s.history, modelMsg)
	if blocks, err := convertParts(modelParts); err == nil && len(blocks) > 0 {
		s.msgs = append(s.msgs, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})
	}

	return resp, nil
}

// CountTokens estimates token count with the same ~4-characters-per-token
// heuristic used by every concrete provider in this module; Bedrock
// exposes no standalone token-counting RPC.
func (s *session) CountTokens(ctx context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

func (s *session) TokenUsage() jaato.TokenUsage { return s.usage }

func (s *session) History() jaato.History { return s.history }

var _ provider.Session = (*session)(nil)

// wrapError classifies a raw Bedrock error into the shared provider error
// taxonomy, grounded on BedrockProvider.isRetryableError/wrapError:
// prefer the smithy-go API error's error code when the SDK surfaces
// one, falling back to string matching (throttling,
// ServiceUnavailableException, ModelTimeoutException) otherwise.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "ThrottlingException", "TooManyRequestsException":
			return &provider.TransientError{Class: provider.ClassRateLimit, Cause: err}
		case "ServiceUnavailableException", "ModelTimeoutException", "InternalServerException":
			return &provider.TransientError{Class: provider.ClassInfra, Cause: err}
		case "ValidationException", "AccessDeniedException", "ResourceNotFoundException":
			return &provider.PermanentError{Detail: "bedrock request rejected: " + code, Cause: err}
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return &provider.TransientError{Class: provider.ClassRateLimit, Cause: err}
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "timeout"), strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return &provider.TransientError{Class: provider.ClassInfra, Cause: err}
	default:
		return &provider.PermanentError{Detail: "bedrock request failed", Cause: err}
	}
}
