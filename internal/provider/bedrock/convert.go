package bedrock

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/jaatoai/jaato/internal/jaato"
)

// convertTools converts jaato ToolSchemas into a Bedrock ToolConfiguration,
// grounded on toolconv.ToBedrockTools: unmarshal each schema's raw JSON
// into a generic document, falling back to an empty object schema on
// parse failure rather than failing the whole conversion.
func convertTools(schemas []jaato.ToolSchema) *types.ToolConfiguration {
	if len(schemas) == 0 {
		return nil
	}
	tools := make([]types.Tool, len(schemas))
	for i, s := range schemas {
		var schema any
		if err := json.Unmarshal(s.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(s.Name),
				Description: aws.String(s.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: tools}
}

// convertHistory converts a jaato.History into Bedrock Converse Messages,
// grounded on BedrockProvider.convertMessages: one types.Message per
// jaato.Message, Role mapped user/assistant, every Part folded into that
// message's ContentBlock array (text, tool_use, tool_result).
func convertHistory(h jaato.History) ([]types.Message, error) {
	var out []types.Message
	for _, msg := range h {
		blocks, err := convertParts(msg.Parts)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == jaato.RoleModel {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return out, nil
}

func convertParts(parts []jaato.Part) ([]types.ContentBlock, error) {
	var blocks []types.ContentBlock
	for _, part := range parts {
		switch part.Kind {
		case jaato.PartText:
			if part.Text != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: part.Text})
			}
		case jaato.PartFunctionCall:
			fc := part.FunctionCall
			blocks = append(blocks, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(fc.ID),
					Name:      aws.String(fc.Name),
					Input:     document.NewLazyDocument(fc.Args),
				},
			})
		case jaato.PartFunctionResponse:
			tr := part.FunctionResponse
			content, err := toolResultContent(*tr)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.CallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: content}},
				},
			})
		case jaato.PartInlineData:
			// Bedrock's Converse API requires a model-specific image
			// format enum (png/jpeg/gif/webp) rather than an arbitrary
			// mime type; unsupported types fall back to a text note,
			// matching BedrockProvider.convertImageAttachment's
			// best-effort handling of attachments it cannot place.
			if part.InlineData != nil {
				if format, ok := imageFormat(part.InlineData.MimeType); ok {
					blocks = append(blocks, &types.ContentBlockMemberImage{
						Value: types.ImageBlock{
							Format: format,
							Source: &types.ImageSourceMemberBytes{Value: part.InlineData.Bytes},
						},
					})
				} else {
					blocks = append(blocks, &types.ContentBlockMemberText{
						Value: fmt.Sprintf("[attachment: %s, %d bytes, unsupported inline type]", part.InlineData.MimeType, len(part.InlineData.Bytes)),
					})
				}
			}
		}
	}
	return blocks, nil
}

func imageFormat(mimeType string) (types.ImageFormat, bool) {
	switch mimeType {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

func toolResultContent(tr jaato.ToolResult) (string, error) {
	switch v := tr.Result.(type) {
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("tool result for %s is not JSON-encodable: %w", tr.Name, err)
		}
		return string(b), nil
	}
}

// convertResponse folds a Bedrock ConverseOutput into a
// jaato.ProviderResponse, grounded on the non-streaming sibling of
// BedrockProvider.processStream's event handling: the Converse API's
// single Output.Message replaces the stream's incremental content-block
// events.
func convertResponse(out types.ConverseOutputMember, usage *types.TokenUsage, stopReason types.StopReason) *jaato.ProviderResponse {
	resp := &jaato.ProviderResponse{Raw: out}
	if usage != nil {
		resp.Usage = jaato.TokenUsage{
			Prompt: int(aws.ToInt32(usage.InputTokens)),
			Output: int(aws.ToInt32(usage.OutputTokens)),
			Total:  int(aws.ToInt32(usage.TotalTokens)),
		}
	}
	if out == nil {
		resp.FinishReason = jaato.FinishUnknown
		return resp
	}
	member, ok := out.(*types.ConverseOutputMemberMessage)
	if !ok {
		resp.FinishReason = jaato.FinishUnknown
		return resp
	}
	for _, block := range member.Value.Content {
		switch variant := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Text += variant.Value
		case *types.ContentBlockMemberToolUse:
			args, _ := toolUseInputToArgs(variant.Value.Input)
			resp.FunctionCalls = append(resp.FunctionCalls, jaato.FunctionCall{
				ID:   aws.ToString(variant.Value.ToolUseId),
				Name: aws.ToString(variant.Value.Name),
				Args: args,
			})
		}
	}
	resp.FinishReason = mapStopReason(stopReason)
	return resp
}

func toolUseInputToArgs(doc document.Interface) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	var args map[string]any
	if err := doc.UnmarshalSmithyDocument(&args); err != nil {
		return nil, err
	}
	return args, nil
}

func mapStopReason(reason types.StopReason) jaato.FinishReason {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return jaato.FinishStop
	case types.StopReasonMaxTokens:
		return jaato.FinishMaxTokens
	case types.StopReasonToolUse:
		return jaato.FinishToolUse
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return jaato.FinishSafety
	default:
		return jaato.FinishUnknown
	}
}
