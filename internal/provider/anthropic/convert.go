package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/jaatoai/jaato/internal/jaato"
)

// convertTools converts jaato ToolSchemas into Anthropic's tool-union
// params, grounded on AnthropicProvider.convertTools: parse each schema's
// raw JSON into Anthropic's own input-schema shape, then attach the
// description separately since Anthropic's schema type carries no
// description field of its own. Names are assumed already deduplicated by
// the Plugin Registry (spec §4.E, "first-wins").
func convertTools(schemas []jaato.ToolSchema) ([]anthropicsdk.ToolUnionParam, error) {
	var out []anthropicsdk.ToolUnionParam
	for _, s := range schemas {
		var inputSchema anthropicsdk.ToolInputSchemaParam
		if err := json.Unmarshal(s.Parameters, &inputSchema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", s.Name, err)
		}
		param := anthropicsdk.ToolUnionParamOfTool(inputSchema, s.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", s.Name)
		}
		param.OfTool.Description = anthropicsdk.String(s.Description)
		out = append(out, param)
	}
	return out, nil
}

// convertHistory converts a jaato.History into Anthropic MessageParams,
// grounded on AnthropicProvider.convertMessages: one MessageParam per
// jaato.Message, with Role mapped user/assistant and every Part folded into
// a single content-block array (text, tool_use, tool_result).
func convertHistory(h jaato.History) ([]anthropicsdk.MessageParam, error) {
	var out []anthropicsdk.MessageParam
	for _, msg := range h {
		blocks, err := convertParts(msg.Parts)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == jaato.RoleModel {
			out = append(out, anthropicsdk.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropicsdk.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func convertParts(parts []jaato.Part) ([]anthropicsdk.ContentBlockParamUnion, error) {
	var blocks []anthropicsdk.ContentBlockParamUnion
	for _, part := range parts {
		switch part.Kind {
		case jaato.PartText:
			if part.Text != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(part.Text))
			}
		case jaato.PartFunctionCall:
			fc := part.FunctionCall
			blocks = append(blocks, anthropicsdk.NewToolUseBlock(fc.ID, fc.Args, fc.Name))
		case jaato.PartFunctionResponse:
			tr := part.FunctionResponse
			content, err := toolResultContent(*tr)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, anthropicsdk.NewToolResultBlock(tr.CallID, content, tr.IsError))
		case jaato.PartInlineData:
			// Anthropic's Messages API accepts inline images as base64
			// content blocks; non-image mime types are sent as a text
			// fallback describing the attachment, matching the
			// teacher's conservative handling of unsupported content.
			if part.InlineData != nil {
				if mt, ok := imageMediaType(part.InlineData.MimeType); ok {
					blocks = append(blocks, anthropicsdk.ContentBlockParamUnion{
						OfImage: &anthropicsdk.ImageBlockParam{
							Source: anthropicsdk.ImageBlockParamSourceUnion{
								OfBase64: &anthropicsdk.Base64ImageSourceParam{
									Data:      base64.StdEncoding.EncodeToString(part.InlineData.Bytes),
									MediaType: mt,
								},
							},
						},
					})
				} else {
					blocks = append(blocks, anthropicsdk.NewTextBlock(fmt.Sprintf("[attachment: %s, %d bytes, unsupported inline type]", part.InlineData.MimeType, len(part.InlineData.Bytes))))
				}
			}
		}
	}
	return blocks, nil
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

// convertResponse folds an Anthropic Message response into a
// jaato.ProviderResponse, grounded on the stream-accumulation logic in
// AnthropicProvider.processStream, simplified to the non-streaming
// client.Messages.New path: accumulate text blocks and ToolUseBlocks, map
// StopReason to jaato.FinishReason, and copy usage.
func convertResponse(msg *anthropicsdk.Message) *jaato.ProviderResponse {
	resp := &jaato.ProviderResponse{
		Usage: jaato.TokenUsage{
			Prompt: int(msg.Usage.InputTokens),
			Output: int(msg.Usage.OutputTokens),
			Total:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Raw: msg,
	}

	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			resp.Text += variant.Text
		case anthropicsdk.ToolUseBlock:
			args, _ := toolUseInputToArgs(variant.Input)
			resp.FunctionCalls = append(resp.FunctionCalls, jaato.FunctionCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: args,
			})
		}
	}

	resp.FinishReason = mapStopReason(string(msg.StopReason))
	return resp
}

func toolUseInputToArgs(raw any) (map[string]any, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(b, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func imageMediaType(mimeType string) (anthropicsdk.Base64ImageSourceMediaType, bool) {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return anthropicsdk.Base64ImageSourceMediaTypeImageJPEG, true
	case "image/png":
		return anthropicsdk.Base64ImageSourceMediaTypeImagePNG, true
	case "image/gif":
		return anthropicsdk.Base64ImageSourceMediaTypeImageGIF, true
	case "image/webp":
		return anthropicsdk.Base64ImageSourceMediaTypeImageWebP, true
	default:
		return "", false
	}
}

func mapStopReason(reason string) jaato.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return jaato.FinishStop
	case "max_tokens":
		return jaato.FinishMaxTokens
	case "tool_use":
		return jaato.FinishToolUse
	default:
		return jaato.FinishUnknown
	}
}
