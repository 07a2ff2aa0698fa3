package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/jaatoai/jaato/internal/jaato"
)

// convertTools converts jaato ToolSchemas into OpenAI function-tool
// definitions, grounded on OpenAIProvider.convertToOpenAITools: unmarshal
// the raw JSON schema into a generic map, falling back to an empty object
// schema rather than failing the whole conversion (OpenAI's API rejects a
// missing parameters object more readily than an empty one).
func convertTools(schemas []jaato.ToolSchema) []openaisdk.Tool {
	out := make([]openaisdk.Tool, len(schemas))
	for i, s := range schemas {
		var schemaMap map[string]any
		if err := json.Unmarshal(s.Parameters, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return out
}

// convertHistory converts a system instruction plus a jaato.History into
// OpenAI chat messages, grounded on
// OpenAIProvider.convertToOpenAIMessages: a leading system message, then
// one message per jaato.Message — except function-response parts, which
// OpenAI requires as one "tool" message each rather than folded into the
// surrounding message.
func convertHistory(system string, h jaato.History) ([]openaisdk.ChatCompletionMessage, error) {
	var out []openaisdk.ChatCompletionMessage
	if system != "" {
		out = append(out, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range h {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

func convertMessage(msg jaato.Message) ([]openaisdk.ChatCompletionMessage, error) {
	var text string
	var toolCalls []openaisdk.ToolCall
	var imageParts []jaato.InlineData
	var toolResultMessages []openaisdk.ChatCompletionMessage

	for _, part := range msg.Parts {
		switch part.Kind {
		case jaato.PartText:
			text += part.Text
		case jaato.PartFunctionCall:
			fc := part.FunctionCall
			args, err := json.Marshal(fc.Args)
			if err != nil {
				return nil, fmt.Errorf("tool call args for %s are not JSON-encodable: %w", fc.Name, err)
			}
			toolCalls = append(toolCalls, openaisdk.ToolCall{
				ID:   fc.ID,
				Type: openaisdk.ToolTypeFunction,
				Function: openaisdk.FunctionCall{
					Name:      fc.Name,
					Arguments: string(args),
				},
			})
		case jaato.PartFunctionResponse:
			tr := part.FunctionResponse
			content, err := toolResultContent(*tr)
			if err != nil {
				return nil, err
			}
			toolResultMessages = append(toolResultMessages, openaisdk.ChatCompletionMessage{
				Role:       openaisdk.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: tr.CallID,
			})
		case jaato.PartInlineData:
			if part.InlineData != nil {
				imageParts = append(imageParts, *part.InlineData)
			}
		}
	}

	if len(toolResultMessages) > 0 {
		return toolResultMessages, nil
	}

	role := openaisdk.ChatMessageRoleUser
	if msg.Role == jaato.RoleModel {
		role = openaisdk.ChatMessageRoleAssistant
	}

	out := openaisdk.ChatCompletionMessage{Role: role, ToolCalls: toolCalls}
	if len(imageParts) > 0 {
		parts := make([]openaisdk.ChatMessagePart, 0, len(imageParts)+1)
		if text != "" {
			parts = append(parts, openaisdk.ChatMessagePart{Type: openaisdk.ChatMessagePartTypeText, Text: text})
		}
		for _, img := range imageParts {
			parts = append(parts, openaisdk.ChatMessagePart{
				Type: openaisdk.ChatMessagePartTypeImageURL,
				ImageURL: &openaisdk.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Bytes)),
					Detail: openaisdk.ImageURLDetailAuto,
				},
			})
		}
		out.MultiContent = parts
	} else {
		out.Content = text
	}

	return []openaisdk.ChatCompletionMessage{out}, nil
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

// convertResponse folds an OpenAI chat completion response into a
// jaato.ProviderResponse, grounded on the streamed tool-call accumulation
// in OpenAIProvider.processStream, simplified to the non-streaming
// CreateChatCompletion path (one complete choice rather than incremental
// deltas).
func convertResponse(resp *openaisdk.ChatCompletionResponse) *jaato.ProviderResponse {
	out := &jaato.ProviderResponse{
		Usage: jaato.TokenUsage{
			Prompt: resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
			Total:  resp.Usage.TotalTokens,
		},
		Raw: resp,
	}
	if len(resp.Choices) == 0 {
		out.FinishReason = jaato.FinishUnknown
		return out
	}
	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.FunctionCalls = append(out.FunctionCalls, jaato.FunctionCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	out.FinishReason = mapFinishReason(choice.FinishReason)
	return out
}

func mapFinishReason(reason openaisdk.FinishReason) jaato.FinishReason {
	switch reason {
	case openaisdk.FinishReasonStop:
		return jaato.FinishStop
	case openaisdk.FinishReasonLength:
		return jaato.FinishMaxTokens
	case openaisdk.FinishReasonToolCalls, openaisdk.FinishReasonFunctionCall:
		return jaato.FinishToolUse
	case openaisdk.FinishReasonContentFilter:
		return jaato.FinishSafety
	default:
		return jaato.FinishUnknown
	}
}
