package google

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/jaatoai/jaato/internal/jaato"
)

// convertTools converts jaato ToolSchemas into a single genai.Tool
// bundling one FunctionDeclaration per schema, grounded on
// GoogleProvider.convertTools (itself delegating to
// internal/agent/toolconv.ToGeminiTools): each tool's raw JSON parameters
// are carried through as the declaration's Parameters.
func convertTools(schemas []jaato.ToolSchema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		var schema genai.Schema
		if err := json.Unmarshal(s.Parameters, &schema); err != nil {
			schema = genai.Schema{Type: genai.TypeObject}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertHistory converts a jaato.History into genai.Content, grounded on
// GoogleProvider.convertMessages: one Content per jaato.Message, Role
// mapped user/model, every Part folded into that Content's Parts array
// (text, function_call, function_response, inline image data).
func convertHistory(h jaato.History) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, msg := range h {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == jaato.RoleModel {
			content.Role = genai.RoleModel
		}
		for _, part := range msg.Parts {
			converted, err := convertPart(part)
			if err != nil {
				return nil, err
			}
			if converted != nil {
				content.Parts = append(content.Parts, converted)
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out, nil
}

func convertPart(part jaato.Part) (*genai.Part, error) {
	switch part.Kind {
	case jaato.PartText:
		if part.Text == "" {
			return nil, nil
		}
		return &genai.Part{Text: part.Text}, nil
	case jaato.PartFunctionCall:
		fc := part.FunctionCall
		return &genai.Part{FunctionCall: &genai.FunctionCall{Name: fc.Name, Args: fc.Args}}, nil
	case jaato.PartFunctionResponse:
		tr := part.FunctionResponse
		response, err := toolResultAsMap(*tr)
		if err != nil {
			return nil, err
		}
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{Name: tr.Name, Response: response}}, nil
	case jaato.PartInlineData:
		if part.InlineData == nil {
			return nil, nil
		}
		return &genai.Part{InlineData: &genai.Blob{Data: part.InlineData.Bytes, MIMEType: part.InlineData.MimeType}}, nil
	default:
		return nil, fmt.Errorf("unknown part kind %q", part.Kind)
	}
}

// toolResultAsMap converts a ToolResult's Result into the map[string]any
// genai.FunctionResponse.Response requires, grounded on
// GoogleProvider.convertMessages: if the result is already a map, use it
// directly; otherwise wrap it under a "result" key alongside the error
// flag, mirroring the teacher's fallback-wrap behavior for non-JSON
// content.
func toolResultAsMap(tr jaato.ToolResult) (map[string]any, error) {
	if m, ok := tr.Result.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"result": tr.Result, "error": tr.IsError}, nil
}

// convertResponse folds a genai.GenerateContentResponse into a
// jaato.ProviderResponse, grounded on processStreamResponse's per-part
// accumulation, simplified to the non-streaming GenerateContent path
// (one complete candidate rather than incremental chunks).
func convertResponse(resp *genai.GenerateContentResponse) *jaato.ProviderResponse {
	out := &jaato.ProviderResponse{Raw: resp}
	if resp.UsageMetadata != nil {
		out.Usage = jaato.TokenUsage{
			Prompt: int(resp.UsageMetadata.PromptTokenCount),
			Output: int(resp.UsageMetadata.CandidatesTokenCount),
			Total:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		out.FinishReason = jaato.FinishUnknown
		return out
	}
	candidate := resp.Candidates[0]
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			out.Text += part.Text
		}
		if part.FunctionCall != nil {
			out.FunctionCalls = append(out.FunctionCalls, jaato.FunctionCall{
				ID:   jaato.NewFunctionCallID(),
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	out.FinishReason = mapFinishReason(candidate.FinishReason)
	return out
}

func mapFinishReason(reason genai.FinishReason) jaato.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return jaato.FinishStop
	case genai.FinishReasonMaxTokens:
		return jaato.FinishMaxTokens
	case genai.FinishReasonSafety:
		return jaato.FinishSafety
	case "":
		return jaato.FinishUnknown
	default:
		return jaato.FinishUnknown
	}
}
