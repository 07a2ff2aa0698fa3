package openai

import (
	"encoding/json"
	"testing"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/jaatoai/jaato/internal/jaato"
)

func TestConvertToolsFallsBackOnInvalidSchema(t *testing.T) {
	schemas := []jaato.ToolSchema{
		{Name: "broken", Description: "x", Parameters: json.RawMessage(`not json`)},
	}
	out := convertTools(schemas)
	if len(out) != 1 || out[0].Function.Name != "broken" {
		t.Fatalf("unexpected tools: %+v", out)
	}
}

func TestConvertHistoryLeadsWithSystemMessage(t *testing.T) {
	out, err := convertHistory("be helpful", jaato.History{
		{Role: jaato.RoleUser, Parts: []jaato.Part{jaato.NewTextPart("hi")}},
	})
	if err != nil {
		t.Fatalf("convertHistory() error = %v", err)
	}
	if len(out) != 2 || out[0].Role != openaisdk.ChatMessageRoleSystem {
		t.Fatalf("expected leading system message, got %+v", out)
	}
}

func TestConvertMessageSplitsToolResultsIntoSeparateMessages(t *testing.T) {
	msg := jaato.Message{Role: jaato.RoleUser, Parts: []jaato.Part{
		jaato.NewFunctionResponsePart(jaato.ToolResult{CallID: "c1", Name: "a", Result: "ok"}),
		jaato.NewFunctionResponsePart(jaato.ToolResult{CallID: "c2", Name: "b", Result: "ok2"}),
	}}
	out, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("convertMessage() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected one tool message per result, got %d", len(out))
	}
	for _, m := range out {
		if m.Role != openaisdk.ChatMessageRoleTool {
			t.Errorf("Role = %q, want tool", m.Role)
		}
	}
}

func TestConvertMessageAssistantCarriesToolCalls(t *testing.T) {
	msg := jaato.Message{Role: jaato.RoleModel, Parts: []jaato.Part{
		jaato.NewTextPart("let me check"),
		jaato.NewFunctionCallPart(jaato.FunctionCall{ID: "c1", Name: "search", Args: map[string]any{"q": "go"}}),
	}}
	out, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("convertMessage() error = %v", err)
	}
	if len(out) != 1 || out[0].Role != openaisdk.ChatMessageRoleAssistant {
		t.Fatalf("unexpected conversion: %+v", out)
	}
	if len(out[0].ToolCalls) != 1 || out[0].ToolCalls[0].Function.Name != "search" {
		t.Errorf("ToolCalls = %+v", out[0].ToolCalls)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[openaisdk.FinishReason]jaato.FinishReason{
		openaisdk.FinishReasonStop:          jaato.FinishStop,
		openaisdk.FinishReasonLength:        jaato.FinishMaxTokens,
		openaisdk.FinishReasonToolCalls:     jaato.FinishToolUse,
		openaisdk.FinishReasonContentFilter: jaato.FinishSafety,
	}
	for reason, want := range cases {
		if got := mapFinishReason(reason); got != want {
			t.Errorf("mapFinishReason(%q) = %v, want %v", reason, got, want)
		}
	}
}
