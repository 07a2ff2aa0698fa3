package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/jaatoai/jaato/internal/jaato"
)

func TestConvertToolsRejectsInvalidSchema(t *testing.T) {
	schemas := []jaato.ToolSchema{
		{Name: "broken", Description: "x", Parameters: json.RawMessage(`not json`)},
	}
	if _, err := convertTools(schemas); err == nil {
		t.Fatal("expected error for invalid tool schema")
	}
}

func TestConvertToolsCarriesDescription(t *testing.T) {
	schemas := []jaato.ToolSchema{
		{Name: "search", Description: "search the web", Parameters: json.RawMessage(`{"type":"object","properties":{}}`)},
	}
	out, err := convertTools(schemas)
	if err != nil {
		t.Fatalf("convertTools() error = %v", err)
	}
	if len(out) != 1 || out[0].OfTool == nil {
		t.Fatalf("expected one tool param, got %+v", out)
	}
	if out[0].OfTool.Name != "search" {
		t.Errorf("Name = %q, want search", out[0].OfTool.Name)
	}
}

func TestConvertHistorySkipsEmptyMessages(t *testing.T) {
	history := jaato.History{
		{Role: jaato.RoleUser, Parts: nil},
		{Role: jaato.RoleUser, Parts: []jaato.Part{jaato.NewTextPart("hi")}},
		{Role: jaato.RoleModel, Parts: []jaato.Part{jaato.NewTextPart("hello")}},
	}
	out, err := convertHistory(history)
	if err != nil {
		t.Fatalf("convertHistory() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (empty message skipped)", len(out))
	}
}

func TestConvertHistoryFunctionResponseMarshalsNonStringResult(t *testing.T) {
	history := jaato.History{
		{Role: jaato.RoleUser, Parts: []jaato.Part{
			jaato.NewFunctionResponsePart(jaato.ToolResult{
				CallID: "call-1",
				Name:   "lookup",
				Result: map[string]any{"ok": true},
			}),
		}},
	}
	if _, err := convertHistory(history); err != nil {
		t.Fatalf("convertHistory() error = %v", err)
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]jaato.FinishReason{
		"end_turn":      jaato.FinishStop,
		"stop_sequence": jaato.FinishStop,
		"max_tokens":    jaato.FinishMaxTokens,
		"tool_use":      jaato.FinishToolUse,
		"weird":         jaato.FinishUnknown,
	}
	for reason, want := range cases {
		if got := mapStopReason(reason); got != want {
			t.Errorf("mapStopReason(%q) = %v, want %v", reason, got, want)
		}
	}
}

func TestImageMediaType(t *testing.T) {
	if _, ok := imageMediaType("image/png"); !ok {
		t.Error("expected image/png to be supported")
	}
	if _, ok := imageMediaType("application/pdf"); ok {
		t.Error("expected application/pdf to be unsupported")
	}
}
