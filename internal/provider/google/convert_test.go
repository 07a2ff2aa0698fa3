package google

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/jaatoai/jaato/internal/jaato"
)

func TestConvertToolsBundlesOneToolWithManyDeclarations(t *testing.T) {
	schemas := []jaato.ToolSchema{
		{Name: "a", Description: "a", Parameters: json.RawMessage(`{"type":"object"}`)},
		{Name: "b", Description: "b", Parameters: json.RawMessage(`{"type":"object"}`)},
	}
	out := convertTools(schemas)
	if len(out) != 1 {
		t.Fatalf("expected one genai.Tool bundling all declarations, got %d", len(out))
	}
	if len(out[0].FunctionDeclarations) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(out[0].FunctionDeclarations))
	}
}

func TestConvertToolsEmpty(t *testing.T) {
	if out := convertTools(nil); out != nil {
		t.Errorf("convertTools(nil) = %v, want nil", out)
	}
}

func TestConvertHistoryDropsEmptyMessages(t *testing.T) {
	h := jaato.History{
		{Role: jaato.RoleUser, Parts: nil},
		{Role: jaato.RoleUser, Parts: []jaato.Part{jaato.NewTextPart("hi")}},
		{Role: jaato.RoleModel, Parts: []jaato.Part{jaato.NewTextPart("hello")}},
	}
	out, err := convertHistory(h)
	if err != nil {
		t.Fatalf("convertHistory() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Role != genai.RoleUser || out[1].Role != genai.RoleModel {
		t.Errorf("unexpected roles: %+v, %+v", out[0].Role, out[1].Role)
	}
}

func TestToolResultAsMapPassesThroughMap(t *testing.T) {
	tr := jaato.ToolResult{Result: map[string]any{"k": "v"}}
	m, err := toolResultAsMap(tr)
	if err != nil {
		t.Fatalf("toolResultAsMap() error = %v", err)
	}
	if m["k"] != "v" {
		t.Errorf("m = %+v", m)
	}
}

func TestToolResultAsMapWrapsNonMap(t *testing.T) {
	tr := jaato.ToolResult{Result: "plain text", IsError: true}
	m, err := toolResultAsMap(tr)
	if err != nil {
		t.Fatalf("toolResultAsMap() error = %v", err)
	}
	if m["result"] != "plain text" || m["error"] != true {
		t.Errorf("m = %+v", m)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[genai.FinishReason]jaato.FinishReason{
		genai.FinishReasonStop:      jaato.FinishStop,
		genai.FinishReasonMaxTokens: jaato.FinishMaxTokens,
		genai.FinishReasonSafety:    jaato.FinishSafety,
	}
	for reason, want := range cases {
		if got := mapFinishReason(reason); got != want {
			t.Errorf("mapFinishReason(%q) = %v, want %v", reason, got, want)
		}
	}
}
