package jaato

import "github.com/google/uuid"

// NewFunctionCallID mints a call id for a FunctionCall, used by provider
// adapters whose underlying SDK does not itself assign one (Gemini's
// function-calling protocol carries only a name and arguments). Callers
// correlate a later ToolResult back to its FunctionCall via this id.
func NewFunctionCallID() string {
	return "call_" + uuid.NewString()
}
