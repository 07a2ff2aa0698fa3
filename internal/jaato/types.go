// Package jaato defines the provider-agnostic value types shared by every
// subsystem of the runtime: the Provider Abstraction, the Plugin Registry,
// the Orchestrator, and the Permission Engine. Nothing in this package
// depends on a concrete AI SDK or a concrete plugin; it is the lingua
// franca the rest of the module converts to and from.
package jaato

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message. The internal Role is a stable
// abstraction: model-authored function calls and tool-result parts both
// travel via MODEL or USER depending on the concrete provider's own
// convention, but callers of this package never see that variance.
type Role string

const (
	RoleUser  Role = "USER"
	RoleModel Role = "MODEL"
	RoleTool  Role = "TOOL"
)

// PartKind identifies which variant of Part is populated.
type PartKind string

const (
	PartText             PartKind = "text"
	PartFunctionCall     PartKind = "function_call"
	PartFunctionResponse PartKind = "function_response"
	PartInlineData       PartKind = "inline_data"
)

// InlineData is raw binary content embedded directly in a Part.
type InlineData struct {
	MimeType string `json:"mime_type"`
	Bytes    []byte `json:"bytes"`
}

// Part is a tagged union: exactly one of Text, FunctionCall,
// FunctionResponse, or InlineData is populated, selected by Kind. An empty
// Text is a valid, distinct-from-absent value (Kind == PartText, Text ==
// "").
//
// Construct a Part with one of the NewXPart helpers rather than setting
// fields directly; they guarantee the invariant.
type Part struct {
	Kind             PartKind    `json:"kind"`
	Text             string      `json:"text,omitempty"`
	FunctionCall     *FunctionCall `json:"function_call,omitempty"`
	FunctionResponse *ToolResult `json:"function_response,omitempty"`
	InlineData       *InlineData `json:"inline_data,omitempty"`
}

// NewTextPart builds a text Part. An empty string is permitted.
func NewTextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// NewFunctionCallPart builds a Part wrapping a model-emitted tool request.
func NewFunctionCallPart(call FunctionCall) Part {
	return Part{Kind: PartFunctionCall, FunctionCall: &call}
}

// NewFunctionResponsePart builds a Part wrapping a tool's result.
func NewFunctionResponsePart(result ToolResult) Part {
	return Part{Kind: PartFunctionResponse, FunctionResponse: &result}
}

// NewInlineDataPart builds a Part wrapping a raw binary attachment.
func NewInlineDataPart(mimeType string, bytes []byte) Part {
	return Part{Kind: PartInlineData, InlineData: &InlineData{MimeType: mimeType, Bytes: bytes}}
}

// Valid reports whether exactly one variant of the union is populated for
// the Part's declared Kind. Text is exempt (the zero value is a valid
// empty string), so Valid only checks that the pointer fields agree with
// Kind.
func (p Part) Valid() bool {
	switch p.Kind {
	case PartText:
		return p.FunctionCall == nil && p.FunctionResponse == nil && p.InlineData == nil
	case PartFunctionCall:
		return p.FunctionCall != nil && p.FunctionResponse == nil && p.InlineData == nil
	case PartFunctionResponse:
		return p.FunctionResponse != nil && p.FunctionCall == nil && p.InlineData == nil
	case PartInlineData:
		return p.InlineData != nil && p.FunctionCall == nil && p.FunctionResponse == nil
	default:
		return false
	}
}

// FunctionCall is a model-emitted request to invoke a named tool with
// structured arguments. ID is runtime-generated (see NewFunctionCallID)
// so a call can be correlated with its result even when the backing SDK
// does not itself carry call identifiers.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Attachment embeds a binary payload in a ToolResult for multimodal
// round-trips back to the model.
type Attachment struct {
	MimeType    string `json:"mime_type"`
	Data        []byte `json:"data"`
	DisplayName string `json:"display_name,omitempty"`
}

// ToolResult is the outcome of one executed FunctionCall.
type ToolResult struct {
	CallID      string         `json:"call_id"`
	Name        string         `json:"name"`
	Result      any            `json:"result"`
	IsError     bool           `json:"is_error"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Permission  *PermissionInfo `json:"_permission,omitempty"`
}

// PermissionInfo is the gating outcome attached to every ToolResult whose
// call reached a permission decision, per spec §4.D, so the model (and
// later a human reviewer) can see why a call was allowed or denied. The
// results the Orchestrator builds for an unknown tool or for a failed
// permission check carry no PermissionInfo.
type PermissionInfo struct {
	Decision DecisionOutcome `json:"decision"`
	Reason   string          `json:"reason,omitempty"`
	Method   DecisionMethod  `json:"method"`
}

// Message is one turn's worth of content from a single Role.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates all text parts of the message, in order. It is a
// convenience derived view, not a stored field.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// FunctionCalls collects every function-call part in the message, in
// order.
func (m Message) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range m.Parts {
		if p.Kind == PartFunctionCall && p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}

// ToolSchema describes one tool a plugin exposes to the model. Names must
// be globally unique within an exposed set; the Plugin Registry enforces
// this at expose time (see internal/plugin).
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// FinishReason classifies why the model stopped generating.
type FinishReason string

const (
	FinishStop       FinishReason = "STOP"
	FinishMaxTokens  FinishReason = "MAX_TOKENS"
	FinishToolUse    FinishReason = "TOOL_USE"
	FinishSafety     FinishReason = "SAFETY"
	FinishError      FinishReason = "ERROR"
	FinishUnknown    FinishReason = "UNKNOWN"
)

// ProviderResponse is one model turn's worth of output.
type ProviderResponse struct {
	Text              string         `json:"text,omitempty"`
	FunctionCalls     []FunctionCall `json:"function_calls"`
	Usage             TokenUsage     `json:"usage"`
	FinishReason      FinishReason   `json:"finish_reason"`
	StructuredOutput  any            `json:"structured_output,omitempty"`
	Raw               any            `json:"-"`
}

// TokenUsage is the token accounting for a single provider call.
type TokenUsage struct {
	Prompt int `json:"prompt"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// FunctionCallTiming records how long one tool execution took within a
// turn.
type FunctionCallTiming struct {
	Name            string  `json:"name"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// TurnAccounting is the per-turn ledger row spec §3 requires: one row per
// user-prompt-to-final-answer cycle, closed by the Orchestrator's
// FINALIZE step.
type TurnAccounting struct {
	Prompt          int                   `json:"prompt"`
	Output          int                   `json:"output"`
	Total           int                   `json:"total"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	DurationSeconds float64               `json:"duration_seconds"`
	FunctionCalls   []FunctionCallTiming  `json:"function_calls,omitempty"`
	Cancelled       bool                  `json:"cancelled,omitempty"`
}

// DecisionOutcome is the result of a permission evaluation.
type DecisionOutcome string

const (
	DecisionAllowed DecisionOutcome = "ALLOWED"
	DecisionDenied  DecisionOutcome = "DENIED"
)

// DecisionMethod records which rule in the policy order produced a
// Decision (spec §4.D).
type DecisionMethod string

const (
	MethodWhitelist    DecisionMethod = "WHITELIST"
	MethodBlacklist    DecisionMethod = "BLACKLIST"
	MethodSessionRule  DecisionMethod = "SESSION_RULE"
	MethodUserOnce     DecisionMethod = "USER_ONCE"
	MethodUserAlways   DecisionMethod = "USER_ALWAYS"
	MethodUserNever    DecisionMethod = "USER_NEVER"
	MethodAutoApproved DecisionMethod = "AUTO_APPROVED"
	MethodDefault      DecisionMethod = "DEFAULT"
	// MethodTimeout marks a Decision the Orchestrator synthesized because
	// the interaction channel did not answer an "ask" prompt before its
	// context deadline (spec §4.G Failure semantics: "Permission channel
	// timeout → treat as DENIED with reason=timeout").
	MethodTimeout DecisionMethod = "TIMEOUT"
)

// Decision is the full outcome of one permission.ask call.
type Decision struct {
	Outcome    DecisionOutcome `json:"decision"`
	Reason     string          `json:"reason"`
	Method     DecisionMethod  `json:"method"`
	Scope      DecisionScope   `json:"scope,omitempty"`
	ToolName   string          `json:"tool_name"`
	ArgsDigest string          `json:"args_digest"`
}

// DecisionScope records whether a Decision installed a session rule.
type DecisionScope string

const (
	ScopeOnce    DecisionScope = "ONCE"
	ScopeSession DecisionScope = "SESSION"
)
