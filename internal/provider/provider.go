// Package provider defines the abstract chat-session facade over a
// concrete AI SDK (spec §4.B). Concrete providers (internal/provider/
// anthropic, openai, google, bedrock) implement Provider and Session;
// the Orchestrator and everything above it depends only on this package,
// never on a vendor SDK type.
package provider

import (
	"context"
	"encoding/json"

	"github.com/jaatoai/jaato/internal/jaato"
)

// Provider establishes auth, owns a client handle, and mints Sessions.
// One Provider is constructed once per runtime (spec §4.H); Sessions are
// created per conversation.
type Provider interface {
	// Name identifies the provider, e.g. "anthropic", "openai", "google",
	// "bedrock".
	Name() string

	// Initialize establishes auth and a client handle from a discriminated
	// Config. It must fail fast with one of the typed errors in errors.go
	// and must not silently fall back to a different auth method. A
	// successful return means a lightweight connectivity probe succeeded:
	// the concrete providers send one minimal request, capped at one output
	// token, to their default model.
	Initialize(ctx context.Context, cfg Config) error

	// Connect sets the active model id. Idempotent: calling Connect twice
	// with the same model is a no-op beyond validation.
	Connect(ctx context.Context, model string) error

	// CreateSession opens a fresh chat context. Automatic tool execution by
	// the underlying SDK must be disabled by the implementation — tool
	// dispatch is owned by the Orchestrator, never by the provider.
	CreateSession(ctx context.Context, opts SessionOptions) (Session, error)

	// SupportsStructuredOutput reports whether send* calls honor a
	// response_schema.
	SupportsStructuredOutput() bool

	// SupportsTools reports whether CreateSession's Tools are usable by
	// this provider/model combination.
	SupportsTools() bool

	// ListModels returns known model ids, optionally filtered by prefix.
	// The concrete providers answer from a static table and make no
	// network call; Initialize does not call it.
	ListModels(ctx context.Context, prefix string) ([]string, error)

	// GetContextLimit returns the context window, in tokens, for model.
	// Implementations consult a static lookup table with prefix-match
	// fallback and a conservative default (see contextlimits.go).
	GetContextLimit(model string) int
}

// SessionOptions configures a freshly created Session.
type SessionOptions struct {
	SystemInstruction string
	Tools             []jaato.ToolSchema
	History           jaato.History
}

// Session is one live conversation against a Provider's connected model.
// A Session is not safe for concurrent use; the Orchestrator's
// per-session lock (internal/orchestrator, internal/runtime) is
// responsible for serializing calls into it (spec §5).
type Session interface {
	// SendMessage sends a user text turn and returns the model's next
	// response. If responseSchema is non-nil and SupportsStructuredOutput
	// is true, output is constrained to match it and ProviderResponse.
	// StructuredOutput is populated; a parse failure is silently ignored
	// (StructuredOutput stays nil) rather than erroring the turn.
	SendMessage(ctx context.Context, text string, responseSchema json.RawMessage) (*jaato.ProviderResponse, error)

	// SendMessageWithParts is the multimodal variant of SendMessage.
	SendMessageWithParts(ctx context.Context, parts []jaato.Part, responseSchema json.RawMessage) (*jaato.ProviderResponse, error)

	// SendToolResults posts one or more tool outputs back to the model in
	// a single turn and returns its next response.
	SendToolResults(ctx context.Context, results []jaato.ToolResult, responseSchema json.RawMessage) (*jaato.ProviderResponse, error)

	// CountTokens estimates the token count of text under the session's
	// connected model.
	CountTokens(ctx context.Context, text string) (int, error)

	// TokenUsage returns the usage of the most recent response.
	TokenUsage() jaato.TokenUsage

	// History returns the session's message history as it currently
	// stands, suitable for jaato.SerializeHistory.
	History() jaato.History
}
