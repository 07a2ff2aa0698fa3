package google

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/provider"
)

type session struct {
	client *genai.Client
	model  string
	system string
	tools  []*genai.Tool

	history  jaato.History
	contents []*genai.Content
	usage    jaato.TokenUsage
}

func (s *session) SendMessage(ctx context.Context, text string, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	return s.SendMessageWithParts(ctx, []jaato.Part{jaato.NewTextPart(text)}, responseSchema)
}

func (s *session) SendMessageWithParts(ctx context.Context, parts []jaato.Part, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	content, err := convertHistory(jaato.History{userMsg})
	if err != nil {
		return nil, err
	}
	s.contents = append(s.contents, content...)
	s.history = append(s.history, userMsg)
	return s.send(ctx)
}

func (s *session) SendToolResults(ctx context.Context, results []jaato.ToolResult, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	var parts []jaato.Part
	for _, r := range results {
		parts = append(parts, jaato.NewFunctionResponsePart(r))
	}
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	content, err := convertHistory(jaato.History{userMsg})
	if err != nil {
		return nil, err
	}
	s.contents = append(s.contents, content...)
	s.history = append(s.history, userMsg)
	return s.send(ctx)
}

// send issues one non-streaming GenerateContent call, grounded on
// GoogleProvider.buildConfig's config construction (system instruction,
// max tokens, tools) and client.Models.GenerateContentStream's non-stream
// sibling; the Orchestrator consumes one complete ProviderResponse per
// turn (spec §4.G) rather than a part-by-part stream.
func (s *session) send(ctx context.Context) (*jaato.ProviderResponse, error) {
	config := &genai.GenerateContentConfig{MaxOutputTokens: defaultMaxTokens}
	if s.system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: s.system}}}
	}
	if len(s.tools) > 0 {
		config.Tools = s.tools
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, s.contents, config)
	if err != nil {
		return nil, wrapError(err)
	}

	out := convertResponse(resp)
	s.usage = out.Usage

	var modelParts []jaato.Part
	if out.Text != "" {
		modelParts = append(modelParts, jaato.NewTextPart(out.Text))
	}
	for _, fc := range out.FunctionCalls {
		modelParts = append(modelParts, jaato.NewFunctionCallPart(fc))
	}
	modelMsg := jaato.Message{Role: jaato.RoleModel, Parts: modelParts}
	s.history = append(s.history, modelMsg)
	if converted, err := convertHistory(jaato.History{modelMsg}); err == nil {
		s.contents = append(s.contents, converted...)
	}

	return out, nil
}

// CountTokens estimates token count with the same ~4-characters-per-token
// heuristic used across every concrete provider in this module; Gemini's
// own CountTokens RPC would give an exact figure but is not wired here
// since the Token Ledger only needs an estimate (spec §4.C).
func (s *session) CountTokens(ctx context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

func (s *session) TokenUsage() jaato.TokenUsage { return s.usage }

func (s *session) History() jaato.History { return s.history }

var _ provider.Session = (*session)(nil)

// wrapError classifies a raw genai error into the shared provider error
// taxonomy, grounded on GoogleProvider.isRetryableError's string
// matching.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"), strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "quota"):
		return &provider.TransientError{Class: provider.ClassRateLimit, Cause: err}
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"):
		return &provider.TransientError{Class: provider.ClassInfra, Cause: err}
	default:
		return &provider.PermanentError{Detail: "google request failed", Cause: err}
	}
}
