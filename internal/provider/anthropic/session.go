package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/provider"
)

// session is the Anthropic implementation of provider.Session. It owns the
// running message history in both jaato and Anthropic-native form so each
// call only needs to append, never reconvert from scratch.
type session struct {
	client *anthropicsdk.Client
	model  string
	system string
	tools  []anthropicsdk.ToolUnionParam

	history jaato.History
	msgs    []anthropicsdk.MessageParam
	usage   jaato.TokenUsage
}

func (s *session) SendMessage(ctx context.Context, text string, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	return s.SendMessageWithParts(ctx, []jaato.Part{jaato.NewTextPart(text)}, responseSchema)
}

func (s *session) SendMessageWithParts(ctx context.Context, parts []jaato.Part, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	blocks, err := convertParts(parts)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert message: %w", err)
	}
	s.msgs = append(s.msgs, anthropicsdk.NewUserMessage(blocks...))
	s.history = append(s.history, userMsg)

	return s.send(ctx)
}

func (s *session) SendToolResults(ctx context.Context, results []jaato.ToolResult, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	var parts []jaato.Part
	for _, r := range results {
		parts = append(parts, jaato.NewFunctionResponsePart(r))
	}
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	blocks, err := convertParts(parts)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert tool results: %w", err)
	}
	s.msgs = append(s.msgs, anthropicsdk.NewUserMessage(blocks...))
	s.history = append(s.history, userMsg)

	return s.send(ctx)
}

// send issues one non-streaming Messages.New call with the session's
// accumulated history, grounded on AnthropicProvider.createStream's params
// construction (model/messages/max_tokens/system/tools) but without
// streaming, since the Orchestrator consumes one complete ProviderResponse
// per turn (spec §4.G) rather than incremental chunks.
func (s *session) send(ctx context.Context) (*jaato.ProviderResponse, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(s.model),
		Messages:  s.msgs,
		MaxTokens: defaultMaxTokens,
	}
	if s.system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: s.system}}
	}
	if len(s.tools) > 0 {
		params.Tools = s.tools
	}

	msg, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}

	resp := convertResponse(msg)
	s.usage = resp.Usage

	var modelParts []jaato.Part
	if resp.Text != "" {
		modelParts = append(modelParts, jaato.NewTextPart(resp.Text))
	}
	for _, fc := range resp.FunctionCalls {
		modelParts = append(modelParts, jaato.NewFunctionCallPart(fc))
	}
	s.history = append(s.history, jaato.Message{Role: jaato.RoleModel, Parts: modelParts})
	s.msgs = append(s.msgs, anthropicsdk.NewAssistantMessage(toAssistantBlocks(resp)...))

	return resp, nil
}

func toAssistantBlocks(resp *jaato.ProviderResponse) []anthropicsdk.ContentBlockParamUnion {
	var blocks []anthropicsdk.ContentBlockParamUnion
	if resp.Text != "" {
		blocks = append(blocks, anthropicsdk.NewTextBlock(resp.Text))
	}
	for _, fc := range resp.FunctionCalls {
		blocks = append(blocks, anthropicsdk.NewToolUseBlock(fc.ID, fc.Args, fc.Name))
	}
	return blocks
}

// CountTokens estimates token count with the same ~4-characters-per-token
// heuristic as AnthropicProvider.CountTokens; precise counts require the
// Anthropic count_tokens endpoint, which is not wired here since the spec's
// Token Ledger only needs an estimate to decide when to warn, not to bill.
func (s *session) CountTokens(ctx context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

func (s *session) TokenUsage() jaato.TokenUsage { return s.usage }

func (s *session) History() jaato.History { return s.history }

var _ provider.Session = (*session)(nil)

// wrapError classifies a raw anthropic-sdk-go error into the shared
// provider error taxonomy, grounded on AnthropicProvider.wrapError and
// isRetryableError: an *anthropicsdk.Error carries a StatusCode the shared
// ClassifyStatusCode can use directly; anything else falls back to the
// string-matching Classify.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		class := provider.ClassifyStatusCode(apiErr.StatusCode)
		if class == provider.ClassPermanent {
			return &provider.PermanentError{Detail: "anthropic request rejected", Cause: err}
		}
		return &provider.TransientError{Class: class, Cause: err, Status: apiErr.StatusCode}
	}

	class := provider.Classify(err)
	if class == provider.ClassPermanent {
		return &provider.PermanentError{Detail: "anthropic request failed", Cause: err}
	}
	return &provider.TransientError{Class: class, Cause: err}
}
