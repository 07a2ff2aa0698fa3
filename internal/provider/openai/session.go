package openai

import (
	"context"
	"encoding/json"
	"errors"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/provider"
)

type session struct {
	client *openaisdk.Client
	model  string
	system string
	tools  []openaisdk.Tool

	history jaato.History
	msgs    []openaisdk.ChatCompletionMessage
	usage   jaato.TokenUsage
}

func (s *session) SendMessage(ctx context.Context, text string, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	return s.SendMessageWithParts(ctx, []jaato.Part{jaato.NewTextPart(text)}, responseSchema)
}

func (s *session) SendMessageWithParts(ctx context.Context, parts []jaato.Part, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	converted, err := convertMessage(userMsg)
	if err != nil {
		return nil, err
	}
	s.msgs = append(s.msgs, converted...)
	s.history = append(s.history, userMsg)
	return s.send(ctx)
}

func (s *session) SendToolResults(ctx context.Context, results []jaato.ToolResult, responseSchema json.RawMessage) (*jaato.ProviderResponse, error) {
	var parts []jaato.Part
	for _, r := range results {
		parts = append(parts, jaato.NewFunctionResponsePart(r))
	}
	userMsg := jaato.Message{Role: jaato.RoleUser, Parts: parts}
	converted, err := convertMessage(userMsg)
	if err != nil {
		return nil, err
	}
	s.msgs = append(s.msgs, converted...)
	s.history = append(s.history, userMsg)
	return s.send(ctx)
}

// send issues one non-streaming CreateChatCompletion call with the
// session's accumulated message history, grounded on
// OpenAIProvider.Complete's request construction (model/messages/
// max_tokens/tools), but without the streaming path since the Orchestrator
// consumes one complete ProviderResponse per turn (spec §4.G).
func (s *session) send(ctx context.Context) (*jaato.ProviderResponse, error) {
	req := openaisdk.ChatCompletionRequest{
		Model:     s.model,
		Messages:  s.msgs,
		MaxTokens: defaultMaxTokens,
	}
	if len(s.tools) > 0 {
		req.Tools = s.tools
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	out := convertResponse(&resp)
	s.usage = out.Usage

	var modelParts []jaato.Part
	if out.Text != "" {
		modelParts = append(modelParts, jaato.NewTextPart(out.Text))
	}
	for _, fc := range out.FunctionCalls {
		modelParts = append(modelParts, jaato.NewFunctionCallPart(fc))
	}
	s.history = append(s.history, jaato.Message{Role: jaato.RoleModel, Parts: modelParts})
	assistantMsg, err := convertMessage(jaato.Message{Role: jaato.RoleModel, Parts: modelParts})
	if err == nil {
		s.msgs = append(s.msgs, assistantMsg...)
	}

	return out, nil
}

// CountTokens estimates token count with the same ~4-characters-per-token
// heuristic used across every concrete provider in this module; precise
// counts require a BPE tokenizer which is out of scope for the Ledger's
// estimate-only usage.
func (s *session) CountTokens(ctx context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

func (s *session) TokenUsage() jaato.TokenUsage { return s.usage }

func (s *session) History() jaato.History { return s.history }

var _ provider.Session = (*session)(nil)

// wrapError classifies a raw go-openai error into the shared provider
// error taxonomy, grounded on OpenAIProvider.isRetryableError's
// string-matching, routed onto the shared provider.Classify/
// ClassifyStatusCode instead of a bespoke "contains" helper.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) {
		class := provider.ClassifyStatusCode(apiErr.HTTPStatusCode)
		if class == provider.ClassPermanent {
			return &provider.PermanentError{Detail: "openai request rejected", Cause: err}
		}
		return &provider.TransientError{Class: class, Cause: err, Status: apiErr.HTTPStatusCode}
	}

	class := provider.Classify(err)
	if class == provider.ClassPermanent {
		return &provider.PermanentError{Detail: "openai request failed", Cause: err}
	}
	return &provider.TransientError{Class: class, Cause: err}
}
