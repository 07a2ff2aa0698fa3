// Package openai implements provider.Provider and provider.Session against
// the OpenAI Chat Completions API, grounded on
// internal/agent/providers/openai.go's client construction, message/tool
// converters, and retryable-error string matching.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/jaatoai/jaato/internal/provider"
)

const defaultModel = "gpt-4o"
const defaultMaxTokens = 4096

var knownModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
}

// Provider is the OpenAI implementation of provider.Provider.
type Provider struct {
	client *openaisdk.Client
	model  string
}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "openai" }

// Initialize validates cfg and builds the underlying SDK client. Only
// AuthAPIKey is meaningful for OpenAI's own API.
func (p *Provider) Initialize(ctx context.Context, cfg provider.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Method != provider.AuthAPIKey {
		return &provider.CredentialsInvalidError{
			Detail: fmt.Sprintf("openai provider does not support auth method %q", cfg.Method),
		}
	}

	clientCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	p.client = openaisdk.NewClientWithConfig(clientCfg)
	p.model = defaultModel

	return p.verifyConnectivity(ctx)
}

// verifyConnectivity issues one minimal, real CreateChatCompletion call (a
// single "ping" user turn capped at one output token) so Initialize fails
// fast on bad credentials instead of merely checking the static
// knownModels table, which makes no network call and can never fail.
// Grounded on the same CreateChatCompletion(ctx, ChatCompletionRequest{
// Model, Messages, MaxTokens}) shape session.go's send already uses
// successfully.
func (p *Provider) verifyConnectivity(ctx context.Context) error {
	_, err := p.client.CreateChatCompletion(ctx, openaisdk.ChatCompletionRequest{
		Model:     p.model,
		Messages:  []openaisdk.ChatCompletionMessage{{Role: openaisdk.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	return provider.ClassifyConnectivityError(err, status)
}

func (p *Provider) Connect(ctx context.Context, model string) error {
	if model == "" {
		return &provider.CredentialsInvalidError{Detail: "model id must not be empty"}
	}
	p.model = model
	return nil
}

func (p *Provider) SupportsStructuredOutput() bool { return false }

func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) ListModels(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" {
		return append([]string(nil), knownModels...), nil
	}
	var out []string
	for _, m := range knownModels {
		if len(m) >= len(prefix) && m[:len(prefix)] == prefix {
			out = append(out, m)
		}
	}
	return out, nil
}

func (p *Provider) GetContextLimit(model string) int {
	return provider.ContextLimit(model, nil)
}

func (p *Provider) CreateSession(ctx context.Context, opts provider.SessionOptions) (provider.Session, error) {
	tools := convertTools(opts.Tools)
	messages, err := convertHistory(opts.SystemInstruction, opts.History)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to convert history: %w", err)
	}
	return &session{
		client:  p.client,
		model:   p.model,
		system:  opts.SystemInstruction,
		tools:   tools,
		history: opts.History,
		msgs:    messages,
	}, nil
}

var _ provider.Provider = (*Provider)(nil)
