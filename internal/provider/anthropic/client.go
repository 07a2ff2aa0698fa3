// Package anthropic implements provider.Provider and provider.Session
// against the Anthropic Messages API, grounded on
// internal/agent/providers/anthropic.go's client construction, message/tool
// converters, and error classification.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jaatoai/jaato/internal/provider"
)

// defaultModel is used by Connect when the caller passes an empty model id.
const defaultModel = "claude-sonnet-4-20250514"

// defaultMaxTokens bounds a single turn's generation when the caller does
// not configure one explicitly.
const defaultMaxTokens = 4096

var knownModels = []string{
	"claude-opus-4-20250514",
	"claude-sonnet-4-20250514",
	"claude-3-5-sonnet-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Provider is the Anthropic implementation of provider.Provider.
type Provider struct {
	client *anthropicsdk.Client
	model  string
	cfg    provider.Config
}

// New constructs an uninitialized Provider; call Initialize before use.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "anthropic" }

// Initialize validates cfg and builds the underlying SDK client. Only
// AuthAPIKey is meaningful for Anthropic's own API; AuthADC/AuthImpersonation
// are rejected since the vendor client has no such concept (spec §6 notes
// the Config union is shared across providers, not every Method is valid
// for every one).
func (p *Provider) Initialize(ctx context.Context, cfg provider.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Method != provider.AuthAPIKey {
		return &provider.CredentialsInvalidError{
			Detail: fmt.Sprintf("anthropic provider does not support auth method %q", cfg.Method),
		}
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropicsdk.NewClient(opts...)

	p.client = &client
	p.cfg = cfg
	p.model = defaultModel

	return p.verifyConnectivity(ctx)
}

// verifyConnectivity issues one minimal, real Messages.New call (a single
// "ping" user turn capped at one output token) so Initialize fails fast on
// bad credentials instead of merely checking the static knownModels table,
// which makes no network call and can never fail. Grounded on the same
// Messages.New(ctx, MessageNewParams{Model, Messages, MaxTokens}) shape
// session.go's send already uses successfully.
func (p *Provider) verifyConnectivity(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock("ping"))},
		MaxTokens: 1,
	})
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
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
	tools, err := convertTools(opts.Tools)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
	}
	messages, err := convertHistory(opts.History)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert history: %w", err)
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
