// Package bedrock implements provider.Provider and provider.Session
// against AWS Bedrock's Converse API, grounded on
// internal/agent/providers/bedrock.go's client construction and
// message/tool converters, extended per the module's domain stack to
// cover the "impersonation" Config variant via
// aws-sdk-go-v2/credentials/stscreds role assumption.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/jaatoai/jaato/internal/provider"
)

const defaultRegion = "us-east-1"
const defaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
const defaultMaxTokens = 4096

var knownModels = []string{
	"anthropic.claude-3-opus-20240229-v1:0",
	"anthropic.claude-3-sonnet-20240229-v1:0",
	"anthropic.claude-3-haiku-20240307-v1:0",
	"amazon.titan-text-express-v1",
	"meta.llama3-70b-instruct-v1:0",
	"mistral.mixtral-8x7b-instruct-v0:1",
}

// Provider is the AWS Bedrock implementation of provider.Provider.
type Provider struct {
	client *bedrockruntime.Client
	model  string
}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "bedrock" }

// Initialize builds the underlying bedrockruntime client, grounded on
// NewBedrockProvider's config.LoadDefaultConfig call: AuthADC loads the
// ambient AWS credential chain (env vars, instance role, container
// credentials — "adc" reused for the AWS equivalent of Google's
// Application Default Credentials, per spec §6's Config union being
// shared across providers); AuthImpersonation wraps that ambient chain in
// stscreds.NewAssumeRoleProvider, assuming cfg.TargetServiceAccount as an
// IAM role ARN. AuthAPIKey/AuthServiceAccountFile have no AWS analogue and
// are rejected.
func (p *Provider) Initialize(ctx context.Context, cfg provider.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	region := cfg.Location
	if region == "" {
		region = defaultRegion
	}

	switch cfg.Method {
	case provider.AuthADC:
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			return &provider.CredentialsNotFoundError{Method: cfg.Method, Detail: err.Error()}
		}
		p.client = bedrockruntime.NewFromConfig(awsCfg)
	case provider.AuthImpersonation:
		baseCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			return &provider.CredentialsNotFoundError{Method: cfg.Method, Detail: err.Error()}
		}
		stsClient := sts.NewFromConfig(baseCfg)
		assumeRoleProvider := stscreds.NewAssumeRoleProvider(stsClient, cfg.TargetServiceAccount)
		assumedCfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithCredentialsProvider(aws.NewCredentialsCache(assumeRoleProvider)),
		)
		if err != nil {
			return &provider.ImpersonationFailedError{Detail: "failed to assume role " + cfg.TargetServiceAccount, Cause: err}
		}
		p.client = bedrockruntime.NewFromConfig(assumedCfg)
	default:
		return &provider.CredentialsInvalidError{
			Detail: fmt.Sprintf("bedrock provider does not support auth method %q; use adc or impersonation", cfg.Method),
		}
	}

	p.model = defaultModel
	return p.verifyConnectivity(ctx)
}

// verifyConnectivity issues one minimal, real Converse call (a single
// "ping" user turn capped at one output token) so Initialize fails fast on
// bad credentials instead of merely checking the static knownModels
// table, which makes no network call and can never fail. Grounded on the
// same Converse(ctx, ConverseInput{ModelId, Messages, InferenceConfig})
// shape session.go's send already uses successfully; the resulting
// smithy-go API error code is classified the same way session.go's
// wrapError does before being routed into the shared ConfigError
// taxonomy.
func (p *Provider) verifyConnectivity(ctx context.Context) error {
	_, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "ping"}},
		}},
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(1)},
	})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return &provider.TransientError{Class: provider.ClassRateLimit, Cause: err}
		case "ServiceUnavailableException", "ModelTimeoutException", "InternalServerException":
			return &provider.TransientError{Class: provider.ClassInfra, Cause: err}
		case "AccessDeniedException":
			return &provider.CredentialsPermissionDeniedError{Detail: err.Error(), Cause: err}
		case "ResourceNotFoundException":
			return &provider.ProjectMisconfiguredError{Detail: err.Error()}
		case "UnrecognizedClientException", "ValidationException":
			return &provider.CredentialsInvalidError{Detail: "connectivity probe rejected", Cause: err}
		}
	}
	return provider.ClassifyConnectivityError(err, 0)
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
	messages, err := convertHistory(opts.History)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to convert history: %w", err)
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
