// Package webhook implements a permission.Channel that posts a
// permission request to an external HTTP endpoint and long-polls a
// status endpoint for the answer, grounded on
// cmd/nexus/api_client.go's apiClient (bearer-token http.Client with a
// request timeout, JSON request/response, non-2xx error wrapping) and
// internal/auth/jwt.go's JWT signing, reused here to sign each request
// body so the receiving endpoint can verify it came from this runtime.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jaatoai/jaato/internal/permission"
)

// Channel posts permission requests to baseURL+"/permissions" and polls
// baseURL+"/permissions/{request_id}" until a decision is posted back or
// ctx is canceled.
type Channel struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
	pollEvery  time.Duration
}

// Option configures a Channel.
type Option func(*Channel)

// WithHTTPClient overrides the default client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Channel) { ch.httpClient = c }
}

// WithPollInterval overrides the default 2s poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(ch *Channel) { ch.pollEvery = d }
}

// New builds a webhook Channel. secret signs the JWT carried in each
// request's Authorization header; baseURL is the webhook endpoint root.
func New(baseURL, secret string, opts ...Option) *Channel {
	ch := &Channel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     []byte(secret),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		pollEvery:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

type claims struct {
	RequestID string `json:"request_id"`
	jwt.RegisteredClaims
}

func (c *Channel) signToken(requestID string) (string, error) {
	if len(c.secret) == 0 {
		return "", nil
	}
	cl := claims{
		RequestID: requestID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	return token.SignedString(c.secret)
}

// pollResponse mirrors spec §6's permission response envelope
// ({request_id, decision, reason?}), plus a "resolved" flag this
// channel's polling protocol uses to distinguish "still waiting" from
// "answered".
type pollResponse struct {
	Resolved bool              `json:"resolved"`
	Decision permission.Action `json:"decision"`
}

// Ask implements permission.Channel: POST the request, then GET the
// status endpoint every pollEvery until resolved=true or ctx is done.
func (c *Channel) Ask(ctx context.Context, req permission.Request) (permission.Action, error) {
	if err := c.post(ctx, req); err != nil {
		return "", err
	}

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		resp, err := c.poll(ctx, req.RequestID)
		if err != nil {
			return "", err
		}
		if resp.Resolved {
			return resp.Decision, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Channel) post(ctx context.Context, req permission.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("webhook: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/permissions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token, tokErr := c.signToken(req.RequestID); tokErr == nil && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook: posting permission request: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp, "POST /permissions")
}

func (c *Channel) poll(ctx context.Context, requestID string) (pollResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/permissions/"+requestID, nil)
	if err != nil {
		return pollResponse{}, fmt.Errorf("webhook: building poll request: %w", err)
	}
	if token, tokErr := c.signToken(requestID); tokErr == nil && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pollResponse{}, fmt.Errorf("webhook: polling permission status: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "GET /permissions/{id}"); err != nil {
		return pollResponse{}, err
	}

	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pollResponse{}, fmt.Errorf("webhook: decoding poll response: %w", err)
	}
	return out, nil
}

func checkStatus(resp *http.Response, label string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("webhook: %s failed: %s (read body: %w)", label, resp.Status, readErr)
	}
	if len(body) > 0 {
		return fmt.Errorf("webhook: %s failed: %s (%s)", label, resp.Status, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("webhook: %s failed: %s", label, resp.Status)
}
