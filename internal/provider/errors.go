package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Configuration errors (spec §7.1) — fatal, surfaced immediately from
// Initialize. Each carries Remediation() text a caller can print
// directly; this mirrors the actionable-remediation requirement in spec
// §4.B.

// CredentialsNotFoundError means no usable credential material was
// supplied for the requested auth Method.
type CredentialsNotFoundError struct {
	Method AuthMethod
	Detail string
}

func (e *CredentialsNotFoundError) Error() string {
	return fmt.Sprintf("credentials not found for method %q: %s", e.Method, e.Detail)
}

func (e *CredentialsNotFoundError) Remediation() string {
	return "Provide valid credentials for method " + string(e.Method) +
		" (api key, service account file path, or application-default credentials)."
}

// CredentialsInvalidError means credential material was present but
// rejected by the provider (malformed key, expired token, unknown auth
// method).
type CredentialsInvalidError struct {
	Detail string
	Cause  error
}

func (e *CredentialsInvalidError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("credentials invalid: %s: %v", e.Detail, e.Cause)
	}
	return "credentials invalid: " + e.Detail
}

func (e *CredentialsInvalidError) Unwrap() error { return e.Cause }

func (e *CredentialsInvalidError) Remediation() string {
	return "Regenerate or re-export the credential; verify it has not expired or been revoked."
}

// CredentialsPermissionDeniedError means the credential was valid but
// lacks the scopes/roles the provider requires.
type CredentialsPermissionDeniedError struct {
	Detail string
	Cause  error
}

func (e *CredentialsPermissionDeniedError) Error() string {
	return "credentials permission denied: " + e.Detail
}

func (e *CredentialsPermissionDeniedError) Unwrap() error { return e.Cause }

func (e *CredentialsPermissionDeniedError) Remediation() string {
	return "Grant the credential's principal the role/scope this provider requires, then retry."
}

// ProjectMisconfiguredError means a cloud-project/location pair required
// by the auth Method was missing or invalid.
type ProjectMisconfiguredError struct {
	Detail string
}

func (e *ProjectMisconfiguredError) Error() string {
	return "project misconfigured: " + e.Detail
}

func (e *ProjectMisconfiguredError) Remediation() string {
	return "Set a valid project and location for this provider's cloud backend."
}

// ImpersonationFailedError means service-account impersonation could not
// be established (missing target, source credential rejected, or the
// assume-role/impersonate call itself failed).
type ImpersonationFailedError struct {
	Detail string
	Cause  error
}

func (e *ImpersonationFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("impersonation failed: %s: %v", e.Detail, e.Cause)
	}
	return "impersonation failed: " + e.Detail
}

func (e *ImpersonationFailedError) Unwrap() error { return e.Cause }

func (e *ImpersonationFailedError) Remediation() string {
	return "Verify the source credential may impersonate the target service account " +
		"(grant it the Token Creator role or equivalent), then retry."
}

// ConfigError is implemented by every configuration error above; the
// Orchestrator/Runtime use it to print a multi-line remediation message
// (spec §7, "User-visible behavior").
type ConfigError interface {
	error
	Remediation() string
}

// Transient and permanent provider errors (spec §4.B, §7.2-3).

// Classification categorizes a provider failure for the Token Ledger's
// retry policy.
type Classification string

const (
	ClassRateLimit Classification = "rate_limit"
	ClassInfra     Classification = "infra"
	ClassPermanent Classification = "permanent"
)

// TransientError wraps a provider failure the Ledger should retry with
// backoff: rate-limit, service-unavailable, deadline-exceeded, aborted,
// internal.
type TransientError struct {
	Class  Classification
	Cause  error
	Status int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error [%s]: %v", e.Class, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// TransientExhaustedError is raised once the Ledger's retry budget is
// spent; it is the only form in which a transient failure ever leaves
// send_message (spec §4.G Failure semantics).
type TransientExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *TransientExhaustedError) Error() string {
	return fmt.Sprintf("transient_exhausted: gave up after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *TransientExhaustedError) Unwrap() error { return e.LastErr }

// PermanentError wraps a provider failure the Ledger must not retry:
// invalid schema, malformed message, unsupported operation.
type PermanentError struct {
	Detail string
	Cause  error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permanent provider error: %s: %v", e.Detail, e.Cause)
	}
	return "permanent provider error: " + e.Detail
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// SSLError is reported with a one-shot guidance message and never
// retried (spec §4.C, §7.6).
type SSLError struct {
	Cause error
}

func (e *SSLError) Error() string {
	return "TLS/certificate error talking to provider: " + e.Cause.Error() +
		"; verify system CA trust store and clock, then retry manually"
}

func (e *SSLError) Unwrap() error { return e.Cause }

// Classify inspects a raw error from an SDK call and returns the
// Classification the Ledger should act on, mirroring the string-matching
// classifier in internal/agent/providers/errors.go (ClassifyError)
// adapted from FailoverReason to spec §4.C's rate_limit/infra/permanent
// taxonomy.
func Classify(err error) Classification {
	if err == nil {
		return ClassPermanent
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return transient.Class
	}
	var ssl *SSLError
	if errors.As(err, &ssl) {
		return ClassPermanent
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "rate_limit"),
		strings.Contains(errStr, "too many requests"), strings.Contains(errStr, "429"):
		return ClassRateLimit
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "unavailable"), strings.Contains(errStr, "aborted"),
		strings.Contains(errStr, "internal error"), strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "503"), strings.Contains(errStr, "500"):
		return ClassInfra
	default:
		return ClassPermanent
	}
}

// ClassifyStatusCode maps an HTTP status code from an SDK response to a
// Classification, used by concrete providers building a TransientError.
func ClassifyStatusCode(status int) Classification {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRateLimit
	case status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout,
		status == http.StatusInternalServerError, status == http.StatusBadGateway:
		return ClassInfra
	default:
		return ClassPermanent
	}
}

// IsRetryable reports whether the Ledger should retry err.
func IsRetryable(err error) bool {
	c := Classify(err)
	return c == ClassRateLimit || c == ClassInfra
}

// ClassifyConnectivityError turns a raw error from Initialize's
// lightweight connectivity probe (spec §4.B: "fail fast on bad
// credentials") into one of the ConfigError types Initialize is
// documented to return. statusCode is the HTTP status the calling
// provider's SDK surfaced, or 0 if none is available (e.g. google's SDK
// exposes no typed status, only an error string).
//
// A probe failure first goes through the same Classify/ClassifyStatusCode
// routing the Ledger uses for mid-conversation errors: a rate-limit or
// infra-class failure is not a credentials problem, so it is returned
// unwrapped as a *TransientError rather than misreported as invalid
// credentials. Everything else is an actual auth/config failure, refined
// by status code or message text into permission-denied, project
// misconfiguration, or generic invalid-credentials — mirroring
// _examples/original_source/shared/plugins/model_provider/google_genai/
// provider.py's _verify_connectivity classifying its connectivity probe's
// error string into CredentialsPermissionError/CredentialsInvalidError/
// ProjectConfigurationError.
func ClassifyConnectivityError(err error, statusCode int) error {
	if err == nil {
		return nil
	}

	class := ClassifyStatusCode(statusCode)
	if statusCode == 0 {
		class = Classify(err)
	}
	if class == ClassRateLimit || class == ClassInfra {
		return &TransientError{Class: class, Cause: err, Status: statusCode}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case statusCode == http.StatusForbidden,
		strings.Contains(errStr, "permission"), strings.Contains(errStr, "forbidden"), strings.Contains(errStr, "access denied"):
		return &CredentialsPermissionDeniedError{Detail: err.Error(), Cause: err}
	case statusCode == http.StatusNotFound, strings.Contains(errStr, "not found"):
		return &ProjectMisconfiguredError{Detail: err.Error()}
	case statusCode == http.StatusUnauthorized, strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "invalid"):
		return &CredentialsInvalidError{Detail: "connectivity probe rejected", Cause: err}
	default:
		return &CredentialsInvalidError{Detail: "connectivity probe failed", Cause: err}
	}
}
