// Package permission implements the Permission Engine (spec §4.D): an
// ordered policy evaluator gating every tool call, pluggable interaction
// channels for the "ask" default, and coalescing of concurrent prompts
// for the same (tool, args) pair. Grounded on internal/agent/approval.go
// (ApprovalChecker.Check's ordered policy table, re-ordered here to match
// spec §4.D's exact precedence: auto-approved, session rule, blacklist,
// whitelist, default, ask) and internal/tools/policy (NormalizeTool,
// pattern matching), supplemented from
// _examples/original_source/shared/plugins/clarification/channels.py
// (ConsoleChannel's terminal-prompt shape) for coalescing concurrent
// requests onto one channel round-trip.
package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/jaatoai/jaato/internal/jaato"
)

// Action is the interaction channel's answer to one permission prompt.
type Action string

const (
	ActionYes    Action = "yes"
	ActionNo     Action = "no"
	ActionAlways Action = "always"
	ActionNever  Action = "never"
	ActionOnce   Action = "once"
)

// Request is what an interaction Channel is asked to resolve, matching
// the webhook/file wire format spec §6 fixes:
// {request_id, timestamp, tool, args, context?}.
type Request struct {
	RequestID  string          `json:"request_id"`
	Timestamp  string          `json:"timestamp"`
	ToolName   string          `json:"tool"`
	Args       json.RawMessage `json:"args"`
	ArgsDigest string          `json:"-"`
	Context    string          `json:"context,omitempty"`
}

// DefaultPolicy is the fallback decision when no explicit rule matches
// (spec §4.D step 5-6).
type DefaultPolicy string

const (
	PolicyAllow DefaultPolicy = "allow"
	PolicyDeny  DefaultPolicy = "deny"
	PolicyAsk   DefaultPolicy = "ask"
)

// Config is the Engine's policy table. Patterns support the same
// wildcard shapes as internal/agent/approval.go's matchesPattern (exact,
// "prefix*", "*suffix", "*"), plus an optional "tool::arg-glob" form for
// tool+argument-pattern rules (spec §4.D step 3-4, "tool or tool+argument
// pattern").
type Config struct {
	AutoApproved  []string
	Blacklist     []string
	Whitelist     []string
	DefaultPolicy DefaultPolicy
}

// DefaultConfig returns spec §4.D's conservative default: nothing
// auto-approved, nothing listed, ask on everything.
func DefaultConfig() Config {
	return Config{DefaultPolicy: PolicyAsk}
}

// ArgsDigest returns the stable digest of a tool call's arguments, used to
// coalesce concurrent identical prompts (spec §4.D "Concurrency") and
// recorded in each Decision. Session rules are keyed by tool name, not by
// this digest. Grounded on
// internal/audit/logger.go's hashString (SHA-256, first 16 hex chars).
func ArgsDigest(args json.RawMessage) string {
	h := sha256.Sum256(args)
	return hex.EncodeToString(h[:])[:16]
}

func newDecision(outcome jaato.DecisionOutcome, method jaato.DecisionMethod, reason, toolName, digest string, scope jaato.DecisionScope) jaato.Decision {
	return jaato.Decision{
		Outcome:    outcome,
		Reason:     reason,
		Method:     method,
		Scope:      scope,
		ToolName:   toolName,
		ArgsDigest: digest,
	}
}
