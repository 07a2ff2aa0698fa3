package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaatoai/jaato/internal/jaato"
)

// Channel presents a permission request to a human (or any other
// decision-maker) and returns one of the five actions spec §4.D names.
// Console, Webhook, and File implementations live in
// internal/permission/channel/*.
type Channel interface {
	Ask(ctx context.Context, req Request) (Action, error)
}

// Engine evaluates every tool call against the ordered policy spec §4.D
// defines, consulting a Channel only when the policy falls through to
// "ask". It is safe for concurrent use.
type Engine struct {
	policyMu sync.RWMutex
	policy   Config
	channel  Channel

	mu           sync.RWMutex
	sessionRules map[string]jaato.DecisionOutcome

	promptMu sync.Mutex // serializes prompts per session (spec §4.D "Concurrency")

	inFlightMu sync.Mutex
	inFlight   map[string]*inFlightPrompt
}

type inFlightPrompt struct {
	done   chan struct{}
	action Action
	err    error
}

// New builds an Engine. channel may be nil if the policy never falls
// through to "ask" (DefaultPolicy allow/deny and a closed allow/deny
// list), in which case a prompt attempt returns an error.
func New(policy Config, channel Channel) *Engine {
	return &Engine{
		policy:       policy,
		channel:      channel,
		sessionRules: make(map[string]jaato.DecisionOutcome),
		inFlight:     make(map[string]*inFlightPrompt),
	}
}

// Check evaluates one tool call against the policy table, in the exact
// order spec §4.D fixes: auto-approved, session rule, blacklist,
// whitelist, default allow/deny, then ask.
func (e *Engine) Check(ctx context.Context, toolName string, args json.RawMessage) (jaato.Decision, error) {
	digest := ArgsDigest(args)

	e.policyMu.RLock()
	policy := e.policy
	e.policyMu.RUnlock()

	if matchesTool(policy.AutoApproved, toolName) {
		return newDecision(jaato.DecisionAllowed, jaato.MethodAutoApproved, "tool is auto-approved", toolName, digest, ""), nil
	}

	if outcome, ok := e.sessionRule(toolName); ok {
		reason := "session rule: always allow"
		if outcome == jaato.DecisionDenied {
			reason = "session rule: never allow"
		}
		return newDecision(outcome, jaato.MethodSessionRule, reason, toolName, digest, jaato.ScopeSession), nil
	}

	if matchesToolOrArgs(policy.Blacklist, toolName, args) {
		return newDecision(jaato.DecisionDenied, jaato.MethodBlacklist, "tool matches blacklist", toolName, digest, ""), nil
	}

	if matchesToolOrArgs(policy.Whitelist, toolName, args) {
		return newDecision(jaato.DecisionAllowed, jaato.MethodWhitelist, "tool matches whitelist", toolName, digest, ""), nil
	}

	switch policy.DefaultPolicy {
	case PolicyAllow:
		return newDecision(jaato.DecisionAllowed, jaato.MethodDefault, "default policy is allow", toolName, digest, ""), nil
	case PolicyDeny:
		return newDecision(jaato.DecisionDenied, jaato.MethodDefault, "default policy is deny", toolName, digest, ""), nil
	default: // PolicyAsk
		return e.ask(ctx, toolName, args, digest)
	}
}

// MergeAutoApproved folds additional tool names into the policy's
// auto-approved set, deduplicating against what is already there. Used
// by internal/runtime.Runtime.OpenSession to fold in the union of every
// exposed plugin's AutoApprovedTools() (spec §4.E/§4.F: a plugin's
// declared auto-approved tools contribute to the auto-approved set while
// the plugin is exposed).
func (e *Engine) MergeAutoApproved(tools []string) {
	if len(tools) == 0 {
		return
	}

	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	seen := make(map[string]struct{}, len(e.policy.AutoApproved))
	for _, t := range e.policy.AutoApproved {
		seen[t] = struct{}{}
	}
	for _, t := range tools {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		e.policy.AutoApproved = append(e.policy.AutoApproved, t)
	}
}

func (e *Engine) sessionRule(toolName string) (jaato.DecisionOutcome, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	outcome, ok := e.sessionRules[normalizeTool(toolName)]
	return outcome, ok
}

func (e *Engine) installSessionRule(toolName string, outcome jaato.DecisionOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionRules[normalizeTool(toolName)] = outcome
}

// ask consults the Channel, coalescing concurrent requests for the same
// (tool, args_digest) onto a single round-trip (spec §4.D "Concurrency"):
// the first caller performs the prompt; later callers with an identical
// digest wait for, and share, its answer. Once a result is in hand,
// prompts against the Channel itself are still serialized per Engine via
// promptMu, so distinct simultaneous tool calls never interleave on the
// same terminal/webhook/file channel.
func (e *Engine) ask(ctx context.Context, toolName string, args json.RawMessage, digest string) (jaato.Decision, error) {
	if e.channel == nil {
		return jaato.Decision{}, fmt.Errorf("permission: default policy is ask but no interaction channel is configured")
	}

	key := normalizeTool(toolName) + ":" + digest

	e.inFlightMu.Lock()
	if existing, ok := e.inFlight[key]; ok {
		e.inFlightMu.Unlock()
		select {
		case <-existing.done:
			return e.resolveAction(existing.action, existing.err, toolName, digest)
		case <-ctx.Done():
			return jaato.Decision{}, ctx.Err()
		}
	}
	self := &inFlightPrompt{done: make(chan struct{})}
	e.inFlight[key] = self
	e.inFlightMu.Unlock()

	e.promptMu.Lock()
	action, err := e.channel.Ask(ctx, Request{
		RequestID:  uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ToolName:   toolName,
		Args:       args,
		ArgsDigest: digest,
	})
	e.promptMu.Unlock()

	self.action, self.err = action, err
	close(self.done)

	e.inFlightMu.Lock()
	delete(e.inFlight, key)
	e.inFlightMu.Unlock()

	return e.resolveAction(action, err, toolName, digest)
}

func (e *Engine) resolveAction(action Action, err error, toolName, digest string) (jaato.Decision, error) {
	if err != nil {
		return jaato.Decision{}, err
	}
	switch action {
	case ActionAlways:
		e.installSessionRule(toolName, jaato.DecisionAllowed)
		return newDecision(jaato.DecisionAllowed, jaato.MethodUserAlways, "user chose always", toolName, digest, jaato.ScopeSession), nil
	case ActionNever:
		e.installSessionRule(toolName, jaato.DecisionDenied)
		return newDecision(jaato.DecisionDenied, jaato.MethodUserNever, "user chose never", toolName, digest, jaato.ScopeSession), nil
	case ActionYes, ActionOnce:
		return newDecision(jaato.DecisionAllowed, jaato.MethodUserOnce, "user allowed once", toolName, digest, jaato.ScopeOnce), nil
	case ActionNo:
		return newDecision(jaato.DecisionDenied, jaato.MethodUserOnce, "user denied once", toolName, digest, jaato.ScopeOnce), nil
	default:
		return jaato.Decision{}, fmt.Errorf("permission: channel returned unrecognized action %q", action)
	}
}
