// Package jaato is the root of the Jaato runtime: an agentic
// orchestration framework mediating between an LLM provider and a set
// of tool plugins.
//
// The module is organized as a stack of small, independently testable
// packages, each owning one concern:
//
//   - internal/jaato: the provider-agnostic value types every other
//     package shares (Message, Part, FunctionCall, ToolResult, Decision).
//   - internal/provider (+ anthropic/openai/google/bedrock subpackages):
//     the Provider/Session facade over a concrete AI SDK.
//   - internal/ledger: per-turn token accounting and retry-with-jitter
//     around provider calls.
//   - internal/permission (+ channel/console, channel/webhook,
//     channel/file): the policy evaluator and human-in-the-loop
//     interaction channel.
//   - internal/plugin: the Plugin contract and Registry that exposes a
//     set of plugins as one tool surface.
//   - internal/orchestrator: the state machine that turns a user prompt
//     into a final answer, alternating provider calls and gated tool
//     executions.
//   - internal/runtime: the composition root — a Runtime binds one
//     Provider, Registry, Permission engine, and Ledger; a Session binds
//     to a Runtime and owns one live conversation.
//
// This file carries no executable code; it exists to give the module a
// single documented entry point, in the way a library's root package
// commonly does.
package jaato
