// Package runtime composes the four core subsystems into the two
// handles a caller actually constructs (spec §4.H): a Runtime, bound
// once per process to a Provider, a plugin Registry, a Permission
// engine, and a shared Ledger; and a Session, opened per conversation
// against a Runtime.
//
// Grounded on internal/agent/runtime.go's Runtime (provider + tool
// registry + sessions store + plugins, constructed once via NewRuntime
// and configured via SetXxx) and internal/sessions/locker.go's Locker
// interface for per-session serialization, narrowed to this spec's much
// smaller binding: no job queue, no branch store, no DB-backed lock —
// those are the teacher's multi-channel-bot concerns, out of scope here.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaatoai/jaato/internal/ledger"
	"github.com/jaatoai/jaato/internal/orchestrator"
	"github.com/jaatoai/jaato/internal/permission"
	"github.com/jaatoai/jaato/internal/plugin"
	"github.com/jaatoai/jaato/internal/provider"
)

// Options configures a Runtime. Zero value is valid; Logger defaults to
// slog.Default(), the rest follow Orchestrator's own defaults.
type Options struct {
	Logger             *slog.Logger
	DefaultModel       string
	SystemPrompt       string
	OrchestratorConfig orchestrator.Config
}

// DefaultOptions returns the zero-configuration Options a Runtime is
// safe to start from, matching internal/agent/options.go's
// DefaultRuntimeOptions pattern: every field has a sane standalone
// value, never requiring a caller to populate all of them.
func DefaultOptions() Options {
	return Options{
		Logger:             slog.Default(),
		OrchestratorConfig: orchestrator.DefaultConfig(),
	}
}

// mergeOptions fills zero-valued fields of override from base, mirroring
// internal/agent/options.go's mergeRuntimeOptions merge-with-defaults
// helper.
func mergeOptions(base, override Options) Options {
	out := base
	if override.Logger != nil {
		out.Logger = override.Logger
	}
	if override.DefaultModel != "" {
		out.DefaultModel = override.DefaultModel
	}
	if override.SystemPrompt != "" {
		out.SystemPrompt = override.SystemPrompt
	}
	if override.OrchestratorConfig.MaxToolIterations > 0 {
		out.OrchestratorConfig.MaxToolIterations = override.OrchestratorConfig.MaxToolIterations
	}
	if override.OrchestratorConfig.MaxParallelTools > 0 {
		out.OrchestratorConfig.MaxParallelTools = override.OrchestratorConfig.MaxParallelTools
	}
	return out
}

// Runtime binds one connected Provider, one Registry, one Permission
// engine, and one shared Ledger (spec §4.H). Multiple Sessions may be
// opened against the same Runtime; the Registry's exposed set and the
// Permission engine's session rules are shared state each Session reads
// and (for permission rules) may mutate, per spec §5's shared-resource
// policy.
type Runtime struct {
	provider   provider.Provider
	registry   *plugin.Registry
	permission *permission.Engine
	ledger     *ledger.Ledger
	opts       Options

	locker Locker
}

// Locker serializes access to a session by id (spec §5 "One-at-a-time
// per session"). Grounded on internal/sessions/locker.go's Locker
// interface; LocalLocker here is an in-process map-of-mutexes, the
// process-local analogue of the teacher's DBLocker for the
// non-clustered deployment this spec targets (spec §9 "Global state:
// none mandatory").
type Locker interface {
	Lock(ctx context.Context, sessionID string) error
	Unlock(sessionID string)
}

// New builds a Runtime over an already-Initialize'd and Connect'ed
// Provider. perm and led may be constructed by the caller and shared
// across multiple Runtimes if desired; passing nil for led gives each
// Runtime its own in-memory-only Ledger (no JSONL sink).
func New(prov provider.Provider, registry *plugin.Registry, perm *permission.Engine, led *ledger.Ledger, opts Options) *Runtime {
	opts = mergeOptions(DefaultOptions(), opts)
	if led == nil {
		led = ledger.New(ledger.DefaultPolicy(), nil)
	}
	if registry == nil {
		registry = plugin.New()
	}
	return &Runtime{
		provider:   prov,
		registry:   registry,
		permission: perm,
		ledger:     led,
		opts:       opts,
		locker:     NewLocalLocker(),
	}
}

// Registry returns the Runtime's shared plugin Registry, for callers
// that need to Expose/Unexpose plugins before or between sessions.
func (r *Runtime) Registry() *plugin.Registry { return r.registry }

// Permission returns the Runtime's shared Permission engine.
func (r *Runtime) Permission() *permission.Engine { return r.permission }

// Ledger returns the Runtime's shared token Ledger.
func (r *Runtime) Ledger() *ledger.Ledger { return r.ledger }

// OpenSession creates a fresh provider chat Session and wraps it, along
// with this Runtime's shared Registry/Permission/Ledger, in an
// Orchestrator-backed Session (spec §4.H: "A Session binds to a Runtime
// and owns: a live provider chat session, a history, accounting, and
// agent context").
//
// sessionID identifies this conversation for the Locker and for
// SessionPersister; callers that do not need persistence or cross-call
// serialization by id may pass any unique string.
func (r *Runtime) OpenSession(ctx context.Context, sessionID string, sink orchestrator.Sink, collector orchestrator.ContextCollector, observer orchestrator.SessionObserver) (*Session, error) {
	agg, err := r.registry.Aggregate()
	if err != nil {
		return nil, fmt.Errorf("runtime: aggregating exposed plugins: %w", err)
	}

	if r.permission != nil {
		r.permission.MergeAutoApproved(agg.AutoApprovedTools)
	}

	providerSession, err := r.provider.CreateSession(ctx, provider.SessionOptions{
		SystemInstruction: r.composeSystemInstruction(agg.SystemInstructions),
		Tools:             agg.ToolSchemas,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: opening provider session: %w", err)
	}

	orch := orchestrator.New(providerSession, r.registry, r.permission, r.ledger, r.opts.OrchestratorConfig, sink, collector, observer)

	return &Session{
		id:              sessionID,
		runtime:         r,
		providerSession: providerSession,
		orchestrator:    orch,
		logger:          r.logger(),
	}, nil
}

func (r *Runtime) composeSystemInstruction(pluginInstructions string) string {
	if r.opts.SystemPrompt == "" {
		return pluginInstructions
	}
	if pluginInstructions == "" {
		return r.opts.SystemPrompt
	}
	return r.opts.SystemPrompt + "\n\n" + pluginInstructions
}

func (r *Runtime) logger() *slog.Logger {
	if r.opts.Logger != nil {
		return r.opts.Logger
	}
	return slog.Default()
}
