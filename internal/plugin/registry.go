package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jaatoai/jaato/internal/jaato"
)

// Registry discovers available plugin factories, exposes a subset of
// them, and aggregates the exposed set into the single tool surface the
// Orchestrator presents to a provider (spec §4.F).
type Registry struct {
	mu          sync.RWMutex
	factories   map[string]Factory
	configSchemas map[string]*jsonschema.Schema
	exposed     map[string]Plugin
	exposeOrder []string // deterministic plugin order for instruction/command concatenation
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		factories:     make(map[string]Factory),
		configSchemas: make(map[string]*jsonschema.Schema),
		exposed:       make(map[string]Plugin),
	}
}

// Register adds a discovered plugin factory under name. Calling Register
// twice with the same name replaces the previous factory (discovery is
// idempotent, spec §4.F); it does not affect an already-exposed
// instance.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// RegisterManifest associates a discovered Manifest's ConfigSchema with
// name, so a later Expose call validates its config argument before
// constructing the plugin. A manifest with no ConfigSchema registers no
// validation. Grounded on pkg/pluginsdk/validation.go's
// Manifest.ValidateConfig (jsonschema.CompileString over the raw schema
// text).
func (r *Registry) RegisterManifest(name string, manifest *Manifest) error {
	if manifest == nil || len(manifest.ConfigSchema) == 0 {
		return nil
	}
	schema, err := jsonschema.CompileString(name+".config-schema.json", string(manifest.ConfigSchema))
	if err != nil {
		return fmt.Errorf("plugin: compiling config schema for %q: %w", name, err)
	}
	r.mu.Lock()
	r.configSchemas[name] = schema
	r.mu.Unlock()
	return nil
}

// Available lists the names of every registered-but-not-necessarily-
// exposed plugin.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exposed lists the names of every currently-exposed plugin, in the
// deterministic order they were exposed.
func (r *Registry) Exposed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.exposeOrder...)
}

// Expose constructs the named plugin, calls Initialize, and adds it to
// the exposed set. Exposing an already-exposed plugin is a no-op that
// returns nil, matching expose_tool's idempotence.
func (r *Registry) Expose(ctx context.Context, name string, config map[string]any) error {
	r.mu.Lock()
	if _, ok := r.exposed[name]; ok {
		r.mu.Unlock()
		return nil
	}
	factory, ok := r.factories[name]
	schema := r.configSchemas[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin: %q is not a registered plugin", name)
	}
	if schema != nil {
		if err := schema.Validate(configAsAny(config)); err != nil {
			return fmt.Errorf("plugin: config for %q is invalid: %w", name, err)
		}
	}

	instance := factory()
	if err := instance.Initialize(ctx, config); err != nil {
		return fmt.Errorf("plugin: initializing %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exposed[name]; ok {
		// Lost a race with a concurrent Expose; shut down the extra
		// instance we just built and keep the winner.
		_ = instance.Shutdown(ctx)
		return nil
	}
	r.exposed[name] = instance
	r.exposeOrder = append(r.exposeOrder, name)
	return nil
}

// configAsAny widens a map[string]any config into the any-typed document
// jsonschema.Schema.Validate expects.
func configAsAny(config map[string]any) any {
	if config == nil {
		return map[string]any{}
	}
	return config
}

// ExposeAll exposes every plugin named in configs, keyed by plugin name.
func (r *Registry) ExposeAll(ctx context.Context, configs map[string]map[string]any) error {
	for name, cfg := range configs {
		if err := r.Expose(ctx, name, cfg); err != nil {
			return err
		}
	}
	return nil
}

// Unexpose calls Shutdown on the named plugin and removes it from the
// exposed set. Unexposing a plugin that is not exposed is a no-op.
func (r *Registry) Unexpose(ctx context.Context, name string) error {
	r.mu.Lock()
	instance, ok := r.exposed[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.exposed, name)
	for i, n := range r.exposeOrder {
		if n == name {
			r.exposeOrder = append(r.exposeOrder[:i], r.exposeOrder[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return instance.Shutdown(ctx)
}

// UnexposeAll shuts down and removes every exposed plugin.
func (r *Registry) UnexposeAll(ctx context.Context) error {
	for _, name := range r.Exposed() {
		if err := r.Unexpose(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Aggregation is the Registry's merged view over the exposed set (spec
// §4.F "Aggregation").
type Aggregation struct {
	ToolSchemas         []jaato.ToolSchema
	Executors           map[string]Executor
	SystemInstructions  string
	AutoApprovedTools   []string
	UserCommands        []UserCommand
}

// Aggregate merges every exposed plugin's contributions, in deterministic
// expose order: tool schemas deduplicated by name (first plugin to
// expose a name wins), executor maps merged with a duplicate-name error,
// system instructions concatenated, auto-approved tools unioned, user
// commands concatenated.
func (r *Registry) Aggregate() (Aggregation, error) {
	r.mu.RLock()
	order := append([]string(nil), r.exposeOrder...)
	plugins := make(map[string]Plugin, len(r.exposed))
	for name, p := range r.exposed {
		plugins[name] = p
	}
	r.mu.RUnlock()

	agg := Aggregation{Executors: make(map[string]Executor)}
	seenSchema := make(map[string]struct{})
	autoApproved := make(map[string]struct{})
	var instructions []string

	for _, name := range order {
		p := plugins[name]

		for _, schema := range p.ToolSchemas() {
			if _, dup := seenSchema[schema.Name]; dup {
				continue
			}
			seenSchema[schema.Name] = struct{}{}
			agg.ToolSchemas = append(agg.ToolSchemas, schema)
		}

		for toolName, exec := range p.Executors() {
			if _, dup := agg.Executors[toolName]; dup {
				return Aggregation{}, fmt.Errorf("plugin: tool %q is registered by more than one exposed plugin", toolName)
			}
			agg.Executors[toolName] = exec
		}

		if instr := p.SystemInstructions(); instr != "" {
			instructions = append(instructions, instr)
		}

		for _, tool := range p.AutoApprovedTools() {
			autoApproved[tool] = struct{}{}
		}

		agg.UserCommands = append(agg.UserCommands, p.UserCommands()...)
	}

	for tool := range autoApproved {
		agg.AutoApprovedTools = append(agg.AutoApprovedTools, tool)
	}
	sort.Strings(agg.AutoApprovedTools)

	agg.SystemInstructions = joinNonEmpty(instructions, "\n\n")
	return agg, nil
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// GetPluginForTool resolves a tool name back to its owning plugin,
// needed by the Orchestrator to route executions and by a UI to route
// user commands (spec §4.F).
func (r *Registry) GetPluginForTool(toolName string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.exposeOrder {
		p := r.exposed[name]
		for _, schema := range p.ToolSchemas() {
			if schema.Name == toolName {
				return p, true
			}
		}
	}
	return nil, false
}

// EnrichPrompt threads prompt through every subscribed plugin's
// EnrichPrompt, in deterministic expose order, accumulating metadata
// (spec §4.F).
func (r *Registry) EnrichPrompt(ctx context.Context, prompt string) (PromptEnrichment, error) {
	r.mu.RLock()
	order := append([]string(nil), r.exposeOrder...)
	plugins := make(map[string]Plugin, len(r.exposed))
	for name, p := range r.exposed {
		plugins[name] = p
	}
	r.mu.RUnlock()

	result := PromptEnrichment{Prompt: prompt, Metadata: make(map[string]any)}
	for _, name := range order {
		p := plugins[name]
		if !p.SubscribesToPromptEnrichment() {
			continue
		}
		enriched, err := p.EnrichPrompt(ctx, result.Prompt)
		if err != nil {
			return PromptEnrichment{}, fmt.Errorf("plugin: %q failed to enrich prompt: %w", name, err)
		}
		result.Prompt = enriched.Prompt
		for k, v := range enriched.Metadata {
			result.Metadata[k] = v
		}
	}
	return result, nil
}
