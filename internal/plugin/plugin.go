// Package plugin implements the Plugin Contract and Registry (spec
// §4.E + 4.F): the interface every tool plugin satisfies, and the
// Registry that discovers, exposes, and aggregates them into the single
// tool surface the Orchestrator presents to a provider. Grounded on
// pkg/pluginsdk/{manifest,runtime}.go (manifest schema and the
// RuntimePlugin/FullPlugin tiered-interface shape, narrowed here to the
// tool-only surface this spec names — no channel/CLI/service/hook
// registration) and internal/agent/tool_registry.go (aggregation:
// dedup-by-name tool schemas, executor-map merge with a duplicate-name
// error).
package plugin

import (
	"context"

	"github.com/jaatoai/jaato/internal/jaato"
)

// Executor runs one tool call's arguments and returns only the result
// payload and an error. It has no separate way to return attachments,
// and the Orchestrator never fills the *jaato.ToolResult's Attachments
// field.
type Executor func(ctx context.Context, args map[string]any) (result any, err error)

// UserCommand is a command a user may type directly, bypassing the
// model (spec §4.E). ShareWithModel decides whether its output is echoed
// back into the conversation.
type UserCommand struct {
	Name           string
	Description    string
	ShareWithModel bool
	Run            func(ctx context.Context, args []string) (string, error)
}

// Completion is one suggestion offered while a user types a UserCommand
// invocation.
type Completion struct {
	Value       string
	Description string
}

// PromptEnrichment is the result of splicing plugin-provided hints into
// a user prompt (spec §4.E's enrich_prompt).
type PromptEnrichment struct {
	Prompt   string
	Metadata map[string]any
}

// Plugin is the contract every tool plugin implements (spec §4.E).
// Initialize/Shutdown bracket the plugin's exposed lifetime; the rest of
// the interface is queried fresh each time the Registry aggregates its
// exposed set.
type Plugin interface {
	// Name is globally unique among plugins registered in one Registry.
	Name() string

	Initialize(ctx context.Context, config map[string]any) error
	Shutdown(ctx context.Context) error

	ToolSchemas() []jaato.ToolSchema
	Executors() map[string]Executor

	// SystemInstructions is injected into the model's system prompt
	// while this plugin is exposed. A nil/empty return contributes
	// nothing.
	SystemInstructions() string

	// AutoApprovedTools names tools this plugin adds to the
	// auto-approved set while exposed.
	AutoApprovedTools() []string

	UserCommands() []UserCommand
	CommandCompletions(command string, args []string) []Completion

	// SubscribesToPromptEnrichment reports whether EnrichPrompt should
	// be called for this plugin.
	SubscribesToPromptEnrichment() bool
	EnrichPrompt(ctx context.Context, prompt string) (PromptEnrichment, error)
}

// BasePlugin provides no-op implementations of every Plugin method so a
// concrete plugin can embed it and override only what it needs,
// mirroring how little boilerplate most of pkg/pluginsdk's optional
// ExtendedPlugin methods require in practice.
type BasePlugin struct{}

func (BasePlugin) Initialize(ctx context.Context, config map[string]any) error { return nil }
func (BasePlugin) Shutdown(ctx context.Context) error                         { return nil }
func (BasePlugin) ToolSchemas() []jaato.ToolSchema                            { return nil }
func (BasePlugin) Executors() map[string]Executor                            { return nil }
func (BasePlugin) SystemInstructions() string                                { return "" }
func (BasePlugin) AutoApprovedTools() []string                               { return nil }
func (BasePlugin) UserCommands() []UserCommand                               { return nil }
func (BasePlugin) CommandCompletions(command string, args []string) []Completion {
	return nil
}
func (BasePlugin) SubscribesToPromptEnrichment() bool { return false }
func (BasePlugin) EnrichPrompt(ctx context.Context, prompt string) (PromptEnrichment, error) {
	return PromptEnrichment{Prompt: prompt}, nil
}

// Factory builds a fresh Plugin instance, the Registry's analogue of
// pkg/pluginsdk's discovered `create_plugin` factory.
type Factory func() Plugin
