package plugin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jaatoai/jaato/internal/jaato"
)

type fakePlugin struct {
	BasePlugin
	name         string
	initialized  bool
	shutdownHit  bool
	schemas      []jaato.ToolSchema
	executors    map[string]Executor
	instructions string
	autoApproved []string
	subscribes   bool
}

func (p *fakePlugin) Name() string { return p.name }
func (p *fakePlugin) Initialize(ctx context.Context, config map[string]any) error {
	p.initialized = true
	return nil
}
func (p *fakePlugin) Shutdown(ctx context.Context) error {
	p.shutdownHit = true
	return nil
}
func (p *fakePlugin) ToolSchemas() []jaato.ToolSchema { return p.schemas }
func (p *fakePlugin) Executors() map[string]Executor  { return p.executors }
func (p *fakePlugin) SystemInstructions() string      { return p.instructions }
func (p *fakePlugin) AutoApprovedTools() []string     { return p.autoApproved }
func (p *fakePlugin) SubscribesToPromptEnrichment() bool { return p.subscribes }
func (p *fakePlugin) EnrichPrompt(ctx context.Context, prompt string) (PromptEnrichment, error) {
	return PromptEnrichment{Prompt: prompt + " [" + p.name + "]", Metadata: map[string]any{p.name: true}}, nil
}

func schema(name string) jaato.ToolSchema {
	return jaato.ToolSchema{Name: name, Description: name, Parameters: json.RawMessage(`{}`)}
}

func TestExposeInitializesAndAddsToExposedSet(t *testing.T) {
	r := New()
	p := &fakePlugin{name: "alpha"}
	r.Register("alpha", func() Plugin { return p })

	if err := r.Expose(context.Background(), "alpha", nil); err != nil {
		t.Fatalf("Expose() error = %v", err)
	}
	if !p.initialized {
		t.Error("expected Initialize to be called")
	}
	if got := r.Exposed(); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("Exposed() = %v", got)
	}
}

func TestExposeUnregisteredPluginErrors(t *testing.T) {
	r := New()
	if err := r.Expose(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error exposing unregistered plugin")
	}
}

func TestExposeIsIdempotent(t *testing.T) {
	r := New()
	calls := 0
	r.Register("alpha", func() Plugin {
		calls++
		return &fakePlugin{name: "alpha"}
	})
	_ = r.Expose(context.Background(), "alpha", nil)
	_ = r.Expose(context.Background(), "alpha", nil)
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
}

func TestUnexposeCallsShutdownAndRemoves(t *testing.T) {
	r := New()
	p := &fakePlugin{name: "alpha"}
	r.Register("alpha", func() Plugin { return p })
	_ = r.Expose(context.Background(), "alpha", nil)

	if err := r.Unexpose(context.Background(), "alpha"); err != nil {
		t.Fatalf("Unexpose() error = %v", err)
	}
	if !p.shutdownHit {
		t.Error("expected Shutdown to be called")
	}
	if got := r.Exposed(); len(got) != 0 {
		t.Errorf("Exposed() = %v, want empty", got)
	}
}

func TestAggregateDedupesToolSchemasFirstWins(t *testing.T) {
	r := New()
	first := &fakePlugin{name: "first", schemas: []jaato.ToolSchema{schema("search")}}
	second := &fakePlugin{name: "second", schemas: []jaato.ToolSchema{schema("search"), schema("fetch")}}
	r.Register("first", func() Plugin { return first })
	r.Register("second", func() Plugin { return second })
	_ = r.Expose(context.Background(), "first", nil)
	_ = r.Expose(context.Background(), "second", nil)

	agg, err := r.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(agg.ToolSchemas) != 2 {
		t.Fatalf("ToolSchemas = %+v, want 2 entries (deduped)", agg.ToolSchemas)
	}
}

func TestAggregateDuplicateExecutorNameErrors(t *testing.T) {
	r := New()
	exec := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	first := &fakePlugin{name: "first", executors: map[string]Executor{"search": exec}}
	second := &fakePlugin{name: "second", executors: map[string]Executor{"search": exec}}
	r.Register("first", func() Plugin { return first })
	r.Register("second", func() Plugin { return second })
	_ = r.Expose(context.Background(), "first", nil)
	_ = r.Expose(context.Background(), "second", nil)

	_, err := r.Aggregate()
	if err == nil {
		t.Fatal("expected duplicate-executor-name error")
	}
}

func TestAggregateUnionsAutoApprovedAndConcatenatesInstructions(t *testing.T) {
	r := New()
	first := &fakePlugin{name: "first", instructions: "be concise", autoApproved: []string{"read_file"}}
	second := &fakePlugin{name: "second", instructions: "cite sources", autoApproved: []string{"read_file", "list_dir"}}
	r.Register("first", func() Plugin { return first })
	r.Register("second", func() Plugin { return second })
	_ = r.Expose(context.Background(), "first", nil)
	_ = r.Expose(context.Background(), "second", nil)

	agg, err := r.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if agg.SystemInstructions != "be concise\n\ncite sources" {
		t.Errorf("SystemInstructions = %q", agg.SystemInstructions)
	}
	if len(agg.AutoApprovedTools) != 2 {
		t.Errorf("AutoApprovedTools = %v, want 2 unique entries", agg.AutoApprovedTools)
	}
}

func TestGetPluginForToolResolvesOwner(t *testing.T) {
	r := New()
	p := &fakePlugin{name: "alpha", schemas: []jaato.ToolSchema{schema("search")}}
	r.Register("alpha", func() Plugin { return p })
	_ = r.Expose(context.Background(), "alpha", nil)

	owner, ok := r.GetPluginForTool("search")
	if !ok || owner.Name() != "alpha" {
		t.Errorf("GetPluginForTool() = %v, %v", owner, ok)
	}

	_, ok = r.GetPluginForTool("missing")
	if ok {
		t.Error("expected no owner for unregistered tool")
	}
}

func TestExposeValidatesConfigAgainstManifestSchema(t *testing.T) {
	r := New()
	r.Register("alpha", func() Plugin { return &fakePlugin{name: "alpha"} })
	manifest := &Manifest{
		ID:           "alpha",
		ConfigSchema: json.RawMessage(`{"type":"object","required":["api_key"],"properties":{"api_key":{"type":"string"}}}`),
	}
	if err := r.RegisterManifest("alpha", manifest); err != nil {
		t.Fatalf("RegisterManifest() error = %v", err)
	}

	if err := r.Expose(context.Background(), "alpha", map[string]any{}); err == nil {
		t.Fatal("expected config validation error for missing required field")
	}
	if err := r.Expose(context.Background(), "alpha", map[string]any{"api_key": "k"}); err != nil {
		t.Fatalf("Expose() with valid config error = %v", err)
	}
}

func TestEnrichPromptThreadsThroughSubscribedPluginsInOrder(t *testing.T) {
	r := New()
	first := &fakePlugin{name: "first", subscribes: true}
	second := &fakePlugin{name: "second", subscribes: true}
	third := &fakePlugin{name: "third", subscribes: false}
	r.Register("first", func() Plugin { return first })
	r.Register("second", func() Plugin { return second })
	r.Register("third", func() Plugin { return third })
	_ = r.Expose(context.Background(), "first", nil)
	_ = r.Expose(context.Background(), "second", nil)
	_ = r.Expose(context.Background(), "third", nil)

	result, err := r.EnrichPrompt(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EnrichPrompt() error = %v", err)
	}
	if result.Prompt != "hello [first] [second]" {
		t.Errorf("Prompt = %q", result.Prompt)
	}
	if result.Metadata["first"] != true || result.Metadata["second"] != true {
		t.Errorf("Metadata = %+v", result.Metadata)
	}
	if _, ok := result.Metadata["third"]; ok {
		t.Error("unsubscribed plugin should not contribute metadata")
	}
}
