package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/ledger"
	"github.com/jaatoai/jaato/internal/permission"
	"github.com/jaatoai/jaato/internal/plugin"
)

// scriptedSession is a provider.Session test double that returns a
// pre-programmed sequence of responses: the first queued response
// answers the first SendMessage, every subsequent one answers the next
// SendToolResults call, in order.
type scriptedSession struct {
	mu        sync.Mutex
	responses []*jaato.ProviderResponse
	next      int
	sendErr   error
	history   jaato.History
}

func (s *scriptedSession) pop() (*jaato.ProviderResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	if s.next >= len(s.responses) {
		return &jaato.ProviderResponse{Text: "done"}, nil
	}
	resp := s.responses[s.next]
	s.next++
	return resp, nil
}

func (s *scriptedSession) SendMessage(ctx context.Context, text string, schema json.RawMessage) (*jaato.ProviderResponse, error) {
	return s.pop()
}

func (s *scriptedSession) SendMessageWithParts(ctx context.Context, parts []jaato.Part, schema json.RawMessage) (*jaato.ProviderResponse, error) {
	return s.pop()
}

func (s *scriptedSession) SendToolResults(ctx context.Context, results []jaato.ToolResult, schema json.RawMessage) (*jaato.ProviderResponse, error) {
	return s.pop()
}

func (s *scriptedSession) CountTokens(ctx context.Context, text string) (int, error) { return 0, nil }
func (s *scriptedSession) TokenUsage() jaato.TokenUsage                              { return jaato.TokenUsage{} }
func (s *scriptedSession) History() jaato.History                                   { return s.history }

func textResponse(text string) *jaato.ProviderResponse {
	return &jaato.ProviderResponse{Text: text, FinishReason: jaato.FinishStop}
}

func toolCallResponse(calls ...jaato.FunctionCall) *jaato.ProviderResponse {
	return &jaato.ProviderResponse{FunctionCalls: calls, FinishReason: jaato.FinishToolUse}
}

// echoPlugin exposes one or more tools whose executor records the call
// and optionally sleeps, to test parallel fan-out timing.
type echoPlugin struct {
	plugin.BasePlugin
	name      string
	tools     []string
	sleep     time.Duration
	callCount int32
}

func (p *echoPlugin) Name() string { return p.name }

func (p *echoPlugin) ToolSchemas() []jaato.ToolSchema {
	var schemas []jaato.ToolSchema
	for _, t := range p.tools {
		schemas = append(schemas, jaato.ToolSchema{Name: t, Description: t, Parameters: json.RawMessage(`{}`)})
	}
	return schemas
}

func (p *echoPlugin) Executors() map[string]plugin.Executor {
	execs := make(map[string]plugin.Executor)
	for _, t := range p.tools {
		execs[t] = func(ctx context.Context, args map[string]any) (any, error) {
			atomic.AddInt32(&p.callCount, 1)
			if p.sleep > 0 {
				time.Sleep(p.sleep)
			}
			return map[string]any{"ok": true, "args": args}, nil
		}
	}
	return execs
}

func newRegistry(t *testing.T, plugins ...plugin.Plugin) *plugin.Registry {
	t.Helper()
	r := plugin.New()
	for _, p := range plugins {
		pp := p
		r.Register(pp.Name(), func() plugin.Plugin { return pp })
		if err := r.Expose(context.Background(), pp.Name(), nil); err != nil {
			t.Fatalf("Expose(%s): %v", pp.Name(), err)
		}
	}
	return r
}

func newOrchestrator(session *scriptedSession, registry *plugin.Registry, perm *permission.Engine) *Orchestrator {
	return New(session, registry, perm, ledger.New(ledger.DefaultPolicy(), nil), DefaultConfig(), nil, nil, nil)
}

func TestSendMessagePureTextTurn(t *testing.T) {
	session := &scriptedSession{responses: []*jaato.ProviderResponse{textResponse("hello there")}}
	registry := newRegistry(t)
	perm := permission.New(permission.DefaultConfig(), nil)
	o := newOrchestrator(session, registry, perm)

	got, err := o.SendMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got != "hello there" {
		t.Errorf("SendMessage() = %q", got)
	}
	if o.TurnCount() != 1 {
		t.Errorf("TurnCount() = %d, want 1", o.TurnCount())
	}
	rows := o.TurnAccounting()
	if len(rows) != 1 || rows[0].Cancelled {
		t.Errorf("TurnAccounting() = %+v", rows)
	}
}

func TestSendMessageAutoApprovedToolDoesNotConsultChannel(t *testing.T) {
	tool := &echoPlugin{name: "fs", tools: []string{"read_file"}}
	registry := newRegistry(t, tool)
	cfg := permission.DefaultConfig()
	cfg.AutoApproved = []string{"read_file"}
	perm := permission.New(cfg, nil) // nil channel: any "ask" consult would error out

	call := jaato.FunctionCall{ID: "call_1", Name: "read_file", Args: map[string]any{"path": "a.txt"}}
	session := &scriptedSession{responses: []*jaato.ProviderResponse{
		toolCallResponse(call),
		textResponse("read it"),
	}}
	o := newOrchestrator(session, registry, perm)

	got, err := o.SendMessage(context.Background(), "read a.txt")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got != "read it" {
		t.Errorf("SendMessage() = %q", got)
	}
	if atomic.LoadInt32(&tool.callCount) != 1 {
		t.Errorf("executor called %d times, want 1", tool.callCount)
	}
	rows := o.TurnAccounting()
	if len(rows[0].FunctionCalls) != 1 || rows[0].FunctionCalls[0].Name != "read_file" {
		t.Errorf("FunctionCalls = %+v", rows[0].FunctionCalls)
	}
}

type fixedChannel struct {
	action permission.Action
}

func (c fixedChannel) Ask(ctx context.Context, req permission.Request) (permission.Action, error) {
	return c.action, nil
}

func TestSendMessageUserDeniesOnce(t *testing.T) {
	tool := &echoPlugin{name: "shell", tools: []string{"run_command"}}
	registry := newRegistry(t, tool)
	cfg := permission.DefaultConfig()
	cfg.DefaultPolicy = permission.PolicyAsk
	perm := permission.New(cfg, fixedChannel{action: permission.ActionNo})

	call := jaato.FunctionCall{ID: "call_1", Name: "run_command", Args: map[string]any{"cmd": "rm -rf /"}}
	session := &scriptedSession{responses: []*jaato.ProviderResponse{
		toolCallResponse(call),
		textResponse("ok, not running that"),
	}}
	o := newOrchestrator(session, registry, perm)

	got, err := o.SendMessage(context.Background(), "run rm -rf /")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got != "ok, not running that" {
		t.Errorf("SendMessage() = %q", got)
	}
	if atomic.LoadInt32(&tool.callCount) != 0 {
		t.Errorf("executor should not run on denial, called %d times", tool.callCount)
	}
}

func TestSendMessageUserNeverInstallsSessionRule(t *testing.T) {
	tool := &echoPlugin{name: "shell", tools: []string{"run_command"}}
	registry := newRegistry(t, tool)
	cfg := permission.DefaultConfig()
	cfg.DefaultPolicy = permission.PolicyAsk
	perm := permission.New(cfg, fixedChannel{action: permission.ActionNever})

	firstCall := jaato.FunctionCall{ID: "call_1", Name: "run_command", Args: map[string]any{"cmd": "a"}}
	secondCall := jaato.FunctionCall{ID: "call_2", Name: "run_command", Args: map[string]any{"cmd": "b"}}
	session := &scriptedSession{responses: []*jaato.ProviderResponse{
		toolCallResponse(firstCall),
		textResponse("turn one done"),
	}}
	o := newOrchestrator(session, registry, perm)
	if _, err := o.SendMessage(context.Background(), "run a"); err != nil {
		t.Fatalf("first SendMessage() error = %v", err)
	}

	// Second turn, second session: the session rule lives on the
	// permission engine, not the session, and must still gate without
	// consulting the channel again.
	session2 := &scriptedSession{responses: []*jaato.ProviderResponse{
		toolCallResponse(secondCall),
		textResponse("turn two done"),
	}}
	o2 := newOrchestrator(session2, registry, perm)
	if _, err := o2.SendMessage(context.Background(), "run b"); err != nil {
		t.Fatalf("second SendMessage() error = %v", err)
	}
	if atomic.LoadInt32(&tool.callCount) != 0 {
		t.Errorf("executor should never run once 'never' rule installed, called %d times", tool.callCount)
	}
}

func TestSendMessageParallelFanOutRunsConcurrently(t *testing.T) {
	tool := &echoPlugin{name: "work", tools: []string{"slow_a", "slow_b"}, sleep: 40 * time.Millisecond}
	registry := newRegistry(t, tool)
	perm := permission.New(permission.Config{DefaultPolicy: permission.PolicyAllow}, nil)

	calls := []jaato.FunctionCall{
		{ID: "call_1", Name: "slow_a", Args: map[string]any{}},
		{ID: "call_2", Name: "slow_b", Args: map[string]any{}},
	}
	session := &scriptedSession{responses: []*jaato.ProviderResponse{
		toolCallResponse(calls...),
		textResponse("both done"),
	}}
	o := newOrchestrator(session, registry, perm)

	start := time.Now()
	if _, err := o.SendMessage(context.Background(), "do both"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed >= 70*time.Millisecond {
		t.Errorf("elapsed = %v, want well under 2x single-call sleep (parallel fan-out expected)", elapsed)
	}
	if atomic.LoadInt32(&tool.callCount) != 2 {
		t.Errorf("callCount = %d, want 2", tool.callCount)
	}
}

func TestSendMessageUnknownToolSynthesizesErrorResult(t *testing.T) {
	registry := newRegistry(t)
	perm := permission.New(permission.Config{DefaultPolicy: permission.PolicyAllow}, nil)

	call := jaato.FunctionCall{ID: "call_1", Name: "does_not_exist", Args: map[string]any{}}
	session := &scriptedSession{responses: []*jaato.ProviderResponse{
		toolCallResponse(call),
		textResponse("handled the unknown tool"),
	}}
	o := newOrchestrator(session, registry, perm)

	got, err := o.SendMessage(context.Background(), "call unknown")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got != "handled the unknown tool" {
		t.Errorf("SendMessage() = %q", got)
	}
}

func TestSendMessageMaxToolIterationsStopsWithDiagnostic(t *testing.T) {
	tool := &echoPlugin{name: "loop", tools: []string{"again"}}
	registry := newRegistry(t, tool)
	perm := permission.New(permission.Config{DefaultPolicy: permission.PolicyAllow}, nil)

	var responses []*jaato.ProviderResponse
	call := jaato.FunctionCall{ID: "call_1", Name: "again", Args: map[string]any{}}
	for i := 0; i < 10; i++ {
		responses = append(responses, toolCallResponse(call))
	}
	session := &scriptedSession{responses: responses}
	o := New(session, registry, perm, ledger.New(ledger.DefaultPolicy(), nil), Config{MaxToolIterations: 2}, nil, nil, nil)

	got, err := o.SendMessage(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if got == "" {
		t.Fatal("expected a diagnostic final text, got empty string")
	}
	if int(tool.callCount) > 2 {
		t.Errorf("executor ran %d times, want at most MaxToolIterations (2)", tool.callCount)
	}
}

func TestSendMessageRejectsConcurrentEntry(t *testing.T) {
	release := make(chan struct{})
	session := &scriptedSession{}
	session.responses = []*jaato.ProviderResponse{textResponse("slow")}
	registry := newRegistry(t)
	perm := permission.New(permission.DefaultConfig(), nil)
	o := newOrchestrator(session, registry, perm)

	if !o.acquire() {
		t.Fatal("expected first acquire to succeed")
	}
	defer close(release)
	defer o.release()

	_, err := o.SendMessage(context.Background(), "second")
	if !errors.Is(err, ErrSendInProgress) {
		t.Errorf("SendMessage() error = %v, want ErrSendInProgress", err)
	}
}

func TestSendMessagePermanentProviderErrorClosesTurn(t *testing.T) {
	session := &scriptedSession{sendErr: errors.New("invalid request: malformed schema")}
	registry := newRegistry(t)
	perm := permission.New(permission.DefaultConfig(), nil)
	o := newOrchestrator(session, registry, perm)

	_, err := o.SendMessage(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected a propagated provider error")
	}
	rows := o.TurnAccounting()
	if len(rows) != 1 {
		t.Fatalf("TurnAccounting() = %+v, want one closed row even on failure", rows)
	}
	if rows[0].EndTime.IsZero() {
		t.Error("expected the turn's EndTime to be set (closed) despite the error")
	}
}

func TestRevertToTurnTruncatesAccounting(t *testing.T) {
	session := &scriptedSession{responses: []*jaato.ProviderResponse{
		textResponse("one"), textResponse("two"), textResponse("three"),
	}}
	registry := newRegistry(t)
	perm := permission.New(permission.DefaultConfig(), nil)
	o := newOrchestrator(session, registry, perm)

	for i := 0; i < 3; i++ {
		if _, err := o.SendMessage(context.Background(), fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("SendMessage() error = %v", err)
		}
	}
	if err := o.RevertToTurn(context.Background(), 1); err != nil {
		t.Fatalf("RevertToTurn() error = %v", err)
	}
	if o.TurnCount() != 1 {
		t.Errorf("TurnCount() = %d, want 1", o.TurnCount())
	}

	if err := o.RevertToTurn(context.Background(), 99); err == nil {
		t.Error("expected out-of-range revert to error")
	}
}

func TestEventSinkObservesTurnAndToolEvents(t *testing.T) {
	tool := &echoPlugin{name: "fs", tools: []string{"read_file"}}
	registry := newRegistry(t, tool)
	perm := permission.New(permission.Config{DefaultPolicy: permission.PolicyAllow}, nil)

	call := jaato.FunctionCall{ID: "call_1", Name: "read_file", Args: map[string]any{}}
	session := &scriptedSession{responses: []*jaato.ProviderResponse{
		toolCallResponse(call),
		textResponse("done"),
	}}

	ch := make(chan Event, 32)
	o := New(session, registry, perm, ledger.New(ledger.DefaultPolicy(), nil), DefaultConfig(), NewChanSink(ch), nil, nil)

	if _, err := o.SendMessage(context.Background(), "read"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	close(ch)

	var types []EventType
	for e := range ch {
		types = append(types, e.Type)
	}

	want := map[EventType]bool{
		EventTurnStart:          false,
		EventPermissionDecision: false,
		EventToolStart:          false,
		EventToolEnd:            false,
		EventTurnEnd:            false,
		EventOutput:             false,
	}
	for _, ty := range types {
		want[ty] = true
	}
	for ty, seen := range want {
		if !seen {
			t.Errorf("expected event %s to be emitted, events = %v", ty, types)
		}
	}
}
