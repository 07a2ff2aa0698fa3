package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/ledger"
	"github.com/jaatoai/jaato/internal/permission"
	"github.com/jaatoai/jaato/internal/plugin"
	"github.com/jaatoai/jaato/internal/provider"
)

// ErrSendInProgress is returned by SendMessage when a prior call on the
// same Orchestrator has not yet returned. A Session's send_message is a
// single logical operation from the caller's perspective (spec §5
// "One-at-a-time per session"); this Orchestrator chooses the "reject
// concurrent entry with a typed error" option the spec offers, rather
// than queueing.
var ErrSendInProgress = errors.New("orchestrator: a send_message call is already in progress on this session")

// Config bounds the state machine's S2<->S4 cycle (spec §4.G "Bounds and
// edge cases").
type Config struct {
	// MaxToolIterations caps the number of DISPATCH/EXECUTE/RETURN round
	// trips within one turn. Zero/unset defaults to 8, the spec's floor
	// for the default; an explicit lower value is honored as configured.
	MaxToolIterations int

	// MaxParallelTools caps how many function calls within one DISPATCH
	// batch run concurrently (spec §9 open question: "parallel fan-out
	// ... recommended: on, capped at a small N"). Zero/unset defaults to
	// 8, matching internal/agent/executor.go's ExecutorConfig.
	// MaxConcurrency default order of magnitude.
	MaxParallelTools int
}

// DefaultConfig returns the spec's floor for MaxToolIterations and the
// recommended small-N default for MaxParallelTools.
func DefaultConfig() Config {
	return Config{MaxToolIterations: 8, MaxParallelTools: 8}
}

// sanitized fills in the spec's floor only when a field was left unset;
// an explicitly configured lower value (e.g. a test exercising a cap)
// is honored rather than silently overridden.
func (c Config) sanitized() Config {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = 8
	}
	if c.MaxParallelTools <= 0 {
		c.MaxParallelTools = 8
	}
	return c
}

// Orchestrator is the JaatoClient (spec §4.G): it owns one live provider
// Session, drives the PREPARE/SEND/DISPATCH/GATE&EXECUTE/RETURN/FINALIZE
// state machine, and reports progress to a Sink. It is the unit of
// concurrency a Session wraps (spec §4.H): construct one per
// conversation, never share it across concurrent callers.
type Orchestrator struct {
	session    provider.Session
	registry   *plugin.Registry
	permission *permission.Engine
	ledger     *ledger.Ledger
	collector  ContextCollector
	observer   SessionObserver
	config     Config
	sink       Sink

	busyMu sync.Mutex
	busy   bool

	mu        sync.Mutex
	turnCount int
	turns     []jaato.TurnAccounting
}

// SessionObserver receives the session-plugin notifications spec §4.G
// names: on_turn_complete after FINALIZE, and a revert notification when
// history is truncated to an earlier turn boundary.
type SessionObserver interface {
	OnTurnComplete(ctx context.Context, accounting jaato.TurnAccounting)
	OnRevert(ctx context.Context, toTurn int)
}

// NopObserver implements SessionObserver with no-ops; used when no
// session plugin is installed.
type NopObserver struct{}

func (NopObserver) OnTurnComplete(context.Context, jaato.TurnAccounting) {}
func (NopObserver) OnRevert(context.Context, int)                       {}

// New builds an Orchestrator over an already-connected provider Session.
// collector and observer may be nil (defaulting to no GC and NopObserver
// respectively); sink may be nil (defaulting to NopSink).
func New(session provider.Session, registry *plugin.Registry, perm *permission.Engine, led *ledger.Ledger, config Config, sink Sink, collector ContextCollector, observer SessionObserver) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if led == nil {
		led = ledger.New(ledger.DefaultPolicy(), nil)
	}
	return &Orchestrator{
		session:    session,
		registry:   registry,
		permission: perm,
		ledger:     led,
		collector:  collector,
		observer:   observer,
		config:     config.sanitized(),
		sink:       sink,
	}
}

func (o *Orchestrator) emit(ctx context.Context, e Event) {
	o.sink.Emit(ctx, e)
}

func (o *Orchestrator) acquire() bool {
	o.busyMu.Lock()
	defer o.busyMu.Unlock()
	if o.busy {
		return false
	}
	o.busy = true
	return true
}

func (o *Orchestrator) release() {
	o.busyMu.Lock()
	o.busy = false
	o.busyMu.Unlock()
}

// TurnCount returns the number of turns FINALIZEd so far.
func (o *Orchestrator) TurnCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turnCount
}

// TurnAccounting returns a copy of every closed turn's accounting row,
// in strict turn order (spec §5 "Ordering guarantees").
func (o *Orchestrator) TurnAccounting() []jaato.TurnAccounting {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]jaato.TurnAccounting(nil), o.turns...)
}

// RevertToTurn truncates turn_accounting to the first n turns (spec
// §4.G "Revert-to-turn"). The session's history is the provider
// Session's own concern; callers that also need to truncate history
// should do so against Session.History() separately, since this
// Orchestrator never retains its own copy of history.
func (o *Orchestrator) RevertToTurn(ctx context.Context, n int) error {
	o.mu.Lock()
	if n < 0 || n > len(o.turns) {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: revert target %d out of range [0,%d]", n, len(o.turns))
	}
	o.turns = o.turns[:n]
	o.turnCount = n
	o.mu.Unlock()
	o.observer.OnRevert(ctx, n)
	return nil
}

// SendMessage is the Orchestrator's one public operation (spec §4.G):
// send_message(user_text) -> final_text.
func (o *Orchestrator) SendMessage(ctx context.Context, userText string) (string, error) {
	if !o.acquire() {
		return "", ErrSendInProgress
	}
	defer o.release()

	// S0 PREPARE
	effectiveText := userText
	if o.registry != nil {
		enrichment, err := o.registry.EnrichPrompt(ctx, userText)
		if err != nil {
			return "", fmt.Errorf("orchestrator: prompt enrichment: %w", err)
		}
		effectiveText = enrichment.Prompt
	}

	if o.collector != nil {
		history := o.session.History()
		turnCount := o.TurnCount()
		if o.collector.ShouldCollect(turnCount, history) {
			// Only result.Note is used; result.History is not applied to
			// o.session, whose history stays as it was.
			result, err := o.collector.Collect(ctx, history)
			if err == nil {
				o.emit(ctx, Event{Type: EventOutput, Source: "gc", Text: result.Note, Mode: OutputWrite})
			}
		}
	}

	turnIndex := o.TurnCount()
	accounting := jaato.TurnAccounting{StartTime: time.Now()}
	o.emit(ctx, Event{Type: EventTurnStart, TurnIndex: turnIndex})

	finalText, turnErr := o.runTurn(ctx, turnIndex, effectiveText, &accounting)

	// S5 FINALIZE: close the turn-accounting row regardless of outcome —
	// "Provider permanent error -> propagate after closing the turn".
	accounting.EndTime = time.Now()
	accounting.DurationSeconds = accounting.EndTime.Sub(accounting.StartTime).Seconds()

	o.mu.Lock()
	o.turns = append(o.turns, accounting)
	o.turnCount++
	o.mu.Unlock()

	o.emit(ctx, Event{Type: EventTurnEnd, TurnIndex: turnIndex})
	o.observer.OnTurnComplete(ctx, accounting)

	if turnErr != nil {
		return "", turnErr
	}

	o.emit(ctx, Event{Type: EventOutput, TurnIndex: turnIndex, Source: "assistant", Text: finalText, Mode: OutputWrite})
	return finalText, nil
}

// runTurn drives S1 SEND through S4 RETURN TO MODEL, looping on S2
// DISPATCH until the model stops issuing function calls or the
// iteration cap is hit.
func (o *Orchestrator) runTurn(ctx context.Context, turnIndex int, text string, accounting *jaato.TurnAccounting) (string, error) {
	resp, err := o.sendFirst(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			accounting.Cancelled = true
		}
		return "", err
	}
	accounting.Prompt += resp.Usage.Prompt
	accounting.Output += resp.Usage.Output
	accounting.Total += resp.Usage.Total

	for iteration := 0; ; iteration++ {
		// S2 DISPATCH
		if len(resp.FunctionCalls) == 0 {
			return resp.Text, nil
		}
		if iteration >= o.config.MaxToolIterations {
			return resp.Text + "\n\n[stopped: reached max tool iterations]", nil
		}

		select {
		case <-ctx.Done():
			accounting.Cancelled = true
			return "", ctx.Err()
		default:
		}

		// S3 GATE & EXECUTE
		results, timings := o.gateAndExecute(ctx, turnIndex, resp.FunctionCalls)
		accounting.FunctionCalls = append(accounting.FunctionCalls, timings...)

		if ctx.Err() != nil {
			accounting.Cancelled = true
			return "", ctx.Err()
		}

		// S4 RETURN TO MODEL
		resp, err = o.sendToolResults(ctx, results)
		if err != nil {
			if ctx.Err() != nil {
				accounting.Cancelled = true
			}
			return "", err
		}
		accounting.Prompt += resp.Usage.Prompt
		accounting.Output += resp.Usage.Output
		accounting.Total += resp.Usage.Total
	}
}

func (o *Orchestrator) sendFirst(ctx context.Context, text string) (*jaato.ProviderResponse, error) {
	return ledger.Retry(ctx, o.ledger, func(attempt int) (*jaato.ProviderResponse, jaato.TokenUsage, error) {
		resp, err := o.session.SendMessage(ctx, text, nil)
		if err != nil {
			return nil, jaato.TokenUsage{}, err
		}
		return resp, resp.Usage, nil
	})
}

func (o *Orchestrator) sendToolResults(ctx context.Context, results []jaato.ToolResult) (*jaato.ProviderResponse, error) {
	return ledger.Retry(ctx, o.ledger, func(attempt int) (*jaato.ProviderResponse, jaato.TokenUsage, error) {
		resp, err := o.session.SendToolResults(ctx, results, nil)
		if err != nil {
			return nil, jaato.TokenUsage{}, err
		}
		return resp, resp.Usage, nil
	})
}

// gateAndExecute runs spec §4.G's S3 for every call in calls, MAY
// execute them in parallel (grounded on internal/agent/executor.go's
// ExecuteAll: an indexed result slice filled by one goroutine per call,
// joined with sync.WaitGroup). Results are returned in the order the
// model issued the calls (spec §5 ordering guarantee (b)), independent
// of completion order.
func (o *Orchestrator) gateAndExecute(ctx context.Context, turnIndex int, calls []jaato.FunctionCall) ([]jaato.ToolResult, []jaato.FunctionCallTiming) {
	results := make([]jaato.ToolResult, len(calls))
	timings := make([]jaato.FunctionCallTiming, len(calls))

	sem := make(chan struct{}, o.config.MaxParallelTools)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c jaato.FunctionCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result, duration := o.executeOne(ctx, turnIndex, c)
			results[idx] = result
			timings[idx] = jaato.FunctionCallTiming{Name: c.Name, DurationSeconds: duration}
		}(i, call)
	}
	wg.Wait()

	return results, timings
}

func (o *Orchestrator) executeOne(ctx context.Context, turnIndex int, call jaato.FunctionCall) (jaato.ToolResult, float64) {
	start := time.Now()

	owner, ok := o.registry.GetPluginForTool(call.Name)
	if !ok {
		return jaato.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			IsError: true,
			Result:  "unknown tool",
		}, time.Since(start).Seconds()
	}

	argsJSON, err := json.Marshal(call.Args)
	if err != nil {
		argsJSON = json.RawMessage(`{}`)
	}

	decision, permErr := o.permission.Check(ctx, call.Name, argsJSON)
	if permErr != nil {
		if errors.Is(permErr, context.DeadlineExceeded) {
			decision = jaato.Decision{
				Outcome:    jaato.DecisionDenied,
				Reason:     "timeout",
				Method:     jaato.MethodTimeout,
				Scope:      jaato.ScopeOnce,
				ToolName:   call.Name,
				ArgsDigest: permission.ArgsDigest(argsJSON),
			}
		} else {
			return jaato.ToolResult{
				CallID:  call.ID,
				Name:    call.Name,
				IsError: true,
				Result:  fmt.Sprintf("permission check failed: %v", permErr),
			}, time.Since(start).Seconds()
		}
	}

	o.emit(ctx, Event{
		Type:              EventPermissionDecision,
		TurnIndex:         turnIndex,
		ToolName:           call.Name,
		ToolCallID:         call.ID,
		ArgsDigest:         decision.ArgsDigest,
		PermissionOutcome:  string(decision.Outcome),
	})

	permInfo := &jaato.PermissionInfo{Decision: decision.Outcome, Reason: decision.Reason, Method: decision.Method}

	if decision.Outcome == jaato.DecisionDenied {
		return jaato.ToolResult{
			CallID:     call.ID,
			Name:       call.Name,
			IsError:    false,
			Result:     map[string]any{"denied": true, "reason": decision.Reason},
			Permission: permInfo,
		}, time.Since(start).Seconds()
	}

	o.emit(ctx, Event{Type: EventToolStart, TurnIndex: turnIndex, ToolName: call.Name, ToolCallID: call.ID})

	exec, ok := owner.Executors()[call.Name]
	if !ok {
		result := jaato.ToolResult{
			CallID:     call.ID,
			Name:       call.Name,
			IsError:    true,
			Result:     "unknown tool",
			Permission: permInfo,
		}
		duration := time.Since(start).Seconds()
		o.emit(ctx, Event{Type: EventToolEnd, TurnIndex: turnIndex, ToolName: call.Name, ToolCallID: call.ID, Duration: duration, IsError: true})
		return result, duration
	}

	value, execErr := runExecutor(ctx, exec, call.Args)
	duration := time.Since(start).Seconds()

	result := jaato.ToolResult{CallID: call.ID, Name: call.Name, Permission: permInfo}
	if execErr != nil {
		result.IsError = true
		result.Result = execErr.Error()
	} else {
		result.Result = value
	}

	o.emit(ctx, Event{Type: EventToolEnd, TurnIndex: turnIndex, ToolName: call.Name, ToolCallID: call.ID, Duration: duration, IsError: result.IsError})

	return result, duration
}

// runExecutor invokes exec, converting a panic into an error result
// rather than crashing the fan-out goroutine it runs in, mirroring
// internal/agent/executor.go's panic recovery around tool invocation.
func runExecutor(ctx context.Context, exec plugin.Executor, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return exec(ctx, args)
}
