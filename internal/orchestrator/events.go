// Package orchestrator implements the Orchestrator ("JaatoClient", spec
// §4.G): the hard core that turns a user prompt into a final textual
// answer by alternating provider calls and tool executions. Grounded on
// internal/agent/loop.go's AgenticLoop state machine (Init/Stream/
// ExecuteTools/Complete), internal/agent/executor.go's parallel fan-out
// with a concurrency semaphore, and internal/agent/event_emitter.go +
// event_sink.go's sequenced-event dispatch — reworked to depend on
// internal/provider, internal/plugin, internal/permission, and
// internal/ledger rather than the teacher's own LLMProvider/
// ToolRegistry/ApprovalChecker types.
package orchestrator

import "context"

// EventType names one of the Orchestrator's emitted events (spec §4.G
// "Events emitted").
type EventType string

const (
	EventPlanUpdate         EventType = "on_plan_update"
	EventPermissionDecision EventType = "on_permission_decision"
	EventToolStart          EventType = "on_tool_start"
	EventToolEnd            EventType = "on_tool_end"
	EventTurnStart          EventType = "on_turn_start"
	EventTurnEnd            EventType = "on_turn_end"
	EventOutput             EventType = "on_output"
)

// OutputMode distinguishes a new output block from a streamed
// continuation of the previous one (spec §4.G, on_output's mode field).
type OutputMode string

const (
	OutputWrite  OutputMode = "write"
	OutputAppend OutputMode = "append"
)

// Event is one occurrence the Orchestrator reports to a UI or a session
// plugin. Only the fields relevant to Type are populated; the rest are
// zero.
type Event struct {
	Type EventType

	// TurnIndex is the 0-based turn this event belongs to.
	TurnIndex int

	// Tool-scoped fields (on_tool_start, on_tool_end, on_permission_decision).
	ToolName   string
	ToolCallID string
	ArgsDigest string
	Duration   float64 // seconds, on_tool_end only
	IsError    bool    // on_tool_end only

	// Permission-scoped field (on_permission_decision).
	PermissionOutcome string

	// Output-scoped fields (on_output).
	Source string
	Text   string
	Mode   OutputMode

	// Plan-scoped field (on_plan_update); opaque payload forwarded
	// verbatim to a TODO/plan plugin.
	Plan any
}

// Sink receives Events during an Orchestrator run. Implementations must
// be safe to call from multiple goroutines (a turn's tool fan-out emits
// on_tool_start/on_tool_end concurrently), grounded on
// internal/agent/event_sink.go's EventSink contract.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// NopSink discards every event. New uses it when passed a nil sink, so a
// caller need not wire a sink to exercise the state machine.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// ChanSink delivers events to a buffered channel, dropping an event
// rather than blocking the emitting goroutine when the channel is full
// (grounded on internal/agent/event_sink.go's ChanSink).
type ChanSink struct {
	ch chan<- Event
}

// NewChanSink wraps ch. The channel should be buffered; an unbuffered
// channel with no active receiver silently drops every event.
func NewChanSink(ch chan<- Event) ChanSink {
	return ChanSink{ch: ch}
}

func (s ChanSink) Emit(ctx context.Context, e Event) {
	if s.ch == nil {
		return
	}
	select {
	case s.ch <- e:
	case <-ctx.Done():
	default:
	}
}

// MultiSink fans an Event out to every wrapped Sink in order.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) MultiSink {
	return MultiSink{sinks: sinks}
}

func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m.sinks {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}
