package orchestrator

import (
	"context"

	"github.com/jaatoai/jaato/internal/jaato"
)

// CollectResult is the outcome of one GC plugin collection pass: the
// replacement history and a human-readable note recorded as a GC event
// (spec §4.G S0: "collapse history via collect, recording a GC event").
type CollectResult struct {
	History jaato.History
	Note    string
}

// ContextCollector is the GC plugin seam spec §4.G's S0 PREPARE step
// names: "if a GC plugin is installed and should_collect returns true
// (by threshold or turn limit), collapse history via collect". When
// ShouldCollect returns true, the Orchestrator calls Collect and emits
// CollectResult.Note as a "gc" output event; it does not install
// CollectResult.History into the provider Session, so the history the
// provider holds is left unchanged.
type ContextCollector interface {
	ShouldCollect(turnCount int, history jaato.History) bool
	Collect(ctx context.Context, history jaato.History) (CollectResult, error)
}

// TurnLimitCollector is a minimal ContextCollector that collapses
// history to a single synthetic summary message once turnCount reaches
// MaxTurns, keeping the last KeepLast messages verbatim. Grounded on
// internal/agent/compaction.go's threshold-triggered CompactionManager,
// narrowed to a turn-count trigger since this runtime's history is the
// provider-agnostic jaato.History rather than the teacher's packer-based
// token accounting.
type TurnLimitCollector struct {
	MaxTurns int
	KeepLast int
}

func (c TurnLimitCollector) ShouldCollect(turnCount int, history jaato.History) bool {
	if c.MaxTurns <= 0 {
		return false
	}
	return turnCount > 0 && turnCount%c.MaxTurns == 0
}

func (c TurnLimitCollector) Collect(ctx context.Context, history jaato.History) (CollectResult, error) {
	keep := c.KeepLast
	if keep <= 0 || keep > len(history) {
		keep = len(history)
	}
	dropped := len(history) - keep
	if dropped <= 0 {
		return CollectResult{History: history, Note: "nothing to collect"}, nil
	}

	summary := jaato.Message{
		Role:  jaato.RoleUser,
		Parts: []jaato.Part{jaato.NewTextPart("[earlier conversation summarized to stay within context]")},
	}
	collapsed := make(jaato.History, 0, keep+1)
	collapsed = append(collapsed, summary)
	collapsed = append(collapsed, history[len(history)-keep:]...)

	return CollectResult{
		History: collapsed,
		Note:    "collapsed history",
	}, nil
}
