package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaatoai/jaato/internal/jaato"
	"github.com/jaatoai/jaato/internal/orchestrator"
	"github.com/jaatoai/jaato/internal/provider"
)

// Session binds to a Runtime and owns a live provider chat session, its
// history, its turn accounting, and the Orchestrator driving it (spec
// §4.H). A Session is the unit of concurrency: within a session, all
// operations are sequential from the caller's point of view (enforced
// by the Runtime's Locker around every SendMessage), while the
// Orchestrator fans tool executions out in parallel internally.
type Session struct {
	id              string
	runtime         *Runtime
	providerSession provider.Session
	orchestrator    *orchestrator.Orchestrator
	logger          *slog.Logger

	description string
}

// ID returns the session identifier this Session was opened with.
func (s *Session) ID() string { return s.id }

// SendMessage serializes on the owning Runtime's Locker (spec §5
// "One-at-a-time per session") and then drives one full turn through
// the Orchestrator.
func (s *Session) SendMessage(ctx context.Context, userText string) (string, error) {
	if err := s.runtime.locker.Lock(ctx, s.id); err != nil {
		return "", fmt.Errorf("runtime: acquiring session lock: %w", err)
	}
	defer s.runtime.locker.Unlock(s.id)

	s.logger.Debug("session send_message", "session_id", s.id, "turn", s.orchestrator.TurnCount())
	return s.orchestrator.SendMessage(ctx, userText)
}

// History returns the session's message history as the provider Session
// currently holds it.
func (s *Session) History() jaato.History {
	return s.providerSession.History()
}

// TurnAccounting returns every closed turn's accounting row, in strict
// turn order.
func (s *Session) TurnAccounting() []jaato.TurnAccounting {
	return s.orchestrator.TurnAccounting()
}

// TurnCount returns the number of turns finalized so far.
func (s *Session) TurnCount() int {
	return s.orchestrator.TurnCount()
}

// RevertToTurn truncates this session's turn accounting to the first n
// turns (spec §4.G "Revert-to-turn"). Truncating the provider session's
// own history to match is provider-specific and left to the caller
// (most providers rebuild a session from a truncated history rather
// than mutating one in place).
func (s *Session) RevertToTurn(ctx context.Context, n int) error {
	return s.orchestrator.RevertToTurn(ctx, n)
}

// Describe sets the human-readable description persisted alongside this
// session (spec §6 session persistence file format's optional
// "description" field).
func (s *Session) Describe(description string) {
	s.description = description
}
