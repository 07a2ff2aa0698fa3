package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaatoai/jaato/internal/jaato"
)

// sessionFileVersion is the only version this package writes and reads
// (spec §6 "Session persistence file format (v2)").
const sessionFileVersion = "2.0"

// ConnectionInfo records which provider/model/location a persisted
// session was speaking to, per spec §6's "connection{project, location,
// model}" field.
type ConnectionInfo struct {
	Project  string `json:"project,omitempty"`
	Location string `json:"location,omitempty"`
	Model    string `json:"model,omitempty"`
}

// SessionState is the exact v2 persistence shape spec §6 defines. It is
// also the type the SUPPLEMENTED session-persistence plugin contract
// (SessionPersister) loads and saves, grounded on
// internal/agent/tape/tape.go's Tape (a single self-describing JSON
// document: version, metadata, and the recorded conversation) and
// internal/sessions/store.go's Store (CRUD over a *models.Session plus
// its message history) — narrowed here to the file-format shape the
// spec actually fixes rather than a SQL-backed Store.
type SessionState struct {
	Version        string                 `json:"version"`
	SessionID      string                 `json:"session_id"`
	Description    string                 `json:"description,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	TurnCount      int                    `json:"turn_count"`
	TurnAccounting []jaato.TurnAccounting `json:"turn_accounting"`
	UserInputs     []string               `json:"user_inputs"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	Connection     ConnectionInfo         `json:"connection"`
	History        jaato.History          `json:"history"`
}

// Snapshot builds a SessionState from this Session's current state.
// createdAt should be the time the session was first opened; callers
// that do not track it across process restarts may pass the zero time,
// in which case a round-tripped Load preserves whatever was previously
// on disk (see FileSessionPersister.Save).
func (s *Session) Snapshot(createdAt time.Time, userInputs []string, connection ConnectionInfo, metadata map[string]any) SessionState {
	return SessionState{
		Version:        sessionFileVersion,
		SessionID:      s.id,
		Description:    s.description,
		CreatedAt:      createdAt,
		UpdatedAt:      time.Now(),
		TurnCount:      s.TurnCount(),
		TurnAccounting: s.TurnAccounting(),
		UserInputs:     userInputs,
		Metadata:       metadata,
		Connection:     connection,
		History:        s.History(),
	}
}

// SessionPersister is the SUPPLEMENTED session-persistence plugin seam
// (spec.md's §6 fixes the file format but not the plugin contract;
// _examples/original_source's shared/plugins/session/* supplies it).
// RequestDescription reports whether the persister wants an
// LLM-generated one-line description before the first Save (the
// teacher's session plugins prompt for this on first persist, then
// cache it — see DESIGN.md).
type SessionPersister interface {
	Load(sessionID string) (*SessionState, error)
	Save(state *SessionState) error
	RequestDescription() bool
}

// FileSessionPersister persists SessionState as one JSON file per
// session, named "<session_id>.json" under Dir. Grounded on
// internal/agent/tape/tape.go's WriteFile/ReadFile (a single
// json.MarshalIndent'd document per conversation).
type FileSessionPersister struct {
	Dir              string
	WantsDescription bool
}

// NewFileSessionPersister builds a FileSessionPersister rooted at dir.
// dir is created on first Save if it does not already exist.
func NewFileSessionPersister(dir string) *FileSessionPersister {
	return &FileSessionPersister{Dir: dir}
}

func (p *FileSessionPersister) path(sessionID string) string {
	return filepath.Join(p.Dir, sessionID+".json")
}

// Load reads and decodes the session file for sessionID. A missing file
// returns a wrapped os.ErrNotExist so callers can distinguish "new
// session" from a genuine I/O failure.
func (p *FileSessionPersister) Load(sessionID string) (*SessionState, error) {
	data, err := os.ReadFile(p.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("runtime: loading session %q: %w", sessionID, err)
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("runtime: decoding session %q: %w", sessionID, err)
	}
	return &state, nil
}

// Save writes state to its session file, creating Dir if necessary. If
// a prior file exists and state.CreatedAt is the zero time, the
// existing file's CreatedAt is preserved so repeated Saves across a
// process restart do not reset the session's creation timestamp.
func (p *FileSessionPersister) Save(state *SessionState) error {
	if state.CreatedAt.IsZero() {
		if prior, err := p.Load(state.SessionID); err == nil {
			state.CreatedAt = prior.CreatedAt
		} else {
			state.CreatedAt = state.UpdatedAt
		}
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("runtime: creating session directory %q: %w", p.Dir, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("runtime: encoding session %q: %w", state.SessionID, err)
	}

	tmp := p.path(state.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("runtime: writing session %q: %w", state.SessionID, err)
	}
	return os.Rename(tmp, p.path(state.SessionID))
}

// RequestDescription reports whether this persister wants a generated
// description before its first Save.
func (p *FileSessionPersister) RequestDescription() bool {
	return p.WantsDescription
}
