package model

import "context"

// SessionStore persists session state and the append-only history log across
// process restarts. The orchestrator core is stateless between calls; the
// store is a caller-side convenience and its failures never fail a turn.
type SessionStore interface {
	// SaveState upserts the full session state.
	SaveState(ctx context.Context, state *SessionState) error

	// LoadState retrieves a session by id; (nil, nil) when absent.
	LoadState(ctx context.Context, sessionID string) (*SessionState, error)

	// AppendHistory appends one completed turn to the session's history log.
	AppendHistory(ctx context.Context, sessionID string, entry HistoryEntry) error

	// LoadHistory retrieves the ordered history log for a session.
	LoadHistory(ctx context.Context, sessionID string) ([]HistoryEntry, error)

	// Clear removes all persisted data for a session.
	Clear(ctx context.Context, sessionID string) error
}
