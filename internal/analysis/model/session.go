package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the full conversational context for one analysis session.
// It is an explicit value: the orchestrator receives it with every call and
// returns the updated copy, no process-wide state is kept anywhere.
//
// Invariants:
//   - ThreadID and FileID are set at most once and never change afterwards;
//     a new dataset requires a new session.
//   - FileUploadedToThread flips true exactly once, when the file-attachment
//     message is posted, and implies both ThreadID and FileID are set.
type SessionState struct {
	SessionID            string         `json:"session_id"`
	ThreadID             string         `json:"thread_id"`
	FileID               string         `json:"file_id"`
	FileUploadedToThread bool           `json:"file_uploaded_to_thread"`
	UserInstructions     string         `json:"user_instructions"`
	History              []HistoryEntry `json:"history"`
	LastActivity         time.Time      `json:"last_activity"`
}

// HistoryEntry records one completed analysis turn, append-only.
type HistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Query       string    `json:"query"`
	FinalAnswer string    `json:"final_answer"`
	Steps       []string  `json:"steps"`
	Results     []string  `json:"results"`
}

// NewSessionState creates an empty session with a fresh identifier.
func NewSessionState() SessionState {
	return SessionState{SessionID: uuid.NewString()}
}

// Reset clears all remote identifiers and local history, keeping only the
// session id and user instructions. Used for "new analysis" and stale-thread
// teardown.
func (s *SessionState) Reset() {
	s.ThreadID = ""
	s.FileID = ""
	s.FileUploadedToThread = false
	s.History = nil
	s.LastActivity = time.Time{}
}

// StaleAt reports whether the session's last activity is older than maxAge
// at the given instant. Sessions that never ran are not stale.
func (s *SessionState) StaleAt(now time.Time, maxAge time.Duration) bool {
	if s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.LastActivity) > maxAge
}

// Touch records activity on the session.
func (s *SessionState) Touch(now time.Time) {
	s.LastActivity = now
}
