package model

// AnalysisRequest is one user turn.
type AnalysisRequest struct {
	Query      string `json:"query"`
	Initialize bool   `json:"initialize"`
}

// AnalysisResponse is the structured contract the remote model must return.
// All four fields are required; a missing field is a validation failure, not
// a partial success. Field names follow the assistant's instructed JSON
// format, so steps/results arrive as ordered narrative strings.
type AnalysisResponse struct {
	Code        string   `json:"code"`
	Steps       []string `json:"steps"`
	Results     []string `json:"results"`
	FinalAnswer string   `json:"final_answer"`
}

// RequiredResponseFields lists the JSON keys the model must always return.
var RequiredResponseFields = []string{"code", "steps", "results", "final_answer"}

// ResponseContract describes the response-format requirement attached to a
// run submission.
type ResponseContract struct {
	RequiredFields []string
}

// DefaultContract returns the standard four-field analysis contract.
func DefaultContract() ResponseContract {
	fields := make([]string, len(RequiredResponseFields))
	copy(fields, RequiredResponseFields)
	return ResponseContract{RequiredFields: fields}
}

// RunStatus enumerates the remote run lifecycle.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunRequiresAction RunStatus = "requires_action"
)

// Terminal reports whether the status is an end state of a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// Failure reports whether the status is a terminal failure.
func (s RunStatus) Failure() bool {
	switch s {
	case RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// RunInfo is the poller's view of a submitted run.
type RunInfo struct {
	ID        string
	Status    RunStatus
	LastError string
}
