package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tabletalk-ai/server/internal/analysis/conversations"
	"github.com/tabletalk-ai/server/internal/analysis/dataset"
	"github.com/tabletalk-ai/server/internal/analysis/model"
	"github.com/tabletalk-ai/server/internal/analysis/observers"
	"github.com/tabletalk-ai/server/internal/analysis/parsers"
	"github.com/tabletalk-ai/server/internal/analysis/poller"
	"github.com/tabletalk-ai/server/internal/analysis/prompts"
	errx "github.com/tabletalk-ai/server/internal/core/error"
	logx "github.com/tabletalk-ai/server/pkg/logger"
)

// Status tags the outcome of an orchestrator call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const defaultStaleAfter = 5 * time.Minute

// Result is the tagged outcome of one analysis turn. Errors are data: the
// orchestrator never lets a fault escape to its caller.
type Result struct {
	Status   Status
	Response *model.AnalysisResponse
	Kind     errx.Kind
	Error    string
	State    model.SessionState
}

// InitResult is the tagged outcome of session initialization.
type InitResult struct {
	Status   Status
	ThreadID string
	FileID   string
	Kind     errx.Kind
	Error    string
	State    model.SessionState
}

// Config holds everything needed to compose the orchestrator end-to-end.
type Config struct {
	Backend   model.ExecutionBackend
	Retrieval model.RetrievalProvider // optional
	Store     model.SessionStore      // optional
	Events    observers.Sink          // optional, defaults to the log sink
	Assistant model.AssistantConfig
	Poll      model.PollConfig
	Session   model.SessionConfig
}

// Orchestrator owns the session lifecycle: one thread and one uploaded file
// per session, context construction, run submission and polling, and
// response validation. It keeps no session state of its own; SessionState
// round-trips through the caller on every call.
type Orchestrator struct {
	backend     model.ExecutionBackend
	builder     *conversations.Builder
	poller      *poller.Poller
	store       model.SessionStore
	events      observers.Sink
	assistantID string
	contract    model.ResponseContract
	staleAfter  time.Duration

	now func() time.Time
}

// New wires the pipeline and provisions the assistant persona when no
// existing assistant id is configured.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("execution backend is nil")
	}

	events := cfg.Events
	if events == nil {
		events = observers.NewLogSink()
	}

	staleAfter := defaultStaleAfter
	if cfg.Session.StaleAfter != "" {
		d, err := time.ParseDuration(cfg.Session.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_STALE_AFTER %q: %w", cfg.Session.StaleAfter, err)
		}
		staleAfter = d
	}

	assistantID := cfg.Assistant.ID
	if assistantID == "" {
		id, err := cfg.Backend.CreateAssistant(ctx, model.AssistantSpec{
			Model:        cfg.Assistant.Model,
			Name:         cfg.Assistant.Name,
			Instructions: prompts.AssistantInstructions(),
		})
		if err != nil {
			return nil, fmt.Errorf("assistant provisioning failed: %w", err)
		}
		assistantID = id
		logx.Info().Str("assistant_id", assistantID).Msg("created analysis assistant")
	}

	return &Orchestrator{
		backend:     cfg.Backend,
		builder:     conversations.NewBuilder(cfg.Backend, cfg.Retrieval, events),
		poller:      poller.New(cfg.Backend, events, cfg.Poll),
		store:       cfg.Store,
		events:      events,
		assistantID: assistantID,
		contract:    model.DefaultContract(),
		staleAfter:  staleAfter,
		now:         time.Now,
	}, nil
}

// AssistantID returns the provisioned or configured assistant id.
func (o *Orchestrator) AssistantID() string {
	return o.assistantID
}

// InitializeSession uploads the dataset once, creates the thread once, and
// posts the initial attachment message, without running an analysis turn.
// Idempotent per session: once the file is attached, this is a no-op that
// returns the existing identifiers.
func (o *Orchestrator) InitializeSession(ctx context.Context, state model.SessionState, filename string, data []byte) (res InitResult) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Msgf("panic recovered in InitializeSession: %v", r)
			res = initError(state, errx.Newf(nil, errx.KindUnknown, "", "unexpected failure: %v", r))
		}
	}()

	if state.FileUploadedToThread {
		return InitResult{Status: StatusSuccess, ThreadID: state.ThreadID, FileID: state.FileID, State: state}
	}

	summary, err := dataset.Validate(data)
	if err != nil {
		return initError(state, errx.New(err, errx.KindUpload, errx.StageUpload, "dataset rejected"))
	}
	logx.Debug().Int("rows", summary.Rows).Int("columns", summary.Columns).Str("filename", filename).
		Msg("dataset validated")

	if state.FileID == "" {
		fileID, err := o.backend.UploadFile(ctx, filename, data)
		if err != nil {
			return initError(state, errx.New(err, errx.KindUpload, errx.StageUpload, "file upload failed"))
		}
		state.FileID = fileID
		o.events.Emit(observers.Event{Stage: errx.StageUpload, Note: "file uploaded"})
	}

	if state.ThreadID == "" {
		threadID, err := o.backend.CreateThread(ctx)
		if err != nil {
			return initError(state, errx.New(err, errx.KindThread, errx.StageThread, "thread creation failed"))
		}
		state.ThreadID = threadID
	}

	prompt := prompts.Initialization(prompts.InitializationQuery)
	if _, err := o.backend.CreateMessage(ctx, state.ThreadID, prompt, state.FileID); err != nil {
		return initError(state, errx.New(err, errx.KindThread, errx.StageThread, "attachment message failed"))
	}
	state.FileUploadedToThread = true
	state.Touch(o.now())
	o.persist(ctx, &state)

	return InitResult{Status: StatusSuccess, ThreadID: state.ThreadID, FileID: state.FileID, State: state}
}

// RunAnalysis executes one analysis turn: build context, post the prompt,
// poll the run to completion, parse and validate the response, and append
// the turn to history. Supports both init-then-query and single-call usage;
// a missing thread is created on the fly.
//
// Callers must not invoke RunAnalysis concurrently for the same thread; the
// backend rejects a second in-flight run. Runs left non-terminal by a prior
// aborted call are cancelled before submission.
func (o *Orchestrator) RunAnalysis(ctx context.Context, state model.SessionState, query string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Msgf("panic recovered in RunAnalysis: %v", r)
			res = errorResult(state, errx.Newf(nil, errx.KindUnknown, "", "unexpected failure: %v", r))
		}
	}()

	if query == "" {
		return errorResult(state, errx.New(nil, errx.KindValidation, "", "query is empty"))
	}

	if state.ThreadID == "" {
		threadID, err := o.backend.CreateThread(ctx)
		if err != nil {
			return errorResult(state, errx.New(err, errx.KindThread, errx.StageThread, "thread creation failed"))
		}
		state.ThreadID = threadID
	}

	o.cancelStaleRuns(ctx, state.ThreadID)

	initialize := query == prompts.InitializationQuery
	prompt, err := o.builder.Build(ctx, &state, query, initialize)
	if err != nil {
		return errorResult(state, err)
	}

	if _, err := o.backend.CreateMessage(ctx, state.ThreadID, prompt); err != nil {
		return errorResult(state, errx.New(err, errx.KindThread, errx.StageRunSubmit, "failed to post analysis prompt"))
	}

	if _, err := o.poller.Run(ctx, state.ThreadID, o.assistantID, o.contract); err != nil {
		return errorResult(state, err)
	}

	raw, err := o.latestAssistantMessage(ctx, state.ThreadID)
	if err != nil {
		return errorResult(state, err)
	}

	resp, err := parsers.ParseAnalysisResponse(raw)
	if err != nil {
		return errorResult(state, err)
	}
	o.events.Emit(observers.Event{Stage: errx.StageParse, Note: "response validated"})

	entry := model.HistoryEntry{
		Timestamp:   o.now(),
		Query:       query,
		FinalAnswer: resp.FinalAnswer,
		Steps:       resp.Steps,
		Results:     resp.Results,
	}
	state.History = append(state.History, entry)
	state.Touch(o.now())
	o.persistTurn(ctx, &state, entry)

	return Result{Status: StatusSuccess, Response: resp, State: state}
}

// Maintain performs the synchronous staleness check: a thread whose last
// activity exceeds the configured age is torn down and the session reset.
// Returns the (possibly reset) state and whether eviction happened.
func (o *Orchestrator) Maintain(ctx context.Context, state model.SessionState) (model.SessionState, bool) {
	if !state.StaleAt(o.now(), o.staleAfter) {
		return state, false
	}
	logx.Info().Str("session_id", state.SessionID).Str("thread_id", state.ThreadID).
		Msg("session thread stale, tearing down")
	return o.Reset(ctx, state), true
}

// Reset destroys the session's remote resources (best effort) and returns an
// empty state under the same session id, as for a "new analysis" request.
func (o *Orchestrator) Reset(ctx context.Context, state model.SessionState) model.SessionState {
	if state.ThreadID != "" {
		o.cancelStaleRuns(ctx, state.ThreadID)
	}
	if state.FileID != "" {
		if err := o.backend.DeleteFile(ctx, state.FileID); err != nil {
			logx.Warn().Err(err).Str("file_id", state.FileID).Msg("failed to delete uploaded file")
		}
	}
	if o.store != nil {
		if err := o.store.Clear(ctx, state.SessionID); err != nil {
			logx.Warn().Err(err).Str("session_id", state.SessionID).Msg("failed to clear persisted session")
		}
	}
	state.Reset()
	return state
}

// cancelStaleRuns cancels any run left in a non-terminal state on the thread
// by a prior aborted attempt. The backend rejects a second concurrent run on
// one thread, so stale runs must be cleaned up before submission. Failures
// here are non-fatal; a surviving stale run will fail the submission itself.
func (o *Orchestrator) cancelStaleRuns(ctx context.Context, threadID string) {
	runs, err := o.backend.ListRuns(ctx, threadID)
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", threadID).Msg("failed to list runs for cleanup")
		return
	}
	for _, run := range runs {
		if run.Status.Terminal() {
			continue
		}
		if err := o.backend.CancelRun(ctx, threadID, run.ID); err != nil {
			logx.Warn().Err(err).Str("run_id", run.ID).Msg("failed to cancel stale run")
			continue
		}
		logx.Info().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("cancelled stale run")
	}
}

// latestAssistantMessage returns the newest assistant message text on the
// thread.
func (o *Orchestrator) latestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	messages, err := o.backend.ListMessages(ctx, threadID, model.OrderDescending, 10)
	if err != nil {
		return "", errx.New(err, errx.KindThread, errx.StageParse, "failed to retrieve assistant response")
	}
	for _, msg := range messages {
		if msg.Role == schema.Assistant && msg.Content != "" {
			return msg.Content, nil
		}
	}
	return "", errx.New(nil, errx.KindParse, errx.StageParse, "no assistant message on thread")
}

// persist saves state to the store when one is configured. Store failures
// never fail the turn; the state still round-trips through the caller.
func (o *Orchestrator) persist(ctx context.Context, state *model.SessionState) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveState(ctx, state); err != nil {
		logx.Warn().Err(err).Str("session_id", state.SessionID).Msg("failed to persist session state")
	}
}

func (o *Orchestrator) persistTurn(ctx context.Context, state *model.SessionState, entry model.HistoryEntry) {
	if o.store == nil {
		return
	}
	if err := o.store.AppendHistory(ctx, state.SessionID, entry); err != nil {
		logx.Warn().Err(err).Str("session_id", state.SessionID).Msg("failed to persist history entry")
	}
	o.persist(ctx, state)
}

func errorResult(state model.SessionState, err error) Result {
	logx.Error().Err(err).Str("stage", errx.StageOf(err)).Msg("analysis turn failed")
	return Result{
		Status: StatusError,
		Kind:   errx.KindOf(err),
		Error:  err.Error(),
		State:  state,
	}
}

func initError(state model.SessionState, err error) InitResult {
	logx.Error().Err(err).Str("stage", errx.StageOf(err)).Msg("session initialization failed")
	return InitResult{
		Status: StatusError,
		Kind:   errx.KindOf(err),
		Error:  err.Error(),
		State:  state,
	}
}
