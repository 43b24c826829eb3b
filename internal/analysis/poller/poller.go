package poller

import (
	"context"
	"time"

	"github.com/tabletalk-ai/server/internal/analysis/model"
	"github.com/tabletalk-ai/server/internal/analysis/observers"
	errx "github.com/tabletalk-ai/server/internal/core/error"
	logx "github.com/tabletalk-ai/server/pkg/logger"
)

// Poller submits one run and drives it to a terminal state. It is the
// system's only retry logic, bounded in both attempt count and wall-clock
// time so a stuck remote run can never consume unbounded resources.
//
// Failure statuses (failed, cancelled, expired) are polled through until the
// final attempt: transient backend flakiness has been observed to report a
// run failed and later complete, so one failure observation costs an attempt
// rather than aborting the turn.
type Poller struct {
	backend model.ExecutionBackend
	events  observers.Sink
	cfg     model.PollConfig

	// injectable clock for tests
	sleep func(time.Duration)
	now   func() time.Time
}

func New(backend model.ExecutionBackend, events observers.Sink, cfg model.PollConfig) *Poller {
	if events == nil {
		events = observers.NopSink{}
	}
	return &Poller{
		backend: backend,
		events:  events,
		cfg:     cfg,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Run submits a run on the thread and polls it until completed, terminally
// failed, or out of budget. Reaching either bound while the run is still
// non-terminal issues an explicit cancel before returning, so the backend is
// never left with an orphaned run believed to still be executing.
func (p *Poller) Run(ctx context.Context, threadID, assistantID string, contract model.ResponseContract) (model.RunInfo, error) {
	runID, err := p.backend.CreateRun(ctx, threadID, assistantID, contract)
	if err != nil {
		return model.RunInfo{}, errx.New(err, errx.KindRunFailed, errx.StageRunSubmit, "run submission failed")
	}
	p.events.Emit(observers.Event{Stage: errx.StageRunSubmit, Note: "run submitted"})

	started := p.now()
	var last model.RunInfo

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			// the caller's context is already dead; detach so the cancel
			// request can still reach the backend
			p.cancel(context.WithoutCancel(ctx), threadID, runID)
			return last, errx.New(ctx.Err(), errx.KindRunTimeout, errx.StagePoll, "run aborted by caller")
		}
		if elapsed := p.now().Sub(started); elapsed > p.cfg.Timeout() {
			// Wall-clock guard, independent of attempt count. Covers
			// pathological per-attempt latency spikes.
			p.cancel(ctx, threadID, runID)
			return last, errx.Newf(nil, errx.KindRunTimeout, errx.StagePoll,
				"run exceeded %s after %d attempts", p.cfg.Timeout(), attempt-1)
		}

		last, err = p.backend.GetRun(ctx, threadID, runID)
		if err != nil {
			return last, errx.Newf(err, errx.KindRunFailed, errx.StagePoll,
				"run status retrieval failed on attempt %d", attempt)
		}
		p.events.Emit(observers.Event{Stage: errx.StagePoll, Attempt: attempt, Status: string(last.Status)})

		switch {
		case last.Status == model.RunCompleted:
			return last, nil

		case last.Status.Failure():
			if attempt == p.cfg.MaxAttempts {
				return last, errx.Newf(nil, errx.KindRunFailed, errx.StagePoll,
					"run ended with status %q: %s", last.Status, backendDetail(last))
			}
			// lost attempt, poll again after backoff

		case last.Status == model.RunQueued, last.Status == model.RunInProgress,
			last.Status == model.RunRequiresAction:
			// still working, wait and poll again

		default:
			logx.Warn().
				Str("run_id", runID).
				Str("status", string(last.Status)).
				Msg("unexpected run status, treating as in progress")
		}

		if attempt < p.cfg.MaxAttempts {
			p.sleep(p.waitFor(attempt))
		}
	}

	// Attempts exhausted while the run is still non-terminal.
	p.cancel(ctx, threadID, runID)
	return last, errx.Newf(nil, errx.KindRunTimeout, errx.StagePoll,
		"run still %q after %d attempts", last.Status, p.cfg.MaxAttempts)
}

// waitFor returns the fixed-interval backoff after the given attempt.
func (p *Poller) waitFor(attempt int) time.Duration {
	if attempt == 1 {
		return p.cfg.InitialWait()
	}
	return p.cfg.SubsequentWait()
}

func (p *Poller) cancel(ctx context.Context, threadID, runID string) {
	if err := p.backend.CancelRun(ctx, threadID, runID); err != nil {
		logx.Warn().Err(err).Str("run_id", runID).Msg("failed to cancel run after timeout")
		p.events.Emit(observers.Event{Stage: errx.StagePoll, Note: "cancel failed", Err: err})
		return
	}
	p.events.Emit(observers.Event{Stage: errx.StagePoll, Note: "run cancelled"})
}

func backendDetail(info model.RunInfo) string {
	if info.LastError == "" {
		return "no backend error detail"
	}
	return info.LastError
}
