package observers

import (
	logx "github.com/tabletalk-ai/server/pkg/logger"
)

// Event is one stage-tagged observation emitted by the orchestration
// pipeline. Attempt and Status are only set for poll events.
type Event struct {
	Stage   string
	Attempt int
	Status  string
	Note    string
	Err     error
}

// Sink receives pipeline events. It is injected once at orchestrator
// construction; implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
}

// LogSink writes events through the shared zerolog logger.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Emit(e Event) {
	ev := logx.Debug()
	if e.Err != nil {
		ev = logx.Warn().Err(e.Err)
	}
	ev = ev.Str("stage", e.Stage)
	if e.Attempt > 0 {
		ev = ev.Int("attempt", e.Attempt)
	}
	if e.Status != "" {
		ev = ev.Str("status", e.Status)
	}
	ev.Msg(e.Note)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}
