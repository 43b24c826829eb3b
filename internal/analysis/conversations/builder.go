package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/tabletalk-ai/server/internal/analysis/model"
	"github.com/tabletalk-ai/server/internal/analysis/observers"
	"github.com/tabletalk-ai/server/internal/analysis/prompts"
	errx "github.com/tabletalk-ai/server/internal/core/error"
	logx "github.com/tabletalk-ai/server/pkg/logger"
)

// Builder produces the final prompt text for a turn: rendered and summarized
// thread history, optional retrieved document context, and the user's
// standing instructions, composed in a fixed template ordering. It is a pure
// function of the session plus external reads and never mutates SessionState.
type Builder struct {
	backend   model.ExecutionBackend
	retrieval model.RetrievalProvider // may be nil
	events    observers.Sink
}

func NewBuilder(backend model.ExecutionBackend, retrieval model.RetrievalProvider, events observers.Sink) *Builder {
	if events == nil {
		events = observers.NopSink{}
	}
	return &Builder{
		backend:   backend,
		retrieval: retrieval,
		events:    events,
	}
}

// Build returns the prompt to post as the next thread message.
// Initialization turns use the fixed template and skip summarization and
// retrieval entirely.
func (b *Builder) Build(ctx context.Context, state *model.SessionState, query string, initialize bool) (string, error) {
	if initialize {
		return prompts.Initialization(query), nil
	}

	transcript, err := b.renderTranscript(ctx, state.ThreadID)
	if err != nil {
		return "", errx.New(err, errx.KindThread, errx.StageThread, "failed to load thread history")
	}

	summary, err := b.summarize(ctx, transcript, query)
	if err != nil {
		// Proceeding with an empty summary would silently drop the context
		// the model needs to resolve references like "their" or "it", so a
		// summarization failure fails the turn.
		return "", errx.New(err, errx.KindSummarization, errx.StageSummarize, "history summarization failed")
	}
	b.events.Emit(observers.Event{Stage: errx.StageSummarize, Note: "history summarized"})

	chunk := b.retrieve(ctx, query)

	return prompts.ComposeTurn(state.UserInstructions, query, summary, chunk), nil
}

// renderTranscript fetches the full thread history in ascending order and
// renders it as alternating user:/assistant: lines, sanitized so quoting in
// past messages cannot corrupt downstream JSON escaping.
func (b *Builder) renderTranscript(ctx context.Context, threadID string) (string, error) {
	messages, err := b.backend.ListMessages(ctx, threadID, model.OrderAscending, 0)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			sb.WriteString("user: ")
		case schema.Assistant:
			sb.WriteString("assistant: ")
		default:
			continue
		}
		sb.WriteString(prompts.SanitizeTranscriptLine(msg.Content))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// summarize makes exactly one auxiliary completion call per turn. No retry:
// the poller owns the system's only retry loop.
func (b *Builder) summarize(ctx context.Context, transcript, query string) (string, error) {
	return b.backend.CreateChatCompletion(ctx, []*schema.Message{
		schema.SystemMessage(prompts.SummarizerSystemPrompt()),
		schema.UserMessage(prompts.SummarizeInput(transcript, query)),
	})
}

// retrieve asks the provider for the most relevant document chunk. Absence
// of a provider, an empty result, or a provider error are all non-fatal.
func (b *Builder) retrieve(ctx context.Context, query string) *model.RetrievedChunk {
	if b.retrieval == nil {
		return nil
	}
	chunk, err := b.retrieval.GetRelevantContext(ctx, query)
	if err != nil {
		logx.Warn().Err(err).Msg("retrieval provider failed, proceeding without document context")
		return nil
	}
	if chunk == nil || chunk.Text == "" {
		return nil
	}
	return chunk
}
