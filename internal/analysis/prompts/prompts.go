package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/tabletalk-ai/server/internal/analysis/model"
)

//go:embed template/assistant_instructions.txt
var assistantInstructions string

// InitializationQuery is the sentinel query used for session initialization
// turns. Initialization bypasses summarization and retrieval entirely.
const InitializationQuery = "Initialize data analysis"

// summarizerSystemPrompt drives the single auxiliary completion call per
// turn. The model cannot resolve references like "their" or "it" without the
// combined query, so summarization is a correctness requirement, not an
// optimization.
const summarizerSystemPrompt = `You compress data-analysis conversations. ` +
	`Given the transcript of an analysis thread and a new question, produce one ` +
	`concise combined query that captures the prior context plus the new question. ` +
	`Resolve pronouns and implicit references (such as "it", "their", "the last result") ` +
	`into explicit terms. Return only the combined query text.`

// AssistantInstructions returns the fixed instruction block for the
// code-interpreter assistant persona.
func AssistantInstructions() string {
	return assistantInstructions
}

// SummarizerSystemPrompt returns the fixed system instruction for transcript
// summarization.
func SummarizerSystemPrompt() string {
	return summarizerSystemPrompt
}

// Initialization renders the prompt for an initialization turn.
func Initialization(query string) string {
	return "Consider the uploaded file and analyze: " + query
}

// SummarizeInput renders the user message for the summarization call.
func SummarizeInput(transcript, query string) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nNew question: ")
	b.WriteString(query)
	return b.String()
}

// ComposeTurn renders the final prompt posted as the thread message, in the
// fixed ordering: user instructions, current query, prior-conversation
// summary, retrieved document context.
func ComposeTurn(instructions, query, summary string, chunk *model.RetrievedChunk) string {
	var b strings.Builder
	if instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("Current question: ")
	b.WriteString(query)
	b.WriteString("\n\nPrior conversation summary:\n")
	b.WriteString(summary)
	if chunk != nil {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Relevant document context (source %s, chunk %d, similarity %.2f):\n",
			chunk.Source, chunk.ChunkID, chunk.Similarity))
		b.WriteString(chunk.Text)
	}
	return b.String()
}

// SanitizeTranscriptLine strips backslashes and normalizes double quotes so
// the rendered transcript cannot corrupt downstream JSON escaping.
func SanitizeTranscriptLine(s string) string {
	s = strings.ReplaceAll(s, `\`, "")
	s = strings.ReplaceAll(s, `"`, "'")
	return s
}
