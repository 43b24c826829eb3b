package backend

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/tabletalk-ai/server/internal/analysis/model"
	logx "github.com/tabletalk-ai/server/pkg/logger"
)

// Config describes the OpenAI connection, sourced from environment variables.
type Config struct {
	APIKey       string `envconfig:"OPENAI_API_KEY" required:"true"`
	BaseURL      string `envconfig:"OPENAI_BASE_URL"`
	SummaryModel string `envconfig:"SUMMARY_MODEL" default:"gpt-4o-mini"`
}

// OpenAIBackend implements model.ExecutionBackend over the official OpenAI
// SDK's assistants, threads, runs, and files primitives. It performs no
// retries of its own; retry policy belongs to the run poller.
type OpenAIBackend struct {
	client       openai.Client
	summaryModel string
}

var _ model.ExecutionBackend = (*OpenAIBackend)(nil)

// New builds the backend from config.
func (c *Config) New() *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return &OpenAIBackend{
		client:       openai.NewClient(opts...),
		summaryModel: c.SummaryModel,
	}
}

func (b *OpenAIBackend) CreateAssistant(ctx context.Context, spec model.AssistantSpec) (string, error) {
	assistant, err := b.client.Beta.Assistants.New(ctx, openai.BetaAssistantNewParams{
		Model:        shared.ChatModel(spec.Model),
		Name:         openai.String(spec.Name),
		Instructions: openai.String(spec.Instructions),
		Tools: []openai.AssistantToolUnionParam{
			{OfCodeInterpreter: &openai.CodeInterpreterToolParam{}},
		},
		ResponseFormat: openai.AssistantResponseFormatOptionUnionParam{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	return assistant.ID, nil
}

func (b *OpenAIBackend) CreateThread(ctx context.Context) (string, error) {
	thread, err := b.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (b *OpenAIBackend) CreateMessage(ctx context.Context, threadID, text string, fileIDs ...string) (string, error) {
	params := openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	}
	for _, fileID := range fileIDs {
		params.Attachments = append(params.Attachments, openai.BetaThreadMessageNewParamsAttachment{
			FileID: openai.String(fileID),
			Tools: []openai.BetaThreadMessageNewParamsAttachmentToolUnion{
				{OfCodeInterpreter: &openai.CodeInterpreterToolParam{}},
			},
		})
	}
	message, err := b.client.Beta.Threads.Messages.New(ctx, threadID, params)
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	return message.ID, nil
}

func (b *OpenAIBackend) ListMessages(ctx context.Context, threadID string, order model.MessageOrder, limit int) ([]model.ThreadMessage, error) {
	params := openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	}
	if order == model.OrderDescending {
		params.Order = openai.BetaThreadMessageListParamsOrderDesc
	}
	if limit > 0 {
		params.Limit = openai.Int(int64(limit))
	}
	page, err := b.client.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// limit == 0 means the full thread; the endpoint pages at 20 messages, so
	// follow the cursor or long sessions lose their oldest turns.
	var out []model.ThreadMessage
	for page != nil {
		for _, msg := range page.Data {
			out = append(out, model.ThreadMessage{
				ID:      msg.ID,
				Role:    toRole(string(msg.Role)),
				Content: messageText(msg),
			})
		}
		if limit > 0 {
			break
		}
		page, err = page.GetNextPage()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
	}
	return out, nil
}

func (b *OpenAIBackend) CreateRun(ctx context.Context, threadID, assistantID string, contract model.ResponseContract) (string, error) {
	run, err := b.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
		ResponseFormat: openai.AssistantResponseFormatOptionUnionParam{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

func (b *OpenAIBackend) GetRun(ctx context.Context, threadID, runID string) (model.RunInfo, error) {
	run, err := b.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return model.RunInfo{}, fmt.Errorf("retrieve run: %w", err)
	}
	return toRunInfo(run), nil
}

func (b *OpenAIBackend) ListRuns(ctx context.Context, threadID string) ([]model.RunInfo, error) {
	page, err := b.client.Beta.Threads.Runs.List(ctx, threadID, openai.BetaThreadRunListParams{})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]model.RunInfo, 0, len(page.Data))
	for _, run := range page.Data {
		out = append(out, toRunInfo(&run))
	}
	return out, nil
}

func (b *OpenAIBackend) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := b.client.Beta.Threads.Runs.Cancel(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

func (b *OpenAIBackend) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	file, err := b.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(data), filename, "text/csv"),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return file.ID, nil
}

func (b *OpenAIBackend) RetrieveFile(ctx context.Context, fileID string) (model.FileInfo, error) {
	file, err := b.client.Files.Get(ctx, fileID)
	if err != nil {
		return model.FileInfo{}, fmt.Errorf("retrieve file: %w", err)
	}
	return model.FileInfo{
		ID:       file.ID,
		Filename: file.Filename,
		Size:     file.Bytes,
		Purpose:  string(file.Purpose),
	}, nil
}

func (b *OpenAIBackend) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := b.client.Files.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (b *OpenAIBackend) CreateChatCompletion(ctx context.Context, messages []*schema.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(b.summaryModel),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature: openai.Float(0),
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func toRole(role string) schema.RoleType {
	switch role {
	case "assistant":
		return schema.Assistant
	case "user":
		return schema.User
	default:
		logx.Debug().Str("role", role).Msg("unmapped thread message role")
		return schema.RoleType(role)
	}
}

// messageText concatenates the text blocks of a thread message, skipping
// image and file blocks.
func messageText(msg openai.Message) string {
	var out string
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		out += block.Text.Value
	}
	return out
}

func toRunInfo(run *openai.Run) model.RunInfo {
	info := model.RunInfo{
		ID:     run.ID,
		Status: model.RunStatus(run.Status),
	}
	if run.LastError.Code != "" || run.LastError.Message != "" {
		info.LastError = fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
	}
	return info
}
