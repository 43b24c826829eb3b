package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// MessageOrder controls transcript listing direction.
type MessageOrder string

const (
	OrderAscending  MessageOrder = "asc"
	OrderDescending MessageOrder = "desc"
)

// ThreadMessage is one message of a thread transcript.
type ThreadMessage struct {
	ID      string
	Role    schema.RoleType
	Content string
}

// AssistantSpec configures the server-side assistant persona created once and
// reused across runs.
type AssistantSpec struct {
	Model        string
	Name         string
	Instructions string
}

// FileInfo describes an uploaded dataset file.
type FileInfo struct {
	ID       string
	Filename string
	Size     int64
	Purpose  string
}

// ExecutionBackend is the typed boundary around the remote code-execution
// service's assistant/thread/run/file primitives. Implementations do not
// retry; retry policy belongs to the caller.
type ExecutionBackend interface {
	CreateAssistant(ctx context.Context, spec AssistantSpec) (string, error)
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID, text string, fileIDs ...string) (string, error)
	ListMessages(ctx context.Context, threadID string, order MessageOrder, limit int) ([]ThreadMessage, error)
	CreateRun(ctx context.Context, threadID, assistantID string, contract ResponseContract) (string, error)
	GetRun(ctx context.Context, threadID, runID string) (RunInfo, error)
	ListRuns(ctx context.Context, threadID string) ([]RunInfo, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	UploadFile(ctx context.Context, filename string, data []byte) (string, error)
	RetrieveFile(ctx context.Context, fileID string) (FileInfo, error)
	DeleteFile(ctx context.Context, fileID string) error

	// CreateChatCompletion performs one auxiliary completion call, used for
	// transcript summarization.
	CreateChatCompletion(ctx context.Context, messages []*schema.Message) (string, error)
}
