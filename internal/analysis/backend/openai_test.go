package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk-ai/server/internal/analysis/model"
)

type pageMessage struct {
	ID   string
	Role string
	Text string
}

func messagesPage(msgs []pageMessage, hasMore bool) map[string]any {
	data := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		data = append(data, map[string]any{
			"id":     m.ID,
			"object": "thread.message",
			"role":   m.Role,
			"content": []map[string]any{
				{"type": "text", "text": map[string]any{"value": m.Text, "annotations": []any{}}},
			},
		})
	}
	page := map[string]any{
		"object":   "list",
		"data":     data,
		"has_more": hasMore,
	}
	if len(msgs) > 0 {
		page["first_id"] = msgs[0].ID
		page["last_id"] = msgs[len(msgs)-1].ID
	}
	return page
}

// newMessagesServer serves a two-page thread: the endpoint pages, so a full
// read must follow the cursor.
func newMessagesServer(t *testing.T, queries *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/thread_1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		*queries = append(*queries, r.URL.RawQuery)

		var page map[string]any
		switch r.URL.Query().Get("after") {
		case "":
			page = messagesPage([]pageMessage{
				{ID: "msg_1", Role: "user", Text: "total sales?"},
				{ID: "msg_2", Role: "assistant", Text: "Total sales were 42."},
			}, true)
		case "msg_2":
			page = messagesPage([]pageMessage{
				{ID: "msg_3", Role: "user", Text: "split by month?"},
				{ID: "msg_4", Role: "assistant", Text: "Jan 20, Feb 22."},
			}, false)
		default:
			page = messagesPage(nil, false)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(page); err != nil {
			t.Errorf("encode page: %v", err)
		}
	}))
}

func newTestBackend(baseURL string) *OpenAIBackend {
	cfg := Config{APIKey: "test-key", BaseURL: baseURL, SummaryModel: "gpt-4o-mini"}
	return cfg.New()
}

func TestListMessagesFollowsCursor(t *testing.T) {
	var queries []string
	srv := newMessagesServer(t, &queries)
	defer srv.Close()

	b := newTestBackend(srv.URL)
	messages, err := b.ListMessages(context.Background(), "thread_1", model.OrderAscending, 0)
	require.NoError(t, err)

	require.Len(t, messages, 4, "unlimited listing must span every page")
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"msg_1", "msg_2", "msg_3", "msg_4"}, ids)
	assert.Equal(t, schema.User, messages[0].Role)
	assert.Equal(t, schema.Assistant, messages[1].Role)
	assert.Equal(t, "Jan 20, Feb 22.", messages[3].Content)
	assert.GreaterOrEqual(t, len(queries), 2, "second page must be fetched")
}

func TestListMessagesWithLimitStopsAtFirstPage(t *testing.T) {
	var queries []string
	srv := newMessagesServer(t, &queries)
	defer srv.Close()

	b := newTestBackend(srv.URL)
	messages, err := b.ListMessages(context.Background(), "thread_1", model.OrderDescending, 2)
	require.NoError(t, err)

	assert.Len(t, messages, 2)
	require.Len(t, queries, 1, "an explicit limit is a single-page read")
	assert.Contains(t, queries[0], "limit=2")
	assert.Contains(t, queries[0], "order=desc")
}
