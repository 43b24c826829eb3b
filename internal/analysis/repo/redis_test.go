package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk-ai/server/internal/analysis/model"
	errx "github.com/tabletalk-ai/server/internal/core/error"
)

func testState() model.SessionState {
	return model.SessionState{
		SessionID:            "s1",
		ThreadID:             "thread_1",
		FileID:               "file_1",
		FileUploadedToThread: true,
		LastActivity:         time.Unix(1700000000, 0).UTC(),
	}
}

func TestSaveAndLoadState(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(rdb, time.Minute)

	saved := testState()
	payload, err := json.Marshal(&saved)
	require.NoError(t, err)

	mock.ExpectSet("session:s1:state", payload, time.Minute).SetVal("OK")
	require.NoError(t, store.SaveState(context.Background(), &saved))

	mock.ExpectGet("session:s1:state").SetVal(string(payload))
	loaded, err := store.LoadState(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved, *loaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadStateMissingSession(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(rdb, time.Minute)

	mock.ExpectGet("session:unknown:state").RedisNil()
	loaded, err := store.LoadState(context.Background(), "unknown")
	require.NoError(t, err, "an absent session is not an error")
	assert.Nil(t, loaded)
}

func TestLoadStateRedisFailureIsTagged(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(rdb, time.Minute)

	mock.ExpectGet("session:s1:state").SetErr(errors.New("connection refused"))
	_, err := store.LoadState(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, errx.KindStore, errx.KindOf(err))
}

func TestAppendAndLoadHistory(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(rdb, time.Minute)

	first := model.HistoryEntry{
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		Query:       "total sales?",
		FinalAnswer: "The total is 42",
		Steps:       []string{"sum"},
		Results:     []string{"42"},
	}
	second := model.HistoryEntry{
		Timestamp:   time.Unix(1700000100, 0).UTC(),
		Query:       "split by month?",
		FinalAnswer: "Jan 20, Feb 22",
	}

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)

	mock.ExpectRPush("session:s1:history", b1).SetVal(1)
	mock.ExpectExpire("session:s1:history", time.Minute).SetVal(true)
	require.NoError(t, store.AppendHistory(context.Background(), "s1", first))

	mock.ExpectLRange("session:s1:history", 0, -1).SetVal([]string{string(b1), string(b2)})
	entries, err := store.LoadHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0])
	assert.Equal(t, second, entries[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearRemovesStateAndHistory(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewRedisSessionStore(rdb, time.Minute)

	mock.ExpectDel("session:s1:state", "session:s1:history").SetVal(2)
	require.NoError(t, store.Clear(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
