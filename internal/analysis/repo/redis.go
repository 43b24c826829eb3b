package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabletalk-ai/server/internal/analysis/model"
	errx "github.com/tabletalk-ai/server/internal/core/error"
	logx "github.com/tabletalk-ai/server/pkg/logger"
)

// RedisSessionStore persists session state and the append-only history log
// in Redis. State lives in a plain key, history in a list; both carry the
// same TTL, extended on every touch.
type RedisSessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionStore(rdb redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionStore) stateKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

func (r *RedisSessionStore) historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

func (r *RedisSessionStore) SaveState(ctx context.Context, state *model.SessionState) error {
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to marshal session state")
		return fmt.Errorf("marshal session state: %w", err)
	}
	key := r.stateKey(state.SessionID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write session state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionStore) LoadState(ctx context.Context, sessionID string) (*model.SessionState, error) {
	key := r.stateKey(sessionID)
	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session state from redis")
		return nil, errx.WrapRedis(err)
	}

	var state model.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal session state")
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	return &state, nil
}

func (r *RedisSessionStore) AppendHistory(ctx context.Context, sessionID string, entry model.HistoryEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to marshal history entry")
		return fmt.Errorf("marshal history entry: %w", err)
	}
	key := r.historyKey(sessionID)

	// append entry
	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push history entry to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on history key")
		}
	}
	return nil
}

func (r *RedisSessionStore) LoadHistory(ctx context.Context, sessionID string) ([]model.HistoryEntry, error) {
	key := r.historyKey(sessionID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.HistoryEntry{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load history from redis")
		return nil, errx.WrapRedis(err)
	}

	entries := make([]model.HistoryEntry, 0, len(rows))
	for i, s := range rows {
		var entry model.HistoryEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Int("index", i).Msg("failed to unmarshal history entry")
			return nil, fmt.Errorf("unmarshal history entry at index %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisSessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.stateKey(sessionID), r.historyKey(sessionID)).Err(); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session data from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.SessionStore = (*RedisSessionStore)(nil)
