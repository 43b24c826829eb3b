package errx

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified AppError type. Missing keys keep
// their own message so the session store can distinguish absence from outage.
func WrapRedis(err error) *AppError {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, KindStore, StageStore, RedisNotFoundMessage)
	}

	return New(err, KindStore, StageStore, RedisErrorMessage)
}
