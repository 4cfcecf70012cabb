package repo

import (
	"context"
	"errors"

	errx "github.com/walletpilot/server/internal/core/error"
	"github.com/walletpilot/server/internal/agent/model"
	logx "github.com/walletpilot/server/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisKeyValueStore backs account credential slots with plain Redis strings.
// Credentials are deliberately stored without TTL; they must outlive the
// conversation log.
type RedisKeyValueStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisKeyValueStore(rdb redis.Cmdable, prefix string) *RedisKeyValueStore {
	if prefix == "" {
		prefix = "credentials"
	}
	return &RedisKeyValueStore{rdb: rdb, prefix: prefix}
}

func (s *RedisKeyValueStore) storageKey(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.storageKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to read credential key from redis")
		return "", false, errx.WrapRedis(err)
	}
	return v, true, nil
}

func (s *RedisKeyValueStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.storageKey(key), value, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write credential key to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisKeyValueStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.storageKey(key)).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete credential key from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.KeyValueStore = (*RedisKeyValueStore)(nil)
