package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// RedisStore persists guild documents as JSON strings in Redis.
// Keys are formatted as "guild:{guildID}:{key}".
type RedisStore struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client rueidis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.Named("kv_redis"),
	}
}

func redisKey(guildID snowflake.ID, key string) string {
	return fmt.Sprintf("guild:%d:%s", guildID, key)
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, guildID snowflake.ID, key string, out any) (bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(redisKey(guildID, key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to load guild document: %w", err)
	}

	raw, err := resp.AsBytes()
	if err != nil {
		return false, fmt.Errorf("failed to read guild document: %w", err)
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode guild document: %w", err)
	}

	return true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, guildID snowflake.ID, key string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode guild document: %w", err)
	}

	err = s.client.Do(ctx,
		s.client.B().Set().Key(redisKey(guildID, key)).Value(rueidis.BinaryString(raw)).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to save guild document: %w", err)
	}

	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, guildID snowflake.ID, key string) error {
	err := s.client.Do(ctx, s.client.B().Del().Key(redisKey(guildID, key)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to delete guild document: %w", err)
	}

	return nil
}

// Keys implements Store.
func (s *RedisStore) Keys(ctx context.Context, guildID snowflake.ID, prefix string) ([]string, error) {
	var (
		keys    []string
		cursor  uint64
		pattern = redisKey(guildID, prefix) + "*"
		strip   = fmt.Sprintf("guild:%d:", guildID)
	)

	for {
		entry, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan guild documents: %w", err)
		}

		for _, element := range entry.Elements {
			keys = append(keys, strings.TrimPrefix(element, strip))
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
