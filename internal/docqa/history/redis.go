package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/model"
	jsonutil "github.com/kart-io/docqa/pkg/utils/json"
)

// RedisStore 基于 Redis List 的会话历史存储。
//
// 每个会话对应一个 List 键，消息按追加顺序存储为 JSON。
type RedisStore struct {
	redis     *goredis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 创建 Redis 会话历史存储。
// ttl 为会话过期时间，0 表示永不过期。
func NewRedisStore(redis *goredis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "docqa:history:"
	}
	return &RedisStore{
		redis:     redis,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Append 向会话追加一条消息。
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg *model.ChatMessage) error {
	data, err := jsonutil.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	key := s.key(sessionID)
	if err := s.redis.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}

	if s.ttl > 0 {
		if err := s.redis.Expire(ctx, key, s.ttl).Err(); err != nil {
			logger.Warnw("刷新会话过期时间失败", "session", sessionID, "error", err.Error())
		}
	}
	return nil
}

// Get 返回会话的全部消息，按追加顺序。
func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	items, err := s.redis.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}

	msgs := make([]*model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := jsonutil.Unmarshal([]byte(item), &msg); err != nil {
			// 跳过损坏的记录
			logger.Warnw("会话历史记录损坏", "session", sessionID, "error", err.Error())
			continue
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

// Clear 清空会话历史。
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("清空会话历史失败: %w", err)
	}
	return nil
}

// Sessions 返回全部会话 ID。
// 使用 SCAN 遍历避免阻塞 Redis。
func (s *RedisStore) Sessions(ctx context.Context) ([]string, error) {
	pattern := s.keyPrefix + "*"
	iter := s.redis.Scan(ctx, 0, pattern, 0).Iterator()

	var ids []string
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("遍历会话失败: %w", err)
	}
	return ids, nil
}
