package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	jsonutil "github.com/kart-io/docqa/pkg/utils/json"
)

// EmbeddingCacheConfig 向量缓存配置。
type EmbeddingCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。文档内容稳定，向量可以缓存较长时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// DefaultEmbeddingCacheConfig 返回默认的向量缓存配置。
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "docqa:emb:",
	}
}

// EmbeddingCache 用 Redis 缓存向量结果的 EmbeddingProvider 装饰器。
//
// 摄取同一文档的重复块和重复提问都会命中缓存，省掉对模型服务的
// 往返。缓存只在哈希降级包装器内侧使用，保证存入的都是真实模型
// 产出的向量。
type EmbeddingCache struct {
	provider EmbeddingProvider
	redis    *goredis.Client
	config   *EmbeddingCacheConfig
}

var _ EmbeddingProvider = (*EmbeddingCache)(nil)

// NewEmbeddingCache 创建向量缓存装饰器。config 为 nil 时使用默认配置。
func NewEmbeddingCache(provider EmbeddingProvider, redis *goredis.Client, config *EmbeddingCacheConfig) *EmbeddingCache {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "docqa:emb:"
	}
	return &EmbeddingCache{
		provider: provider,
		redis:    redis,
		config:   config,
	}
}

// Name 返回供应商名称。
func (c *EmbeddingCache) Name() string {
	return c.provider.Name() + "+cache"
}

// bypass 缓存未启用或 Redis 不可用时直接透传底层供应商。
func (c *EmbeddingCache) bypass() bool {
	return !c.config.Enabled || c.redis == nil
}

// cacheKey 以文本的 SHA256 摘要作为缓存键。
func (c *EmbeddingCache) cacheKey(text string) string {
	digest := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + hex.EncodeToString(digest[:])
}

// lookup 查询单个文本的缓存向量，未命中返回 nil。
// 损坏的缓存条目直接删除，Redis 错误只记日志。
func (c *EmbeddingCache) lookup(ctx context.Context, key string) []float32 {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("读取向量缓存失败，回退到模型", "key", key, "error", err.Error())
		}
		return nil
	}

	var embedding []float32
	if err := jsonutil.Unmarshal(data, &embedding); err != nil {
		logger.Warnw("向量缓存条目损坏，已删除", "key", key, "error", err.Error())
		_ = c.redis.Del(ctx, key).Err()
		return nil
	}
	return embedding
}

// store 写入单个向量，失败不影响调用方拿到结果。
func (c *EmbeddingCache) store(ctx context.Context, key string, embedding []float32) {
	data, err := jsonutil.Marshal(embedding)
	if err != nil {
		logger.Warnw("序列化向量失败，跳过缓存", "key", key, "error", err.Error())
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("写入向量缓存失败", "key", key, "error", err.Error())
	}
}

// EmbedSingle 为单个文本生成向量，优先命中缓存。
func (c *EmbeddingCache) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if c.bypass() {
		return c.provider.EmbedSingle(ctx, text)
	}

	key := c.cacheKey(text)
	if embedding := c.lookup(ctx, key); embedding != nil {
		return embedding, nil
	}

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, embedding)
	return embedding, nil
}

// Embed 批量生成向量，只把未命中的文本发给底层供应商，
// 返回顺序与输入一致。
func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.bypass() {
		return c.provider.Embed(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	var missIndices []int
	var missTexts []string

	for i, text := range texts {
		if embedding := c.lookup(ctx, c.cacheKey(text)); embedding != nil {
			embeddings[i] = embedding
			continue
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		logger.Debugw("向量缓存全部命中", "total", len(texts))
		return embeddings, nil
	}

	computed, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for i, idx := range missIndices {
		embeddings[idx] = computed[i]
		c.store(ctx, c.cacheKey(missTexts[i]), computed[i])
	}
	logger.Debugw("向量缓存部分命中",
		"total", len(texts),
		"miss", len(missTexts),
	)
	return embeddings, nil
}
