// Package fallback 提供带本地降级的 Embedding 供应商包装器。
//
// 当主供应商（如 Ollama）不可用时，退化为确定性的哈希向量，
// 保证摄取和查询流程不中断。同一文本始终产生同一向量。
package fallback

import (
	"context"
	"crypto/md5"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/llm"
)

// Embedder 包装主 Embedding 供应商，失败时降级为哈希向量。
type Embedder struct {
	primary llm.EmbeddingProvider
	dim     int
}

var _ llm.EmbeddingProvider = (*Embedder)(nil)

// New 创建降级包装器。dim 为哈希向量维度。
func New(primary llm.EmbeddingProvider, dim int) *Embedder {
	return &Embedder{
		primary: primary,
		dim:     dim,
	}
}

// Name 返回供应商名称。
func (e *Embedder) Name() string {
	return e.primary.Name() + "+fallback"
}

// Embed 为多个文本生成向量嵌入。
// 任一主供应商错误都会整体降级为哈希向量，不向调用方返回错误。
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings, err := e.primary.Embed(ctx, texts)
	if err == nil && len(embeddings) == len(texts) {
		return embeddings, nil
	}

	if err != nil {
		logger.Warnw("嵌入供应商不可用，降级为哈希向量",
			"provider", e.primary.Name(),
			"texts", len(texts),
			"error", err,
		)
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = HashEmbedding(text, e.dim)
	}
	return result, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (e *Embedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embedding, err := e.primary.EmbedSingle(ctx, text)
	if err == nil {
		return embedding, nil
	}

	logger.Warnw("嵌入供应商不可用，降级为哈希向量",
		"provider", e.primary.Name(),
		"error", err,
	)

	return HashEmbedding(text, e.dim), nil
}

// HashEmbedding 生成确定性的哈希向量。
// 取文本 MD5 摘要的每个字节除以 255 归一化，不足维度补零。
func HashEmbedding(text string, dim int) []float32 {
	digest := md5.Sum([]byte(text))

	embedding := make([]float32, dim)
	for i := 0; i < len(digest) && i < dim; i++ {
		embedding[i] = float32(digest[i]) / 255.0
	}
	return embedding
}
