package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/llm"
)

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// TopK 返回的结果数量。
	TopK int
}

// Retriever 负责文档检索。
type Retriever struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	config        *RetrieverConfig
}

// NewRetriever 创建检索器实例。
func NewRetriever(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	config *RetrieverConfig,
) *Retriever {
	return &Retriever{
		store:         vectorStore,
		embedProvider: embedProvider,
		config:        config,
	}
}

// Retrieve 检索与问题最相关的分块。
// documentIDs 非空时检索范围限定在指定文档内。
func (r *Retriever) Retrieve(ctx context.Context, question string, documentIDs []string) ([]*model.SearchResult, error) {
	questionEmbed, err := r.embedProvider.EmbedSingle(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("问题嵌入失败: %w", err)
	}

	results, err := r.store.Search(ctx, questionEmbed, r.config.TopK, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	logger.Debugw("检索完成",
		"question", question,
		"scope", len(documentIDs),
		"results", len(results),
	)
	return results, nil
}
