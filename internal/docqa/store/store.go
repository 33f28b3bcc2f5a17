package store

import (
	"context"

	"github.com/kart-io/docqa/internal/model"
)

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// Insert 批量插入文档块，只追加不去重。
	Insert(ctx context.Context, chunks []*model.Chunk) error

	// Search 向量相似度搜索，按分数降序返回前 topK 个结果。
	// documentIDs 非空时只在这些文档范围内检索。
	Search(ctx context.Context, embedding []float32, topK int, documentIDs []string) ([]*model.SearchResult, error)

	// Delete 删除指定文档的全部块。文档不存在时为幂等空操作。
	Delete(ctx context.Context, documentID string) error

	// Count 返回不同文档的数量。
	Count(ctx context.Context) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}
