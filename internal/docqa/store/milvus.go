package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/milvus"
)

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore 创建 Milvus 存储实例并确保集合存在。
func NewMilvusStore(ctx context.Context, client *milvus.Client, collection string, dimension int) (*MilvusStore, error) {
	schema := &milvus.CollectionSchema{
		Name:        collection,
		Description: "Document QA chunks",
		Dimension:   dimension,
		MetaFields: []milvus.MetaField{
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "position", DataType: entity.FieldTypeInt64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: "source", DataType: entity.FieldTypeVarChar, MaxLen: 512},
		},
	}
	if err := client.CreateCollection(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return &MilvusStore{
		client:     client,
		collection: collection,
	}, nil
}

// Insert 批量插入文档块到 Milvus。
func (s *MilvusStore) Insert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	embeddings := make([][]float32, len(chunks))
	metadata := map[string][]any{
		"document_id": make([]any, len(chunks)),
		"position":    make([]any, len(chunks)),
		"content":     make([]any, len(chunks)),
		"source":      make([]any, len(chunks)),
	}

	for i, chunk := range chunks {
		embeddings[i] = chunk.Embedding
		metadata["document_id"][i] = chunk.DocumentID
		metadata["position"][i] = int64(chunk.Position)
		metadata["content"][i] = chunk.Content
		metadata["source"][i] = chunk.Source
	}

	data := &milvus.InsertData{
		Embeddings: embeddings,
		Metadata:   metadata,
	}

	if _, err := s.client.Insert(ctx, s.collection, data); err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}
	return nil
}

// Search 执行向量相似度搜索。
// documentIDs 非空时通过过滤表达式限定范围。
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int, documentIDs []string) ([]*model.SearchResult, error) {
	outputFields := []string{"document_id", "position", "content", "source"}

	expr := documentScopeExpr(documentIDs)
	results, err := s.client.SearchWithFilter(ctx, s.collection, embedding, topK, expr, outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	searchResults := make([]*model.SearchResult, 0, len(results))
	for _, r := range results {
		sr := &model.SearchResult{Score: r.Score}
		if v, ok := r.Metadata["document_id"].(string); ok {
			sr.DocumentID = v
		}
		if v, ok := r.Metadata["position"].(int64); ok {
			sr.Position = int(v)
		}
		if v, ok := r.Metadata["content"].(string); ok {
			sr.Content = v
		}
		if v, ok := r.Metadata["source"].(string); ok {
			sr.Source = v
		}
		searchResults = append(searchResults, sr)
	}

	return searchResults, nil
}

// documentScopeExpr 构建按文档范围过滤的表达式。
func documentScopeExpr(documentIDs []string) string {
	if len(documentIDs) == 0 {
		return ""
	}

	quoted := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf("document_id in [%s]", strings.Join(quoted, ", "))
}

// Delete 删除指定文档的全部块。文档不存在时为幂等空操作。
func (s *MilvusStore) Delete(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf("document_id == %q", documentID)
	if err := s.client.DeleteByExpr(ctx, s.collection, expr); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// Count 返回不同文档的数量。
// Milvus 不支持 DISTINCT，查询全部 document_id 后在客户端去重。
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	ids, err := s.client.QueryStrings(ctx, s.collection, "", "document_id")
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return int64(len(seen)), nil
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
