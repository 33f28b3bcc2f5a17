package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/textutil"
)

// MemoryStore 纯内存向量存储，适用于单机部署和测试。
//
// 所有操作通过读写锁粗粒度串行化。检索对全部块做线性扫描，
// 小规模知识库下足够快。
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []*model.Chunk
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存向量存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert 批量插入文档块，只追加不去重。
func (s *MemoryStore) Insert(_ context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = append(s.chunks, chunks...)
	return nil
}

// Search 向量相似度搜索，按分数降序返回前 topK 个结果。
// 维度不匹配或零向量的块计 0 分并告警，不返回错误。
func (s *MemoryStore) Search(_ context.Context, embedding []float32, topK int, documentIDs []string) ([]*model.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*model.SearchResult, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		if len(documentIDs) > 0 && !textutil.ContainsString(documentIDs, chunk.DocumentID) {
			continue
		}

		score := textutil.CosineSimilarity(embedding, chunk.Embedding)
		if score == 0 && (len(embedding) != len(chunk.Embedding) || len(chunk.Embedding) == 0) {
			logger.Warnw("向量维度不匹配，该块计 0 分",
				"document_id", chunk.DocumentID,
				"position", chunk.Position,
				"query_dim", len(embedding),
				"chunk_dim", len(chunk.Embedding),
			)
		}

		results = append(results, &model.SearchResult{
			Chunk: *chunk,
			Score: float32(score),
		})
	}

	// 稳定排序，分数相同保持插入顺序
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete 删除指定文档的全部块。文档不存在时为幂等空操作。
func (s *MemoryStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	for _, chunk := range s.chunks {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	s.chunks = kept
	return nil
}

// Count 返回不同文档的数量。
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, chunk := range s.chunks {
		seen[chunk.DocumentID] = struct{}{}
	}
	return int64(len(seen)), nil
}

// ChunkCount 返回块总数，用于统计。
func (s *MemoryStore) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Close 关闭存储，内存实现为空操作。
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}
