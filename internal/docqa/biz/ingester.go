package biz

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/extractor"
	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm"
)

// IngesterConfig 摄取器配置。
type IngesterConfig struct {
	// ChunkSize 文本块大小（Unicode 字符数）。
	ChunkSize int
	// ChunkOverlap 相邻块的重叠大小。
	ChunkOverlap int
}

// Ingester 负责文档摄取：提取文本、分块、嵌入、写入向量存储。
type Ingester struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	extractor     extractor.Extractor
	config        *IngesterConfig
}

// NewIngester 创建摄取器实例。
func NewIngester(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	ext extractor.Extractor,
	config *IngesterConfig,
) *Ingester {
	return &Ingester{
		store:         vectorStore,
		embedProvider: embedProvider,
		extractor:     ext,
		config:        config,
	}
}

// Ingest 摄取单个文档并写入向量存储。
//
// 提取失败或文档不含可提取文本时返回错误，且不会向存储写入
// 任何条目。重新摄取同一文档时先删除旧条目再写入，避免残留
// 过期分块。
func (i *Ingester) Ingest(ctx context.Context, doc *model.Document) (*model.IngestResult, error) {
	text, err := i.extractor.Extract(ctx, doc.Source)
	if err != nil {
		return nil, fmt.Errorf("提取文档文本失败: %w", err)
	}

	chunks := textutil.SplitIntoChunks(text, i.config.ChunkSize, i.config.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, &extractor.ExtractionError{
			Path:   doc.Source,
			Reason: "文档不包含可提取的文本",
		}
	}

	logger.Infow("文档分块完成",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"chunks", len(chunks),
	)

	embeddings, err := i.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	records := make([]*model.Chunk, len(chunks))
	for idx, content := range chunks {
		records[idx] = &model.Chunk{
			DocumentID: doc.ID,
			Position:   idx,
			Content:    content,
			Source:     doc.Filename,
			Embedding:  embeddings[idx],
		}
	}

	// 先删除旧条目，保证重新摄取不会叠加
	if err := i.store.Delete(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("清理旧索引条目失败: %w", err)
	}

	if err := i.store.Insert(ctx, records); err != nil {
		return nil, fmt.Errorf("写入向量存储失败: %w", err)
	}

	return &model.IngestResult{
		DocumentID: doc.ID,
		ChunkNum:   len(chunks),
	}, nil
}

// embedChunks 并发嵌入所有分块，结果按分块顺序返回。
// 嵌入池不可用时降级为同步执行。
func (i *Ingester) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	embeddings := make([][]float32, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for idx, content := range chunks {
		idx, content := idx, content
		task := func() {
			defer wg.Done()
			embedding, err := i.embedProvider.EmbedSingle(ctx, content)
			embeddings[idx] = embedding
			errs[idx] = err
		}

		wg.Add(1)
		if err := pool.SubmitToType(pool.EmbedPool, task); err != nil {
			task()
		}
	}
	wg.Wait()

	for idx, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("第 %d 个分块嵌入失败: %w", idx, err)
		}
	}
	return embeddings, nil
}
