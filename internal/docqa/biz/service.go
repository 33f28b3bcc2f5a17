package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/registry"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/extractor"
	"github.com/kart-io/docqa/internal/pkg/notify"
	"github.com/kart-io/docqa/internal/pkg/textutil"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm"
)

// sourceContentLimit 来源摘要的最大字符数。
const sourceContentLimit = 200

// Service 定义文档问答服务接口。
type Service interface {
	// RegisterDocument 登记新上传的文档。
	RegisterDocument(ctx context.Context, doc *model.Document) error
	// IngestDocument 摄取已登记的文档并写入向量索引。
	IngestDocument(ctx context.Context, doc *model.Document) (*model.IngestResult, error)
	// Query 执行问答查询。documentIDs 非空时限定检索范围。
	Query(ctx context.Context, question string, documentIDs []string) (*model.QueryResult, error)
	// QueryStream 执行流式问答查询。
	QueryStream(ctx context.Context, question string, documentIDs []string) (*StreamResult, error)
	// DeleteDocument 删除文档及其全部索引条目，幂等。
	DeleteDocument(ctx context.Context, documentID string) error
	// ListDocuments 列出全部已登记文档。
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	// GetDocument 按 ID 查询文档，不存在时返回 nil。
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	// FindDuplicate 按文件名和大小查找已登记文档。
	FindDuplicate(ctx context.Context, filename string, size int64) (*model.Document, error)
	// DocumentCount 返回向量索引中的文档数量。
	DocumentCount(ctx context.Context) (int64, error)
	// GetStats 获取服务统计信息。
	GetStats(ctx context.Context) (map[string]any, error)
	// Ping 探测 LLM 服务可用性。
	Ping(ctx context.Context) error
}

// StreamResult 流式查询结果。
// 来源在流启动前已经确定，调用方读完 Stream 后随终止事件下发。
type StreamResult struct {
	Stream      llm.StreamReader
	Sources     []model.ChunkSource
	DocumentIDs []string
}

// DocQAService 组合 Ingester、Retriever 和 Generator 提供完整的问答服务。
type DocQAService struct {
	ingester      *Ingester
	retriever     *Retriever
	generator     *Generator
	cache         *QueryCache
	store         store.VectorStore
	registry      *registry.Registry
	notifier      notify.Notifier
	embedProvider llm.EmbeddingProvider
	chatProvider  llm.ChatProvider
	metrics       *metrics.Metrics
}

// ServiceConfig 问答服务配置。
type ServiceConfig struct {
	IngesterConfig  *IngesterConfig
	RetrieverConfig *RetrieverConfig
	GeneratorConfig *GeneratorConfig
}

// NewDocQAService 创建问答服务实例。
func NewDocQAService(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	ext extractor.Extractor,
	reg *registry.Registry,
	notifier notify.Notifier,
	cache *QueryCache,
	config *ServiceConfig,
) *DocQAService {
	if notifier == nil {
		notifier = notify.NewNoop()
	}
	return &DocQAService{
		ingester:      NewIngester(vectorStore, embedProvider, ext, config.IngesterConfig),
		retriever:     NewRetriever(vectorStore, embedProvider, config.RetrieverConfig),
		generator:     NewGenerator(chatProvider, config.GeneratorConfig),
		cache:         cache,
		store:         vectorStore,
		registry:      reg,
		notifier:      notifier,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
		metrics:       metrics.GetMetrics(),
	}
}

// RegisterDocument 登记新上传的文档。
func (s *DocQAService) RegisterDocument(_ context.Context, doc *model.Document) error {
	return s.registry.Add(doc)
}

// IngestDocument 摄取已登记的文档并写入向量索引。
// 成功后更新登记状态为已索引，失败时标记为失败。
func (s *DocQAService) IngestDocument(ctx context.Context, doc *model.Document) (*model.IngestResult, error) {
	result, err := s.ingester.Ingest(ctx, doc)
	if err != nil {
		s.metrics.RecordIngest(0, err)
		doc.Status = model.StatusFailed
		if updateErr := s.registry.Update(doc); updateErr != nil {
			logger.Warnw("更新文档状态失败", "document_id", doc.ID, "error", updateErr.Error())
		}
		return nil, err
	}

	doc.Status = model.StatusIndexed
	doc.ChunkNum = result.ChunkNum
	if err := s.registry.Update(doc); err != nil {
		logger.Warnw("更新文档状态失败", "document_id", doc.ID, "error", err.Error())
	}

	s.metrics.RecordIngest(result.ChunkNum, nil)
	logger.Infow("文档摄取完成",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"chunks", result.ChunkNum,
	)

	s.notifyAsync(fmt.Sprintf("文档已索引: %s (%d 个分块)", doc.Filename, result.ChunkNum))
	return result, nil
}

// Query 执行问答查询。
// 检索为空时仍交由模型作答，由提示词模板引导模型说明无法回答。
func (s *DocQAService) Query(ctx context.Context, question string, documentIDs []string) (*model.QueryResult, error) {
	var queryErr error
	defer func() {
		if queryErr != nil {
			s.metrics.RecordQuery(false, queryErr)
		}
	}()

	// 1. 尝试从缓存获取
	if s.cache != nil {
		cachedResult, err := s.cache.Get(ctx, question, documentIDs)
		if err == nil && cachedResult != nil {
			s.metrics.RecordQuery(true, nil)
			return cachedResult, nil
		}
		// 缓存未命中或出错，继续正常流程
	}

	// 2. 检索相关分块
	retrievalStart := time.Now()
	results, err := s.retriever.Retrieve(ctx, question, documentIDs)
	s.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		queryErr = err
		return nil, err
	}

	// 3. 生成答案
	llmStart := time.Now()
	answer, err := s.generator.GenerateAnswer(ctx, question, results)
	s.metrics.RecordLLMCall(time.Since(llmStart), err)
	if err != nil {
		queryErr = err
		return nil, err
	}

	// 4. 构建响应
	queryResult := &model.QueryResult{
		Answer:      answer,
		Sources:     buildSources(results),
		DocumentIDs: documentIDs,
	}

	// 5. 写入缓存，失败不影响正常返回
	if s.cache != nil {
		_ = s.cache.Set(ctx, question, documentIDs, queryResult)
	}

	s.metrics.RecordQuery(false, nil)
	return queryResult, nil
}

// QueryStream 执行流式问答查询。
// 调用方必须消费 Stream 到 io.EOF 或调用 Close 释放连接。
func (s *DocQAService) QueryStream(ctx context.Context, question string, documentIDs []string) (*StreamResult, error) {
	retrievalStart := time.Now()
	results, err := s.retriever.Retrieve(ctx, question, documentIDs)
	s.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		s.metrics.RecordStream(err)
		return nil, err
	}

	stream, err := s.generator.GenerateAnswerStream(ctx, question, results)
	if err != nil {
		s.metrics.RecordStream(err)
		return nil, err
	}

	s.metrics.RecordStream(nil)
	return &StreamResult{
		Stream:      stream,
		Sources:     buildSources(results),
		DocumentIDs: documentIDs,
	}, nil
}

// DeleteDocument 删除文档及其全部索引条目，幂等。
func (s *DocQAService) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("删除索引条目失败: %w", err)
	}
	if err := s.registry.Delete(documentID); err != nil {
		return fmt.Errorf("删除文档登记失败: %w", err)
	}

	s.metrics.RecordDelete()
	logger.Infow("文档已删除", "document_id", documentID)
	return nil
}

// ListDocuments 列出全部已登记文档。
func (s *DocQAService) ListDocuments(_ context.Context) ([]*model.Document, error) {
	return s.registry.List(), nil
}

// GetDocument 按 ID 查询文档，不存在时返回 nil。
func (s *DocQAService) GetDocument(_ context.Context, documentID string) (*model.Document, error) {
	return s.registry.Get(documentID), nil
}

// FindDuplicate 按文件名和大小查找已登记文档。
func (s *DocQAService) FindDuplicate(_ context.Context, filename string, size int64) (*model.Document, error) {
	return s.registry.FindByNameAndSize(filename, size), nil
}

// DocumentCount 返回向量索引中的文档数量。
func (s *DocQAService) DocumentCount(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// GetStats 获取服务统计信息。
func (s *DocQAService) GetStats(ctx context.Context) (map[string]any, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	stats := map[string]any{
		"document_count":   count,
		"registered_count": s.registry.Count(),
		"embed_provider":   s.embedProvider.Name(),
		"chat_provider":    s.chatProvider.Name(),
	}

	if s.cache != nil {
		cacheStats, err := s.cache.GetStats(ctx)
		if err == nil {
			stats["cache"] = cacheStats
		}
	}

	stats["metrics"] = s.metrics.Stats()
	return stats, nil
}

// Ping 探测 LLM 服务可用性。
// Chat 供应商不支持探测时视为可用。
func (s *DocQAService) Ping(ctx context.Context) error {
	if pinger, ok := s.chatProvider.(llm.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// notifyAsync 通过后台池异步发送通知，池不可用时降级到 goroutine。
func (s *DocQAService) notifyAsync(message string) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Send(ctx, message); err != nil {
			logger.Warnw("发送通知失败", "error", err.Error())
		}
	}

	if err := pool.SubmitToType(pool.BackgroundPool, task); err != nil {
		logger.Warnw("后台池不可用，降级到 goroutine", "error", err.Error())
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorw("通知任务 panic", "error", r)
				}
			}()
			task()
		}()
	}
}

// buildSources 将检索结果转换为响应来源，内容超长时截断。
func buildSources(results []*model.SearchResult) []model.ChunkSource {
	sources := make([]model.ChunkSource, len(results))
	for i, result := range results {
		content := result.Content
		if truncated := textutil.TruncateString(content, sourceContentLimit); truncated != content {
			content = truncated + "..."
		}
		sources[i] = model.ChunkSource{
			DocumentID: result.DocumentID,
			Position:   result.Position,
			Source:     result.Source,
			Content:    content,
			Score:      result.Score,
		}
	}
	return sources
}

// 确保 DocQAService 实现了 Service 接口。
var _ Service = (*DocQAService)(nil)
