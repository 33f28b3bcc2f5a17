package biz

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/registry"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/extractor"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/llm/fallback"
)

// stubEmbedder 为测试提供确定性向量。
type stubEmbedder struct{}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = fallback.HashEmbedding(text, 8)
	}
	return result, nil
}

func (e *stubEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return fallback.HashEmbedding(text, 8), nil
}

func (e *stubEmbedder) Name() string { return "stub-embedder" }

// stubChat 记录最后一次生成的提示词。
type stubChat struct {
	answer     string
	fragments  []string
	err        error
	lastPrompt string
	pingErr    error
	pinged     bool
}

func (c *stubChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return c.answer, c.err
}

func (c *stubChat) Generate(_ context.Context, prompt string, _ string) (string, error) {
	c.lastPrompt = prompt
	return c.answer, c.err
}

func (c *stubChat) GenerateStream(_ context.Context, prompt string, _ string) (llm.StreamReader, error) {
	c.lastPrompt = prompt
	if c.err != nil {
		return nil, c.err
	}
	return &stubStream{fragments: c.fragments}, nil
}

func (c *stubChat) Name() string { return "stub-chat" }

func (c *stubChat) Ping(_ context.Context) error {
	c.pinged = true
	return c.pingErr
}

type stubStream struct {
	fragments []string
	pos       int
	closed    bool
}

func (s *stubStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

func (s *stubStream) Close() error {
	s.closed = true
	return nil
}

// stubExtractor 返回固定文本。
type stubExtractor struct {
	text string
	err  error
}

func (e *stubExtractor) Extract(_ context.Context, path string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

func newTestService(t *testing.T, chat *stubChat, ext extractor.Extractor) (*DocQAService, *store.MemoryStore, *registry.Registry) {
	t.Helper()

	memStore := store.NewMemoryStore()
	reg, err := registry.New(filepath.Join(t.TempDir(), "documents.json"))
	require.NoError(t, err)

	svc := NewDocQAService(
		memStore,
		&stubEmbedder{},
		chat,
		ext,
		reg,
		nil,
		nil,
		&ServiceConfig{
			IngesterConfig:  &IngesterConfig{ChunkSize: 100, ChunkOverlap: 20},
			RetrieverConfig: &RetrieverConfig{TopK: 4},
			GeneratorConfig: &GeneratorConfig{
				SystemPrompt: "Context:\n{{context}}\n\nQuestion: {{question}}\n\nAnswer:",
			},
		},
	)
	return svc, memStore, reg
}

func registerDoc(t *testing.T, reg *registry.Registry, id string) *model.Document {
	t.Helper()
	doc := &model.Document{
		ID:         id,
		Filename:   id + ".pdf",
		Size:       2048,
		Source:     "/uploads/" + id + ".pdf",
		Status:     model.StatusPending,
		UploadDate: time.Now(),
	}
	require.NoError(t, reg.Add(doc))
	return doc
}

func TestService_IngestDocument(t *testing.T) {
	chat := &stubChat{answer: "ok"}
	svc, memStore, reg := newTestService(t, chat, &stubExtractor{
		text: "Milvus is a vector database. It stores embeddings for similarity search.",
	})

	doc := registerDoc(t, reg, "doc-1")

	result, err := svc.IngestDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Greater(t, result.ChunkNum, 0)
	assert.Equal(t, result.ChunkNum, memStore.ChunkCount())

	// 登记状态已更新
	got := reg.Get("doc-1")
	require.NotNil(t, got)
	assert.Equal(t, model.StatusIndexed, got.Status)
	assert.Equal(t, result.ChunkNum, got.ChunkNum)
}

func TestService_IngestDocument_无可提取文本(t *testing.T) {
	chat := &stubChat{answer: "ok"}
	svc, memStore, reg := newTestService(t, chat, &stubExtractor{text: "   \n\t  "})

	doc := registerDoc(t, reg, "doc-empty")

	_, err := svc.IngestDocument(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, extractor.IsExtractionError(err))

	// 不应写入任何索引条目
	assert.Zero(t, memStore.ChunkCount())
	assert.Equal(t, model.StatusFailed, reg.Get("doc-empty").Status)
}

func TestService_IngestDocument_提取失败(t *testing.T) {
	chat := &stubChat{answer: "ok"}
	svc, memStore, reg := newTestService(t, chat, &stubExtractor{
		err: &extractor.ExtractionError{Path: "bad.pdf", Reason: "损坏的文件"},
	})

	doc := registerDoc(t, reg, "doc-bad")

	_, err := svc.IngestDocument(context.Background(), doc)
	require.Error(t, err)
	assert.Zero(t, memStore.ChunkCount())
}

func TestService_重新摄取替换旧条目(t *testing.T) {
	chat := &stubChat{answer: "ok"}
	svc, memStore, reg := newTestService(t, chat, &stubExtractor{
		text: "Short document content for reindexing.",
	})

	doc := registerDoc(t, reg, "doc-1")

	first, err := svc.IngestDocument(context.Background(), doc)
	require.NoError(t, err)

	second, err := svc.IngestDocument(context.Background(), doc)
	require.NoError(t, err)

	// 旧条目被替换而非叠加
	assert.Equal(t, first.ChunkNum, second.ChunkNum)
	assert.Equal(t, second.ChunkNum, memStore.ChunkCount())
}

func seedChunks(t *testing.T, memStore *store.MemoryStore, docID string, contents ...string) {
	t.Helper()
	ctx := context.Background()
	embedder := &stubEmbedder{}

	chunks := make([]*model.Chunk, len(contents))
	for i, content := range contents {
		embedding, err := embedder.EmbedSingle(ctx, content)
		require.NoError(t, err)
		chunks[i] = &model.Chunk{
			DocumentID: docID,
			Position:   i,
			Content:    content,
			Source:     docID + ".pdf",
			Embedding:  embedding,
		}
	}
	require.NoError(t, memStore.Insert(ctx, chunks))
}

func TestService_Query(t *testing.T) {
	chat := &stubChat{answer: "Milvus 是向量数据库。"}
	svc, memStore, _ := newTestService(t, chat, &stubExtractor{})

	seedChunks(t, memStore, "doc-1",
		"Milvus is a vector database.",
		"It supports similarity search.",
	)

	result, err := svc.Query(context.Background(), "What is Milvus?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Milvus 是向量数据库。", result.Answer)
	require.Len(t, result.Sources, 2)

	// 提示词包含上下文和问题，块之间以空行分隔
	assert.Contains(t, chat.lastPrompt, "Milvus is a vector database.")
	assert.Contains(t, chat.lastPrompt, "It supports similarity search.")
	assert.Contains(t, chat.lastPrompt, "What is Milvus?")
	assert.NotContains(t, chat.lastPrompt, "{{context}}")
	assert.NotContains(t, chat.lastPrompt, "{{question}}")
}

func TestService_Query_范围过滤回显(t *testing.T) {
	chat := &stubChat{answer: "answer"}
	svc, memStore, _ := newTestService(t, chat, &stubExtractor{})

	seedChunks(t, memStore, "doc-1", "Content of document one.")
	seedChunks(t, memStore, "doc-2", "Content of document two.")

	result, err := svc.Query(context.Background(), "question", []string{"doc-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2"}, result.DocumentIDs)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "doc-2", result.Sources[0].DocumentID)
}

func TestService_Query_检索为空仍生成(t *testing.T) {
	chat := &stubChat{answer: "根据已有资料无法回答该问题。"}
	svc, _, _ := newTestService(t, chat, &stubExtractor{})

	// 未知文档范围，检索结果必然为空
	result, err := svc.Query(context.Background(), "anything", []string{"unknown-doc"})
	require.NoError(t, err)
	assert.Equal(t, "根据已有资料无法回答该问题。", result.Answer)
	assert.Empty(t, result.Sources)

	// 生成仍被调用，上下文占位符替换为空
	assert.Contains(t, chat.lastPrompt, "anything")
	assert.Contains(t, chat.lastPrompt, "Context:\n\n")
}

func TestService_Query_生成失败透传(t *testing.T) {
	chat := &stubChat{err: errors.New("model not loaded")}
	svc, memStore, _ := newTestService(t, chat, &stubExtractor{})

	seedChunks(t, memStore, "doc-1", "Some content.")

	_, err := svc.Query(context.Background(), "question", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestService_Query_来源内容截断(t *testing.T) {
	chat := &stubChat{answer: "answer"}
	svc, memStore, _ := newTestService(t, chat, &stubExtractor{})

	long := strings.Repeat("长", 300)
	seedChunks(t, memStore, "doc-1", long)

	result, err := svc.Query(context.Background(), "question", nil)
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)

	content := result.Sources[0].Content
	assert.True(t, strings.HasSuffix(content, "..."))
	assert.Equal(t, sourceContentLimit+3, utf8.RuneCountInString(content))
}

func TestService_QueryStream(t *testing.T) {
	chat := &stubChat{fragments: []string{"Milvus ", "is a ", "vector database."}}
	svc, memStore, _ := newTestService(t, chat, &stubExtractor{})

	seedChunks(t, memStore, "doc-1", "Milvus is a vector database.")

	result, err := svc.QueryStream(context.Background(), "What is Milvus?", []string{"doc-1"})
	require.NoError(t, err)
	defer result.Stream.Close()

	// 来源在流启动前已经确定
	require.Len(t, result.Sources, 1)
	assert.Equal(t, []string{"doc-1"}, result.DocumentIDs)

	// 片段按序到达
	var got []string
	for {
		fragment, err := result.Stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, fragment)
	}
	assert.Equal(t, []string{"Milvus ", "is a ", "vector database."}, got)
}

func TestService_QueryStream_启动失败(t *testing.T) {
	chat := &stubChat{err: errors.New("connection refused")}
	svc, _, _ := newTestService(t, chat, &stubExtractor{})

	_, err := svc.QueryStream(context.Background(), "question", nil)
	require.Error(t, err)
}

func TestService_DeleteDocument(t *testing.T) {
	chat := &stubChat{answer: "ok"}
	svc, memStore, reg := newTestService(t, chat, &stubExtractor{})

	registerDoc(t, reg, "doc-1")
	seedChunks(t, memStore, "doc-1", "Content one.", "Content two.")

	require.NoError(t, svc.DeleteDocument(context.Background(), "doc-1"))
	assert.Zero(t, memStore.ChunkCount())
	assert.Nil(t, reg.Get("doc-1"))

	// 幂等
	require.NoError(t, svc.DeleteDocument(context.Background(), "doc-1"))
}

func TestService_DocumentCount(t *testing.T) {
	chat := &stubChat{answer: "ok"}
	svc, memStore, _ := newTestService(t, chat, &stubExtractor{})

	seedChunks(t, memStore, "doc-1", "a", "b")
	seedChunks(t, memStore, "doc-2", "c")

	count, err := svc.DocumentCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestService_GetStats(t *testing.T) {
	chat := &stubChat{answer: "ok"}
	svc, memStore, reg := newTestService(t, chat, &stubExtractor{})

	registerDoc(t, reg, "doc-1")
	seedChunks(t, memStore, "doc-1", "content")

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["document_count"])
	assert.Equal(t, 1, stats["registered_count"])
	assert.Equal(t, "stub-embedder", stats["embed_provider"])
	assert.Equal(t, "stub-chat", stats["chat_provider"])
	assert.Contains(t, stats, "metrics")
}

func TestService_Ping(t *testing.T) {
	chat := &stubChat{}
	svc, _, _ := newTestService(t, chat, &stubExtractor{})

	require.NoError(t, svc.Ping(context.Background()))
	assert.True(t, chat.pinged)

	chat.pingErr = errors.New("ollama unreachable")
	assert.Error(t, svc.Ping(context.Background()))
}
