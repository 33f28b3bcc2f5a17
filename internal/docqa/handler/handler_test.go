package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/history"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubService 可编程的服务桩。
type stubService struct {
	queryResult  *model.QueryResult
	queryErr     error
	streamResult *biz.StreamResult
	streamErr    error
	ingestResult *model.IngestResult
	ingestErr    error
	documents    map[string]*model.Document
	duplicate    *model.Document
	count        int64
	pingErr      error
	deleted      []string
}

func newStubService() *stubService {
	return &stubService{documents: make(map[string]*model.Document)}
}

func (s *stubService) RegisterDocument(_ context.Context, doc *model.Document) error {
	s.documents[doc.ID] = doc
	return nil
}

func (s *stubService) IngestDocument(_ context.Context, doc *model.Document) (*model.IngestResult, error) {
	return s.ingestResult, s.ingestErr
}

func (s *stubService) Query(_ context.Context, question string, documentIDs []string) (*model.QueryResult, error) {
	return s.queryResult, s.queryErr
}

func (s *stubService) QueryStream(_ context.Context, question string, documentIDs []string) (*biz.StreamResult, error) {
	return s.streamResult, s.streamErr
}

func (s *stubService) DeleteDocument(_ context.Context, documentID string) error {
	s.deleted = append(s.deleted, documentID)
	delete(s.documents, documentID)
	return nil
}

func (s *stubService) ListDocuments(_ context.Context) ([]*model.Document, error) {
	docs := make([]*model.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *stubService) GetDocument(_ context.Context, documentID string) (*model.Document, error) {
	return s.documents[documentID], nil
}

func (s *stubService) FindDuplicate(_ context.Context, filename string, size int64) (*model.Document, error) {
	return s.duplicate, nil
}

func (s *stubService) DocumentCount(_ context.Context) (int64, error) {
	return s.count, nil
}

func (s *stubService) GetStats(_ context.Context) (map[string]any, error) {
	return map[string]any{"document_count": s.count}, nil
}

func (s *stubService) Ping(_ context.Context) error {
	return s.pingErr
}

var _ biz.Service = (*stubService)(nil)

// sliceStream 预置片段的流。
type sliceStream struct {
	fragments []string
	pos       int
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

func (s *sliceStream) Close() error { return nil }

var _ llm.StreamReader = (*sliceStream)(nil)

func performJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestChatHandler_Message(t *testing.T) {
	svc := newStubService()
	svc.queryResult = &model.QueryResult{
		Answer:      "Milvus 是向量数据库。",
		Sources:     []model.ChunkSource{{DocumentID: "doc-1", Score: 0.9}},
		DocumentIDs: []string{"doc-1"},
	}

	engine := gin.New()
	engine.POST("/api/chat/message", NewChatHandler(svc, nil).Message)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/message",
		`{"question":"What is Milvus?","document_ids":["doc-1"]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Milvus 是向量数据库。")
	assert.Contains(t, w.Body.String(), `"document_ids":["doc-1"]`)
}

func TestChatHandler_Message_缺少问题字段(t *testing.T) {
	engine := gin.New()
	engine.POST("/api/chat/message", NewChatHandler(newStubService(), nil).Message)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/message", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_Message_服务错误(t *testing.T) {
	svc := newStubService()
	svc.queryErr = errors.New("model not loaded")

	engine := gin.New()
	engine.POST("/api/chat/message", NewChatHandler(svc, nil).Message)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/message", `{"question":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "model not loaded")
}

func TestChatHandler_Message_记录会话历史(t *testing.T) {
	svc := newStubService()
	svc.queryResult = &model.QueryResult{Answer: "the answer"}
	store := history.NewMemoryStore()

	engine := gin.New()
	engine.POST("/api/chat/message", NewChatHandler(svc, store).Message)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/message",
		`{"question":"q","session_id":"sess-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	msgs, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, "q", msgs[0].Content)
	assert.Equal(t, model.ChatRoleAssistant, msgs[1].Role)
	assert.Equal(t, "the answer", msgs[1].Content)
}

func TestChatHandler_Stream(t *testing.T) {
	svc := newStubService()
	svc.streamResult = &biz.StreamResult{
		Stream:      &sliceStream{fragments: []string{"Hello ", "world"}},
		Sources:     []model.ChunkSource{{DocumentID: "doc-1", Score: 0.8}},
		DocumentIDs: []string{"doc-1"},
	}

	engine := gin.New()
	engine.POST("/api/chat/message/stream", NewChatHandler(svc, nil).Stream)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/message/stream", `{"question":"q"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	// 内容片段按序下发，终止事件携带来源和 done 标记
	assert.Contains(t, body, `"content":"Hello "`)
	assert.Contains(t, body, `"content":"world"`)
	assert.Contains(t, body, `"done":true`)
	assert.Contains(t, body, `"document_ids":["doc-1"]`)
	assert.Less(t, strings.Index(body, "Hello"), strings.Index(body, `"done":true`))
}

func TestChatHandler_Stream_启动失败(t *testing.T) {
	svc := newStubService()
	svc.streamErr = errors.New("connection refused")

	engine := gin.New()
	engine.POST("/api/chat/message/stream", NewChatHandler(svc, nil).Stream)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/message/stream", `{"question":"q"}`)
	body := w.Body.String()
	assert.Contains(t, body, `"error":"connection refused"`)
	assert.NotContains(t, body, `"done":true`)
}

func TestChatHandler_OllamaStatus(t *testing.T) {
	svc := newStubService()
	engine := gin.New()
	engine.GET("/api/chat/ollama-status", NewChatHandler(svc, nil).OllamaStatus)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/ollama-status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	svc.pingErr = errors.New("unreachable")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/ollama-status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChatHandler_History(t *testing.T) {
	store := history.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), "sess-1",
		&model.ChatMessage{Role: model.ChatRoleUser, Content: "hi"}))

	h := NewChatHandler(newStubService(), store)
	engine := gin.New()
	engine.GET("/api/chat/history/:session", h.GetHistory)
	engine.DELETE("/api/chat/history/:session", h.ClearHistory)
	engine.GET("/api/chat/sessions", h.ListSessions)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/history/sess-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hi"`)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/sessions", nil))
	assert.Contains(t, w.Body.String(), "sess-1")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/chat/history/sess-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	msgs, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChatHandler_AppendHistory(t *testing.T) {
	store := history.NewMemoryStore()
	h := NewChatHandler(newStubService(), store)

	engine := gin.New()
	engine.POST("/api/chat/history/:session", h.AppendHistory)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/history/sess-1",
		`{"role":"user","content":"记住这个上下文"}`)
	require.Equal(t, http.StatusOK, w.Code)

	msgs, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, "记住这个上下文", msgs[0].Content)
}

func TestChatHandler_AppendHistory_非法角色(t *testing.T) {
	h := NewChatHandler(newStubService(), history.NewMemoryStore())
	engine := gin.New()
	engine.POST("/api/chat/history/:session", h.AppendHistory)

	w := performJSON(t, engine, http.MethodPost, "/api/chat/history/sess-1",
		`{"role":"system","content":"injected"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performJSON(t, engine, http.MethodPost, "/api/chat/history/sess-1", `{"role":"user"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestDocumentHandler_Upload(t *testing.T) {
	svc := newStubService()
	svc.ingestResult = &model.IngestResult{DocumentID: "generated", ChunkNum: 3}

	h := NewDocumentHandler(svc, t.TempDir(), 10<<20)
	engine := gin.New()
	engine.POST("/api/documents/upload", h.Upload)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, uploadRequest(t, "report.pdf", []byte("%PDF-1.4 fake")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunks":3`)
	assert.Len(t, svc.documents, 1)
}

func TestDocumentHandler_Upload_非PDF拒绝(t *testing.T) {
	h := NewDocumentHandler(newStubService(), t.TempDir(), 10<<20)
	engine := gin.New()
	engine.POST("/api/documents/upload", h.Upload)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, uploadRequest(t, "notes.txt", []byte("plain text")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Upload_重复上传短路(t *testing.T) {
	svc := newStubService()
	svc.duplicate = &model.Document{ID: "existing", Filename: "report.pdf", Status: model.StatusIndexed}

	h := NewDocumentHandler(svc, t.TempDir(), 10<<20)
	engine := gin.New()
	engine.POST("/api/documents/upload", h.Upload)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, uploadRequest(t, "report.pdf", []byte("%PDF-1.4 fake")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "document already exists")
	// 不触发新的登记
	assert.Empty(t, svc.documents)
}

func TestDocumentHandler_Upload_摄取失败(t *testing.T) {
	svc := newStubService()
	svc.ingestErr = errors.New("文档不包含可提取的文本")

	h := NewDocumentHandler(svc, t.TempDir(), 10<<20)
	engine := gin.New()
	engine.POST("/api/documents/upload", h.Upload)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, uploadRequest(t, "empty.pdf", []byte("%PDF-1.4 fake")))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDocumentHandler_GetDelete(t *testing.T) {
	svc := newStubService()
	svc.documents["doc-1"] = &model.Document{ID: "doc-1", Filename: "a.pdf"}

	h := NewDocumentHandler(svc, t.TempDir(), 10<<20)
	engine := gin.New()
	engine.GET("/api/documents/:id", h.Get)
	engine.DELETE("/api/documents/:id", h.Delete)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/doc-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"doc-1"}, svc.deleted)
}

func TestDocumentHandler_Count(t *testing.T) {
	svc := newStubService()
	svc.count = 7

	h := NewDocumentHandler(svc, t.TempDir(), 10<<20)
	engine := gin.New()
	engine.GET("/api/documents", h.Count)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":7`)
	assert.Contains(t, w.Body.String(), `"total_documents":7`)
}

func TestHealthHandler(t *testing.T) {
	svc := newStubService()
	h := NewHealthHandler(svc, "v1.0.0")

	engine := gin.New()
	engine.GET("/", h.Root)
	engine.GET("/healthz", h.Healthz)
	engine.GET("/api/rag/stats", h.Stats)
	engine.GET("/metrics", h.Metrics)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docqa")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "v1.0.0")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rag/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docqa_queries_total")
}

type stubNotifier struct {
	sent []string
	err  error
}

func (n *stubNotifier) Send(_ context.Context, message string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, message)
	return nil
}

func TestNotifyHandler_SendTest(t *testing.T) {
	notifier := &stubNotifier{}
	engine := gin.New()
	engine.POST("/api/notify-dev", NewNotifyHandler(notifier).SendTest)

	w := performJSON(t, engine, http.MethodPost, "/api/notify-dev", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"hello"}, notifier.sent)

	notifier.err = errors.New("telegram api error")
	w = performJSON(t, engine, http.MethodPost, "/api/notify-dev", `{"message":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
