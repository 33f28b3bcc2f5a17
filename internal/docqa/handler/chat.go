package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/history"
	"github.com/kart-io/docqa/internal/model"
)

// ChatHandler handles question answering and chat history requests.
type ChatHandler struct {
	service biz.Service
	history history.Store
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(service biz.Service, historyStore history.Store) *ChatHandler {
	return &ChatHandler{
		service: service,
		history: historyStore,
	}
}

// ChatRequest represents a question answering request.
type ChatRequest struct {
	Question    string   `json:"question" binding:"required"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
}

// Message 执行问答并返回完整答案。
func (h *ChatHandler) Message(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	result, err := h.service.Query(ctx, req.Question, req.DocumentIDs)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "Query timeout: the request took too long to process. Please try again or simplify your question.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	h.appendHistory(c.Request.Context(), req.SessionID, req.Question, result.Answer)

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// Stream 以 SSE 流式返回答案。
// 逐段下发 content 事件，流结束时下发带 sources 和 done 标记的
// 终止事件；失败时下发单个 error 事件。
func (h *ChatHandler) Stream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	result, err := h.service.QueryStream(ctx, req.Question, req.DocumentIDs)
	if err != nil {
		c.SSEvent("message", gin.H{"error": err.Error()})
		c.Writer.Flush()
		return
	}
	defer result.Stream.Close()

	var answer strings.Builder
	for {
		fragment, err := result.Stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warnw("流式生成中断", "error", err.Error())
			c.SSEvent("message", gin.H{"error": err.Error()})
			c.Writer.Flush()
			return
		}

		answer.WriteString(fragment)
		c.SSEvent("message", gin.H{"content": fragment})
		c.Writer.Flush()
	}

	c.SSEvent("message", gin.H{
		"sources":      result.Sources,
		"document_ids": result.DocumentIDs,
		"done":         true,
	})
	c.Writer.Flush()

	h.appendHistory(c.Request.Context(), req.SessionID, req.Question, answer.String())
}

// appendHistory 记录一轮问答到会话历史，失败只记日志。
func (h *ChatHandler) appendHistory(ctx context.Context, sessionID, question, answer string) {
	if h.history == nil || sessionID == "" {
		return
	}

	now := time.Now()
	userMsg := &model.ChatMessage{Role: model.ChatRoleUser, Content: question, Timestamp: now}
	assistantMsg := &model.ChatMessage{Role: model.ChatRoleAssistant, Content: answer, Timestamp: now}

	if err := h.history.Append(ctx, sessionID, userMsg); err != nil {
		logger.Warnw("记录会话历史失败", "session", sessionID, "error", err.Error())
		return
	}
	if err := h.history.Append(ctx, sessionID, assistantMsg); err != nil {
		logger.Warnw("记录会话历史失败", "session", sessionID, "error", err.Error())
	}
}

// HistoryAppendRequest 追加历史消息的请求体。
type HistoryAppendRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// AppendHistory 向指定会话追加一条消息。
func (h *ChatHandler) AppendHistory(c *gin.Context) {
	var req HistoryAppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}
	if req.Role != model.ChatRoleUser && req.Role != model.ChatRoleAssistant {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "role 必须是 user 或 assistant"})
		return
	}

	if h.history == nil {
		c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success"})
		return
	}

	msg := &model.ChatMessage{Role: req.Role, Content: req.Content, Timestamp: time.Now()}
	if err := h.history.Append(c.Request.Context(), c.Param("session"), msg); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success"})
}

// GetHistory 返回指定会话的历史消息。
func (h *ChatHandler) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: []*model.ChatMessage{}})
		return
	}

	msgs, err := h.history.Get(c.Request.Context(), c.Param("session"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}
	if msgs == nil {
		msgs = []*model.ChatMessage{}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: msgs})
}

// ClearHistory 清空指定会话的历史。
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "history cleared"})
		return
	}

	if err := h.history.Clear(c.Request.Context(), c.Param("session")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "history cleared"})
}

// ListSessions 列出全部会话 ID。
func (h *ChatHandler) ListSessions(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: []string{}})
		return
	}

	ids, err := h.history.Sessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: ids})
}

// OllamaStatus 探测 LLM 服务可用性。
func (h *ChatHandler) OllamaStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
