package router

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docqa/internal/docqa/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRegister_路由表(t *testing.T) {
	engine := gin.New()
	Register(engine,
		handler.NewDocumentHandler(nil, t.TempDir(), 10<<20),
		handler.NewChatHandler(nil, nil),
		handler.NewHealthHandler(nil, "test"),
		handler.NewNotifyHandler(nil),
	)

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /",
		"GET /healthz",
		"GET /metrics",
		"POST /api/documents/upload",
		"GET /api/documents/list",
		"GET /api/documents",
		"GET /api/documents/:id",
		"DELETE /api/documents/:id",
		"POST /api/chat/message",
		"POST /api/chat/message/stream",
		"GET /api/chat/ollama-status",
		"GET /api/chat/sessions",
		"GET /api/chat/history/:session",
		"POST /api/chat/history/:session",
		"DELETE /api/chat/history/:session",
		"GET /api/rag/stats",
		"POST /api/notify-dev",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "缺少路由 %s", route)
	}
}
