// Package router 注册文档问答服务的 HTTP 路由。
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/handler"
)

// Register 注册全部路由。
func Register(
	engine *gin.Engine,
	documentHandler *handler.DocumentHandler,
	chatHandler *handler.ChatHandler,
	healthHandler *handler.HealthHandler,
	notifyHandler *handler.NotifyHandler,
) {
	logger.Info("Registering routes...")

	engine.GET("/", healthHandler.Root)
	engine.GET("/healthz", healthHandler.Healthz)
	engine.GET("/metrics", healthHandler.Metrics)

	api := engine.Group("/api")
	{
		documents := api.Group("/documents")
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("/list", documentHandler.List)
			documents.GET("", documentHandler.Count)
			documents.GET("/:id", documentHandler.Get)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		chat := api.Group("/chat")
		{
			chat.POST("/message", chatHandler.Message)
			chat.POST("/message/stream", chatHandler.Stream)
			chat.GET("/ollama-status", chatHandler.OllamaStatus)
			chat.GET("/sessions", chatHandler.ListSessions)
			chat.GET("/history/:session", chatHandler.GetHistory)
			chat.POST("/history/:session", chatHandler.AppendHistory)
			chat.DELETE("/history/:session", chatHandler.ClearHistory)
		}

		api.GET("/rag/stats", healthHandler.Stats)
		api.POST("/notify-dev", notifyHandler.SendTest)
	}

	logger.Info("HTTP routes registered")
}
