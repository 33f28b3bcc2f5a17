package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/metrics"
)

// HealthHandler handles health check and statistics requests.
type HealthHandler struct {
	service biz.Service
	version string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(service biz.Service, version string) *HealthHandler {
	return &HealthHandler{
		service: service,
		version: version,
	}
}

// Root 根路径存活探测。
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "docqa",
		"status":  "ok",
	})
}

// Healthz 返回服务存活状态。
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}

// Stats 返回服务统计信息。
func (h *HealthHandler) Stats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// Metrics 以 Prometheus 文本格式导出业务指标。
func (h *HealthHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8",
		[]byte(metrics.GetMetrics().Export("docqa", "")))
}
