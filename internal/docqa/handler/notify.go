package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/pkg/notify"
)

// NotifyHandler handles notification test requests.
type NotifyHandler struct {
	notifier notify.Notifier
}

// NewNotifyHandler creates a new NotifyHandler.
func NewNotifyHandler(notifier notify.Notifier) *NotifyHandler {
	if notifier == nil {
		notifier = notify.NewNoop()
	}
	return &NotifyHandler{notifier: notifier}
}

// SendTestRequest represents a test notification request.
type SendTestRequest struct {
	Message string `json:"message" binding:"required"`
}

// SendTest 发送一条测试通知，用于验证通知通道配置。
func (h *NotifyHandler) SendTest(c *gin.Context) {
	var req SendTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	if err := h.notifier.Send(c.Request.Context(), req.Message); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "notification sent"})
}
