// Package handler 提供文档问答服务的 HTTP 处理器。
package handler

import "time"

// queryTimeout 单次问答请求的最大处理时间。
const queryTimeout = 60 * time.Second

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
