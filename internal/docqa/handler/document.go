package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/model"
)

// DocumentHandler handles document upload and management requests.
type DocumentHandler struct {
	service     biz.Service
	uploadDir   string
	maxFileSize int64
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(service biz.Service, uploadDir string, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{
		service:     service,
		uploadDir:   uploadDir,
		maxFileSize: maxFileSize,
	}
}

// Upload 接收上传的 PDF 文档并触发摄取。
// 文件名和大小都相同的文档视为重复上传，直接返回已有登记。
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "missing file field: " + err.Error()})
		return
	}

	if ext := strings.ToLower(filepath.Ext(file.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "only PDF documents are supported"})
		return
	}

	if file.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "file exceeds size limit"})
		return
	}

	if existing, _ := h.service.FindDuplicate(c.Request.Context(), file.Filename, file.Size); existing != nil {
		c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document already exists", Data: existing})
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	docID := uuid.NewString()
	dest := filepath.Join(h.uploadDir, docID+".pdf")
	if err := c.SaveUploadedFile(file, dest); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "failed to save file: " + err.Error()})
		return
	}

	doc := &model.Document{
		ID:         docID,
		Filename:   file.Filename,
		Size:       file.Size,
		Source:     dest,
		Status:     model.StatusPending,
		UploadDate: time.Now(),
	}
	if err := h.service.RegisterDocument(c.Request.Context(), doc); err != nil {
		_ = os.Remove(dest)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	result, err := h.service.IngestDocument(c.Request.Context(), doc)
	if err != nil {
		// 摄取失败时清理上传文件，登记保留失败状态供排查
		_ = os.Remove(dest)
		logger.Warnw("文档摄取失败", "document_id", docID, "filename", file.Filename, "error", err.Error())
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Code: 422, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document indexed successfully", Data: gin.H{
		"document": doc,
		"chunks":   result.ChunkNum,
	}})
}

// List 列出全部已登记文档。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.service.ListDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: docs})
}

// Get 按 ID 查询文档。
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "document not found"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: doc})
}

// Delete 删除文档及其索引条目。
func (h *DocumentHandler) Delete(c *gin.Context) {
	docID := c.Param("id")

	doc, _ := h.service.GetDocument(c.Request.Context(), docID)

	if err := h.service.DeleteDocument(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	// 同时清理上传文件
	if doc != nil && doc.Source != "" {
		if err := os.Remove(doc.Source); err != nil && !os.IsNotExist(err) {
			logger.Warnw("删除上传文件失败", "path", doc.Source, "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document deleted"})
}

// Count 返回向量索引中的文档数量。
func (h *DocumentHandler) Count(c *gin.Context) {
	count, err := h.service.DocumentCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{
		"count":           count,
		"total_documents": count,
	}})
}
