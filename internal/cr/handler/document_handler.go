package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sagara-io/crflow/internal/cr/service"
)

// 附件大小上限 20MB
const maxUploadSize = 20 << 20

// DocumentHandler 文档处理器
type DocumentHandler struct {
	documentService *service.DocumentService
}

func NewDocumentHandler(documentService *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload POST /requests/:id/documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	if fileHeader.Size > maxUploadSize {
		BadRequest(c, "file exceeds the 20MB limit")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	defer file.Close()

	doc, err := h.documentService.Upload(c.Request.Context(), CurrentUser(c), c.Param("id"),
		file, fileHeader.Filename, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, doc)
}

// ListByRequest GET /requests/:id/documents
func (h *DocumentHandler) ListByRequest(c *gin.Context) {
	docs, err := h.documentService.ListByRequest(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, docs)
}

// Download GET /documents/:id/download
func (h *DocumentHandler) Download(c *gin.Context) {
	result, err := h.documentService.Download(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, result)
}

// Delete DELETE /documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documentService.Delete(c.Request.Context(), CurrentUser(c), c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}
