package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sagara-io/crflow/internal/cr/service"
)

// RequestHandler 变更请求处理器
type RequestHandler struct {
	requestService *service.RequestService
}

func NewRequestHandler(requestService *service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// Create POST /requests
func (h *RequestHandler) Create(c *gin.Context) {
	var form service.RequestForm
	if err := c.ShouldBindJSON(&form); err != nil {
		BadRequest(c, err.Error())
		return
	}

	req, err := h.requestService.Create(c.Request.Context(), CurrentUser(c), &form)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, req)
}

// List GET /requests
func (h *RequestHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":     c.Query("status"),
		"search":     c.Query("search"),
		"sort_by":    c.DefaultQuery("sortBy", "createdAt"),
		"sort_order": c.DefaultQuery("sortOrder", "desc"),
	}

	result, err := h.requestService.List(c.Request.Context(), CurrentUser(c), page, pageSize, filters)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	Success(c, ListResponse{
		Items: result.Items,
		Pagination: Pagination{
			Page:       result.Page,
			PageSize:   result.PageSize,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	})
}

// Get GET /requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	detail, err := h.requestService.Get(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, detail)
}

// Update PUT /requests/:id
func (h *RequestHandler) Update(c *gin.Context) {
	var form service.RequestForm
	if err := c.ShouldBindJSON(&form); err != nil {
		BadRequest(c, err.Error())
		return
	}

	req, err := h.requestService.Update(c.Request.Context(), CurrentUser(c), c.Param("id"), &form)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, req)
}

// Delete DELETE /requests/:id
func (h *RequestHandler) Delete(c *gin.Context) {
	if err := h.requestService.Delete(c.Request.Context(), CurrentUser(c), c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// Submit POST /requests/:id/submit
func (h *RequestHandler) Submit(c *gin.Context) {
	req, err := h.requestService.Submit(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, req)
}

// Resubmit POST /requests/:id/resubmit
func (h *RequestHandler) Resubmit(c *gin.Context) {
	req, err := h.requestService.Resubmit(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, req)
}

// Progress GET /requests/:id/progress
func (h *RequestHandler) Progress(c *gin.Context) {
	result, err := h.requestService.Progress(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, result)
}

// Export GET /requests/export
func (h *RequestHandler) Export(c *gin.Context) {
	filters := map[string]string{
		"status":     c.Query("status"),
		"search":     c.Query("search"),
		"sort_by":    c.DefaultQuery("sortBy", "createdAt"),
		"sort_order": c.DefaultQuery("sortOrder", "desc"),
	}

	buf, err := h.requestService.ExportXLSX(c.Request.Context(), CurrentUser(c), filters)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	fileName := fmt.Sprintf("change-requests-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
