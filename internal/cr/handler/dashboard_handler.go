package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sagara-io/crflow/internal/cr/service"
)

// DashboardHandler 看板处理器
type DashboardHandler struct {
	dashboardService *service.DashboardService
}

func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// Get GET /dashboard
func (h *DashboardHandler) Get(c *gin.Context) {
	data, err := h.dashboardService.Get(c.Request.Context(), CurrentUser(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, data)
}
