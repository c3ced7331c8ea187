package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sagara-io/crflow/internal/cr/service"
	"github.com/sagara-io/crflow/internal/cr/workflow"
)

// ApprovalHandler 审批处理器
type ApprovalHandler struct {
	approvalService *service.ApprovalService
}

func NewApprovalHandler(approvalService *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// Process POST /approval/:id/:role/:action
func (h *ApprovalHandler) Process(c *gin.Context) {
	tier := c.Param("role")
	action := c.Param("action")

	if tier != workflow.TierManager && tier != workflow.TierVP {
		BadRequest(c, "role must be manager or vp")
		return
	}
	switch action {
	case workflow.ActionApprove, workflow.ActionReject, workflow.ActionRevision:
	default:
		BadRequest(c, "action must be approve, reject or revision")
		return
	}

	// 请求体可为空（approve 不要求说明）
	var input service.ApprovalInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	req, err := h.approvalService.Process(c.Request.Context(), CurrentUser(c), c.Param("id"), tier, action, input.Notes)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, req)
}

// Assign POST /approval/:id/assign
func (h *ApprovalHandler) Assign(c *gin.Context) {
	var input service.AssignInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, err.Error())
		return
	}

	req, err := h.approvalService.Assign(c.Request.Context(), CurrentUser(c), c.Param("id"), &input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, req)
}

// Complete POST /approval/:id/complete
func (h *ApprovalHandler) Complete(c *gin.Context) {
	req, err := h.approvalService.Complete(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, req)
}
