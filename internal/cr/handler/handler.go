package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/service"
	"github.com/sagara-io/crflow/internal/cr/workflow"
)

// Handlers 处理器聚合
type Handlers struct {
	Auth         *AuthHandler
	Request      *RequestHandler
	Approval     *ApprovalHandler
	Notification *NotificationHandler
	Document     *DocumentHandler
	Dashboard    *DashboardHandler
	SSE          *SSEHandler
}

// NewHandlers 创建全部处理器
func NewHandlers(services *service.Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		Auth:         NewAuthHandler(services.Auth),
		Request:      NewRequestHandler(services.Request),
		Approval:     NewApprovalHandler(services.Approval),
		Notification: NewNotificationHandler(services.Notification),
		Document:     NewDocumentHandler(services.Document),
		Dashboard:    NewDashboardHandler(services.Dashboard),
		SSE:          NewSSEHandler(logger),
	}
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ListResponse 列表响应
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Code: 0, Message: "success", Data: data})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{Code: 0, Message: "created", Data: data})
}

// Error 错误响应，HTTP 状态码由业务码推导
func Error(c *gin.Context, code int, message string) {
	httpStatus := code / 100
	if httpStatus < 100 || httpStatus > 599 {
		httpStatus = 500
	}
	c.JSON(httpStatus, Response{Code: code, Message: message})
}

// BadRequest 参数错误
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// Forbidden 无权限
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 不存在
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleServiceError 服务层错误到响应的统一映射
func HandleServiceError(c *gin.Context, err error) {
	var te *workflow.TransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "resource not found")
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, "operation not allowed")
	case errors.Is(err, service.ErrInvalidCredentials):
		Unauthorized(c, err.Error())
	case errors.As(err, &te):
		Conflict(c, te.Error())
	case errors.Is(err, workflow.ErrRevisionLimit):
		Conflict(c, err.Error())
	case errors.Is(err, workflow.ErrNotesTooShort):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrValidation):
		BadRequest(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文取当前用户ID
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// CurrentUser 从 JWT claims 构造当前用户，避免每个请求回查数据库
func CurrentUser(c *gin.Context) *entity.User {
	return &entity.User{
		ID:       c.GetString("user_id"),
		Name:     c.GetString("user_name"),
		Email:    c.GetString("user_email"),
		Role:     c.GetString("user_role"),
		Division: c.GetString("user_division"),
	}
}

// GetPagination 解析分页参数，默认 page=1 pageSize=10，上限 100
func GetPagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
