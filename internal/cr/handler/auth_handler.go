package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sagara-io/crflow/internal/cr/service"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, user)
}

// Login POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, result)
}

// Me GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), GetUserID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, user)
}

// ListUsers GET /users?role=&division=
func (h *AuthHandler) ListUsers(c *gin.Context) {
	filters := map[string]string{
		"role":     c.Query("role"),
		"division": c.Query("division"),
	}
	users, err := h.authService.ListUsers(c.Request.Context(), filters)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, users)
}
