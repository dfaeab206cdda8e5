package handler

import (
	"net/http"

	"gqx-gateway-go/internal/service"
	"gqx-gateway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// TenantHandler 负责处理租户管理相关的 API 请求。
type TenantHandler struct {
	tenantService service.TenantService
}

// NewTenantHandler 创建一个新的 TenantHandler 实例。
func NewTenantHandler(tenantService service.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// CreateTenantRequest 定义了租户创建 API 的请求体结构。
type CreateTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create 处理租户创建请求，返回一次性凭证。
func (h *TenantHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload: name is required"})
		return
	}

	creds, err := h.tenantService.Create(req.Name)
	if err != nil {
		log.Error("创建租户失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create tenant"})
		return
	}

	c.JSON(http.StatusOK, creds)
}
