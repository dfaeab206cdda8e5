// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"gqx-gateway-go/internal/service"
	"gqx-gateway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// TenantIDKey 是认证后写入 Gin 上下文的租户标识键。
const TenantIDKey = "tenantID"

// TenantAuth 创建一个 Gin 中间件，将 Bearer 凭证解析为租户标识。
// 缺失或格式错误的凭证头返回 401；凭证无法解析到租户返回 403。
// 认证失败的流量不会消耗租户配额，配额检查在认证之后进行。
func TenantAuth(tenantService service.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		tenantID, err := tenantService.Resolve(parts[1])
		if err != nil {
			log.Error("解析租户凭证失败", err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid credential"})
			return
		}
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid credential"})
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Next()
	}
}

// TenantID 从 Gin 上下文取出认证后的租户标识。
func TenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}
