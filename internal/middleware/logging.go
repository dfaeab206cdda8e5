package middleware

import (
	"time"

	"gqx-gateway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，记录请求的概要日志。
// 聊天接口的请求体可能携带完整对话，流式响应体没有意义，
// 因此这里不抓取 body。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"tenantID", c.GetString(TenantIDKey),
		)
	}
}
