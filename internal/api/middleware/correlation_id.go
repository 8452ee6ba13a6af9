package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	correlationIDKey    = "correlationID"
	correlationIDHeader = "X-Correlation-ID"
	maxCorrelationIDLen = 128
)

// CorrelationIDMiddleware 确保每个请求都带有 Correlation ID；
// 客户端传入的 ID 过长时会被替换。该 ID 也会写入批量任务与通知消息。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationIDHeader)
		if id == "" {
			id = c.GetHeader("X-Request-ID")
		}
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Header(correlationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID 从上下文中取出 Correlation ID。
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationIDKey)
}
