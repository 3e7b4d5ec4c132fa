// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDKey 是关联 id 在 gin.Context 中的键名。
const CorrelationIDKey = "correlationId"

// correlationHeader 是承载关联 id 的 HTTP 头。
const correlationHeader = "X-Correlation-ID"

// CorrelationID 为每个请求注入一个关联 id：优先沿用请求头中已有的值，
// 否则生成新的 uuid。该 id 贯穿整条操作链路用于日志关联，不做持久化。
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(CorrelationIDKey, id)
		c.Header(correlationHeader, id)
		c.Next()
	}
}

// GetCorrelationID 从 gin.Context 中取出关联 id。
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(CorrelationIDKey)
}
