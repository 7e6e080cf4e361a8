package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"avidlp/youtube-server/internal/models"
)

// APIKeyHeader 客户端携带 API Key 的请求头
const APIKeyHeader = "X-API-Key"

// APIKey API Key 校验中间件, apiKey 为空时放行所有请求
func APIKey(apiKey string, logger *zap.Logger) gin.HandlerFunc {
	expected := []byte(apiKey)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			logger.Warn("invalid api key",
				zap.String("request_id", GetRequestID(c)),
				zap.String("key_prefix", maskKey(provided)),
				zap.String("client_ip", c.ClientIP()))
			models.Unauthorized(c, "Invalid API Key")
			return
		}

		c.Next()
	}
}

// maskKey 日志中只保留前 4 位
func maskKey(key string) string {
	if key == "" {
		return "<none>"
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
