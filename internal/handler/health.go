package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"avidlp/youtube-server/internal/models"
)

// ServiceName 健康检查返回的服务名
const ServiceName = "YouTube Downloader API"

// HealthHandler 健康检查处理器
type HealthHandler struct{}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HealthCheck 健康检查
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Service: ServiceName,
	})
}

// Live 存活检查
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "alive"})
}
