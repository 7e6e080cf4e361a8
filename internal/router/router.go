package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"avidlp/youtube-server/internal/config"
	"avidlp/youtube-server/internal/handler"
	"avidlp/youtube-server/internal/middleware"
)

// Dependencies 路由依赖
type Dependencies struct {
	Config *config.Config
	Media  handler.MediaService
	Logger *zap.Logger
}

// SetupRouter 设置路由
func SetupRouter(deps *Dependencies) *gin.Engine {
	// 设置 Gin 模式
	switch deps.Config.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(deps.Config.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.CORS(&deps.Config.CORS))

	// 创建处理器
	healthHandler := handler.NewHealthHandler()
	mediaHandler := handler.NewMediaHandler(deps.Media, deps.Config.Storage.ChunkSize, deps.Logger)

	// 健康检查
	r.GET("/", healthHandler.HealthCheck)
	r.GET("/live", healthHandler.Live)

	api := r.Group("")
	if deps.Config.RateLimit.RPS > 0 {
		api.Use(middleware.IPRateLimit(middleware.NewRateLimiter(&deps.Config.RateLimit)))
	}
	{
		api.GET("/info", mediaHandler.Info)
		api.POST("/download-stream", mediaHandler.DownloadStream)
		api.POST("/download", middleware.APIKey(deps.Config.Auth.APIKey, deps.Logger), mediaHandler.Download)
	}

	return r
}
