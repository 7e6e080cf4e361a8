package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"avidlp/youtube-server/internal/cleanup"
	"avidlp/youtube-server/internal/config"
	"avidlp/youtube-server/internal/extractor"
	"avidlp/youtube-server/internal/native"
	"avidlp/youtube-server/internal/router"
	"avidlp/youtube-server/internal/service"
	"avidlp/youtube-server/internal/storage"
	"avidlp/youtube-server/internal/ytdlp"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to yaml config file")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. 初始化日志
	logger, err := newLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting YouTube Downloader API",
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode),
		zap.String("backend", cfg.Extractor.Backend),
		zap.Bool("api_key_required", cfg.Auth.HasAPIKey()))

	// 3. 初始化提取后端
	ext, err := newExtractor(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize extractor", zap.Error(err))
	}

	// 4. 初始化临时存储
	files := storage.NewFileManager(cfg.Storage.TempDir, logger)
	if err := files.EnsureDir(); err != nil {
		logger.Fatal("Failed to prepare temp dir", zap.Error(err))
	}

	// 5. 初始化媒体服务
	limiter := service.NewLimiter(cfg.Limits.MaxConcurrentExtractions)
	media := service.NewMediaService(ext, files, limiter, logger)

	// 6. 启动清理调度器
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	scheduler := cleanup.NewScheduler(&cfg.Cleanup, files, logger)
	go scheduler.Start(ctx)

	// 7. 设置路由
	r := router.SetupRouter(&router.Dependencies{
		Config: cfg,
		Media:  media,
		Logger: logger,
	})

	// 8. 创建 HTTP 服务器
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 9. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	// 10. 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// newLogger 根据配置创建 zap 日志
func newLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// newExtractor 按配置选择提取后端
func newExtractor(cfg *config.Config, logger *zap.Logger) (extractor.Extractor, error) {
	switch cfg.Extractor.Backend {
	case "native":
		cookies := cfg.YTDLP.CookiesFile
		if cookies != "" {
			if _, err := os.Stat(cookies); err != nil {
				logger.Warn("cookies file not found, continuing without cookies", zap.String("path", cookies))
				cookies = ""
			}
		}
		httpClient, err := native.NewHTTPClient(cfg.YTDLP.Proxy, cookies)
		if err != nil {
			return nil, err
		}
		return native.NewBackend(httpClient, logger), nil

	case "ytdlp", "":
		executor := ytdlp.NewExecutor(&cfg.YTDLP, logger)
		if version, err := executor.Version(context.Background()); err != nil {
			logger.Warn("yt-dlp not available, requests will fail until it is installed",
				zap.String("binary", cfg.YTDLP.BinaryPath),
				zap.Error(err))
		} else {
			logger.Info("yt-dlp detected", zap.String("version", version))
		}
		return executor, nil

	default:
		return nil, fmt.Errorf("unknown extractor backend %q", cfg.Extractor.Backend)
	}
}
