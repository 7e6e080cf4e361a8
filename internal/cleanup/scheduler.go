package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"avidlp/youtube-server/internal/config"
	"avidlp/youtube-server/internal/storage"
)

// Scheduler 清理调度器, 删除超时未释放的下载工作目录
type Scheduler struct {
	fileManager *storage.FileManager
	interval    time.Duration
	maxAge      time.Duration
	enabled     bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewScheduler 创建清理调度器
func NewScheduler(cfg *config.CleanupConfig, fileManager *storage.FileManager, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		fileManager: fileManager,
		interval:    cfg.Interval,
		maxAge:      cfg.MaxAge,
		enabled:     cfg.Enabled,
		logger:      logger,
		now:         time.Now,
	}
}

// Start 启动清理调度器, 阻塞直到 ctx 结束
func (s *Scheduler) Start(ctx context.Context) {
	if !s.enabled || s.interval <= 0 {
		s.logger.Info("cleanup scheduler is disabled")
		return
	}

	s.logger.Info("starting cleanup scheduler",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 启动时先执行一次
	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("cleanup scheduler stopped")
			return
		}
	}
}

// Sweep 执行一次清理, 返回删除的目录数
func (s *Scheduler) Sweep(ctx context.Context) int {
	startTime := s.now()

	stale, err := s.fileManager.StaleWorkspaces(startTime, s.maxAge)
	if err != nil {
		s.logger.Warn("failed to list workspaces", zap.Error(err))
		return 0
	}
	if len(stale) == 0 {
		s.logger.Debug("no stale workspaces to clean")
		return 0
	}

	deleted := 0
	for _, dir := range stale {
		// 检查上下文是否取消
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping cleanup")
			return deleted
		default:
		}

		s.fileManager.DeleteDir(dir)
		deleted++
	}

	s.logger.Info("cleanup completed",
		zap.Int("deleted", deleted),
		zap.Duration("elapsed", time.Since(startTime)))
	return deleted
}
