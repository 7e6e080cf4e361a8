package service

import "context"

// Limiter 并发限制器, 等待时响应 context 取消
type Limiter struct {
	sem chan struct{}
}

// NewLimiter 创建并发限制器, max <= 0 时按 1 处理
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{
		sem: make(chan struct{}, max),
	}
}

// Acquire 获取信号量, ctx 结束时返回 ctx.Err()
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 释放信号量
func (l *Limiter) Release() {
	<-l.sem
}

// InUse 当前占用的槽位数
func (l *Limiter) InUse() int {
	return len(l.sem)
}
