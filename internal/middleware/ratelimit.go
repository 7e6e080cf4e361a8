package middleware

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"avidlp/youtube-server/internal/config"
	"avidlp/youtube-server/internal/models"
)

// sweepInterval 两次回收闲置限流器的最小间隔
const sweepInterval = time.Minute

// ipLimiter 单个 IP 的令牌桶及最后访问时间 (UnixNano)
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter 按客户端 IP 的限流器, 闲置超过 idleTTL 的条目会被回收
type RateLimiter struct {
	ipLimiters sync.Map
	rps        rate.Limit
	burst      int
	idleTTL    time.Duration
	lastSweep  atomic.Int64
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	rl := &RateLimiter{
		rps:     rate.Limit(cfg.RPS),
		burst:   burst,
		idleTTL: idleTTL,
	}
	rl.lastSweep.Store(time.Now().UnixNano())
	return rl
}

// getIPLimiter 获取 IP 对应的限流器并刷新访问时间
func (rl *RateLimiter) getIPLimiter(ip string, now time.Time) *rate.Limiter {
	v, ok := rl.ipLimiters.Load(ip)
	if !ok {
		v, _ = rl.ipLimiters.LoadOrStore(ip, &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)})
	}
	entry := v.(*ipLimiter)
	entry.lastSeen.Store(now.UnixNano())
	return entry.limiter
}

// Sweep 删除 idleTTL 内没有请求的 IP, 返回删除数量
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-rl.idleTTL).UnixNano()
	removed := 0
	rl.ipLimiters.Range(func(key, value any) bool {
		if value.(*ipLimiter).lastSeen.Load() < cutoff {
			rl.ipLimiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Len 当前跟踪的 IP 数量
func (rl *RateLimiter) Len() int {
	n := 0
	rl.ipLimiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// maybeSweep 距上次回收超过 sweepInterval 时执行一次回收, 并发请求只有一个会执行
func (rl *RateLimiter) maybeSweep(now time.Time) {
	last := rl.lastSweep.Load()
	if now.UnixNano()-last < int64(sweepInterval) {
		return
	}
	if rl.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		rl.Sweep(now)
	}
}

// IPRateLimit IP 限流中间件
func IPRateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		rl.maybeSweep(now)

		if !rl.getIPLimiter(c.ClientIP(), now).Allow() {
			models.TooManyRequests(c, "rate limit exceeded, please try again later")
			return
		}
		c.Next()
	}
}
