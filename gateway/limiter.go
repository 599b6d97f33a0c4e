package gateway

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 给 REST 调用限速。RIT 练习服务器按 API key 限流
// （默认约 20 次/秒），超限直接 429，报价循环必须在客户端侧先行节流。
type RateLimiter interface {
	// Wait 阻塞到可以发起下一次调用；ctx 取消时立即返回其错误，
	// 不在限流器里睡过一个已经作废的 tick。
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 令牌桶限速器。余额可以为负：排队的调用各自
// 预扣一枚令牌，按欠账深度顺延等待时间，天然串行化突发流量。
type TokenBucketLimiter struct {
	mu     sync.Mutex
	rate   float64 // 每秒补充的令牌数
	burst  float64
	tokens float64
	last   time.Time
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Wait 预扣一枚令牌并按欠账等待。取消时不退还令牌，宁可下一拍慢半步
// 也不对交易所超发。
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now
	l.tokens--
	deficit := -l.tokens
	l.mu.Unlock()

	if deficit <= 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(deficit / l.rate * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
