package gateway

import (
	"context"
	"math"
	"math/rand"
	"time"

	"moonvpn/internal/errs"
)

/*
RetryPolicy 重试策略
功能：指数退避 + 随机抖动，仅对瞬时错误重试。
永久错误（4xx 业务拒绝）立即返回，不消耗重试次数。
*/
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterFrac  float64
}

/*
DefaultRetryPolicy 默认重试策略
*/
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		JitterFrac:  0.2,
	}
}

/*
delay 计算第 attempt 次重试前的等待时间（attempt 从 1 开始）
*/
func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if p.JitterFrac > 0 {
		// 抖动范围 [1-j, 1+j]
		backoff *= 1 + p.JitterFrac*(2*rand.Float64()-1)
	}
	return time.Duration(backoff)
}

/*
Do 带重试执行操作
功能：瞬时错误按退避重试直到次数耗尽，期间上下文取消则立即
返回 ctx.Err()。非瞬时错误首次出现即返回。
*/
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !errs.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return lastErr
}
