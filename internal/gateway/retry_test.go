package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"moonvpn/internal/errs"
)

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

/*
TestRetryTransientExhaustsAttempts 测试瞬时错误重试到次数耗尽
*/
func TestRetryTransientExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return errs.NewTransient("probe", 503, errors.New("面板过载"))
	})

	if calls != 3 {
		t.Errorf("瞬时错误应尝试 3 次, 实际 %d", calls)
	}
	if !errs.IsTransient(err) {
		t.Errorf("耗尽后应返回最后一次的瞬时错误, 实际 %v", err)
	}
}

/*
TestRetryPermanentShortCircuits 测试永久错误不重试
*/
func TestRetryPermanentShortCircuits(t *testing.T) {
	calls := 0
	permanent := errs.NewPermanent("create_client", 400, errors.New("参数非法"))
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return permanent
	})

	if calls != 1 {
		t.Errorf("永久错误应只尝试 1 次, 实际 %d", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("应原样返回永久错误, 实际 %v", err)
	}
}

/*
TestRetrySucceedsAfterTransientFailure 测试中途成功即返回
*/
func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errs.NewTransient("probe", 0, errors.New("连接重置"))
		}
		return nil
	})

	if err != nil {
		t.Errorf("第三次成功应返回 nil, 实际 %v", err)
	}
	if calls != 3 {
		t.Errorf("应在第 3 次成功后停止, 实际 %d 次", calls)
	}
}

/*
TestRetryContextCanceled 测试上下文取消立即退出
*/
func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastPolicy(3).Do(ctx, func() error {
		calls++
		return errs.NewTransient("probe", 0, errors.New("超时"))
	})

	if calls != 0 {
		t.Errorf("已取消的上下文不应执行操作, 实际执行 %d 次", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("应返回 context.Canceled, 实际 %v", err)
	}
}

/*
TestRetryDelayBounds 测试退避延迟上限
*/
func TestRetryDelayBounds(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		JitterFrac:  0.2,
	}
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.delay(attempt)
		if d < 0 {
			t.Fatalf("第 %d 次延迟为负: %v", attempt, d)
		}
		if d > time.Duration(float64(p.MaxDelay)*1.2) {
			t.Errorf("第 %d 次延迟超过上限（含抖动）: %v", attempt, d)
		}
	}
}
