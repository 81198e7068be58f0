package gateway

import (
	"errors"
	"testing"
	"time"

	"moonvpn/internal/errs"
)

func transientErr() error {
	return errs.NewTransient("probe", 502, errors.New("网关不可用"))
}

/*
TestBreakerOpensAtThreshold 测试连续瞬时失败达到阈值后熔断
*/
func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.Record(transientErr())
	}
	if b.State() != BreakerClosed {
		t.Fatalf("未达阈值不应熔断, 状态 %s", b.State())
	}
	if !b.Allow() {
		t.Error("关闭状态应放行请求")
	}

	b.Record(transientErr())
	if b.State() != BreakerOpen {
		t.Fatalf("达到阈值应熔断, 状态 %s", b.State())
	}
	if b.Allow() {
		t.Error("冷却期内不应放行请求")
	}
}

/*
TestBreakerIgnoresPermanentErrors 测试业务拒绝不计入熔断
*/
func TestBreakerIgnoresPermanentErrors(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	for i := 0; i < 10; i++ {
		b.Record(errs.NewPermanent("create_client", 400, errors.New("参数非法")))
	}
	if b.State() != BreakerClosed {
		t.Errorf("永久错误不应触发熔断, 状态 %s", b.State())
	}
}

/*
TestBreakerSuccessResetsFailures 测试成功清零失败计数
*/
func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.Record(transientErr())
	b.Record(transientErr())
	b.Record(nil)
	b.Record(transientErr())
	b.Record(transientErr())

	if b.State() != BreakerClosed {
		t.Errorf("成功后失败计数应清零, 状态 %s", b.State())
	}
}

/*
TestBreakerHalfOpenProbe 测试半开状态只放行一个探测请求
*/
func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.Record(transientErr())
	if b.State() != BreakerOpen {
		t.Fatalf("应熔断, 状态 %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	/* 冷却期过后第一个请求作为探测放行，其余拒绝 */
	if !b.Allow() {
		t.Fatal("冷却期过后应放行探测请求")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("应进入半开状态, 实际 %s", b.State())
	}
	if b.Allow() {
		t.Error("探测期间的其他请求应被拒绝")
	}

	/* 探测成功关闭熔断器 */
	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Errorf("探测成功后应关闭, 状态 %s", b.State())
	}
	if !b.Allow() {
		t.Error("关闭后应放行请求")
	}
}

/*
TestBreakerHalfOpenFailureReopens 测试半开探测失败立即重新熔断
*/
func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.Record(transientErr())
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("冷却期过后应放行探测请求")
	}
	b.Record(transientErr())

	if b.State() != BreakerOpen {
		t.Errorf("探测失败应重新熔断, 状态 %s", b.State())
	}
	if b.Allow() {
		t.Error("重新熔断后不应放行请求")
	}
}
