package gateway

import (
	"sync"
	"time"

	"moonvpn/internal/errs"
)

/*
BreakerState 熔断器状态
*/
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

/*
Breaker 面板级熔断器
功能：连续瞬时失败达到阈值后打开，打开期间请求直接返回
ErrRemoteUnavailable 不触网。冷却期过后进入半开，放行一个
探测请求：成功则关闭，失败则重新打开。
永久错误（业务拒绝）不计入失败数。
*/
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool
}

/*
NewBreaker 创建熔断器
*/
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

/*
Allow 判断是否放行请求
功能：关闭状态放行；打开状态冷却期内拒绝；冷却期过后
转半开并放行一个探测请求，其余请求继续拒绝直到探测出结果。
*/
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if !b.probing {
			b.probing = true
			return true
		}
		return false
	}
	return false
}

/*
Record 记录请求结果
*/
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		b.probing = false
		return
	}

	// 业务拒绝说明面板活着，不计入熔断
	if !errs.IsTransient(err) {
		return
	}

	switch b.state {
	case BreakerHalfOpen:
		b.trip()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.failures = 0
	b.probing = false
}

/*
State 获取当前状态
*/
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
