package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

/*
TestWorkerPoolExecutesTasks 测试任务被工作协程执行
*/
func TestWorkerPoolExecutesTasks(t *testing.T) {
	pool := NewWorkerPool(4, 16)
	defer pool.Stop()

	var done int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&done, 1)
		})
		if err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}
	wg.Wait()

	if atomic.LoadInt64(&done) != 20 {
		t.Errorf("期望执行 20 个任务, 实际 %d", done)
	}
}

/*
TestWorkerPoolSubmitAfterStop 测试关闭后提交被拒绝
*/
func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(2, 4)
	pool.Stop()

	if err := pool.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("关闭后提交应返回 ErrPoolClosed, 实际 %v", err)
	}

	/* 重复关闭幂等 */
	pool.Stop()
}

/*
TestWorkerPoolStopDrainsQueue 测试关闭时等待已入队任务执行完
*/
func TestWorkerPoolStopDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(1, 8)

	var done int64
	for i := 0; i < 5; i++ {
		if err := pool.Submit(func() { atomic.AddInt64(&done, 1) }); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}
	pool.Stop()

	if atomic.LoadInt64(&done) != 5 {
		t.Errorf("关闭应排空队列: 期望 5, 实际 %d", done)
	}
}

/*
TestWorkerPoolSubmitStopConcurrent 测试提交与关闭并发安全
功能：关闭只会让后续提交返回 ErrPoolClosed，不会向已关闭通道发送
*/
func TestWorkerPoolSubmitStopConcurrent(t *testing.T) {
	for round := 0; round < 20; round++ {
		pool := NewWorkerPool(2, 2)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if err := pool.Submit(func() {}); err != nil {
						if !errors.Is(err, ErrPoolClosed) {
							t.Errorf("提交失败应只因池已关闭, 实际 %v", err)
						}
						return
					}
				}
			}()
		}
		pool.Stop()
		wg.Wait()
	}
}

/*
TestWorkerPoolSurvivesPanic 测试任务 panic 不杀死工作协程
*/
func TestWorkerPoolSurvivesPanic(t *testing.T) {
	pool := NewWorkerPool(1, 4)
	defer pool.Stop()

	if err := pool.Submit(func() { panic("任务崩溃") }); err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var ran bool
	if err := pool.Submit(func() {
		defer wg.Done()
		ran = true
	}); err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}
	wg.Wait()

	if !ran {
		t.Error("panic 之后的任务仍应被执行")
	}
}
