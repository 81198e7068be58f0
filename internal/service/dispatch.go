package service

import (
	"errors"
	"sync"

	"moonvpn/internal/pkg/logger"

	"go.uber.org/zap"
)

/* ErrPoolClosed 工作池已关闭，不再接受任务 */
var ErrPoolClosed = errors.New("worker pool closed")

/*
WorkerPool 有界工作池
功能：固定数量的工作协程消费任务队列，开通操作和扫描任务
作为独立任务提交，调度方自身不被阻塞。队列满时 Submit 阻塞，
形成天然背压。
*/
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

/*
NewWorkerPool 创建并启动工作池
*/
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}

	p := &WorkerPool{
		tasks: make(chan func(), queueSize),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				p.run(task)
			}
		}()
	}

	logger.Info("✓ 工作池已启动", zap.Int("workers", workers), zap.Int("queue", queueSize))
	return p
}

func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("工作池任务 panic", zap.Any("panic", r))
		}
	}()
	task()
}

/*
Submit 提交任务
功能：队列满时阻塞等待，池已关闭时返回 ErrPoolClosed。
入队全程持读锁，Stop 取写锁置位后才关闭通道，不存在向
已关闭通道发送的窗口。
*/
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.tasks <- task
	return nil
}

/*
Stop 关闭工作池
功能：停止接收新任务，等待已入队任务执行完毕
*/
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
	logger.Info("工作池已停止")
}
