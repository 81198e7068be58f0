package service

import "sync"

/*
accountLocks 账号级互斥锁表
功能：同一账号上的操作串行执行，不同账号互不阻塞。
锁按需创建，引用计数归零后回收，防止锁表无界增长。
*/
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{
		locks: make(map[string]*accountLock),
	}
}

/*
Lock 锁定账号，返回解锁函数
*/
func (a *accountLocks) Lock(accountID string) func() {
	a.mu.Lock()
	l, ok := a.locks[accountID]
	if !ok {
		l = &accountLock{}
		a.locks[accountID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, accountID)
		}
		a.mu.Unlock()
	}
}
