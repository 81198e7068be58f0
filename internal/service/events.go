package service

import (
	"sync"
	"time"

	"moonvpn/internal/pkg/logger"

	"go.uber.org/zap"
)

/*
EventType 领域事件类型
*/
type EventType string

const (
	EventAccountActivated   EventType = "account.activated"
	EventAccountRenewed     EventType = "account.renewed"
	EventAccountSuspended   EventType = "account.suspended"
	EventAccountExpired     EventType = "account.expired"
	EventAccountTransferred EventType = "account.transferred"
	EventDriftDetected      EventType = "account.drift_detected"
	EventOrphanDetected     EventType = "account.orphan_detected"
	EventInsufficientFunds  EventType = "wallet.insufficient_funds"
	EventOrderFailed        EventType = "order.failed"
)

/*
Event 领域事件
*/
type Event struct {
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	PanelID   string    `json:"panel_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

/*
EventBus 进程内事件总线
功能：生命周期事件的发布/订阅。发布非阻塞：订阅者缓冲满时
丢弃该订阅者的事件并记录警告，慢消费者不能拖慢编排主路径。
*/
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

/*
NewEventBus 创建事件总线
*/
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int]chan Event),
	}
}

/*
Subscribe 订阅事件流
功能：返回只读通道和取消函数，取消后通道关闭
*/
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

/*
Publish 发布事件（非阻塞）
*/
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			logger.Warn("事件订阅者缓冲已满，事件被丢弃",
				zap.Int("subscriber", id),
				zap.String("type", string(evt.Type)))
		}
	}
}

/*
SubscriberCount 当前订阅者数量
*/
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
