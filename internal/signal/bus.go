package signal

import (
	"sync"
)

// Handler 信号处理函数
type Handler func(Signal)

// Bus 按信号类型维护订阅表，同步分发，分发顺序与 Publish 顺序一致
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]*Subscription
}

// Subscription 一次订阅，Cancel 后不再收到信号
type Subscription struct {
	bus     *Bus
	id      uint64
	kind    Kind
	handler Handler
	once    sync.Once
}

// NewBus 创建信号总线
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]*Subscription)}
}

// Subscribe 订阅某类信号
func (b *Bus) Subscribe(kind Kind, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{bus: b, id: b.nextID, kind: kind, handler: h}
	b.subs[kind] = append(b.subs[kind], s)
	return s
}

// Publish 将信号同步分发给该类型的所有订阅者
func (b *Bus) Publish(sig Signal) {
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.subs[sig.Kind]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(sig)
	}
}

// Count 某类信号当前的订阅数
func (b *Bus) Count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Cancel 取消订阅，可重复调用
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[s.kind]
		for i, cur := range list {
			if cur.id == s.id {
				b.subs[s.kind] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	})
}

// Group 一组订阅，由捕获组件持有并在拆除时统一取消
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add 记录订阅
func (g *Group) Add(s *Subscription) *Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, s)
	return s
}

// Cancel 取消组内全部订阅
func (g *Group) Cancel() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}
