// Package behavior 维护最近的用户行为栈（breadcrumbs）
package behavior

import (
	"errors"
	"sync"

	"pagevitals/pkg/model"
)

// ErrInvalidCapacity 容量必须 >= 1
var ErrInvalidCapacity = errors.New("behavior: capacity must be at least 1")

// Ledger 固定容量的 FIFO 行为栈，满了之后淘汰最旧的记录
type Ledger struct {
	mu       sync.RWMutex
	entries  []model.BehaviorEntry
	head     int // 最旧记录的位置
	size     int
	capacity int
}

// New 创建行为栈
func New(capacity int) (*Ledger, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Ledger{
		entries:  make([]model.BehaviorEntry, capacity),
		capacity: capacity,
	}, nil
}

// Push 追加一条记录，已满时先淘汰最旧的一条
func (l *Ledger) Push(e model.BehaviorEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size == l.capacity {
		l.entries[l.head] = e
		l.head = (l.head + 1) % l.capacity
		return
	}
	l.entries[(l.head+l.size)%l.capacity] = e
	l.size++
}

// Get 按从旧到新的顺序返回所有记录的副本
func (l *Ledger) Get() []model.BehaviorEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.BehaviorEntry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.head+i)%l.capacity]
	}
	return out
}

// Len 当前记录数
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Cap 容量
func (l *Ledger) Cap() int { return l.capacity }

// Clear 清空行为栈
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.entries)
	l.head = 0
	l.size = 0
}
