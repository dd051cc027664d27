// Package session 管理采集会话，每个会话对应一个附加的目标
package session

import (
	"errors"
	"sort"
	"sync"

	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/pkg/model"

	"github.com/google/uuid"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// Manager 全局会话管理器
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
	metrics  *metrics.Metrics
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(m *metrics.Metrics, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.SessionID]*Session),
		metrics:  m,
		log:      l,
	}
}

// Create 创建、注册并启动新会话，cfg.ID 为空时生成 UUID
func (m *Manager) Create(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		cfg.ID = model.SessionID(uuid.NewString())
	}
	if cfg.Metrics == nil {
		cfg.Metrics = m.metrics
	}
	if cfg.Logger == nil {
		cfg.Logger = m.log
	}
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	old := m.sessions[cfg.ID]
	m.sessions[cfg.ID] = s
	m.mu.Unlock()
	if old != nil {
		old.Close()
	} else {
		m.metrics.SessionOpened()
	}

	s.Start()
	m.log.Info("创建采集会话", "sessionID", string(cfg.ID), "target", string(cfg.Target))
	return s, nil
}

// Get 获取会话
func (m *Manager) Get(id model.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ByTarget 获取目标对应的会话
func (m *Manager) ByTarget(target model.TargetID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.target == target {
			return s, true
		}
	}
	return nil, false
}

// Delete 关闭并销毁会话
func (m *Manager) Delete(id model.SessionID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.metrics.SessionClosed()
	m.log.Info("销毁采集会话", "sessionID", string(id))
	return nil
}

// List 按ID排序返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

// Close 销毁全部会话
func (m *Manager) Close() {
	for _, s := range m.List() {
		_ = m.Delete(s.id)
	}
}
