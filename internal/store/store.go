// Package store 按指标类别累积性能与用户行为数据
package store

import (
	"errors"
	"fmt"
	"sync"

	"pagevitals/pkg/model"
)

var (
	// ErrUnknownCategory 类别不在该 store 的类别集合内
	ErrUnknownCategory = errors.New("store: unknown metric category")
	// ErrCategoryMode 对覆盖类别调用 Add 或对追加类别调用 Set
	ErrCategoryMode = errors.New("store: operation does not match category mode")
)

// Mode 类别的写入方式
type Mode int

const (
	// Overwrite 只保留最新值
	Overwrite Mode = iota
	// Append 追加到列表
	Append
)

// Schema 类别到写入方式的映射，创建后固定
type Schema map[model.MetricName]Mode

// PerformanceSchema 性能指标类别
var PerformanceSchema = Schema{
	model.MetricFP:  Overwrite,
	model.MetricFCP: Overwrite,
	model.MetricLCP: Overwrite,
	model.MetricFID: Overwrite,
	model.MetricCLS: Overwrite,
	model.MetricNT:  Overwrite,
	model.MetricRF:  Overwrite,
}

// UserSchema 用户行为类别
var UserSchema = Schema{
	model.MetricPI:  Overwrite,
	model.MetricOI:  Overwrite,
	model.MetricDI:  Overwrite,
	model.MetricRCR: Append,
	model.MetricCBR: Append,
	model.MetricCDR: Append,
	model.MetricHT:  Append,
}

// Store 指标存储，不去重、不淘汰，由外部 sink 定期读取
type Store struct {
	mu     sync.RWMutex
	schema Schema
	latest map[model.MetricName]any
	lists  map[model.MetricName][]any
}

// New 按类别集合创建 store
func New(schema Schema) *Store {
	cp := make(Schema, len(schema))
	for k, v := range schema {
		cp[k] = v
	}
	return &Store{
		schema: cp,
		latest: make(map[model.MetricName]any),
		lists:  make(map[model.MetricName][]any),
	}
}

// NewPerformance 创建性能指标 store
func NewPerformance() *Store { return New(PerformanceSchema) }

// NewUser 创建用户行为 store
func NewUser() *Store { return New(UserSchema) }

// Set 覆盖类别的最新值
func (s *Store) Set(name model.MetricName, value any) error {
	if err := s.check(name, Overwrite); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[name] = value
	return nil
}

// Add 追加到类别列表，首次使用时创建列表
func (s *Store) Add(name model.MetricName, value any) error {
	if err := s.check(name, Append); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[name]; !ok {
		s.lists[name] = []any{}
	}
	s.lists[name] = append(s.lists[name], value)
	return nil
}

// Get 返回类别当前的值（覆盖类别）或列表副本（追加类别）
func (s *Store) Get(name model.MetricName) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mode, ok := s.schema[name]
	if !ok {
		return nil, false
	}
	if mode == Overwrite {
		v, ok := s.latest[name]
		return v, ok
	}
	l, ok := s.lists[name]
	if !ok {
		return nil, false
	}
	return append([]any(nil), l...), true
}

// Snapshot 返回所有已填充类别的副本
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.latest)+len(s.lists))
	for k, v := range s.latest {
		out[string(k)] = v
	}
	for k, l := range s.lists {
		out[string(k)] = append([]any(nil), l...)
	}
	return out
}

func (s *Store) check(name model.MetricName, want Mode) error {
	mode, ok := s.schema[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	if mode != want {
		return fmt.Errorf("%w: %s", ErrCategoryMode, name)
	}
	return nil
}
