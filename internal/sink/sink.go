// Package sink 将异常记录与指标快照投递到外部目标
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/pkg/model"

	"github.com/tidwall/sjson"
)

// Sink 数据投递目标
type Sink interface {
	SendException(ctx context.Context, session model.SessionID, rec model.ExceptionRecord) error
	SendMetrics(ctx context.Context, snap model.MetricsSnapshot) error
	Close() error
}

// 信封类型
const (
	KindException = "exception"
	KindMetrics   = "metrics"
)

// Envelope 生成统一的投递信封：{"kind","session","timestamp","payload"}
func Envelope(kind string, session model.SessionID, ts int64, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "kind", kind)
	out, _ = sjson.SetBytes(out, "session", string(session))
	out, _ = sjson.SetBytes(out, "timestamp", ts)
	return sjson.SetRawBytes(out, "payload", raw)
}

type named struct {
	name string
	sink Sink
}

// Router 按注册顺序扇出到所有 sink，单个 sink 失败只记录日志与计数
type Router struct {
	mu      sync.RWMutex
	sinks   []named
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewRouter 创建扇出路由
func NewRouter(m *metrics.Metrics, l logger.Logger) *Router {
	if l == nil {
		l = logger.NewNop()
	}
	return &Router{metrics: m, log: l}
}

// Add 注册 sink
func (r *Router) Add(name string, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, named{name: name, sink: s})
}

// Len 已注册 sink 数量
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

func (r *Router) list() []named {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]named(nil), r.sinks...)
}

// SendException 实现 Sink
func (r *Router) SendException(ctx context.Context, session model.SessionID, rec model.ExceptionRecord) error {
	for _, n := range r.list() {
		if err := n.sink.SendException(ctx, session, rec); err != nil {
			r.fail(n.name, err, "session", string(session), "errorUid", rec.ErrorUID)
		}
	}
	return nil
}

// SendMetrics 实现 Sink
func (r *Router) SendMetrics(ctx context.Context, snap model.MetricsSnapshot) error {
	for _, n := range r.list() {
		if err := n.sink.SendMetrics(ctx, snap); err != nil {
			r.fail(n.name, err, "session", string(snap.Session), "source", snap.Source)
		}
	}
	return nil
}

// Close 关闭全部 sink
func (r *Router) Close() error {
	for _, n := range r.list() {
		if err := n.sink.Close(); err != nil {
			r.log.Err(err, "关闭 sink 失败", "sink", n.name)
		}
	}
	return nil
}

func (r *Router) fail(name string, err error, kv ...any) {
	r.metrics.SinkError(name)
	r.log.Err(err, "投递失败", append([]any{"sink", name}, kv...)...)
}

// SessionSender 绑定会话ID，供异常采集使用
type SessionSender struct {
	Session model.SessionID
	Sink    Sink
}

// SendException 带上绑定的会话ID投递
func (s SessionSender) SendException(ctx context.Context, rec model.ExceptionRecord) error {
	return s.Sink.SendException(ctx, s.Session, rec)
}

// SendMetrics 直接投递
func (s SessionSender) SendMetrics(ctx context.Context, snap model.MetricsSnapshot) error {
	return s.Sink.SendMetrics(ctx, snap)
}
