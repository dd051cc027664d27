// Package handler 将页面脚本负载解码为信号，并分发到目标所属的会话
package handler

import (
	"fmt"

	"pagevitals/internal/agent"
	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/internal/signal"
	"pagevitals/pkg/model"
)

// Publisher 信号接收方，通常是会话
type Publisher interface {
	Publish(sig signal.Signal)
}

// Resolver 根据目标查找会话
type Resolver func(target model.TargetID) (Publisher, bool)

// Config 配置选项
type Config struct {
	Resolve Resolver
	Metrics *metrics.Metrics
	Logger  logger.Logger
}

// Handler 事件处理器，负责解码、计数和分发
type Handler struct {
	resolve Resolver
	metrics *metrics.Metrics
	log     logger.Logger
}

// New 创建事件处理器
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Handler{
		resolve: cfg.Resolve,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
}

// HandlePayload 处理目标上报的一条负载，解析失败时记录并丢弃
func (h *Handler) HandlePayload(target model.TargetID, payload string) {
	if h.resolve == nil {
		return
	}
	p, ok := h.resolve(target)
	if !ok {
		h.log.Debug("目标没有对应会话，丢弃信号", "target", string(target))
		return
	}
	if err := h.Dispatch(p, payload); err != nil {
		h.log.Warn("丢弃无法解析的页面信号", "target", string(target), "error", err)
	}
}

// Dispatch 解码负载并交给 p
func (h *Handler) Dispatch(p Publisher, payload string) error {
	sig, err := agent.Decode(payload)
	if err != nil {
		h.metrics.DroppedSignal()
		return fmt.Errorf("decode payload: %w", err)
	}
	h.metrics.Signal(string(sig.Kind))
	if c, ok := sig.Data.(signal.Capability); ok && len(c.Missing) > 0 {
		h.log.Warn("页面不支持部分性能条目", "missing", c.Missing, "href", sig.Page.Href)
	}
	p.Publish(sig)
	return nil
}
