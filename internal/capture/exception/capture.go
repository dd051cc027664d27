// Package exception 捕获脚本、资源、Promise、跨域、HTTP 与框架钩子六类错误，
// 归类并在单个页面生命周期内按 errorUid 去重后交给下游
package exception

import (
	"context"
	"sync"

	"pagevitals/internal/behavior"
	"pagevitals/internal/intercept"
	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/internal/signal"
	"pagevitals/internal/stacktrace"
	"pagevitals/pkg/model"
)

const unknownType = "Unknown"

// Sender 接收完成的异常记录
type Sender interface {
	SendException(ctx context.Context, rec model.ExceptionRecord) error
}

// Config 错误捕获配置
type Config struct {
	Context context.Context
	Target  model.TargetID
	Ledger  *behavior.Ledger
	Sender  Sender
	// PageInfo 返回当前页面信息
	PageInfo func() model.PageInformation
	Metrics  *metrics.Metrics
	Logger   logger.Logger
}

// Capture 单个页面生命周期的错误捕获
type Capture struct {
	ctx      context.Context
	target   model.TargetID
	ledger   *behavior.Ledger
	sender   Sender
	pageInfo func() model.PageInformation
	metrics  *metrics.Metrics
	log      logger.Logger

	mu   sync.Mutex
	seen map[string]struct{}

	subs        signal.Group
	unsubscribe func()
}

// New 创建错误捕获
func New(cfg Config) *Capture {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.PageInfo == nil {
		cfg.PageInfo = func() model.PageInformation { return model.PageInformation{} }
	}
	return &Capture{
		ctx:      cfg.Context,
		target:   cfg.Target,
		ledger:   cfg.Ledger,
		sender:   cfg.Sender,
		pageInfo: cfg.PageInfo,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		seen:     make(map[string]struct{}),
	}
}

// Subscribe 订阅页面错误信号，ic 非空时同时订阅该目标上的网络调用
func (c *Capture) Subscribe(bus *signal.Bus, ic *intercept.Interceptor) {
	c.subs.Add(bus.Subscribe(signal.KindError, func(sig signal.Signal) {
		if ev, ok := sig.Data.(signal.ErrorEvent); ok {
			c.HandleError(ev)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindRejection, func(sig signal.Signal) {
		if r, ok := sig.Data.(signal.Rejection); ok {
			c.HandleRejection(r)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindFrameworkError, func(sig signal.Signal) {
		if fe, ok := sig.Data.(signal.FrameworkError); ok {
			c.HandleFrameworkError(fe.Error, ViewModel(fe.Component), fe.Info)
		}
	}))
	if ic != nil {
		c.unsubscribe = ic.Subscribe(intercept.Subscriber{
			Target:   c.target,
			OnSettle: c.HandleHTTP,
		})
	}
}

// Close 取消全部订阅
func (c *Capture) Close() {
	c.subs.Cancel()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// HandleError 处理全局 error 信号
func (c *Capture) HandleError(ev signal.ErrorEvent) {
	switch v := Classify(ev).(type) {
	case ScriptError:
		typ := unknownType
		var stack string
		if v.Error != nil {
			stack = v.Error.Stack
			if v.Error.Name != "" {
				typ = v.Error.Name
			}
		}
		c.emit(model.ExceptionRecord{
			Mechanism:  model.Mechanism{Type: model.MechanismJS},
			Value:      v.Message,
			Type:       typ,
			StackTrace: &model.StackTrace{Frames: stacktrace.Parse(stack)},
			ErrorUID:   ErrorUID(model.MechanismJS, v.Message, v.Filename),
			Meta: map[string]any{
				"file": v.Filename,
				"col":  v.Colno,
				"row":  v.Lineno,
			},
		})
	case ResourceError:
		c.emit(model.ExceptionRecord{
			Mechanism: model.Mechanism{Type: model.MechanismResource},
			Value:     "",
			Type:      "ResourceError",
			ErrorUID:  ErrorUID(model.MechanismResource, v.Target.Src, v.Target.TagName),
			Meta: map[string]any{
				"url":  v.Target.Src,
				"html": v.Target.OuterHTML,
				"type": v.Target.TagName,
			},
		})
	case CrossOriginError:
		c.emit(model.ExceptionRecord{
			Mechanism: model.Mechanism{Type: model.MechanismCORS},
			Value:     v.Message,
			Type:      "CorsError",
			ErrorUID:  ErrorUID(model.MechanismCORS, v.Message),
			Meta:      map[string]any{},
		})
	}
}

// HandleRejection 处理未处理的 Promise 拒绝
func (c *Capture) HandleRejection(r signal.Rejection) {
	value := r.Reason
	typ := unknownType
	var stack string
	if r.Error != nil {
		if r.Error.Message != "" {
			value = r.Error.Message
		}
		if r.Error.Name != "" {
			typ = r.Error.Name
		}
		stack = r.Error.Stack
	}
	c.emit(model.ExceptionRecord{
		Mechanism:  model.Mechanism{Type: model.MechanismRejection},
		Value:      value,
		Type:       typ,
		StackTrace: &model.StackTrace{Frames: stacktrace.Parse(stack)},
		ErrorUID:   ErrorUID(model.MechanismRejection, value, typ),
		Meta:       map[string]any{},
	})
}

// HandleHTTP 网络调用完成回调，只有状态码不小于 400 才记为异常
func (c *Capture) HandleHTTP(m model.NetworkCallMetrics) {
	if m.Status < 400 {
		return
	}
	c.emit(model.ExceptionRecord{
		Mechanism: model.Mechanism{Type: model.MechanismHTTP},
		Value:     m.Response,
		Type:      "HttpError",
		ErrorUID:  ErrorUID(model.MechanismHTTP, m.Response, m.URL),
		Meta:      map[string]any{"metrics": m},
	})
}

// HandleFrameworkError 框架错误钩子，参数对应 (error, 组件实例, 生命周期信息)
func (c *Capture) HandleFrameworkError(err signal.ErrorInfo, comp Component, info string) {
	name := FormatComponentName(comp)
	c.emit(model.ExceptionRecord{
		Mechanism:  model.Mechanism{Type: model.MechanismFramework},
		Value:      err.Message,
		Type:       err.Name,
		StackTrace: &model.StackTrace{Frames: stacktrace.Parse(err.Stack)},
		ErrorUID:   ErrorUID(model.MechanismFramework, err.Message, name, info),
		Meta: map[string]any{
			"componentName": name,
			"hook":          info,
		},
	})
}

// Seen 判断 errorUid 是否已在本页面生命周期内上报
func (c *Capture) Seen(uid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[uid]
	return ok
}

// emit 去重后补齐页面信息与行为栈并交给下游
func (c *Capture) emit(rec model.ExceptionRecord) {
	c.mu.Lock()
	if _, dup := c.seen[rec.ErrorUID]; dup {
		c.mu.Unlock()
		c.metrics.Deduplicated()
		c.log.Debug("重复异常已忽略", "mechanism", rec.Mechanism.Type, "errorUid", rec.ErrorUID)
		return
	}
	c.seen[rec.ErrorUID] = struct{}{}
	c.mu.Unlock()

	page := c.pageInfo()
	rec.PageInformation = &page
	if c.ledger != nil {
		rec.Breadcrumbs = c.ledger.Get()
	}
	if rec.Breadcrumbs == nil {
		rec.Breadcrumbs = []model.BehaviorEntry{}
	}

	c.metrics.Exception(string(rec.Mechanism.Type))
	c.log.Info("捕获异常", "mechanism", rec.Mechanism.Type, "type", rec.Type, "value", rec.Value)

	if c.sender == nil {
		return
	}
	if err := c.sender.SendException(c.ctx, rec); err != nil {
		c.log.Err(err, "异常上报失败", "errorUid", rec.ErrorUID)
	}
}
