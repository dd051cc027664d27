// Package performance 采集绘制、LCP、FID、CLS、导航与资源时间线指标
package performance

import (
	"context"
	"sync"
	"time"

	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/internal/signal"
	"pagevitals/internal/store"
	"pagevitals/pkg/model"
)

// Sender 接收指标快照
type Sender interface {
	SendMetrics(ctx context.Context, snap model.MetricsSnapshot) error
}

// Config 性能采集配置
type Config struct {
	Context context.Context
	Session model.SessionID
	Store   *store.Store
	Sender  Sender
	Metrics *metrics.Metrics
	Logger  logger.Logger
	Now     func() time.Time
}

// Capture 单个页面生命周期的性能采集
type Capture struct {
	ctx     context.Context
	session model.SessionID
	store   *store.Store
	sender  Sender
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time

	mu          sync.Mutex
	cls         CLSWindow
	resources   []model.ResourceFlowTiming
	resourceSub *signal.Subscription
	loaded      bool

	subs signal.Group
}

// New 创建性能采集
func New(cfg Config) *Capture {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewPerformance()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Capture{
		ctx:       cfg.Context,
		session:   cfg.Session,
		store:     cfg.Store,
		sender:    cfg.Sender,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		now:       cfg.Now,
		resources: []model.ResourceFlowTiming{},
	}
}

// Store 返回性能指标 store
func (c *Capture) Store() *store.Store { return c.store }

// Subscribe 订阅性能相关信号。资源时间线的订阅在页面加载完成后取消
func (c *Capture) Subscribe(bus *signal.Bus) {
	c.subs.Add(bus.Subscribe(signal.KindPaint, func(sig signal.Signal) {
		if p, ok := sig.Data.(signal.Paint); ok {
			c.HandlePaint(p)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindLCP, func(sig signal.Signal) {
		if e, ok := sig.Data.(signal.LCP); ok {
			c.HandleLCP(e)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindFirstInput, func(sig signal.Signal) {
		if e, ok := sig.Data.(signal.FirstInput); ok {
			c.HandleFirstInput(e)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindLayoutShift, func(sig signal.Signal) {
		if e, ok := sig.Data.(model.LayoutShift); ok {
			c.HandleLayoutShift(e)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindNavigation, func(sig signal.Signal) {
		if e, ok := sig.Data.(signal.NavigationEntry); ok {
			c.HandleNavigation(e)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindLoad, func(signal.Signal) {
		c.HandleLoad()
	}))

	sub := bus.Subscribe(signal.KindResource, func(sig signal.Signal) {
		if e, ok := sig.Data.(signal.ResourceEntry); ok {
			c.HandleResource(e)
		}
	})
	c.mu.Lock()
	c.resourceSub = c.subs.Add(sub)
	c.mu.Unlock()
}

// Close 取消全部订阅
func (c *Capture) Close() { c.subs.Cancel() }

// HandlePaint 记录 FP 或 FCP
func (c *Capture) HandlePaint(p signal.Paint) {
	var name model.MetricName
	switch p.Name {
	case string(model.MetricFP):
		name = model.MetricFP
	case string(model.MetricFCP):
		name = model.MetricFCP
	default:
		return
	}
	c.set(name, model.PaintMetric{StartTime: formatStartTime(p.StartTime), Entry: p.Raw})
}

// HandleLCP 最新的条目覆盖旧值
func (c *Capture) HandleLCP(e signal.LCP) {
	c.set(model.MetricLCP, model.PaintMetric{StartTime: formatStartTime(e.StartTime), Entry: e.Raw})
}

// HandleFirstInput 记录首次输入延迟
func (c *Capture) HandleFirstInput(e signal.FirstInput) {
	c.set(model.MetricFID, model.FirstInputMetric{Delay: e.ProcessingStart - e.StartTime, Entry: e.Raw})
}

// HandleLayoutShift 按会话窗口累计 CLS，只有超过历史最大值时才更新 store
func (c *Capture) HandleLayoutShift(e model.LayoutShift) {
	c.mu.Lock()
	m, updated := c.cls.Observe(e)
	c.mu.Unlock()
	if updated {
		c.set(model.MetricCLS, m)
	}
}

// CLS 当前 CLS 值
func (c *Capture) CLS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cls.Value()
}

// HandleNavigation 记录导航时间线
func (c *Capture) HandleNavigation(e signal.NavigationEntry) {
	c.set(model.MetricNT, NavigationTiming(e))
}

// HandleResource 在页面加载完成前累积资源条目
func (c *Capture) HandleResource(e signal.ResourceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.resources = append(c.resources, ResourceFlow(e))
}

// HandleLoad 页面加载完成：停止资源采集，一次性写入资源列表并上报性能快照
func (c *Capture) HandleLoad() {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return
	}
	c.loaded = true
	sub := c.resourceSub
	c.resourceSub = nil
	flow := append([]model.ResourceFlowTiming(nil), c.resources...)
	c.mu.Unlock()

	sub.Cancel()
	if flow == nil {
		flow = []model.ResourceFlowTiming{}
	}
	c.set(model.MetricRF, flow)
	c.Flush()
}

// Flush 上报当前性能快照
func (c *Capture) Flush() {
	snap := model.MetricsSnapshot{
		Session:   c.session,
		Source:    model.SourcePerformance,
		Timestamp: c.now().UnixMilli(),
		Data:      c.store.Snapshot(),
	}
	if len(snap.Data) == 0 || c.sender == nil {
		return
	}
	c.metrics.Snapshot(model.SourcePerformance)
	if err := c.sender.SendMetrics(c.ctx, snap); err != nil {
		c.log.Err(err, "性能快照上报失败", "session", string(c.session))
	}
}

func (c *Capture) set(name model.MetricName, v any) {
	if err := c.store.Set(name, v); err != nil {
		c.log.Err(err, "写入性能指标失败", "metric", string(name))
	}
}
