// Package interaction 采集点击、路由跳转、网络调用、页面信息、来路信息与自定义埋点
package interaction

import (
	"context"
	"strings"
	"sync"
	"time"

	"pagevitals/internal/behavior"
	"pagevitals/internal/intercept"
	"pagevitals/internal/logger"
	"pagevitals/internal/metrics"
	"pagevitals/internal/signal"
	"pagevitals/internal/store"
	"pagevitals/pkg/model"
)

// DefaultClickMountList 默认允许采集点击的标签
var DefaultClickMountList = []string{"button"}

// Sender 接收指标快照
type Sender interface {
	SendMetrics(ctx context.Context, snap model.MetricsSnapshot) error
}

// Config 用户行为采集配置
type Config struct {
	Context        context.Context
	Session        model.SessionID
	Target         model.TargetID
	Store          *store.Store
	Ledger         *behavior.Ledger
	Sender         Sender
	ClickMountList []string
	// PageInfo 返回当前页面信息
	PageInfo func() model.PageInformation
	Metrics  *metrics.Metrics
	Logger   logger.Logger
	Now      func() time.Time
}

// Capture 单个页面生命周期的用户行为采集
type Capture struct {
	ctx      context.Context
	session  model.SessionID
	target   model.TargetID
	store    *store.Store
	ledger   *behavior.Ledger
	sender   Sender
	mount    map[string]struct{}
	pageInfo func() model.PageInformation
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time

	mu     sync.RWMutex
	origin model.OriginInformation

	subs        signal.Group
	unsubscribe func()
}

// New 创建用户行为采集
func New(cfg Config) *Capture {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewUser()
	}
	if len(cfg.ClickMountList) == 0 {
		cfg.ClickMountList = DefaultClickMountList
	}
	if cfg.PageInfo == nil {
		cfg.PageInfo = func() model.PageInformation { return model.PageInformation{} }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	mount := make(map[string]struct{}, len(cfg.ClickMountList))
	for _, tag := range cfg.ClickMountList {
		mount[strings.ToLower(tag)] = struct{}{}
	}
	return &Capture{
		ctx:      cfg.Context,
		session:  cfg.Session,
		target:   cfg.Target,
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		sender:   cfg.Sender,
		mount:    mount,
		pageInfo: cfg.PageInfo,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
}

// Store 返回用户行为 store
func (c *Capture) Store() *store.Store { return c.store }

// Start 写入页面信息、来路信息与设备信息
func (c *Capture) Start(page model.PageInformation, origin model.OriginInformation, device model.DeviceFeatures) {
	c.mu.Lock()
	c.origin = origin
	c.mu.Unlock()

	c.set(model.MetricPI, page)
	c.set(model.MetricOI, origin)
	c.set(model.MetricDI, device)
}

// SetDevice 覆盖设备信息
func (c *Capture) SetDevice(device model.DeviceFeatures) {
	c.set(model.MetricDI, device)
}

// Subscribe 订阅点击、路由、加载与自定义事件信号，ic 非空时同时订阅该目标上的网络调用
func (c *Capture) Subscribe(bus *signal.Bus, ic *intercept.Interceptor) {
	c.subs.Add(bus.Subscribe(signal.KindClick, func(sig signal.Signal) {
		if e, ok := sig.Data.(signal.Click); ok {
			c.HandleClick(e, sig.Timestamp)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindRoute, func(sig signal.Signal) {
		if e, ok := sig.Data.(signal.Route); ok {
			c.HandleRoute(e, sig.Timestamp)
		}
	}))
	c.subs.Add(bus.Subscribe(signal.KindLoad, func(sig signal.Signal) {
		c.SendPageView(sig.Timestamp)
	}))
	c.subs.Add(bus.Subscribe(signal.KindCustom, func(sig signal.Signal) {
		if e, ok := sig.Data.(model.CustomAnalyticsData); ok {
			c.Track(e)
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

// HandleClick 点击路径上第一个允许采集的元素，没有时再看事件目标本身
func (c *Capture) HandleClick(e signal.Click, ts int64) {
	target := c.pick(e)
	if target == nil {
		return
	}
	ts = c.stamp(ts)
	page := c.pageInfo()
	rec := model.ClickRecord{
		TagInfo: model.TagInfo{
			ID:        target.ID,
			ClassList: append([]string{}, target.ClassList...),
			TagName:   target.TagName,
			Text:      target.Text,
		},
		Timestamp: ts,
		PageInfo:  &page,
	}
	c.add(model.MetricCBR, rec)

	rec.PageInfo = nil
	c.push(model.MetricCBR, rec)
}

func (c *Capture) pick(e signal.Click) *signal.Element {
	for i := range e.Path {
		if c.allowed(e.Path[i].TagName) {
			return &e.Path[i]
		}
	}
	if e.Target != nil && c.allowed(e.Target.TagName) {
		return e.Target
	}
	return nil
}

func (c *Capture) allowed(tag string) bool {
	_, ok := c.mount[strings.ToLower(tag)]
	return ok
}

// HandleRoute 记录路由跳转并上报一次 PV
func (c *Capture) HandleRoute(e signal.Route, ts int64) {
	ts = c.stamp(ts)
	page := c.pageInfo()
	rec := model.RouteChange{JumpType: e.Type, Timestamp: ts, PageInfo: &page}
	c.add(model.MetricRCR, rec)

	rec.PageInfo = nil
	c.push(model.MetricRCR, rec)

	c.SendPageView(ts)
}

// HandleHTTP 记录网络调用，状态码小于 400 时不保留请求体与响应体
func (c *Capture) HandleHTTP(m model.NetworkCallMetrics) {
	if m.Status < 400 {
		m.Response = ""
		m.Body = ""
	}
	c.metrics.NetworkCall()
	c.add(model.MetricHT, m)
	c.push(model.MetricHT, m)
}

// Track 自定义埋点：写入 store 与行为栈，并立即上报
func (c *Capture) Track(data model.CustomAnalyticsData) {
	c.add(model.MetricCDR, data)
	c.send(model.SourceCustom, map[string]any{string(model.MetricCDR): data})
	c.push(model.MetricCDR, data)
}

// SendPageView 上报一次 PV
func (c *Capture) SendPageView(ts int64) {
	c.mu.RLock()
	origin := c.origin
	c.mu.RUnlock()
	pv := model.PageView{
		Timestamp:         c.stamp(ts),
		PageInfo:          c.pageInfo(),
		OriginInformation: origin,
	}
	c.send(model.SourcePageView, map[string]any{"pageView": pv})
}

// Flush 上报当前用户行为快照
func (c *Capture) Flush() {
	data := c.store.Snapshot()
	if len(data) == 0 {
		return
	}
	c.send(model.SourceUser, data)
}

func (c *Capture) send(source string, data map[string]any) {
	if c.sender == nil {
		return
	}
	snap := model.MetricsSnapshot{
		Session:   c.session,
		Source:    source,
		Timestamp: c.now().UnixMilli(),
		Data:      data,
	}
	c.metrics.Snapshot(source)
	if err := c.sender.SendMetrics(c.ctx, snap); err != nil {
		c.log.Err(err, "用户行为上报失败", "source", source)
	}
}

// push 写入行为栈，页面取 pathname
func (c *Capture) push(name model.MetricName, v any) {
	if c.ledger == nil {
		return
	}
	c.ledger.Push(model.BehaviorEntry{
		Name:      name,
		Page:      c.pageInfo().Pathname,
		Timestamp: c.now().UnixMilli(),
		Value:     v,
	})
}

func (c *Capture) set(name model.MetricName, v any) {
	if err := c.store.Set(name, v); err != nil {
		c.log.Err(err, "写入用户指标失败", "metric", string(name))
	}
}

func (c *Capture) add(name model.MetricName, v any) {
	if err := c.store.Add(name, v); err != nil {
		c.log.Err(err, "写入用户指标失败", "metric", string(name))
	}
}

func (c *Capture) stamp(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return c.now().UnixMilli()
}
