// Package intercept 包装两类请求/响应机制（Go HTTP 客户端与被观测页面的 fetch/XHR），
// 把每次调用归一化为 NetworkCallMetrics 并分发给订阅者，不改变调用方可见的行为。
package intercept

import (
	"sync"
	"time"

	"pagevitals/internal/logger"
	"pagevitals/internal/rules"
	"pagevitals/pkg/model"
	"pagevitals/pkg/traffic"
)

// DefaultBodySizeThreshold 记录请求体/响应体的默认上限
const DefaultBodySizeThreshold int64 = 64 << 10

// Subscriber 网络调用订阅者，两个回调都可以为空
type Subscriber struct {
	// Target 非空时只接收该页面目标上的调用
	Target model.TargetID
	// OnSend 在请求发出前同步调用
	OnSend func(req *traffic.Request)
	// OnSettle 在调用完成后调用且只调用一次
	OnSettle func(m model.NetworkCallMetrics)
}

// Config 拦截器配置
type Config struct {
	BodySizeThreshold int64
	Rules             *rules.Engine
	Logger            logger.Logger
	// Now 时间源，测试时可替换
	Now func() time.Time
}

// Interceptor 每个进程一个，持有被包装机制的引用并维护订阅者
type Interceptor struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    []subscription
	rules   *rules.Engine
	limit   int64
	log     logger.Logger
	now     func() time.Time
	pagesMu sync.Mutex
	pages   map[model.TargetID]*pageSession
}

// New 创建拦截器
func New(cfg Config) *Interceptor {
	if cfg.BodySizeThreshold <= 0 {
		cfg.BodySizeThreshold = DefaultBodySizeThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Interceptor{
		rules: cfg.Rules,
		limit: cfg.BodySizeThreshold,
		log:   cfg.Logger,
		now:   cfg.Now,
		pages: make(map[model.TargetID]*pageSession),
	}
}

// subscription 按注册顺序保存的订阅者
type subscription struct {
	id uint64
	Subscriber
}

// Subscribe 注册订阅者，返回取消函数
func (i *Interceptor) Subscribe(s Subscriber) (unsubscribe func()) {
	i.mu.Lock()
	i.nextID++
	id := i.nextID
	i.subs = append(i.subs, subscription{id: id, Subscriber: s})
	i.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			i.mu.Lock()
			defer i.mu.Unlock()
			for n, sub := range i.subs {
				if sub.id == id {
					i.subs = append(i.subs[:n:n], i.subs[n+1:]...)
					return
				}
			}
		})
	}
}

// SetRules 替换采集规则
func (i *Interceptor) SetRules(e *rules.Engine) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rules = e
}

// decide 判断调用是否记录、是否脱敏
func (i *Interceptor) decide(req *traffic.Request) (record bool, redact bool) {
	i.mu.RLock()
	engine := i.rules
	i.mu.RUnlock()

	res := engine.Eval(rules.FromRequest(req))
	if res == nil {
		return true, false
	}
	switch res.Action {
	case rules.ActionIgnore:
		i.log.Debug("网络调用命中忽略规则", "rule", res.RuleID, "url", req.URL)
		return false, false
	case rules.ActionRedact:
		return true, true
	}
	return true, false
}

// subscribers 按订阅顺序返回关心 target 的订阅者，target 为空表示 Go 客户端发起的调用
func (i *Interceptor) subscribers(target model.TargetID) []Subscriber {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Subscriber, 0, len(i.subs))
	for _, s := range i.subs {
		if s.Target == "" || s.Target == target {
			out = append(out, s.Subscriber)
		}
	}
	return out
}

func (i *Interceptor) emitSend(target model.TargetID, req *traffic.Request) {
	for _, s := range i.subscribers(target) {
		if s.OnSend != nil {
			s.OnSend(req)
		}
	}
}

func (i *Interceptor) emitSettle(target model.TargetID, m model.NetworkCallMetrics) {
	for _, s := range i.subscribers(target) {
		if s.OnSettle != nil {
			s.OnSettle(m)
		}
	}
}

func (i *Interceptor) nowMillis() int64 { return i.now().UnixMilli() }

// truncate 按上限截断记录的正文
func (i *Interceptor) truncate(b []byte) string {
	if int64(len(b)) > i.limit {
		b = b[:i.limit]
	}
	return string(b)
}

// call 一次调用在发起与完成之间的状态
type call struct {
	target  model.TargetID
	metrics model.NetworkCallMetrics
	redact  bool
	once    sync.Once
}

// begin 在发起时填充 method/url/body/requestTime
func (i *Interceptor) begin(target model.TargetID, req *traffic.Request, redact bool) *call {
	c := &call{target: target, redact: redact}
	c.metrics.Method = req.Method
	c.metrics.URL = req.URL
	if !redact {
		c.metrics.Body = i.truncate(req.Body)
	}
	c.metrics.RequestTime = req.RequestTime
	return c
}

// settle 在完成时补齐 status/statusText/response/responseTime 并通知订阅者，只生效一次
func (i *Interceptor) settle(c *call, res *traffic.Response) {
	c.once.Do(func() {
		m := c.metrics
		m.Status = res.StatusCode
		m.StatusText = res.StatusText
		if !c.redact {
			m.Response = i.truncate(res.Body)
		}
		m.ResponseTime = res.ResponseTime
		i.emitSettle(c.target, m)
	})
}
