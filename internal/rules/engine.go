package rules

import (
	"regexp"
	"strings"
	"sync"

	"pagevitals/pkg/traffic"

	"github.com/tidwall/gjson"
)

// Action 命中规则后对网络调用记录的处理方式
type Action string

const (
	// ActionIgnore 不记录该调用
	ActionIgnore Action = "ignore"
	// ActionRedact 记录调用但丢弃请求体和响应体
	ActionRedact Action = "redact"
)

// Condition 单个匹配条件
type Condition struct {
	Type    string   `yaml:"type" json:"type"`
	Mode    string   `yaml:"mode" json:"mode"`
	Pattern string   `yaml:"pattern" json:"pattern"`
	Values  []string `yaml:"values" json:"values"`
	Key     string   `yaml:"key" json:"key"`
	Op      string   `yaml:"op" json:"op"`
	Value   string   `yaml:"value" json:"value"`
	Path    string   `yaml:"path" json:"path"`
}

// Match 条件组合
type Match struct {
	AllOf  []Condition `yaml:"allOf" json:"allOf"`
	AnyOf  []Condition `yaml:"anyOf" json:"anyOf"`
	NoneOf []Condition `yaml:"noneOf" json:"noneOf"`
}

// Rule 一条采集规则
type Rule struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Priority int    `yaml:"priority" json:"priority"`
	Match    Match  `yaml:"match" json:"match"`
	Action   Action `yaml:"action" json:"action"`
}

// Engine 采集规则引擎
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// New 创建规则引擎
func New(rs []Rule) *Engine { return &Engine{rules: rs} }

// Update 替换规则集
func (e *Engine) Update(rs []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rs
}

// Ctx 规则匹配上下文
type Ctx struct {
	URL     string
	Method  string
	Headers map[string]string
	Query   map[string]string
	Cookies map[string]string
	Body    string
}

// FromRequest 由中立请求模型构造匹配上下文
func FromRequest(req *traffic.Request) Ctx {
	return Ctx{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Query:   req.Query,
		Cookies: req.Cookies,
		Body:    string(req.Body),
	}
}

// Result 匹配结果
type Result struct {
	RuleID string
	Action Action
}

// Eval 返回优先级最高的命中规则，无命中时返回 nil
func (e *Engine) Eval(ctx Ctx) *Result {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var chosen *Rule
	for i := range e.rules {
		r := &e.rules[i]
		if matchRule(ctx, r.Match) {
			if chosen == nil || r.Priority > chosen.Priority {
				chosen = r
			}
		}
	}
	if chosen == nil {
		return nil
	}
	return &Result{RuleID: chosen.ID, Action: chosen.Action}
}

func matchRule(ctx Ctx, m Match) bool {
	if len(m.AllOf) == 0 && len(m.AnyOf) == 0 && len(m.NoneOf) == 0 {
		return false
	}
	ok := true
	if len(m.AllOf) > 0 {
		ok = ok && allOf(ctx, m.AllOf)
	}
	if len(m.AnyOf) > 0 {
		ok = ok && anyOf(ctx, m.AnyOf)
	}
	if len(m.NoneOf) > 0 {
		ok = ok && noneOf(ctx, m.NoneOf)
	}
	return ok
}

func allOf(ctx Ctx, cs []Condition) bool {
	for i := range cs {
		if !cond(ctx, cs[i]) {
			return false
		}
	}
	return true
}

func anyOf(ctx Ctx, cs []Condition) bool {
	for i := range cs {
		if cond(ctx, cs[i]) {
			return true
		}
	}
	return false
}

func noneOf(ctx Ctx, cs []Condition) bool { return !anyOf(ctx, cs) }

func cond(ctx Ctx, c Condition) bool {
	switch c.Type {
	case "url":
		switch c.Mode {
		case "prefix":
			return strings.HasPrefix(ctx.URL, c.Pattern)
		case "regex":
			return matchRegex(ctx.URL, c.Pattern)
		case "exact":
			return ctx.URL == c.Pattern
		default:
			return glob(ctx.URL, c.Pattern)
		}
	case "method":
		for _, v := range c.Values {
			if strings.EqualFold(ctx.Method, v) {
				return true
			}
		}
		return false
	case "header":
		return lookup(ctx.Headers, strings.ToLower(c.Key), c)
	case "query":
		return lookup(ctx.Query, strings.ToLower(c.Key), c)
	case "cookie":
		return lookup(ctx.Cookies, strings.ToLower(c.Key), c)
	case "text":
		if ctx.Body == "" {
			return false
		}
		return compare(ctx.Body, c)
	case "json":
		if ctx.Body == "" || !gjson.Valid(ctx.Body) {
			return false
		}
		res := gjson.Get(ctx.Body, c.Path)
		if !res.Exists() {
			return false
		}
		return compare(res.String(), c)
	default:
		return false
	}
}

func lookup(m map[string]string, key string, c Condition) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	return compare(v, c)
}

func compare(v string, c Condition) bool {
	switch c.Op {
	case "equals":
		return v == c.Value
	case "contains":
		return strings.Contains(v, c.Value)
	case "regex":
		return matchRegex(v, c.Value)
	default:
		return true
	}
}

// regexCache 缓存已编译的正则，编译失败的也缓存以免重复编译
var regexCache sync.Map

type compiled struct {
	re  *regexp.Regexp
	err error
}

func matchRegex(s, pattern string) bool {
	v, ok := regexCache.Load(pattern)
	if !ok {
		re, err := regexp.Compile(pattern)
		v, _ = regexCache.LoadOrStore(pattern, compiled{re: re, err: err})
	}
	c := v.(compiled)
	if c.err != nil {
		return false
	}
	return c.re.MatchString(s)
}

func glob(s, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(s, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(s, strings.TrimSuffix(pattern, "*")) {
		return true
	}
	return s == pattern
}
