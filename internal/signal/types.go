// Package signal 定义页面代理上报的信号类型，以及按类型分发的订阅表
package signal

import "pagevitals/pkg/model"

// Kind 信号类型
type Kind string

const (
	KindInit           Kind = "init"
	KindHints          Kind = "hints"
	KindError          Kind = "error"
	KindRejection      Kind = "rejection"
	KindFrameworkError Kind = "framework-error"
	KindClick          Kind = "click"
	KindRoute          Kind = "route"
	KindPaint          Kind = "paint"
	KindLCP            Kind = "lcp"
	KindFirstInput     Kind = "first-input"
	KindLayoutShift    Kind = "layout-shift"
	KindResource       Kind = "resource"
	KindNavigation     Kind = "navigation"
	KindLoad           Kind = "load"
	KindCustom         Kind = "custom"
	KindCapability     Kind = "capability"
)

// Signal 一条页面信号
type Signal struct {
	Kind      Kind
	Timestamp int64
	// Document 发出信号的文档ID，为空时归入当前页面生命周期
	Document string
	Page     model.PageInformation
	Data     any
}

// Init 新文档开始，标志一个新的页面生命周期
type Init struct {
	DocumentID string
	Origin     model.OriginInformation
	Hints      ClientHints
}

// ClientHints navigator.userAgentData 的高熵值，init 之后以 hints 信号补充
type ClientHints struct {
	Brand           string
	BrandVersion    string
	Platform        string
	PlatformVersion string
	Model           string
	Mobile          bool
}

// ErrorInfo 错误对象的结构化描述
type ErrorInfo struct {
	Name    string
	Message string
	Stack   string
}

// ResourceTarget 加载失败的元素
type ResourceTarget struct {
	Src       string
	TagName   string
	OuterHTML string
}

// ErrorEvent 全局 error 事件。IsErrorEvent 为 false 时说明是资源加载失败
type ErrorEvent struct {
	IsErrorEvent bool
	Message      string
	Filename     string
	Lineno       int
	Colno        int
	Error        *ErrorInfo
	Target       ResourceTarget
}

// Rejection 未处理的 Promise 拒绝。Reason 不是 Error 时 Error 为空
type Rejection struct {
	Error  *ErrorInfo
	Reason string
}

// ComponentInfo 框架组件的可选身份字段
type ComponentInfo struct {
	Present bool
	Root    bool
	Name    string
	Tag     string
	File    string
}

// FrameworkError 框架错误钩子上报
type FrameworkError struct {
	Error     ErrorInfo
	Component ComponentInfo
	Info      string
}

// Element 点击路径上的元素
type Element struct {
	TagName   string
	ID        string
	ClassList []string
	Text      string
}

// Click 点击事件，Path 从目标元素向上排列
type Click struct {
	Path   []Element
	Target *Element
}

// Route 路由变化，Type 为 pushState / replaceState / popstate
type Route struct {
	Type string
}

// Paint first-paint / first-contentful-paint 条目
type Paint struct {
	Name      string
	StartTime float64
	Raw       map[string]any
}

// LCP largest-contentful-paint 条目
type LCP struct {
	StartTime float64
	Raw       map[string]any
}

// FirstInput first-input 条目
type FirstInput struct {
	StartTime       float64
	ProcessingStart float64
	Raw             map[string]any
}

// NavigationEntry 导航时间线上的原始时间戳
type NavigationEntry struct {
	FetchStart               float64
	DomainLookupStart        float64
	DomainLookupEnd          float64
	ConnectStart             float64
	ConnectEnd               float64
	SecureConnectionStart    float64
	RequestStart             float64
	ResponseStart            float64
	ResponseEnd              float64
	DomInteractive           float64
	DomContentLoadedEventEnd float64
	LoadEventStart           float64
}

// ResourceEntry 资源时间线条目
type ResourceEntry struct {
	Name                  string
	TransferSize          float64
	InitiatorType         string
	StartTime             float64
	ResponseEnd           float64
	DomainLookupStart     float64
	DomainLookupEnd       float64
	ConnectStart          float64
	ConnectEnd            float64
	SecureConnectionStart float64
	RequestStart          float64
	ResponseStart         float64
}

// Load 页面加载完成
type Load struct{}

// Capability 页面不支持的能力
type Capability struct {
	Missing []string
}
