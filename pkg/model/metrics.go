package model

// MetricName 指标类别
type MetricName string

// 性能指标类别
const (
	MetricFP  MetricName = "first-paint"
	MetricFCP MetricName = "first-contentful-paint"
	MetricLCP MetricName = "largest-contentful-paint"
	MetricFID MetricName = "first-input-delay"
	MetricCLS MetricName = "cumulative-layout-shift"
	MetricNT  MetricName = "navigation-timing"
	MetricRF  MetricName = "resource-flow"
)

// 用户行为指标类别
const (
	MetricPI  MetricName = "page-information"
	MetricOI  MetricName = "origin-information"
	MetricDI  MetricName = "device-information"
	MetricRCR MetricName = "router-change-record"
	MetricCBR MetricName = "click-behavior-record"
	MetricCDR MetricName = "custom-define-record"
	MetricHT  MetricName = "http-record"
)

// PaintMetric FP/FCP/LCP 的记录
type PaintMetric struct {
	StartTime string `json:"startTime"`
	Entry     any    `json:"entry"`
}

// FirstInputMetric FID 记录
type FirstInputMetric struct {
	Delay float64 `json:"delay"`
	Entry any     `json:"entry"`
}

// LayoutShift 一条布局偏移条目
type LayoutShift struct {
	StartTime      float64 `json:"startTime"`
	Value          float64 `json:"value"`
	HadRecentInput bool    `json:"hadRecentInput"`
}

// CLSMetric 当前最大会话窗口的 CLS 记录
type CLSMetric struct {
	Entry      LayoutShift   `json:"entry"`
	CLSValue   float64       `json:"clsValue"`
	CLSEntries []LayoutShift `json:"clsEntries"`
}

// NavigationTiming 由导航时间线推导出的各阶段耗时
type NavigationTiming struct {
	FP        float64 `json:"FP"`
	TTI       float64 `json:"TTI"`
	DomReady  float64 `json:"DomReady"`
	Load      float64 `json:"Load"`
	FirstByte float64 `json:"FirstByte"`
	DNS       float64 `json:"DNS"`
	TCP       float64 `json:"TCP"`
	SSL       float64 `json:"SSL"`
	TTFB      float64 `json:"TTFB"`
	Trans     float64 `json:"Trans"`
	DomParse  float64 `json:"DomParse"`
	Res       float64 `json:"Res"`
}

// ResourceFlowTiming 单个静态资源的加载耗时
type ResourceFlowTiming struct {
	Name            string  `json:"name"`
	TransferSize    float64 `json:"transferSize"`
	InitiatorType   string  `json:"initiatorType"`
	StartTime       float64 `json:"startTime"`
	ResponseEnd     float64 `json:"responseEnd"`
	DNSLookup       float64 `json:"dnsLookup"`
	InitialConnect  float64 `json:"initialConnect"`
	SSL             float64 `json:"ssl"`
	Request         float64 `json:"request"`
	TTFB            float64 `json:"ttfb"`
	ContentDownload float64 `json:"contentDownload"`
}

// RouteChange 路由跳转记录
type RouteChange struct {
	JumpType  string           `json:"jumpType"`
	Timestamp int64            `json:"timestamp"`
	PageInfo  *PageInformation `json:"pageInfo,omitempty"`
}

// TagInfo 被点击元素的描述
type TagInfo struct {
	ID        string   `json:"id"`
	ClassList []string `json:"classList"`
	TagName   string   `json:"tagName"`
	Text      string   `json:"text"`
}

// ClickRecord 点击行为记录
type ClickRecord struct {
	TagInfo   TagInfo          `json:"tagInfo"`
	Timestamp int64            `json:"timestamp"`
	PageInfo  *PageInformation `json:"pageInfo,omitempty"`
}

// PageView PV 上报数据
type PageView struct {
	Timestamp         int64             `json:"timestamp"`
	PageInfo          PageInformation   `json:"pageInfo"`
	OriginInformation OriginInformation `json:"originInformation"`
}

// DeviceFeatures UA 解析结果
type DeviceFeatures struct {
	BrowserName    string `json:"browserName"`
	BrowserVersion string `json:"browserVersion"`
	OSName         string `json:"osName"`
	OSVersion      string `json:"osVersion"`
	DeviceType     string `json:"deviceType"`
	DeviceVendor   string `json:"deviceVendor"`
	DeviceModel    string `json:"deviceModel"`
	EngineName     string `json:"engineName"`
	EngineVersion  string `json:"engineVersion"`
}
