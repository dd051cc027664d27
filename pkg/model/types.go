package model

type SessionID string
type TargetID string

type TargetInfo struct {
	ID        TargetID `json:"id"`
	Type      string   `json:"type"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	IsCurrent bool     `json:"isCurrent"`
}

// BehaviorEntry 用户行为栈中的一条记录
type BehaviorEntry struct {
	Name      MetricName `json:"name"`
	Page      string     `json:"page"`
	Timestamp int64      `json:"timestamp"`
	Value     any        `json:"value"`
}

// PageInformation 页面基本信息
type PageInformation struct {
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Origin   string `json:"origin"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`

	Title     string `json:"title"`
	Language  string `json:"language"`
	UserAgent string `json:"userAgent,omitempty"`
	WinScreen string `json:"winScreen"`
	DocScreen string `json:"docScreen"`
}

// OriginInformation 用户来路信息
type OriginInformation struct {
	Referrer string `json:"referrer"`
	Type     string `json:"type"`
}

// CustomAnalyticsData 自定义埋点数据，维度参考 GA 的事件模型
type CustomAnalyticsData struct {
	EventCategory string `json:"eventCategory"`
	EventAction   string `json:"eventAction"`
	EventLabel    string `json:"eventLabel"`
	EventValue    string `json:"eventValue,omitempty"`
}

// NetworkCallMetrics 一次网络调用的归一化记录
type NetworkCallMetrics struct {
	Method       string `json:"method"`
	URL          string `json:"url"`
	Body         string `json:"body,omitempty"`
	RequestTime  int64  `json:"requestTime"`
	Status       int    `json:"status"`
	StatusText   string `json:"statusText"`
	Response     string `json:"response,omitempty"`
	ResponseTime int64  `json:"responseTime"`
}

// MetricsSnapshot 交给 sink 的指标快照
type MetricsSnapshot struct {
	Session   SessionID      `json:"session"`
	Source    string         `json:"source"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// 快照来源
const (
	SourcePerformance = "performance"
	SourceUser        = "user"
	SourcePageView    = "pageview"
	SourceCustom      = "custom"
)
