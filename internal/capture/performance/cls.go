package performance

import "pagevitals/pkg/model"

const (
	// sessionGapMS 与会话内上一条目的间隔上限
	sessionGapMS = 1000
	// sessionSpanMS 与会话首条目的间隔上限
	sessionSpanMS = 5000
)

// CLSWindow 布局偏移的会话窗口。条目必须按送达顺序传入
type CLSWindow struct {
	sessionValue   float64
	sessionEntries []model.LayoutShift
	clsValue       float64
	clsEntries     []model.LayoutShift
}

// Observe 处理一条布局偏移。当前会话累计值超过历史最大值时返回新的 CLS 记录与 true
func (w *CLSWindow) Observe(e model.LayoutShift) (model.CLSMetric, bool) {
	if e.HadRecentInput {
		return model.CLSMetric{}, false
	}

	if w.sessionValue != 0 && w.extends(e) {
		w.sessionValue += e.Value
		w.sessionEntries = append(w.sessionEntries, e)
	} else {
		w.sessionValue = e.Value
		w.sessionEntries = []model.LayoutShift{e}
	}

	if w.sessionValue <= w.clsValue {
		return model.CLSMetric{}, false
	}
	w.clsValue = w.sessionValue
	w.clsEntries = append([]model.LayoutShift(nil), w.sessionEntries...)
	return model.CLSMetric{
		Entry:      e,
		CLSValue:   w.clsValue,
		CLSEntries: append([]model.LayoutShift(nil), w.clsEntries...),
	}, true
}

// extends 严格小于：间隔恰为 1000ms 或跨度恰为 5000ms 时开启新会话
func (w *CLSWindow) extends(e model.LayoutShift) bool {
	first := w.sessionEntries[0]
	last := w.sessionEntries[len(w.sessionEntries)-1]
	return e.StartTime-last.StartTime < sessionGapMS && e.StartTime-first.StartTime < sessionSpanMS
}

// Value 当前 CLS 值，即已观察到的最大会话累计值
func (w *CLSWindow) Value() float64 { return w.clsValue }

// SessionValue 当前会话的累计值
func (w *CLSWindow) SessionValue() float64 { return w.sessionValue }
