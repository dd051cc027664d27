package performance

import (
	"strconv"

	"pagevitals/internal/signal"
	"pagevitals/pkg/model"
)

// NavigationTiming 由导航时间线推导各阶段耗时
func NavigationTiming(e signal.NavigationEntry) model.NavigationTiming {
	nt := model.NavigationTiming{
		FP:        e.ResponseEnd - e.FetchStart,
		TTI:       e.DomInteractive - e.FetchStart,
		DomReady:  e.DomContentLoadedEventEnd - e.FetchStart,
		Load:      e.LoadEventStart - e.FetchStart,
		FirstByte: e.ResponseStart - e.DomainLookupStart,
		DNS:       e.DomainLookupEnd - e.DomainLookupStart,
		TCP:       e.ConnectEnd - e.ConnectStart,
		TTFB:      e.ResponseStart - e.RequestStart,
		Trans:     e.ResponseEnd - e.ResponseStart,
		DomParse:  e.DomInteractive - e.ResponseEnd,
		Res:       e.LoadEventStart - e.DomContentLoadedEventEnd,
	}
	if e.SecureConnectionStart != 0 {
		nt.SSL = e.ConnectEnd - e.SecureConnectionStart
	}
	return nt
}

// ResourceFlow 单个资源的近似耗时分解，跨域资源的细分时间可能为 0
func ResourceFlow(e signal.ResourceEntry) model.ResourceFlowTiming {
	rt := e.ResponseStart - e.RequestStart
	return model.ResourceFlowTiming{
		Name:            e.Name,
		TransferSize:    e.TransferSize,
		InitiatorType:   e.InitiatorType,
		StartTime:       e.StartTime,
		ResponseEnd:     e.ResponseEnd,
		DNSLookup:       e.DomainLookupEnd - e.DomainLookupStart,
		InitialConnect:  e.ConnectEnd - e.ConnectStart,
		SSL:             e.ConnectEnd - e.SecureConnectionStart,
		Request:         rt,
		TTFB:            rt,
		ContentDownload: rt,
	}
}

// formatStartTime 保留两位小数
func formatStartTime(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
