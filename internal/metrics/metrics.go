// Package metrics 采集器自身的运行指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pagevitals"

// Metrics 采集器计数器集合，nil 接收者上的方法不做任何事
type Metrics struct {
	registry           *prometheus.Registry
	ActiveSessions     prometheus.Gauge
	SignalsTotal       *prometheus.CounterVec
	ExceptionsTotal    *prometheus.CounterVec
	DeduplicatedTotal  prometheus.Counter
	NetworkCallsTotal  prometheus.Counter
	SnapshotsTotal     *prometheus.CounterVec
	SinkErrorsTotal    *prometheus.CounterVec
	DroppedSignalTotal prometheus.Counter
}

// New 创建并注册计数器
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of attached sessions",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Page signals received by kind",
		}, []string{"kind"}),
		ExceptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_total",
			Help:      "Exception records handed to sinks by mechanism",
		}, []string{"mechanism"}),
		DeduplicatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_deduplicated_total",
			Help:      "Exception records dropped as repeats within a page lifetime",
		}),
		NetworkCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_calls_total",
			Help:      "Settled network calls observed by the interceptor",
		}),
		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Metric snapshots handed to sinks by source",
		}, []string{"source"}),
		SinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Sink delivery errors by sink",
		}, []string{"sink"}),
		DroppedSignalTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_signals_total",
			Help:      "Malformed agent payloads",
		}),
	}
	r.MustRegister(
		m.ActiveSessions, m.SignalsTotal, m.ExceptionsTotal, m.DeduplicatedTotal,
		m.NetworkCallsTotal, m.SnapshotsTotal, m.SinkErrorsTotal, m.DroppedSignalTotal,
	)
	return m
}

// Registry 返回用于 /metrics 暴露的注册表
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Signal(kind string) {
	if m != nil {
		m.SignalsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Exception(mechanism string) {
	if m != nil {
		m.ExceptionsTotal.WithLabelValues(mechanism).Inc()
	}
}

func (m *Metrics) Deduplicated() {
	if m != nil {
		m.DeduplicatedTotal.Inc()
	}
}

func (m *Metrics) NetworkCall() {
	if m != nil {
		m.NetworkCallsTotal.Inc()
	}
}

func (m *Metrics) Snapshot(source string) {
	if m != nil {
		m.SnapshotsTotal.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) SinkError(sink string) {
	if m != nil {
		m.SinkErrorsTotal.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) DroppedSignal() {
	if m != nil {
		m.DroppedSignalTotal.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}
