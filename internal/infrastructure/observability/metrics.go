package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry            *prometheus.Registry
	RecordsTotal        prometheus.Counter
	RecordErrorsTotal   *prometheus.CounterVec
	RecordsDroppedTotal prometheus.Counter
	WriteSeconds        prometheus.Histogram
	QueueDepth          prometheus.Gauge
	ProxyErrorsTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sniaff",
			Name:      "records_total",
			Help:      "Flow records durably appended",
		}),
		RecordErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sniaff",
			Name:      "record_errors_total",
			Help:      "Per-flow failures by pipeline stage",
		}, []string{"stage"}),
		RecordsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sniaff",
			Name:      "records_dropped_total",
			Help:      "Records dropped by queue policy or missing writer",
		}),
		WriteSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sniaff",
			Name:      "write_seconds",
			Help:      "Append latency including fsync",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sniaff",
			Name:      "queue_depth",
			Help:      "Records waiting in the async capture queue",
		}),
		ProxyErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sniaff",
			Name:      "proxy_errors_total",
			Help:      "Capture-source proxy errors by stage",
		}, []string{"stage"}),
	}
	r.MustRegister(m.RecordsTotal, m.RecordErrorsTotal, m.RecordsDroppedTotal, m.WriteSeconds, m.QueueDepth, m.ProxyErrorsTotal)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
