package results

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the results record as Prometheus gauges/counters,
// independent of the CSV/heartbeat textual output: an operator can scrape a
// running xdd process via any standard prometheus.Collector-based exporter.
type Metrics struct {
	opsTotal       *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	bytesTotal     *prometheus.CounterVec
	bandwidthBps   *prometheus.GaugeVec
	percentComplete *prometheus.GaugeVec
}

// NewMetrics registers the collector set against reg and returns the handle
// used to update them from Manager.RunPass.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xdd",
			Name:      "ops_total",
			Help:      "completed operations by target and op kind",
		}, []string{"target", "op"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xdd",
			Name:      "errors_total",
			Help:      "failed operations by target",
		}, []string{"target"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xdd",
			Name:      "bytes_total",
			Help:      "bytes transferred by target",
		}, []string{"target"}),
		bandwidthBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xdd",
			Name:      "bandwidth_bytes_per_second",
			Help:      "instantaneous bandwidth of the most recent pass",
		}, []string{"target"}),
		percentComplete: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xdd",
			Name:      "percent_complete",
			Help:      "percent of planned ops completed",
		}, []string{"target"}),
	}
	reg.MustRegister(m.opsTotal, m.errorsTotal, m.bytesTotal, m.bandwidthBps, m.percentComplete)
	return m
}

// Observe folds one rendered Record into the collector set.
func (m *Metrics) Observe(r Record) {
	t := targetLabel(r.TargetIndex)
	m.opsTotal.WithLabelValues(t, "read").Add(float64(r.ReadOps))
	m.opsTotal.WithLabelValues(t, "write").Add(float64(r.WriteOps))
	m.opsTotal.WithLabelValues(t, "noop").Add(float64(r.NoopOps))
	m.errorsTotal.WithLabelValues(t).Add(float64(r.ErrorOps))
	m.bytesTotal.WithLabelValues(t).Add(float64(r.BytesTotal))
	m.bandwidthBps.WithLabelValues(t).Set(r.BandwidthBps)
	m.percentComplete.WithLabelValues(t).Set(r.PercentComplete)
}

func targetLabel(idx int) string { return strconv.Itoa(idx) }
