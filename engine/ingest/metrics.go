package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/WessleyAI/dealflow/pkg/metrics"
)

// Metrics are the pipeline's Prometheus series. A nil *Metrics records
// nothing.
type Metrics struct {
	runs         *prometheus.CounterVec
	runSeconds   *prometheus.HistogramVec
	stubs        *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	capUsed      *prometheus.GaugeVec
	capLimit     *prometheus.GaugeVec
}

// NewMetrics registers the pipeline series on reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	return &Metrics{
		runs:         reg.Counter("runs_total", "Completed ingestion runs."),
		runSeconds:   reg.Histogram("run_duration_seconds", "Wall time of ingestion runs.", []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}),
		stubs:        reg.Counter("stubs_total", "Index stubs seen, by change class.", "source", "change"),
		outcomes:     reg.Counter("promotion_outcomes_total", "Promotion decisions, by outcome.", "outcome"),
		errors:       reg.Counter("errors_total", "Recorded run errors, by stage.", "where"),
		fetchSeconds: reg.Histogram("fetch_duration_seconds", "Page fetch latency.", nil, "kind"),
		capUsed:      reg.Gauge("daily_cap_used", "Promotions consumed today."),
		capLimit:     reg.Gauge("daily_cap_limit", "Promotion cap for today."),
	}
}

func (m *Metrics) run(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues().Inc()
	m.runSeconds.WithLabelValues().Observe(elapsed.Seconds())
}

func (m *Metrics) stub(source string, c Change) {
	if m == nil {
		return
	}
	m.stubs.WithLabelValues(source, c.String()).Inc()
}

func (m *Metrics) outcome(o string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o).Inc()
}

func (m *Metrics) failure(where string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(where).Inc()
}

func (m *Metrics) fetched(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) capacity(used, limit int) {
	if m == nil {
		return
	}
	m.capUsed.WithLabelValues().Set(float64(used))
	m.capLimit.WithLabelValues().Set(float64(limit))
}
