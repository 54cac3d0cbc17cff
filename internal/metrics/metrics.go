package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handreceipt/internal/queue"
)

// Submission outcomes recorded by ObserveSubmission.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics holds the agent's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	passes      *prometheus.CounterVec
	submissions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	queueSize   *prometheus.GaugeVec
	exhausted   prometheus.Gauge
	online      prometheus.Gauge
}

// New registers the agent collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "handreceipt_sync_passes_total",
			Help: "Sync passes that ran, by trigger",
		}, []string{"trigger"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "handreceipt_submissions_total",
			Help: "Transfer submissions by outcome",
		}, []string{"result"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "handreceipt_submit_duration_seconds",
			Help:    "Submission round-trip latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		queueSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "handreceipt_queue_transfers",
			Help: "Queued transfers by status",
		}, []string{"status"}),
		exhausted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "handreceipt_queue_exhausted_transfers",
			Help: "FAILED transfers with no automatic retries left",
		}),
		online: factory.NewGauge(prometheus.GaugeOpts{
			Name: "handreceipt_online",
			Help: "1 when the submission endpoint is reachable",
		}),
	}
}

// ObservePass counts one sync pass.
func (m *Metrics) ObservePass(trigger string) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(trigger).Inc()
}

// ObserveSubmission records one submission outcome and its latency.
func (m *Metrics) ObserveSubmission(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
	m.latency.WithLabelValues(result).Observe(elapsed.Seconds())
}

// ObserveQueue replaces the queue gauges with counts.
func (m *Metrics) ObserveQueue(counts queue.Counts) {
	if m == nil {
		return
	}
	m.queueSize.WithLabelValues(string(queue.StatusPending)).Set(float64(counts.Pending))
	m.queueSize.WithLabelValues(string(queue.StatusSyncing)).Set(float64(counts.Syncing))
	m.queueSize.WithLabelValues(string(queue.StatusCompleted)).Set(float64(counts.Completed))
	m.queueSize.WithLabelValues(string(queue.StatusFailed)).Set(float64(counts.Failed))
	m.exhausted.Set(float64(counts.Exhausted))
}

// ObserveOnline records the connectivity state.
func (m *Metrics) ObserveOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
