// Package metrics exposes Prometheus instrumentation for the scan pipeline.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codesense"

// Metrics holds the pipeline collectors, registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	ScansActive       prometheus.Gauge
	ScansTotal        *prometheus.CounterVec
	FilesTotal        *prometheus.CounterVec
	FindingsTotal     *prometheus.CounterVec
	InferenceSeconds  prometheus.Histogram
	InferenceErrors   prometheus.Counter
	CacheHits         prometheus.Counter
	LocationsTotal    *prometheus.CounterVec
	ThrottlePauses    prometheus.Counter
	NotifyErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ScansActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scans_active",
			Help:      "Number of scans currently running",
		}),
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scans finished, by final status",
		}, []string{"status"}),
		FilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed, by result",
		}, []string{"result"}),
		FindingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings recorded, by severity",
		}, []string{"severity"}),
		InferenceSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Latency of inference calls",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		InferenceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Inference calls that returned an error",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_cache_hits_total",
			Help:      "Chunks answered from the per-file retrieval cache",
		}),
		LocationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snippet_locations_total",
			Help:      "Snippet locations, by matcher tier",
		}, []string{"tier"}),
		ThrottlePauses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_pauses_total",
			Help:      "Pauses taken because host load was above threshold",
		}),
		NotifyErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_errors_total",
			Help:      "Failed notification deliveries, by channel",
		}, []string{"channel"}),
	}
}

// Registry returns the registry backing m.
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

func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.ScansActive.Inc()
}

func (m *Metrics) ScanDone() {
	if m == nil {
		return
	}
	m.ScansActive.Dec()
}

// ScanFinished counts a scan reaching a terminal status.
func (m *Metrics) ScanFinished(status string) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) FileScanned(failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	m.FilesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) FindingRecorded(severity string) {
	if m == nil {
		return
	}
	m.FindingsTotal.WithLabelValues(severity).Inc()
}

func (m *Metrics) ObserveInference(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.InferenceSeconds.Observe(d.Seconds())
	if err != nil {
		m.InferenceErrors.Inc()
	}
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) ObserveLocation(tier string) {
	if m == nil {
		return
	}
	m.LocationsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) ThrottlePause() {
	if m == nil {
		return
	}
	m.ThrottlePauses.Inc()
}

func (m *Metrics) NotifyFailed(channel string) {
	if m == nil {
		return
	}
	m.NotifyErrorsTotal.WithLabelValues(channel).Inc()
}
