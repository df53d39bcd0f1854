package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sales_dashboard"

// Metrics holds the application's Prometheus collectors on a private
// registry. It satisfies services.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	datasetsLoaded *prometheus.CounterVec
	recordsLoaded  *prometheus.CounterVec
	recordsDropped *prometheus.CounterVec
	filterMatches  prometheus.Histogram
	stageDuration  *prometheus.HistogramVec
	exports        *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		datasetsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_loaded_total",
			Help:      "Datasets successfully loaded, by source.",
		}, []string{"source"}),
		recordsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Valid records kept after normalization, by source.",
		}, []string{"source"}),
		recordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records dropped for missing or non-numeric price or sales volume, by source.",
		}, []string{"source"}),
		filterMatches: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "filter_matched_records",
			Help:      "Records matched per filter application.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"stage"}),
		exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Filtered views exported, by format.",
		}, []string{"format"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// TrackSessions exposes the live session count as a gauge read on scrape.
func (m *Metrics) TrackSessions(count func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Live dashboard sessions.",
	}, func() float64 { return float64(count()) })
}

func (m *Metrics) DatasetLoaded(source string, records, dropped int) {
	m.datasetsLoaded.WithLabelValues(source).Inc()
	m.recordsLoaded.WithLabelValues(source).Add(float64(records))
	m.recordsDropped.WithLabelValues(source).Add(float64(dropped))
}

func (m *Metrics) FiltersApplied(matched int) {
	m.filterMatches.Observe(float64(matched))
}

func (m *Metrics) StageObserved(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ExportWritten(format string) {
	m.exports.WithLabelValues(format).Inc()
}

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
