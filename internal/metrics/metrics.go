package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the chart engine and HTTP collectors. A nil *Metrics records nothing.
type Metrics struct {
	chartRuns      *prometheus.CounterVec
	chartDuration  *prometheus.HistogramVec
	branchFailures *prometheus.CounterVec
	seriesPerChart prometheus.Histogram
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	gatherer       prometheus.Gatherer
}

// New creates the collectors and registers them with reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		chartRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amr_chart_runs_total",
			Help: "Chart runs by chart name and outcome.",
		}, []string{"chart", "outcome"}),
		chartDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amr_chart_duration_seconds",
			Help:    "Histogram of chart run durations by chart name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chart"}),
		branchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amr_chart_branch_failures_total",
			Help: "School and period branches that failed, by chart name.",
		}, []string{"chart"}),
		seriesPerChart: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amr_chart_series",
			Help:    "Number of series in each chart result.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amr_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amr_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.chartRuns,
		m.chartDuration,
		m.branchFailures,
		m.seriesPerChart,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// ChartRun records one finished chart.
func (m *Metrics) ChartRun(chart string, duration time.Duration, series int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.chartRuns.WithLabelValues(chart, outcome).Inc()
	m.chartDuration.WithLabelValues(chart).Observe(duration.Seconds())
	if err == nil {
		m.seriesPerChart.Observe(float64(series))
	}
}

// BranchFailed counts a dropped or failed (school, period) branch.
func (m *Metrics) BranchFailed(chart string) {
	if m == nil {
		return
	}
	m.branchFailures.WithLabelValues(chart).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their durations under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler serves the registry the collectors were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
