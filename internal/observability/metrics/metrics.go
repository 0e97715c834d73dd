// Package metrics exposes prometheus instruments for the API and the
// scheduler. Labels stay low-cardinality: job names, event types, and
// status classes only.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	UsageEventAPICall         = "api_call"
	UsageEventStorageSnapshot = "storage_snapshot"
)

// AppMetrics captures request, metering, and scheduler health signals.
type AppMetrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	usageEvents       *prometheus.CounterVec
	invoicesGenerated prometheus.Counter

	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	platformUsers        prometheus.Gauge
	platformStorageBytes prometheus.Gauge
	platformCallsToday   prometheus.Gauge
}

var (
	appMetricsOnce sync.Once
	appMetrics     *AppMetrics
)

// App returns the singleton metrics registry.
func App() *AppMetrics {
	appMetricsOnce.Do(func() {
		appMetrics = newAppMetrics(prometheus.DefaultRegisterer)
	})
	return appMetrics
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	appMetricsOnce = sync.Once{}
	appMetrics = nil
}

func newAppMetrics(registerer prometheus.Registerer) *AppMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billflow_http_requests_total",
		Help: "HTTP requests by method, route, and status class.",
	}, []string{"method", "route", "status"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billflow_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	usageEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billflow_usage_events_total",
		Help: "Metering events recorded by type.",
	}, []string{"type"})
	invoicesGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billflow_invoices_generated_total",
		Help: "Invoices frozen by the monthly run or on demand.",
	})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billflow_scheduler_job_runs_total",
		Help: "Scheduler job runs by name.",
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billflow_scheduler_job_errors_total",
		Help: "Scheduler job failures by name.",
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billflow_scheduler_job_duration_seconds",
		Help:    "Scheduler job latency to keep billing runs within their window.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job"})

	platformUsers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billflow_platform_users",
		Help: "Registered accounts at the last snapshot.",
	})
	platformStorageBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billflow_platform_storage_bytes",
		Help: "Total bytes stored across all users at the last snapshot.",
	})
	platformCallsToday := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billflow_platform_api_calls_today",
		Help: "API calls metered today across all users at the last snapshot.",
	})

	registerer.MustRegister(
		httpRequests,
		httpDuration,
		usageEvents,
		invoicesGenerated,
		jobRuns,
		jobErrors,
		jobDuration,
		platformUsers,
		platformStorageBytes,
		platformCallsToday,
	)

	return &AppMetrics{
		httpRequests:         httpRequests,
		httpDuration:         httpDuration,
		usageEvents:          usageEvents,
		invoicesGenerated:    invoicesGenerated,
		jobRuns:              jobRuns,
		jobErrors:            jobErrors,
		jobDuration:          jobDuration,
		platformUsers:        platformUsers,
		platformStorageBytes: platformStorageBytes,
		platformCallsToday:   platformCallsToday,
	}
}

// ObserveHTTPRequest records one finished request.
func (m *AppMetrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	class := strconv.Itoa(status/100) + "xx"
	m.httpRequests.WithLabelValues(method, route, class).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncUsageEvent counts one metering event.
func (m *AppMetrics) IncUsageEvent(eventType string) {
	if m == nil {
		return
	}
	m.usageEvents.WithLabelValues(eventType).Inc()
}

// IncInvoiceGenerated counts one freshly frozen invoice.
func (m *AppMetrics) IncInvoiceGenerated() {
	if m == nil {
		return
	}
	m.invoicesGenerated.Inc()
}

// IncJobRun increments the run counter for a scheduler job.
func (m *AppMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// IncJobError increments the failure counter for a scheduler job.
func (m *AppMetrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *AppMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// SetPlatformTotals refreshes the hourly snapshot gauges.
func (m *AppMetrics) SetPlatformTotals(users int, storageBytes, callsToday int64) {
	if m == nil {
		return
	}
	m.platformUsers.Set(float64(users))
	m.platformStorageBytes.Set(float64(storageBytes))
	m.platformCallsToday.Set(float64(callsToday))
}
