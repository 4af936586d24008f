package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for reviewflow. All methods are safe
// to call on a nil *Metrics, which disables recording.
type Metrics struct {
	// Ingestion
	UploadsTotal            *prometheus.CounterVec
	CustomersIngestedTotal  prometheus.Counter
	DuplicatesTotal         *prometheus.CounterVec
	UploadRowsRejectedTotal prometheus.Counter

	// Dispatch
	EmailsTotal         *prometheus.CounterVec
	DispatchRunsTotal   *prometheus.CounterVec
	SendDurationSeconds *prometheus.HistogramVec
	QuotaExceededTotal  prometheus.Counter
	DispatchInProgress  prometheus.Gauge

	// Engagement
	OpensTotal          prometheus.Counter
	ClicksTotal         prometheus.Counter
	ReviewsMatchedTotal prometheus.Counter
	ReviewsSeenTotal    prometheus.Counter

	// HTTP
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewflow_uploads_total",
				Help: "Total number of customer file uploads by result",
			},
			[]string{"result"},
		),
		CustomersIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewflow_customers_ingested_total",
				Help: "Total number of customer records created from uploads",
			},
		),
		DuplicatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewflow_duplicates_total",
				Help: "Total number of duplicate customer rows skipped",
			},
			[]string{"scope"},
		),
		UploadRowsRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewflow_upload_rows_rejected_total",
				Help: "Total number of rows dropped for lacking a valid email",
			},
		),

		EmailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewflow_emails_total",
				Help: "Total number of review request emails by outcome",
			},
			[]string{"transport", "status"},
		),
		DispatchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewflow_dispatch_runs_total",
				Help: "Total number of dispatch runs by result",
			},
			[]string{"result"},
		),
		SendDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reviewflow_send_duration_seconds",
				Help:    "Time spent handing one message to the transport",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"transport"},
		),
		QuotaExceededTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewflow_quota_exceeded_total",
				Help: "Total number of dispatch runs stopped by the send quota",
			},
		),
		DispatchInProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reviewflow_dispatch_in_progress",
				Help: "Number of dispatch runs currently sending",
			},
		),

		OpensTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewflow_opens_total",
				Help: "Total number of first opens recorded",
			},
		),
		ClicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewflow_clicks_total",
				Help: "Total number of first clicks recorded",
			},
		),
		ReviewsMatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewflow_reviews_matched_total",
				Help: "Total number of reviews attributed to customers",
			},
		),
		ReviewsSeenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewflow_reviews_seen_total",
				Help: "Total number of external reviews submitted for matching",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reviewflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewflow_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.UploadsTotal,
		m.CustomersIngestedTotal,
		m.DuplicatesTotal,
		m.UploadRowsRejectedTotal,
		m.EmailsTotal,
		m.DispatchRunsTotal,
		m.SendDurationSeconds,
		m.QuotaExceededTotal,
		m.DispatchInProgress,
		m.OpensTotal,
		m.ClicksTotal,
		m.ReviewsMatchedTotal,
		m.ReviewsSeenTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveUpload records the outcome of an upload
func (m *Metrics) ObserveUpload(result string, ingested, inFileDups, crossBatchDups, rejected int) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(result).Inc()
	m.CustomersIngestedTotal.Add(float64(ingested))
	m.DuplicatesTotal.WithLabelValues("file").Add(float64(inFileDups))
	m.DuplicatesTotal.WithLabelValues("location").Add(float64(crossBatchDups))
	m.UploadRowsRejectedTotal.Add(float64(rejected))
}

// ObserveSend records one send attempt
func (m *Metrics) ObserveSend(transport, status string, seconds float64) {
	if m == nil {
		return
	}
	m.EmailsTotal.WithLabelValues(transport, status).Inc()
	m.SendDurationSeconds.WithLabelValues(transport).Observe(seconds)
}

// IncEmailSkipped records a recipient left untouched by a dispatch run
func (m *Metrics) IncEmailSkipped(transport string) {
	if m == nil {
		return
	}
	m.EmailsTotal.WithLabelValues(transport, "skipped").Inc()
}

// DispatchStarted marks a run as active
func (m *Metrics) DispatchStarted() {
	if m == nil {
		return
	}
	m.DispatchInProgress.Inc()
}

// DispatchFinished records the end of a run
func (m *Metrics) DispatchFinished(result string) {
	if m == nil {
		return
	}
	m.DispatchInProgress.Dec()
	m.DispatchRunsTotal.WithLabelValues(result).Inc()
}

// IncDispatchRejected records a run refused before sending
func (m *Metrics) IncDispatchRejected(result string) {
	if m == nil {
		return
	}
	m.DispatchRunsTotal.WithLabelValues(result).Inc()
}

// IncQuotaExceeded records a run stopped by the send quota
func (m *Metrics) IncQuotaExceeded() {
	if m == nil {
		return
	}
	m.QuotaExceededTotal.Inc()
}

// IncOpen records a first open
func (m *Metrics) IncOpen() {
	if m == nil {
		return
	}
	m.OpensTotal.Inc()
}

// IncClick records a first click
func (m *Metrics) IncClick() {
	if m == nil {
		return
	}
	m.ClicksTotal.Inc()
}

// ObserveMatch records an attribution run
func (m *Metrics) ObserveMatch(total, matched int) {
	if m == nil {
		return
	}
	m.ReviewsSeenTotal.Add(float64(total))
	m.ReviewsMatchedTotal.Add(float64(matched))
}
