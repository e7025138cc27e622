// Package metrics holds the Prometheus collectors for the registry. All
// collectors live on an explicit registry so tests can build as many
// instances as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for issuance, verification, revocation and
// bulk runs. Every method is safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Issuance outcomes by schema and outcome (issued, invalid, provider_error, ledger_error)
	Issuances *prometheus.CounterVec
	// Cryptography and ledger call latency by provider and operation
	ProviderLatency *prometheus.HistogramVec

	Verifications       *prometheus.CounterVec
	VerificationLatency prometheus.Histogram

	Revocations *prometheus.CounterVec

	BulkRecords       *prometheus.CounterVec
	BulkBatchDuration prometheus.Histogram

	HTTPLatency *prometheus.HistogramVec
	RateLimited *prometheus.CounterVec

	TelemetryDropped prometheus.Counter
}

// New creates a registry with process/Go collectors and every registry metric.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Issuances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_issuances_total",
			Help: "Issuance attempts by schema and outcome",
		}, []string{"schema", "outcome"}),

		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credreg_provider_call_duration_seconds",
			Help:    "Duration of external provider calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "operation"}),

		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_verifications_total",
			Help: "Verification results by validity and reason",
		}, []string{"valid", "reason"}),

		VerificationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credreg_verification_duration_seconds",
			Help:    "Duration of credential verification including the proof check",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		Revocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_revocations_total",
			Help: "Revocation requests by outcome (revoked, already_revoked, forbidden)",
		}, []string{"outcome"}),

		BulkRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_bulk_records_total",
			Help: "Bulk issuance records by final status",
		}, []string{"status"}),

		BulkBatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credreg_bulk_batch_duration_seconds",
			Help:    "Wall time of bulk issuance batches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credreg_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),

		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_rate_limited_total",
			Help: "Requests rejected by the rate limiter by endpoint class",
		}, []string{"class"}),

		TelemetryDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "credreg_telemetry_dropped_total",
			Help: "Telemetry events dropped because the buffer was full or the sink unhealthy",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IncrementIssuance(schema, outcome string) {
	if m != nil {
		m.Issuances.WithLabelValues(schema, outcome).Inc()
	}
}

func (m *Metrics) ObserveProviderLatency(provider, operation string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider, operation).Observe(d.Seconds())
	}
}

// IncrementVerification records one verification result. reason is empty for
// valid credentials.
func (m *Metrics) IncrementVerification(valid bool, reason string) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.Verifications.WithLabelValues(v, reason).Inc()
}

func (m *Metrics) ObserveVerificationLatency(d time.Duration) {
	if m != nil {
		m.VerificationLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRevocation(outcome string) {
	if m != nil {
		m.Revocations.WithLabelValues(outcome).Inc()
	}
}

// AddBulkRecords adds n records with the given final status.
func (m *Metrics) AddBulkRecords(status string, n int) {
	if m != nil && n > 0 {
		m.BulkRecords.WithLabelValues(status).Add(float64(n))
	}
}

func (m *Metrics) ObserveBulkBatch(d time.Duration) {
	if m != nil {
		m.BulkBatchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	if m != nil {
		m.HTTPLatency.WithLabelValues(route, method, status).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRateLimited(class string) {
	if m != nil {
		m.RateLimited.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) IncrementTelemetryDropped() {
	if m != nil {
		m.TelemetryDropped.Inc()
	}
}
