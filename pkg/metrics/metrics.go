// Package metrics exposes Prometheus instruments for the savings agent.
// Every method is safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	readingsStored   *prometheus.CounterVec
	readingsRejected prometheus.Counter
	sessionsUpdated  prometheus.Counter
	calculations     *prometheus.CounterVec
	totalBaseline    *prometheus.GaugeVec
	currentTarget    *prometheus.GaugeVec
	comparisonDays   *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the instruments on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readingsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "savings_consumption_readings_stored_total",
			Help: "Consumption readings written to history by meter.",
		}, []string{"meter"}),
		readingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "savings_consumption_readings_rejected_total",
			Help: "Consumption messages that could not be parsed or stored.",
		}),
		sessionsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "savings_sessions_updated_total",
			Help: "Saving session announcements stored.",
		}),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "savings_baseline_calculations_total",
			Help: "Baseline calculations by outcome (active, inactive, error).",
		}, []string{"meter", "outcome"}),
		totalBaseline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "savings_total_baseline_kwh",
			Help: "Total baseline of the current or next saving session.",
		}, []string{"meter"}),
		currentTarget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "savings_current_target_kwh",
			Help: "Baseline of the current 30 minute period.",
		}, []string{"meter"}),
		comparisonDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "savings_comparison_days",
			Help: "Comparison days used by the last calculation.",
		}, []string{"meter"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.readingsStored,
		m.readingsRejected,
		m.sessionsUpdated,
		m.calculations,
		m.totalBaseline,
		m.currentTarget,
		m.comparisonDays,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request counts and durations for route
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

func (m *Metrics) ReadingStored(meter string) {
	if m == nil {
		return
	}
	m.readingsStored.WithLabelValues(meter).Inc()
}

func (m *Metrics) ReadingRejected() {
	if m == nil {
		return
	}
	m.readingsRejected.Inc()
}

func (m *Metrics) SessionUpdated() {
	if m == nil {
		return
	}
	m.sessionsUpdated.Inc()
}

// CalculationFailed counts a calculation that returned an error
func (m *Metrics) CalculationFailed(meter string) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(meter, "error").Inc()
}

// CalculationInactive counts a calculation with no session to report and
// clears the baseline gauges
func (m *Metrics) CalculationInactive(meter string) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(meter, "inactive").Inc()
	m.totalBaseline.WithLabelValues(meter).Set(0)
	m.currentTarget.WithLabelValues(meter).Set(0)
	m.comparisonDays.WithLabelValues(meter).Set(0)
}

// CalculationActive records the figures of a calculated baseline
func (m *Metrics) CalculationActive(meter string, total, current float64, comparisonDays int) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(meter, "active").Inc()
	m.totalBaseline.WithLabelValues(meter).Set(total)
	m.currentTarget.WithLabelValues(meter).Set(current)
	m.comparisonDays.WithLabelValues(meter).Set(float64(comparisonDays))
}
