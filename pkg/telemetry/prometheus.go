package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itsneelabh/eureka/core"
)

// MetricRecorder receives named measurements. core.Telemetry implementations
// satisfy it.
type MetricRecorder interface {
	RecordMetric(name string, value float64, labels map[string]string)
}

// PrometheusMetrics holds the Prometheus collectors for registry and lease metrics
type PrometheusMetrics struct {
	// Registry metrics
	RegistryRequests        *prometheus.CounterVec
	RegistryRequestDuration *prometheus.HistogramVec
	EndpointAttempts        *prometheus.CounterVec

	// Lease metrics
	Heartbeats   *prometheus.CounterVec
	SkippedTicks *prometheus.CounterVec

	gatherer prometheus.Gatherer
	logger   core.Logger
}

// NewPrometheusMetrics registers the collectors with registerer. The handler
// serves what gatherer collects.
func NewPrometheusMetrics(registerer prometheus.Registerer, gatherer prometheus.Gatherer, logger core.Logger) *PrometheusMetrics {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		RegistryRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eureka_registry_requests_total",
				Help: "Registry operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		RegistryRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eureka_registry_request_duration_seconds",
				Help:    "Registry operation latency in seconds, across all endpoint attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		EndpointAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eureka_endpoint_attempts_total",
				Help: "Requests sent to individual registry endpoints",
			},
			[]string{"operation", "endpoint", "outcome"},
		),
		Heartbeats: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eureka_lease_heartbeats_total",
				Help: "Completed lease renewals by outcome",
			},
			[]string{"app", "outcome"},
		),
		SkippedTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eureka_lease_ticks_skipped_total",
				Help: "Ticks skipped because the previous heartbeat was still running",
			},
			[]string{"app"},
		),
		gatherer: gatherer,
		logger:   logger,
	}
}

// RecordMetric maps the client's metric names onto the collectors.
// Unknown names are ignored.
func (m *PrometheusMetrics) RecordMetric(name string, value float64, labels map[string]string) {
	var err error
	switch name {
	case "eureka.registry.requests":
		err = addCounter(m.RegistryRequests, labels, value)
	case "eureka.registry.request.duration_ms":
		var obs prometheus.Observer
		if obs, err = m.RegistryRequestDuration.GetMetricWith(prometheus.Labels(labels)); err == nil {
			obs.Observe(value / 1000)
		}
	case "eureka.endpoint.attempts":
		err = addCounter(m.EndpointAttempts, labels, value)
	case "eureka.lease.heartbeats":
		err = addCounter(m.Heartbeats, labels, value)
	case "eureka.lease.ticks.skipped":
		err = addCounter(m.SkippedTicks, labels, value)
	default:
		return
	}
	if err != nil {
		m.logger.Warn("Failed to record Prometheus metric", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
	}
}

func addCounter(vec *prometheus.CounterVec, labels map[string]string, value float64) error {
	counter, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return err
	}
	counter.Add(value)
	return nil
}

// Handler returns the Prometheus metrics HTTP handler
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Combine returns a Telemetry that traces through tracer and records every
// metric into tracer and each recorder. A nil tracer traces nothing.
func Combine(tracer core.Telemetry, recorders ...MetricRecorder) core.Telemetry {
	if tracer == nil {
		tracer = &core.NoOpTelemetry{}
	}
	if len(recorders) == 0 {
		return tracer
	}
	return &combined{tracer: tracer, recorders: recorders}
}

type combined struct {
	tracer    core.Telemetry
	recorders []MetricRecorder
}

func (c *combined) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	return c.tracer.StartSpan(ctx, name)
}

func (c *combined) RecordMetric(name string, value float64, labels map[string]string) {
	c.tracer.RecordMetric(name, value, labels)
	for _, r := range c.recorders {
		r.RecordMetric(name, value, labels)
	}
}
