// Package telemetry provides OpenTelemetry tracing and metrics for the
// registry client.
//
// Provider implements core.Telemetry. Every registry operation opens a span
// (eureka.register, eureka.heartbeat, ...) with one child span per endpoint
// attempt, and records request counters and latency histograms.
//
// Exporters:
//   - "otlp": OTLP over gRPC to TelemetryConfig.Endpoint
//   - "stdout": spans printed to stdout, for local debugging
//
// Usage:
//
//	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, "orders")
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(ctx)
//
//	httpClient := telemetry.NewTracedHTTPClient(nil,
//	    otelhttp.WithTracerProvider(provider.TracerProvider()))
//
// PrometheusMetrics mirrors the same measurements into Prometheus collectors;
// Combine feeds a tracer and any number of recorders from one core.Telemetry.
//
// Request correlation IDs (X-Request-ID, X-Correlation-ID) are generated
// with uuid and carried in the context, the outgoing headers and the log fields.
package telemetry
