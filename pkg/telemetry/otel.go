package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/eureka/core"
)

const instrumentationName = "github.com/itsneelabh/eureka"

// Provider implements core.Telemetry on top of the OpenTelemetry SDK
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	instruments    *MetricInstruments
	logger         core.Logger
}

type providerOptions struct {
	spanProcessors []sdktrace.SpanProcessor
	metricReaders  []sdkmetric.Reader
	stdoutWriter   io.Writer
	serviceVersion string
	logger         core.Logger
	setGlobal      bool
}

// ProviderOption customizes NewProvider
type ProviderOption func(*providerOptions)

// WithSpanProcessor adds a span processor, replacing the configured exporter.
// Tests use it with tracetest.SpanRecorder.
func WithSpanProcessor(sp sdktrace.SpanProcessor) ProviderOption {
	return func(o *providerOptions) {
		o.spanProcessors = append(o.spanProcessors, sp)
	}
}

// WithMetricReader attaches a metric reader to the meter provider
func WithMetricReader(r sdkmetric.Reader) ProviderOption {
	return func(o *providerOptions) {
		o.metricReaders = append(o.metricReaders, r)
	}
}

// WithStdoutWriter redirects the stdout exporter
func WithStdoutWriter(w io.Writer) ProviderOption {
	return func(o *providerOptions) {
		o.stdoutWriter = w
	}
}

// WithServiceVersion sets the service.version resource attribute
func WithServiceVersion(version string) ProviderOption {
	return func(o *providerOptions) {
		o.serviceVersion = version
	}
}

// WithProviderLogger sets the logger for exporter setup messages
func WithProviderLogger(logger core.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// WithoutGlobalRegistration keeps the providers out of the otel globals
func WithoutGlobalRegistration() ProviderOption {
	return func(o *providerOptions) {
		o.setGlobal = false
	}
}

// NewProvider creates the tracer and meter providers described by cfg.
// serviceName is used when cfg.ServiceName is empty.
func NewProvider(ctx context.Context, cfg core.TelemetryConfig, serviceName string, opts ...ProviderOption) (*Provider, error) {
	o := &providerOptions{
		stdoutWriter:   os.Stdout,
		serviceVersion: "dev",
		setGlobal:      true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = &core.NoOpLogger{}
	}

	if cfg.ServiceName != "" {
		serviceName = cfg.ServiceName
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(o.serviceVersion),
		attribute.String("eureka.client", "go"),
		semconv.K8SPodNameKey.String(os.Getenv("HOSTNAME")),
		attribute.String("k8s.pod.ip", os.Getenv(core.EnvPodIP)),
	)

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRate(cfg.SamplingRate)))),
	}
	if len(o.spanProcessors) > 0 {
		for _, sp := range o.spanProcessors {
			traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(sp))
		}
	} else {
		exporter, err := newSpanExporter(ctx, cfg, o.stdoutWriter)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range o.metricReaders {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)

	if o.setGlobal {
		otel.SetTracerProvider(tracerProvider)
		otel.SetMeterProvider(meterProvider)
		otel.SetTextMapPropagator(Propagator())
	}

	o.logger.Info("Telemetry initialized", map[string]interface{}{
		"exporter":      cfg.Exporter,
		"endpoint":      cfg.Endpoint,
		"service_name":  serviceName,
		"sampling_rate": samplingRate(cfg.SamplingRate),
	})

	return &Provider{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		tracer:         tracerProvider.Tracer(instrumentationName),
		instruments:    NewMetricInstruments(meterProvider.Meter(instrumentationName)),
		logger:         o.logger,
	}, nil
}

func newSpanExporter(ctx context.Context, cfg core.TelemetryConfig, stdout io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case core.ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(stdout))
	case core.ExporterOTLP, "":
		endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	default:
		return nil, fmt.Errorf("unsupported exporter %q: %w", cfg.Exporter, core.ErrInvalidConfiguration)
	}
}

// Propagator returns the W3C trace context and baggage propagator
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func samplingRate(rate float64) float64 {
	if rate <= 0 || rate > 1 {
		return 1.0
	}
	return rate
}

// TracerProvider exposes the SDK tracer provider, e.g. for otelhttp
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider exposes the SDK meter provider
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// StartSpan starts a span as a child of any span in ctx
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records value under name. Names ending in "_ms" are
// recorded as histograms, everything else as counters.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	var err error
	ctx := context.Background()
	if strings.HasSuffix(name, "_ms") {
		err = p.instruments.RecordHistogram(ctx, name, value, metric.WithAttributes(attrs...))
	} else {
		err = p.instruments.RecordCounter(ctx, name, value, metric.WithAttributes(attrs...))
	}
	if err != nil {
		p.logger.Warn("Failed to record metric", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
	}
}

// Shutdown flushes and stops both providers
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// otelSpan adapts trace.Span to core.Span
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case []string:
		s.span.SetAttributes(attribute.StringSlice(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
