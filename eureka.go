// Package eureka registers a service instance with Eureka-compatible
// registry servers and keeps its lease alive.
//
// It is the main entry point: New loads configuration, builds the instance
// descriptor and wires the registry client and the lease scheduler.
// Users needing finer control can import the building blocks directly:
//   - github.com/itsneelabh/eureka/core - configuration, logging, errors
//   - github.com/itsneelabh/eureka/pkg/instance - instance descriptors
//   - github.com/itsneelabh/eureka/pkg/registry - registry operations with failover
//   - github.com/itsneelabh/eureka/pkg/lease - heartbeat scheduling
//   - github.com/itsneelabh/eureka/pkg/telemetry - OpenTelemetry wiring
package eureka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/itsneelabh/eureka/core"
	"github.com/itsneelabh/eureka/pkg/instance"
	"github.com/itsneelabh/eureka/pkg/lease"
	"github.com/itsneelabh/eureka/pkg/registry"
	"github.com/itsneelabh/eureka/pkg/telemetry"
)

// Re-export core types
type (
	// Configuration types
	Config          = core.Config
	Option          = core.Option
	EurekaConfig    = core.EurekaConfig
	InstanceConfig  = core.InstanceConfig
	LeaseConfig     = core.LeaseConfig
	LoggingConfig   = core.LoggingConfig
	TelemetryConfig = core.TelemetryConfig
	PortConfig      = core.PortConfig

	// Interfaces
	Logger    = core.Logger
	Telemetry = core.Telemetry

	// Instance and registry types
	Descriptor   = instance.Descriptor
	Status       = instance.Status
	Client       = registry.Client
	Applications = registry.Applications
	Application  = registry.Application
	StatusError  = registry.StatusError

	// Lease types
	Scheduler      = lease.Scheduler
	HeartbeatStats = lease.HeartbeatStats
	LeaseStatus    = lease.LeaseStatus
	StatusSink     = lease.StatusSink
)

// Re-export constants
const (
	StatusUp           = instance.StatusUp
	StatusDown         = instance.StatusDown
	StatusStarting     = instance.StatusStarting
	StatusOutOfService = instance.StatusOutOfService
	StatusUnknown      = instance.StatusUnknown
)

// Re-export core functions
var (
	NewConfig     = core.NewConfig
	DefaultConfig = core.DefaultConfig
	NewPort       = core.NewPort

	// Configuration options
	WithServiceURLs       = core.WithServiceURLs
	WithServicePath       = core.WithServicePath
	WithPollInterval      = core.WithPollInterval
	WithRequestTimeout    = core.WithRequestTimeout
	WithInstance          = core.WithInstance
	WithApp               = core.WithApp
	WithLogLevel          = core.WithLogLevel
	WithLogFormat         = core.WithLogFormat
	WithTelemetry         = core.WithTelemetry
	WithLeaseStatusRedis  = core.WithLeaseStatusRedis
	WithMetricsAddr       = core.WithMetricsAddr
	WithConfigFile        = core.WithConfigFile
	DecodeApplications    = registry.DecodeApplications
	DecodeApplication     = registry.DecodeApplication
	DecodeInstance        = registry.DecodeInstance
	IsUnreachable         = core.IsUnreachable
	IsRejected            = core.IsRejected
	IsConfigurationError  = core.IsConfigurationError
	ErrRegistrationFailed = core.ErrRegistrationFailed
)

// dependencies are collaborators that replace the ones built from configuration
type dependencies struct {
	logger      core.Logger
	doer        registry.Doer
	addresses   instance.AddressSource
	sink        lease.StatusSink
	tickHandler func(ok bool)
}

// Dependency injects a collaborator into NewFromConfig
type Dependency func(*dependencies)

// WithLogger replaces the logger built from the logging configuration
func WithLogger(logger core.Logger) Dependency {
	return func(d *dependencies) {
		d.logger = logger
	}
}

// WithHTTPClient replaces the traced HTTP client used for registry requests
func WithHTTPClient(doer registry.Doer) Dependency {
	return func(d *dependencies) {
		d.doer = doer
	}
}

// WithAddressSource replaces interface enumeration when resolving the instance IP
func WithAddressSource(addrs instance.AddressSource) Dependency {
	return func(d *dependencies) {
		d.addresses = addrs
	}
}

// WithStatusSink replaces the Redis lease status mirror
func WithStatusSink(sink lease.StatusSink) Dependency {
	return func(d *dependencies) {
		d.sink = sink
	}
}

// WithTickHandler observes every heartbeat outcome, e.g. to re-register
// after the registry evicted the instance
func WithTickHandler(fn func(ok bool)) Dependency {
	return func(d *dependencies) {
		d.tickHandler = fn
	}
}

// Registrar owns the registration of one instance: it registers on Start,
// renews the lease while running and deregisters on Stop.
type Registrar struct {
	config    *core.Config
	logger    core.Logger
	provider  *telemetry.Provider
	client    *registry.Client
	scheduler *lease.Scheduler
	sink      lease.StatusSink
	ownsSink  bool

	metrics         *telemetry.PrometheusMetrics
	metricsServer   *http.Server
	metricsListener net.Listener

	mu        sync.Mutex
	started   bool
	closeOnce sync.Once
	closeErr  error
}

// New builds a Registrar from defaults, environment and options
func New(ctx context.Context, opts ...Option) (*Registrar, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	return NewFromConfig(ctx, cfg)
}

// NewFromConfig builds a Registrar from a complete configuration
func NewFromConfig(ctx context.Context, cfg *core.Config, deps ...Dependency) (*Registrar, error) {
	if cfg == nil {
		return nil, core.ConfigError("eureka.NewFromConfig", "configuration is required", core.ErrMissingConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Instance == nil || strings.TrimSpace(cfg.Instance.App) == "" {
		return nil, core.ConfigError("eureka.NewFromConfig", "instance app name is required", core.ErrMissingConfiguration)
	}

	d := &dependencies{}
	for _, dep := range deps {
		dep(d)
	}

	serviceName := serviceNameFor(cfg)
	r := &Registrar{config: cfg, logger: d.logger}
	if r.logger == nil {
		r.logger = core.NewProductionLogger(cfg.Logging, serviceName)
	}

	var tel core.Telemetry = &core.NoOpTelemetry{}
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, serviceName,
			telemetry.WithProviderLogger(r.logger),
			telemetry.WithServiceVersion(Version),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		r.provider = provider
		tel = provider
	}

	if cfg.Telemetry.MetricsAddr != "" {
		if err := r.serveMetrics(cfg.Telemetry.MetricsAddr); err != nil {
			_ = r.Close(context.Background())
			return nil, err
		}
		tel = telemetry.Combine(tel, r.metrics)
	}

	if err := r.wire(cfg, d, tel); err != nil {
		_ = r.Close(context.Background())
		return nil, err
	}

	r.logger.Info("Registry client configured", map[string]interface{}{
		"app":             r.client.App(),
		"instance_id":     r.client.InstanceID(),
		"registry_urls":   r.client.Endpoints().URLs(),
		"poll_interval":   cfg.PollInterval().String(),
		"request_timeout": cfg.RequestTimeout().String(),
		"telemetry":       cfg.Telemetry.Enabled,
		"metrics_addr":    r.MetricsAddr(),
		"status_sink":     r.sink != nil,
	})
	return r, nil
}

func (r *Registrar) wire(cfg *core.Config, d *dependencies, tel core.Telemetry) error {
	doer := d.doer
	if doer == nil {
		doer = telemetry.NewTracedHTTPClient(nil)
	}

	endpoints, err := registry.NewEndpointSet(cfg.Eureka.ServiceURLs, cfg.Eureka.ServicePath,
		registry.WithDoer(doer),
		registry.WithAttemptTimeout(cfg.RequestTimeout()),
		registry.WithSetLogger(r.logger),
		registry.WithSetTelemetry(tel),
	)
	if err != nil {
		return err
	}

	buildOpts := []instance.BuildOption{instance.WithLogger(r.logger)}
	if d.addresses != nil {
		buildOpts = append(buildOpts, instance.WithAddressSource(d.addresses))
	}
	desc, err := instance.Build(cfg.Instance, buildOpts...)
	if err != nil {
		return err
	}

	r.client, err = registry.NewClient(endpoints, desc,
		registry.WithLogger(r.logger),
		registry.WithTelemetry(tel),
	)
	if err != nil {
		return err
	}

	r.sink = d.sink
	if r.sink == nil && cfg.Lease.StatusRedisURL != "" {
		sink, err := lease.NewRedisStatusSink(cfg.Lease.StatusRedisURL, cfg.Lease.StatusNamespace, r.logger)
		if err != nil {
			// The mirror is optional; registration proceeds without it.
			r.logger.Warn("Lease status mirror unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			r.sink = sink
			r.ownsSink = true
		}
	}

	leaseOpts := []lease.Option{
		lease.WithLogger(r.logger),
		lease.WithTelemetry(tel),
		lease.WithSummaryInterval(cfg.SummaryInterval()),
	}
	if r.sink != nil {
		leaseOpts = append(leaseOpts, lease.WithStatusSink(r.sink, r.client.LeaseDuration()))
	}
	if d.tickHandler != nil {
		leaseOpts = append(leaseOpts, lease.WithTickHandler(d.tickHandler))
	}

	r.scheduler, err = lease.NewScheduler(r.client, cfg.PollInterval(), leaseOpts...)
	return err
}

// serveMetrics exposes the Prometheus collectors on addr/metrics until Close
func (r *Registrar) serveMetrics(addr string) error {
	registry := prometheus.NewRegistry()
	r.metrics = telemetry.NewPrometheusMetrics(registry, registry, r.logger)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return &core.ClientError{
			Op:   "eureka.serveMetrics",
			Kind: core.KindConfig,
			ID:   addr,
			Err:  fmt.Errorf("%w: listen: %w", core.ErrInvalidConfiguration, err),
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.metrics.Handler())
	r.metricsListener = listener
	r.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("Metrics server stopped", map[string]interface{}{
				"addr":  listener.Addr().String(),
				"error": err.Error(),
			})
		}
	}()

	r.logger.Info("Serving Prometheus metrics", map[string]interface{}{
		"addr": listener.Addr().String(),
		"path": "/metrics",
	})
	return nil
}

func serviceNameFor(cfg *core.Config) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	return strings.ToLower(strings.TrimSpace(cfg.Instance.App))
}

// Config returns the configuration the Registrar was built from
func (r *Registrar) Config() *core.Config {
	return r.config
}

// Client returns the registry client, for queries and status updates
func (r *Registrar) Client() *registry.Client {
	return r.client
}

// Scheduler returns the lease scheduler
func (r *Registrar) Scheduler() *lease.Scheduler {
	return r.scheduler
}

// Instance returns the current instance descriptor
func (r *Registrar) Instance() *instance.Descriptor {
	return r.client.Instance()
}

// MetricsAddr returns the address the metrics server listens on, or "" when
// metrics are not served
func (r *Registrar) MetricsAddr() string {
	if r.metricsListener == nil {
		return ""
	}
	return r.metricsListener.Addr().String()
}

// Logger returns the logger shared by all components
func (r *Registrar) Logger() core.Logger {
	return r.logger
}

// Start registers the instance and, once the registry accepted it, starts
// renewing the lease. The lease outlives ctx; use Stop to end it.
func (r *Registrar) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return &core.ClientError{
			Op:   "eureka.Start",
			Kind: core.KindState,
			ID:   r.client.InstanceID(),
			Err:  core.ErrAlreadyStarted,
		}
	}

	if !r.client.Register(ctx) {
		return &core.ClientError{
			Op:      "eureka.Start",
			Kind:    core.KindRegistry,
			ID:      r.client.InstanceID(),
			Message: "registry did not accept the instance",
			Err:     core.ErrRegistrationFailed,
		}
	}

	if err := r.scheduler.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	r.started = true

	r.logger.Info("Instance registered", map[string]interface{}{
		"app":         r.client.App(),
		"instance_id": r.client.InstanceID(),
	})
	return nil
}

// Stop ends the lease, deregisters the instance and releases telemetry and
// Redis resources. Calling Stop again only repeats the resource release,
// which is a no-op.
func (r *Registrar) Stop(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.started = false
	r.mu.Unlock()

	var errs []error
	if started {
		r.scheduler.Stop()

		status, err := r.client.Deregister(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			r.logger.Info("Instance deregistered", map[string]interface{}{
				"app":         r.client.App(),
				"instance_id": r.client.InstanceID(),
				"status_code": status,
			})
		}
	}

	if err := r.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases telemetry, metrics and Redis resources without touching the
// registration. It is safe to call more than once.
func (r *Registrar) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		var errs []error
		if r.sink != nil && r.ownsSink {
			if err := r.sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close lease status sink: %w", err))
			}
		}
		if r.metricsServer != nil {
			if err := r.metricsServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			}
		}
		if r.provider != nil {
			if err := r.provider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

// Run starts the Registrar and blocks until ctx is done, then stops it
// within shutdownTimeout
func (r *Registrar) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return r.Stop(stopCtx)
}
