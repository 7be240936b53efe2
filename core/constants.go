package core

import "time"

// Environment Variables - registry client
const (
	// Registry servers
	EnvServiceURL          = "EUREKA_SERVICE_URL"           // Comma separated registry base URLs, in failover order
	EnvServicePath         = "EUREKA_SERVICE_PATH"          // Path of the apps resource under each base URL
	EnvPollIntervalSeconds = "EUREKA_POLL_INTERVAL_SECONDS" // Heartbeat interval
	EnvRequestTimeoutMs    = "EUREKA_REQUEST_TIMEOUT_MS"    // Per-endpoint attempt timeout

	// Local instance
	EnvInstanceApp      = "EUREKA_INSTANCE_APP"
	EnvInstanceID       = "EUREKA_INSTANCE_ID"
	EnvInstanceIP       = "EUREKA_INSTANCE_IP"
	EnvInstanceHostName = "EUREKA_INSTANCE_HOSTNAME"
	EnvInstancePort     = "EUREKA_INSTANCE_PORT"
	EnvInstanceStatus   = "EUREKA_INSTANCE_STATUS"
	EnvPodIP            = "POD_IP" // Downward API address, used when no IP is configured

	// Lease status mirror
	EnvLeaseRedisURL       = "EUREKA_LEASE_REDIS_URL"
	EnvRedisURL            = "REDIS_URL"
	EnvLeaseNamespace      = "EUREKA_LEASE_NAMESPACE"
	EnvLeaseSummarySeconds = "EUREKA_LEASE_SUMMARY_INTERVAL_SECONDS"

	// Logging
	EnvLogLevel  = "EUREKA_LOG_LEVEL"
	EnvLogFormat = "EUREKA_LOG_FORMAT"
	EnvLogOutput = "EUREKA_LOG_OUTPUT"

	// Telemetry
	EnvTelemetryEnabled  = "EUREKA_TELEMETRY_ENABLED"
	EnvTelemetryExporter = "EUREKA_TELEMETRY_EXPORTER"
	EnvOTLPEndpoint      = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTELServiceName   = "OTEL_SERVICE_NAME"
	EnvMetricsAddr       = "EUREKA_METRICS_ADDR"

	// Environment detection
	EnvKubernetesHost = "KUBERNETES_SERVICE_HOST"
)

// Registry defaults
const (
	DefaultServiceURL          = "http://127.0.0.1:8761"
	DefaultServicePath         = "/eureka/apps"
	DefaultPollIntervalSeconds = 30
	DefaultRequestTimeout      = 3000 * time.Millisecond
)

// Instance defaults
const (
	DefaultInstancePort       = 39805
	DefaultSecurePort         = 443
	DefaultCountryID          = 1
	DefaultDataCenterClass    = "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo"
	DefaultDataCenterName     = "MyOwn"
	DefaultRenewalIntervalSec = 10
	DefaultLeaseDurationSec   = 30
	DefaultStatusPagePath     = "/actuator/info"
	DefaultHealthCheckPath    = "/actuator/health"
	MetadataManagementPort    = "management.port"
)

// Lease defaults
const (
	DefaultSummaryInterval = 5 * time.Minute
	DefaultLeaseNamespace  = "eureka"
)

// Telemetry exporters
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)
