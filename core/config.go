package core

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the registry client.
// It supports layered configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables
//  3. Configuration file (JSON or YAML, via WithConfigFile)
//  4. Functional options (highest priority)
//
// The configuration automatically detects the execution environment (Kubernetes vs local)
// and adjusts defaults accordingly.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithServiceURLs("http://eureka-a:8761", "http://eureka-b:8761"),
//	    WithInstance(&InstanceConfig{App: "orders", IPAddr: "10.0.0.5", Port: NewPort(8080)}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Registry servers
	Eureka EurekaConfig `json:"eureka" yaml:"eureka"`

	// Local instance; nil until configured
	Instance *InstanceConfig `json:"instance,omitempty" yaml:"instance,omitempty"`

	// Lease scheduler configuration
	Lease LeaseConfig `json:"lease" yaml:"lease"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// EurekaConfig describes the registry servers and request behaviour.
// ServiceURLs are tried in order on every request.
type EurekaConfig struct {
	ServiceURLs         []string `json:"serviceUrl" yaml:"serviceUrl"`
	ServicePath         string   `json:"servicePath" yaml:"servicePath"`
	PollIntervalSeconds int      `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`
	RequestTimeoutMs    int      `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
}

// InstanceConfig is the raw, user supplied description of the local instance.
// Empty fields are defaulted when the descriptor is built.
type InstanceConfig struct {
	App              string            `json:"app" yaml:"app"`
	InstanceID       string            `json:"instanceId,omitempty" yaml:"instanceId,omitempty"`
	HostName         string            `json:"hostName,omitempty" yaml:"hostName,omitempty"`
	IPAddr           string            `json:"ipAddr,omitempty" yaml:"ipAddr,omitempty"`
	Status           string            `json:"status,omitempty" yaml:"status,omitempty"`
	OverriddenStatus string            `json:"overriddenStatus,omitempty" yaml:"overriddenStatus,omitempty"`
	Port             *PortConfig       `json:"port,omitempty" yaml:"port,omitempty"`
	SecurePort       *PortConfig       `json:"securePort,omitempty" yaml:"securePort,omitempty"`
	HomePageURL      string            `json:"homePageUrl,omitempty" yaml:"homePageUrl,omitempty"`
	StatusPageURL    string            `json:"statusPageUrl,omitempty" yaml:"statusPageUrl,omitempty"`
	HealthCheckURL   string            `json:"healthCheckUrl,omitempty" yaml:"healthCheckUrl,omitempty"`
	VIPAddress       string            `json:"vipAddress,omitempty" yaml:"vipAddress,omitempty"`
	SecureVIPAddress string            `json:"secureVipAddress,omitempty" yaml:"secureVipAddress,omitempty"`
	CountryID        int               `json:"countryId,omitempty" yaml:"countryId,omitempty"`
	DataCenterInfo   *DataCenterConfig `json:"dataCenterInfo,omitempty" yaml:"dataCenterInfo,omitempty"`
	LeaseInfo        *LeaseInfoConfig  `json:"leaseInfo,omitempty" yaml:"leaseInfo,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DataCenterConfig identifies the data center the instance runs in
type DataCenterConfig struct {
	Class string `json:"@class" yaml:"@class"`
	Name  string `json:"name" yaml:"name"`
}

// LeaseInfoConfig carries the lease timings advertised to the registry
type LeaseInfoConfig struct {
	RenewalIntervalInSecs int `json:"renewalIntervalInSecs,omitempty" yaml:"renewalIntervalInSecs,omitempty"`
	DurationInSecs        int `json:"durationInSecs,omitempty" yaml:"durationInSecs,omitempty"`
}

// PortConfig is a port number with its enabled flag. It decodes from a bare
// number, a numeric string or the registry object form {"$": 8080, "@enabled": "true"}.
// A nil Enabled means the default for the port kind applies.
type PortConfig struct {
	Value   int
	Enabled *bool
}

// NewPort returns an enabled port
func NewPort(value int) *PortConfig {
	enabled := true
	return &PortConfig{Value: value, Enabled: &enabled}
}

// UnmarshalJSON accepts the bare and object port forms
func (p *PortConfig) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		return p.fromMap(raw)
	}
	var scalar interface{}
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	value, err := portNumber(scalar)
	if err != nil {
		return err
	}
	p.Value = value
	enabled := true
	p.Enabled = &enabled
	return nil
}

// UnmarshalYAML accepts the bare and object port forms
func (p *PortConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var raw map[string]interface{}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		return p.fromMap(raw)
	}
	value, err := portNumber(node.Value)
	if err != nil {
		return err
	}
	p.Value = value
	enabled := true
	p.Enabled = &enabled
	return nil
}

// MarshalJSON writes the object form
func (p PortConfig) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"$": p.Value}
	if p.Enabled != nil {
		out["@enabled"] = strconv.FormatBool(*p.Enabled)
	}
	return json.Marshal(out)
}

func (p *PortConfig) fromMap(raw map[string]interface{}) error {
	value, err := portNumber(raw["$"])
	if err != nil {
		return err
	}
	p.Value = value
	p.Enabled = nil
	if v, ok := raw["@enabled"]; ok {
		enabled, err := flexibleBool(v)
		if err != nil {
			return err
		}
		p.Enabled = &enabled
	}
	return nil
}

func portNumber(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		port, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("invalid port %q: %w", n, ErrInvalidConfiguration)
		}
		return port, nil
	case nil:
		return 0, fmt.Errorf("port value missing: %w", ErrInvalidConfiguration)
	default:
		return 0, fmt.Errorf("invalid port %v: %w", v, ErrInvalidConfiguration)
	}
}

func flexibleBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("invalid enabled flag %q: %w", b, ErrInvalidConfiguration)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("invalid enabled flag %v: %w", v, ErrInvalidConfiguration)
	}
}

// LeaseConfig contains lease scheduler settings beyond the poll interval.
// StatusRedisURL enables the Redis lease status mirror when set.
type LeaseConfig struct {
	SummaryIntervalSeconds int    `json:"summaryIntervalSeconds" yaml:"summaryIntervalSeconds"`
	StatusRedisURL         string `json:"statusRedisUrl,omitempty" yaml:"statusRedisUrl,omitempty"`
	StatusNamespace        string `json:"statusNamespace" yaml:"statusNamespace"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
// In Kubernetes environments, JSON format is recommended for log aggregation.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
}

// TelemetryConfig contains observability configuration for metrics and distributed tracing.
// This is an optional module - telemetry is only initialized when Enabled=true.
// Exporter "otlp" sends to Endpoint over gRPC, "stdout" prints spans locally.
// MetricsAddr serves Prometheus metrics on /metrics independently of Enabled.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Exporter     string  `json:"exporter" yaml:"exporter"`
	Endpoint     string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	ServiceName  string  `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	Insecure     bool    `json:"insecure" yaml:"insecure"`
	SamplingRate float64 `json:"samplingRate" yaml:"samplingRate"`
	MetricsAddr  string  `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`
}

// Option is a functional option for configuring the client.
// Options are applied in order and can return an error if the configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a fresh configuration with the registry defaults.
// Each call returns an independent value; nothing is shared between calls.
func DefaultConfig() *Config {
	cfg := &Config{
		Eureka: EurekaConfig{
			ServiceURLs:         []string{DefaultServiceURL},
			ServicePath:         DefaultServicePath,
			PollIntervalSeconds: DefaultPollIntervalSeconds,
			RequestTimeoutMs:    int(DefaultRequestTimeout / time.Millisecond),
		},
		Lease: LeaseConfig{
			SummaryIntervalSeconds: int(DefaultSummaryInterval / time.Second),
			StatusNamespace:        DefaultLeaseNamespace,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     ExporterOTLP,
			Insecure:     true,
			SamplingRate: 1.0,
		},
	}

	// Detect environment and adjust defaults
	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment adjusts defaults for the detected environment.
// Kubernetes (KUBERNETES_SERVICE_HOST set) switches logs to JSON.
func (c *Config) DetectEnvironment() {
	if os.Getenv(EnvKubernetesHost) != "" {
		c.Logging.Format = "json" // Structured logs for K8s
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are overridden by
// configuration files and functional options.
//
// Returns an error if numeric variables contain invalid values.
func (c *Config) LoadFromEnv() error {
	// Registry settings
	if v := os.Getenv(EnvServiceURL); v != "" {
		c.Eureka.ServiceURLs = parseStringList(v)
	}
	if v := os.Getenv(EnvServicePath); v != "" {
		c.Eureka.ServicePath = v
	}
	if v := os.Getenv(EnvPollIntervalSeconds); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ConfigError("Config.LoadFromEnv", fmt.Sprintf("invalid %s: %q", EnvPollIntervalSeconds, v), ErrInvalidConfiguration)
		}
		c.Eureka.PollIntervalSeconds = n
	}
	if v := os.Getenv(EnvRequestTimeoutMs); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ConfigError("Config.LoadFromEnv", fmt.Sprintf("invalid %s: %q", EnvRequestTimeoutMs, v), ErrInvalidConfiguration)
		}
		c.Eureka.RequestTimeoutMs = n
	}

	// Instance settings
	if err := c.loadInstanceFromEnv(); err != nil {
		return err
	}

	// Lease settings
	if v := os.Getenv(EnvLeaseRedisURL); v != "" {
		c.Lease.StatusRedisURL = v
	} else if v := os.Getenv(EnvRedisURL); v != "" {
		c.Lease.StatusRedisURL = v
	}
	if v := os.Getenv(EnvLeaseNamespace); v != "" {
		c.Lease.StatusNamespace = v
	}
	if v := os.Getenv(EnvLeaseSummarySeconds); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ConfigError("Config.LoadFromEnv", fmt.Sprintf("invalid %s: %q", EnvLeaseSummarySeconds, v), ErrInvalidConfiguration)
		}
		c.Lease.SummaryIntervalSeconds = n
	}

	// Logging settings
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		c.Logging.Output = v
	}

	// Telemetry settings
	if v := os.Getenv(EnvTelemetryEnabled); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvTelemetryExporter); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv(EnvOTELServiceName); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Telemetry.MetricsAddr = v
	}

	return nil
}

func (c *Config) loadInstanceFromEnv() error {
	vars := map[string]string{}
	for _, name := range []string{EnvInstanceApp, EnvInstanceID, EnvInstanceIP, EnvInstanceHostName, EnvInstancePort, EnvInstanceStatus} {
		if v := os.Getenv(name); v != "" {
			vars[name] = v
		}
	}
	if len(vars) == 0 {
		return nil
	}

	if c.Instance == nil {
		c.Instance = &InstanceConfig{}
	}
	if v, ok := vars[EnvInstanceApp]; ok {
		c.Instance.App = v
	}
	if v, ok := vars[EnvInstanceID]; ok {
		c.Instance.InstanceID = v
	}
	if v, ok := vars[EnvInstanceIP]; ok {
		c.Instance.IPAddr = v
	}
	if v, ok := vars[EnvInstanceHostName]; ok {
		c.Instance.HostName = v
	}
	if v, ok := vars[EnvInstanceStatus]; ok {
		c.Instance.Status = strings.ToUpper(v)
	}
	if v, ok := vars[EnvInstancePort]; ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ConfigError("Config.LoadFromEnv", fmt.Sprintf("invalid %s: %q", EnvInstancePort, v), ErrInvalidConfiguration)
		}
		c.Instance.Port = NewPort(port)
	}
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file and merges it
// over the current values. Only the fields present in the file change.
//
// Example YAML:
//
//	eureka:
//	  serviceUrl:
//	    - http://eureka-a:8761
//	    - http://eureka-b:8761
//	instance:
//	  app: orders
//	  port: 8080
func (c *Config) LoadFromFile(path string) error {
	// Clean the path to prevent directory traversal attacks
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(filepath.Clean(cleanPath)) // nosec G304 -- path is validated
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	fileCfg := &Config{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, fileCfg); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	*c = *MergeConfig(c, fileCfg)
	return nil
}

// MergeConfig returns a new Config holding defaults overlaid with the
// non-zero values of overrides. Neither argument is modified and the result
// shares no slices, maps or pointers with them.
//
// Boolean overrides only apply when true. Instance metadata maps are unioned
// with override entries winning.
func MergeConfig(defaults, overrides *Config) *Config {
	out := defaults.Clone()
	if out == nil {
		out = &Config{}
	}
	if overrides == nil {
		return out
	}

	// Registry
	if len(overrides.Eureka.ServiceURLs) > 0 {
		out.Eureka.ServiceURLs = append([]string(nil), overrides.Eureka.ServiceURLs...)
	}
	mergeString(&out.Eureka.ServicePath, overrides.Eureka.ServicePath)
	mergeInt(&out.Eureka.PollIntervalSeconds, overrides.Eureka.PollIntervalSeconds)
	mergeInt(&out.Eureka.RequestTimeoutMs, overrides.Eureka.RequestTimeoutMs)

	out.Instance = MergeInstanceConfig(out.Instance, overrides.Instance)

	// Lease
	mergeInt(&out.Lease.SummaryIntervalSeconds, overrides.Lease.SummaryIntervalSeconds)
	mergeString(&out.Lease.StatusRedisURL, overrides.Lease.StatusRedisURL)
	mergeString(&out.Lease.StatusNamespace, overrides.Lease.StatusNamespace)

	// Logging
	mergeString(&out.Logging.Level, overrides.Logging.Level)
	mergeString(&out.Logging.Format, overrides.Logging.Format)
	mergeString(&out.Logging.Output, overrides.Logging.Output)

	// Telemetry
	if overrides.Telemetry.Enabled {
		out.Telemetry.Enabled = true
	}
	if overrides.Telemetry.Insecure {
		out.Telemetry.Insecure = true
	}
	mergeString(&out.Telemetry.Exporter, overrides.Telemetry.Exporter)
	mergeString(&out.Telemetry.Endpoint, overrides.Telemetry.Endpoint)
	mergeString(&out.Telemetry.ServiceName, overrides.Telemetry.ServiceName)
	mergeString(&out.Telemetry.MetricsAddr, overrides.Telemetry.MetricsAddr)
	if overrides.Telemetry.SamplingRate > 0 {
		out.Telemetry.SamplingRate = overrides.Telemetry.SamplingRate
	}

	return out
}

// MergeInstanceConfig overlays the non-zero fields of overrides onto a copy of base.
// Either argument may be nil.
func MergeInstanceConfig(base, overrides *InstanceConfig) *InstanceConfig {
	if overrides == nil {
		return base.Clone()
	}
	if base == nil {
		return overrides.Clone()
	}

	out := base.Clone()
	o := overrides.Clone()
	mergeString(&out.App, o.App)
	mergeString(&out.InstanceID, o.InstanceID)
	mergeString(&out.HostName, o.HostName)
	mergeString(&out.IPAddr, o.IPAddr)
	mergeString(&out.Status, o.Status)
	mergeString(&out.OverriddenStatus, o.OverriddenStatus)
	mergeString(&out.HomePageURL, o.HomePageURL)
	mergeString(&out.StatusPageURL, o.StatusPageURL)
	mergeString(&out.HealthCheckURL, o.HealthCheckURL)
	mergeString(&out.VIPAddress, o.VIPAddress)
	mergeString(&out.SecureVIPAddress, o.SecureVIPAddress)
	mergeInt(&out.CountryID, o.CountryID)
	if o.Port != nil {
		out.Port = o.Port
	}
	if o.SecurePort != nil {
		out.SecurePort = o.SecurePort
	}
	if o.DataCenterInfo != nil {
		out.DataCenterInfo = o.DataCenterInfo
	}
	if o.LeaseInfo != nil {
		if out.LeaseInfo == nil {
			out.LeaseInfo = o.LeaseInfo
		} else {
			mergeInt(&out.LeaseInfo.RenewalIntervalInSecs, o.LeaseInfo.RenewalIntervalInSecs)
			mergeInt(&out.LeaseInfo.DurationInSecs, o.LeaseInfo.DurationInSecs)
		}
	}
	if len(o.Metadata) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]string, len(o.Metadata))
		}
		for k, v := range o.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Eureka.ServiceURLs = append([]string(nil), c.Eureka.ServiceURLs...)
	out.Instance = c.Instance.Clone()
	return &out
}

// Clone returns a deep copy of the instance configuration
func (ic *InstanceConfig) Clone() *InstanceConfig {
	if ic == nil {
		return nil
	}
	out := *ic
	if ic.Port != nil {
		out.Port = ic.Port.clone()
	}
	if ic.SecurePort != nil {
		out.SecurePort = ic.SecurePort.clone()
	}
	if ic.DataCenterInfo != nil {
		dc := *ic.DataCenterInfo
		out.DataCenterInfo = &dc
	}
	if ic.LeaseInfo != nil {
		li := *ic.LeaseInfo
		out.LeaseInfo = &li
	}
	if ic.Metadata != nil {
		out.Metadata = make(map[string]string, len(ic.Metadata))
		for k, v := range ic.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func (p *PortConfig) clone() *PortConfig {
	out := &PortConfig{Value: p.Value}
	if p.Enabled != nil {
		enabled := *p.Enabled
		out.Enabled = &enabled
	}
	return out
}

// PollInterval returns the heartbeat interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Eureka.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-endpoint attempt timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Eureka.RequestTimeoutMs) * time.Millisecond
}

// SummaryInterval returns how often the lease scheduler logs heartbeat statistics
func (c *Config) SummaryInterval() time.Duration {
	return time.Duration(c.Lease.SummaryIntervalSeconds) * time.Second
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig() but can also be called
// manually after modifying configuration.
//
// The instance section is validated when the descriptor is built, not here.
func (c *Config) Validate() error {
	if len(c.Eureka.ServiceURLs) == 0 {
		return ConfigError("Config.Validate", "at least one registry service URL is required", ErrMissingConfiguration)
	}
	for _, raw := range c.Eureka.ServiceURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ConfigError("Config.Validate", fmt.Sprintf("invalid registry service URL: %q", raw), ErrInvalidConfiguration)
		}
	}

	if c.Eureka.PollIntervalSeconds <= 0 {
		return ConfigError("Config.Validate", fmt.Sprintf("poll interval must be positive: %d", c.Eureka.PollIntervalSeconds), ErrInvalidConfiguration)
	}

	if c.Eureka.RequestTimeoutMs <= 0 {
		return ConfigError("Config.Validate", fmt.Sprintf("request timeout must be positive: %d", c.Eureka.RequestTimeoutMs), ErrInvalidConfiguration)
	}

	if c.Lease.SummaryIntervalSeconds < 0 {
		return ConfigError("Config.Validate", fmt.Sprintf("summary interval must not be negative: %d", c.Lease.SummaryIntervalSeconds), ErrInvalidConfiguration)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return ConfigError("Config.Validate", fmt.Sprintf("unsupported log format: %q", c.Logging.Format), ErrInvalidConfiguration)
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case ExporterOTLP:
			if c.Telemetry.Endpoint == "" {
				return ConfigError("Config.Validate", "telemetry endpoint is required for the otlp exporter", ErrMissingConfiguration)
			}
		case ExporterStdout:
		default:
			return ConfigError("Config.Validate", fmt.Sprintf("unsupported telemetry exporter: %q", c.Telemetry.Exporter), ErrInvalidConfiguration)
		}
	}

	return nil
}

// Helper functions

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// parseStringList splits a comma-separated string into a slice of strings.
// Whitespace is trimmed from each element, and empty strings are filtered out.
// Example: "a, b, c" -> ["a", "b", "c"]
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithServiceURLs sets the registry base URLs in failover order
func WithServiceURLs(urls ...string) Option {
	return func(c *Config) error {
		if len(urls) == 0 {
			return ConfigError("WithServiceURLs", "at least one registry service URL is required", ErrMissingConfiguration)
		}
		c.Eureka.ServiceURLs = append([]string(nil), urls...)
		return nil
	}
}

// WithServicePath sets the path of the apps resource, "/eureka/apps" by default
func WithServicePath(path string) Option {
	return func(c *Config) error {
		c.Eureka.ServicePath = path
		return nil
	}
}

// WithPollInterval sets the heartbeat interval. Sub-second precision is dropped.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) error {
		if interval < time.Second {
			return ConfigError("WithPollInterval", fmt.Sprintf("poll interval must be at least 1s: %s", interval), ErrInvalidConfiguration)
		}
		c.Eureka.PollIntervalSeconds = int(interval / time.Second)
		return nil
	}
}

// WithRequestTimeout sets the per-endpoint attempt timeout
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < time.Millisecond {
			return ConfigError("WithRequestTimeout", fmt.Sprintf("request timeout must be at least 1ms: %s", timeout), ErrInvalidConfiguration)
		}
		c.Eureka.RequestTimeoutMs = int(timeout / time.Millisecond)
		return nil
	}
}

// WithInstance merges the given instance configuration over any configured one
func WithInstance(instance *InstanceConfig) Option {
	return func(c *Config) error {
		c.Instance = MergeInstanceConfig(c.Instance, instance)
		return nil
	}
}

// WithApp sets the application name, creating the instance section if needed
func WithApp(app string) Option {
	return func(c *Config) error {
		if c.Instance == nil {
			c.Instance = &InstanceConfig{}
		}
		c.Instance.App = app
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log format (json or text)
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithTelemetry enables telemetry with the given exporter and endpoint.
// The endpoint is ignored by the stdout exporter.
func WithTelemetry(exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Exporter = exporter
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithMetricsAddr serves Prometheus metrics on addr, e.g. ":9090"
func WithMetricsAddr(addr string) Option {
	return func(c *Config) error {
		c.Telemetry.MetricsAddr = addr
		return nil
	}
}

// WithLeaseStatusRedis mirrors lease status to the Redis server at redisURL
func WithLeaseStatusRedis(redisURL string) Option {
	return func(c *Config) error {
		c.Lease.StatusRedisURL = redisURL
		return nil
	}
}

// WithConfigFile loads and merges a JSON or YAML configuration file
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig builds a validated configuration: defaults, then environment,
// then the options in order.
func NewConfig(opts ...Option) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Load from environment first
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	// Apply functional options (these override env vars)
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Validate final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
