package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults
func TestDefaultConfig(t *testing.T) {
	t.Setenv(EnvKubernetesHost, "")
	cfg := DefaultConfig()

	assert.Equal(t, []string{"http://127.0.0.1:8761"}, cfg.Eureka.ServiceURLs)
	assert.Equal(t, "/eureka/apps", cfg.Eureka.ServicePath)
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout())
	assert.Nil(t, cfg.Instance)

	// Lease defaults
	assert.Equal(t, 5*time.Minute, cfg.SummaryInterval())
	assert.Equal(t, "eureka", cfg.Lease.StatusNamespace)
	assert.Empty(t, cfg.Lease.StatusRedisURL)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Telemetry defaults (disabled by default)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, ExporterOTLP, cfg.Telemetry.Exporter)

	assert.NoError(t, cfg.Validate())
}

// TestDefaultConfigIndependent verifies calls share no state
func TestDefaultConfigIndependent(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	a.Eureka.ServiceURLs[0] = "http://changed:1"
	assert.Equal(t, DefaultServiceURL, b.Eureka.ServiceURLs[0])
}

// TestDetectEnvironment verifies environment detection logic
func TestDetectEnvironment(t *testing.T) {
	t.Run("Kubernetes environment", func(t *testing.T) {
		t.Setenv(EnvKubernetesHost, "10.0.0.1")
		assert.Equal(t, "json", DefaultConfig().Logging.Format)
	})

	t.Run("Local environment", func(t *testing.T) {
		t.Setenv(EnvKubernetesHost, "")
		assert.Equal(t, "text", DefaultConfig().Logging.Format)
	})
}

// TestLoadFromEnv verifies environment variables are applied
func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvServiceURL, "http://eureka-a:8761, http://eureka-b:8761")
	t.Setenv(EnvServicePath, "/registry/apps")
	t.Setenv(EnvPollIntervalSeconds, "15")
	t.Setenv(EnvRequestTimeoutMs, "750")
	t.Setenv(EnvInstanceApp, "orders")
	t.Setenv(EnvInstancePort, "8080")
	t.Setenv(EnvInstanceStatus, "starting")
	t.Setenv(EnvLeaseRedisURL, "")
	t.Setenv(EnvRedisURL, "redis://cache:6379")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvTelemetryEnabled, "true")
	t.Setenv(EnvOTLPEndpoint, "otel-collector:4317")
	t.Setenv(EnvMetricsAddr, ":9090")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, []string{"http://eureka-a:8761", "http://eureka-b:8761"}, cfg.Eureka.ServiceURLs)
	assert.Equal(t, "/registry/apps", cfg.Eureka.ServicePath)
	assert.Equal(t, 15*time.Second, cfg.PollInterval())
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout())

	require.NotNil(t, cfg.Instance)
	assert.Equal(t, "orders", cfg.Instance.App)
	assert.Equal(t, "STARTING", cfg.Instance.Status)
	require.NotNil(t, cfg.Instance.Port)
	assert.Equal(t, 8080, cfg.Instance.Port.Value)

	assert.Equal(t, "redis://cache:6379", cfg.Lease.StatusRedisURL, "REDIS_URL is the fallback")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "otel-collector:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, ":9090", cfg.Telemetry.MetricsAddr)
}

// TestLoadFromEnvInvalidNumbers verifies numeric parsing errors
func TestLoadFromEnvInvalidNumbers(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"poll interval", EnvPollIntervalSeconds, "soon"},
		{"request timeout", EnvRequestTimeoutMs, "3s"},
		{"instance port", EnvInstancePort, "http"},
		{"summary interval", EnvLeaseSummarySeconds, "often"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			err := DefaultConfig().LoadFromEnv()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

// TestValidate verifies configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no urls", func(c *Config) { c.Eureka.ServiceURLs = nil }, ErrMissingConfiguration},
		{"relative url", func(c *Config) { c.Eureka.ServiceURLs = []string{"eureka:8761"} }, ErrInvalidConfiguration},
		{"zero poll interval", func(c *Config) { c.Eureka.PollIntervalSeconds = 0 }, ErrInvalidConfiguration},
		{"negative timeout", func(c *Config) { c.Eureka.RequestTimeoutMs = -1 }, ErrInvalidConfiguration},
		{"negative summary", func(c *Config) { c.Lease.SummaryIntervalSeconds = -5 }, ErrInvalidConfiguration},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidConfiguration},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, ErrMissingConfiguration},
		{"unknown exporter", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, tt.wantErr)

			var clientErr *ClientError
			require.ErrorAs(t, err, &clientErr)
			assert.Equal(t, KindConfig, clientErr.Kind)
		})
	}

	cfg := DefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = ExporterStdout
	assert.NoError(t, cfg.Validate(), "stdout exporter needs no endpoint")
}

// TestNewConfigPrecedence verifies defaults < env < file < options
func TestNewConfigPrecedence(t *testing.T) {
	t.Setenv(EnvPollIntervalSeconds, "20")
	t.Setenv(EnvServicePath, "/env/apps")
	t.Setenv(EnvLogLevel, "warn")

	path := filepath.Join(t.TempDir(), "eureka.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
eureka:
  pollIntervalSeconds: 25
  servicePath: /file/apps
instance:
  app: orders
  port: 8080
`), 0o600))

	cfg, err := NewConfig(
		WithConfigFile(path),
		WithPollInterval(40*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, 40*time.Second, cfg.PollInterval(), "options win")
	assert.Equal(t, "/file/apps", cfg.Eureka.ServicePath, "file beats env")
	assert.Equal(t, "warn", cfg.Logging.Level, "env beats defaults")
	require.NotNil(t, cfg.Instance)
	assert.Equal(t, 8080, cfg.Instance.Port.Value)
}

// TestNewConfigErrors verifies option and validation failures
func TestNewConfigErrors(t *testing.T) {
	_, err := NewConfig(WithPollInterval(500 * time.Millisecond))
	assert.True(t, IsConfigurationError(err))

	_, err = NewConfig(WithServiceURLs())
	assert.ErrorIs(t, err, ErrMissingConfiguration)

	_, err = NewConfig(WithLogFormat("xml"))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewConfig(WithConfigFile("eureka.toml"))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

// TestLoadFromFileJSON verifies the JSON file form including registry port objects
func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eureka.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "eureka": {"serviceUrl": ["http://a:8761", "http://b:8761"]},
  "instance": {
    "app": "orders",
    "port": {"$": 8080, "@enabled": "true"},
    "securePort": {"$": "8443", "@enabled": false},
    "metadata": {"zone": "a"}
  },
  "telemetry": {"enabled": true, "exporter": "stdout"}
}`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, []string{"http://a:8761", "http://b:8761"}, cfg.Eureka.ServiceURLs)
	assert.Equal(t, "/eureka/apps", cfg.Eureka.ServicePath, "absent keys keep their value")
	require.NotNil(t, cfg.Instance)
	assert.Equal(t, 8080, cfg.Instance.Port.Value)
	require.NotNil(t, cfg.Instance.Port.Enabled)
	assert.True(t, *cfg.Instance.Port.Enabled)
	assert.Equal(t, 8443, cfg.Instance.SecurePort.Value)
	assert.False(t, *cfg.Instance.SecurePort.Enabled)
	assert.Equal(t, "a", cfg.Instance.Metadata["zone"])
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, ExporterStdout, cfg.Telemetry.Exporter)
}

// TestLoadFromFileErrors verifies unreadable and malformed files
func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	err := DefaultConfig().LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"eureka": [`), 0o600))
	err = DefaultConfig().LoadFromFile(bad)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	badPort := filepath.Join(dir, "port.yaml")
	require.NoError(t, os.WriteFile(badPort, []byte("instance:\n  port: http\n"), 0o600))
	err = DefaultConfig().LoadFromFile(badPort)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

// TestPortConfigForms verifies bare and object port decoding
func TestPortConfigForms(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		wantValue   int
		wantEnabled *bool
	}{
		{"bare number", `8080`, 8080, boolPtr(true)},
		{"numeric string", `"8080"`, 8080, boolPtr(true)},
		{"object enabled", `{"$": 8080, "@enabled": "true"}`, 8080, boolPtr(true)},
		{"object disabled", `{"$": 443, "@enabled": false}`, 443, boolPtr(false)},
		{"object without flag", `{"$": 9000}`, 9000, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PortConfig
			require.NoError(t, json.Unmarshal([]byte(tt.json), &p))
			assert.Equal(t, tt.wantValue, p.Value)
			assert.Equal(t, tt.wantEnabled, p.Enabled)

			var y PortConfig
			require.NoError(t, yaml.Unmarshal([]byte(tt.json), &y), "JSON is valid YAML")
			assert.Equal(t, tt.wantValue, y.Value)
			assert.Equal(t, tt.wantEnabled, y.Enabled)
		})
	}

	data, err := json.Marshal(NewPort(8080))
	require.NoError(t, err)
	assert.JSONEq(t, `{"$": 8080, "@enabled": "true"}`, string(data))
}

// TestMergeConfig verifies overlay semantics and isolation
func TestMergeConfig(t *testing.T) {
	defaults := DefaultConfig()
	defaults.Instance = &InstanceConfig{
		App:       "orders",
		Port:      NewPort(8080),
		Metadata:  map[string]string{"zone": "a", "team": "core"},
		LeaseInfo: &LeaseInfoConfig{RenewalIntervalInSecs: 10, DurationInSecs: 30},
	}
	overrides := &Config{
		Eureka: EurekaConfig{PollIntervalSeconds: 5},
		Instance: &InstanceConfig{
			IPAddr:    "10.0.0.5",
			Metadata:  map[string]string{"zone": "b"},
			LeaseInfo: &LeaseInfoConfig{DurationInSecs: 90},
		},
		Telemetry: TelemetryConfig{Enabled: true, Exporter: ExporterStdout, MetricsAddr: ":9090"},
	}

	merged := MergeConfig(defaults, overrides)

	assert.Equal(t, 5, merged.Eureka.PollIntervalSeconds)
	assert.Equal(t, defaults.Eureka.ServicePath, merged.Eureka.ServicePath)
	assert.Equal(t, "orders", merged.Instance.App)
	assert.Equal(t, "10.0.0.5", merged.Instance.IPAddr)
	assert.Equal(t, map[string]string{"zone": "b", "team": "core"}, merged.Instance.Metadata)
	assert.Equal(t, 10, merged.Instance.LeaseInfo.RenewalIntervalInSecs)
	assert.Equal(t, 90, merged.Instance.LeaseInfo.DurationInSecs)
	assert.True(t, merged.Telemetry.Enabled)
	assert.Equal(t, ":9090", merged.Telemetry.MetricsAddr)

	// Inputs are untouched and unshared
	assert.Equal(t, "a", defaults.Instance.Metadata["zone"])
	assert.Equal(t, 30, defaults.Instance.LeaseInfo.DurationInSecs)
	merged.Instance.Port.Value = 1
	assert.Equal(t, 8080, defaults.Instance.Port.Value)
	merged.Eureka.ServiceURLs[0] = "http://changed:1"
	assert.Equal(t, DefaultServiceURL, defaults.Eureka.ServiceURLs[0])

	assert.NotNil(t, MergeConfig(nil, nil))
}

// TestInstanceOptions verifies WithApp and WithInstance compose
func TestInstanceOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithInstance(&InstanceConfig{App: "orders", IPAddr: "10.0.0.5"}),
		WithApp("billing"),
		WithInstance(&InstanceConfig{Port: NewPort(9000)}),
	)
	require.NoError(t, err)
	assert.Equal(t, "billing", cfg.Instance.App)
	assert.Equal(t, "10.0.0.5", cfg.Instance.IPAddr)
	assert.Equal(t, 9000, cfg.Instance.Port.Value)
}

func boolPtr(b bool) *bool {
	return &b
}
