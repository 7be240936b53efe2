package instance

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/itsneelabh/eureka/core"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// TestBuildDefaults verifies the defaulting chain on a minimal instance
func TestBuildDefaults(t *testing.T) {
	d, err := Build(&core.InstanceConfig{
		App:    "orders",
		IPAddr: "10.0.0.5",
		Port:   core.NewPort(8080),
	}, WithClock(fixedClock(1700000000000)))
	require.NoError(t, err)

	assert.Equal(t, "ORDERS", d.App)
	assert.Equal(t, "10.0.0.5:8080", d.InstanceID)
	assert.Equal(t, "10.0.0.5", d.HostName)
	assert.Equal(t, "http://10.0.0.5:8080", d.HomePageURL)
	assert.Equal(t, "http://10.0.0.5:8080/actuator/info", d.StatusPageURL)
	assert.Equal(t, "http://10.0.0.5:8080/actuator/health", d.HealthCheckURL)
	assert.Equal(t, "ORDERS", d.VIPAddress)
	assert.Equal(t, "ORDERS", d.SecureVIPAddress)
	assert.Equal(t, map[string]string{"management.port": "8080"}, d.Metadata)

	assert.Equal(t, StatusUp, d.Status)
	assert.Equal(t, StatusUnknown, d.OverriddenStatus)
	assert.Equal(t, Port{Value: 8080, Enabled: true}, d.Port)
	assert.Equal(t, Port{Value: 443, Enabled: false}, d.SecurePort)
	assert.Equal(t, 1, d.CountryID)
	assert.Equal(t, "MyOwn", d.DataCenterInfo.Name)
	assert.Equal(t, core.DefaultDataCenterClass, d.DataCenterInfo.Class)
	assert.Equal(t, 10, d.LeaseInfo.RenewalIntervalInSecs)
	assert.Equal(t, 30, d.LeaseInfo.DurationInSecs)
	assert.Equal(t, "false", d.IsCoordinatingDiscoveryServer)
	assert.Equal(t, "1700000000000", d.LastUpdatedTimestamp)
	assert.Equal(t, "1700000000000", d.LastDirtyTimestamp)
}

// TestBuildUppercasesApp verifies the partition key is upper-cased
func TestBuildUppercasesApp(t *testing.T) {
	d, err := Build(&core.InstanceConfig{App: "myService", IPAddr: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "MYSERVICE", d.App)
	assert.Equal(t, "127.0.0.1:39805", d.InstanceID, "default port applies")
}

// TestBuildKeepsSuppliedValues verifies defaults never override explicit input
func TestBuildKeepsSuppliedValues(t *testing.T) {
	raw := &core.InstanceConfig{
		App:            "billing",
		InstanceID:     "billing-1",
		HostName:       "billing.local",
		IPAddr:         "10.1.1.1",
		Port:           core.NewPort(9000),
		HomePageURL:    "https://billing.example.com",
		HealthCheckURL: "https://billing.example.com/healthz",
		VIPAddress:     "billing-vip",
		Status:         "starting",
		Metadata:       map[string]string{"zone": "a", "management.port": "9001"},
	}
	d, err := Build(raw)
	require.NoError(t, err)

	assert.Equal(t, "billing-1", d.InstanceID)
	assert.Equal(t, "billing.local", d.HostName)
	assert.Equal(t, "https://billing.example.com", d.HomePageURL)
	assert.Equal(t, "https://billing.example.com/actuator/info", d.StatusPageURL, "derived from supplied home page")
	assert.Equal(t, "https://billing.example.com/healthz", d.HealthCheckURL)
	assert.Equal(t, "billing-vip", d.VIPAddress)
	assert.Equal(t, "BILLING", d.SecureVIPAddress)
	assert.Equal(t, StatusStarting, d.Status)
	assert.Equal(t, "9001", d.Metadata["management.port"])
	assert.Equal(t, "a", d.Metadata["zone"])

	// raw is untouched
	assert.Equal(t, "billing", raw.App)
	assert.Len(t, raw.Metadata, 2)
}

// TestBuildMissingConfiguration verifies construction fails fast
func TestBuildMissingConfiguration(t *testing.T) {
	tests := []struct {
		name string
		raw  *core.InstanceConfig
	}{
		{"nil instance", nil},
		{"empty app", &core.InstanceConfig{IPAddr: "10.0.0.1"}},
		{"blank app", &core.InstanceConfig{App: "   ", IPAddr: "10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Build(tt.raw)
			assert.Nil(t, d)
			require.Error(t, err)
			assert.True(t, core.IsConfigurationError(err))
			assert.ErrorIs(t, err, core.ErrMissingConfiguration)
		})
	}
}

// TestBuildInvalidValues verifies bad status and port values are rejected
func TestBuildInvalidValues(t *testing.T) {
	_, err := Build(&core.InstanceConfig{App: "a", IPAddr: "10.0.0.1", Status: "SLEEPING"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = Build(&core.InstanceConfig{App: "a", IPAddr: "10.0.0.1", Port: core.NewPort(70000)})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

// TestBuildRejectsEnabledZeroPort verifies port 0 is only accepted on a disabled port
func TestBuildRejectsEnabledZeroPort(t *testing.T) {
	_, err := Build(&core.InstanceConfig{App: "a", IPAddr: "10.0.0.1", Port: core.NewPort(0)})
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	enabled := true
	_, err = Build(&core.InstanceConfig{App: "a", IPAddr: "10.0.0.1",
		SecurePort: &core.PortConfig{Value: 0, Enabled: &enabled}})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	disabled := false
	d, err := Build(&core.InstanceConfig{App: "a", IPAddr: "10.0.0.1",
		SecurePort: &core.PortConfig{Value: 0, Enabled: &disabled}})
	require.NoError(t, err)
	assert.Equal(t, Port{Value: 0, Enabled: false}, d.SecurePort)
}

// TestBuildIsIdempotent verifies two builds differ only in their timestamps
func TestBuildIsIdempotent(t *testing.T) {
	raw := &core.InstanceConfig{App: "orders", IPAddr: "10.0.0.5", Port: core.NewPort(8080)}

	first, err := Build(raw, WithClock(fixedClock(1000)))
	require.NoError(t, err)
	second, err := Build(raw, WithClock(fixedClock(2000)))
	require.NoError(t, err)

	assert.NotEqual(t, first.LastDirtyTimestamp, second.LastDirtyTimestamp)

	second.LastUpdatedTimestamp = first.LastUpdatedTimestamp
	second.LastDirtyTimestamp = first.LastDirtyTimestamp
	assert.Equal(t, first, second)
}

// TestBuildResolvesAddress verifies the advertised address is resolved when absent
func TestBuildResolvesAddress(t *testing.T) {
	t.Run("pod ip", func(t *testing.T) {
		t.Setenv(core.EnvPodIP, "172.16.0.9")
		d, err := Build(&core.InstanceConfig{App: "orders", Port: core.NewPort(8080)})
		require.NoError(t, err)
		assert.Equal(t, "172.16.0.9", d.IPAddr)
		assert.Equal(t, "172.16.0.9:8080", d.InstanceID)
	})

	t.Run("interface address", func(t *testing.T) {
		t.Setenv(core.EnvPodIP, "")
		addrs := func() ([]net.Addr, error) {
			return []net.Addr{
				&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
				&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
				&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)},
			}, nil
		}
		d, err := Build(&core.InstanceConfig{App: "orders"}, WithAddressSource(addrs))
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.20", d.IPAddr)
	})

	t.Run("loopback fallback", func(t *testing.T) {
		t.Setenv(core.EnvPodIP, "")
		addrs := func() ([]net.Addr, error) { return nil, nil }
		d, err := Build(&core.InstanceConfig{App: "orders"}, WithAddressSource(addrs))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", d.IPAddr)
	})
}

// TestPortForms verifies both bare and object port forms decode
func TestPortForms(t *testing.T) {
	jsonInput := `{"app":"orders","ipAddr":"10.0.0.5","port":"8080","securePort":{"$":8443,"@enabled":"true"}}`
	var fromJSON core.InstanceConfig
	require.NoError(t, json.Unmarshal([]byte(jsonInput), &fromJSON))

	d, err := Build(&fromJSON)
	require.NoError(t, err)
	assert.Equal(t, Port{Value: 8080, Enabled: true}, d.Port)
	assert.Equal(t, Port{Value: 8443, Enabled: true}, d.SecurePort)

	yamlInput := "app: orders\nipAddr: 10.0.0.5\nport: 8080\nsecurePort:\n  $: 8443\n"
	var fromYAML core.InstanceConfig
	require.NoError(t, yaml.Unmarshal([]byte(yamlInput), &fromYAML))

	d, err = Build(&fromYAML)
	require.NoError(t, err)
	assert.Equal(t, Port{Value: 8080, Enabled: true}, d.Port)
	assert.Equal(t, Port{Value: 8443, Enabled: false}, d.SecurePort, "secure port keeps its default flag")
}

// TestDescriptorWireFormat verifies the registry JSON shape
func TestDescriptorWireFormat(t *testing.T) {
	d, err := Build(&core.InstanceConfig{App: "orders", IPAddr: "10.0.0.5", Port: core.NewPort(8080)},
		WithClock(fixedClock(42)))
	require.NoError(t, err)

	data, err := json.Marshal(Registration{Instance: d})
	require.NoError(t, err)

	var wire map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	inst := wire["instance"]
	assert.Equal(t, "10.0.0.5:8080", inst["instanceId"])
	assert.Equal(t, map[string]interface{}{"$": float64(8080), "@enabled": "true"}, inst["port"])
	assert.Equal(t, map[string]interface{}{"$": float64(443), "@enabled": "false"}, inst["securePort"])
	assert.Equal(t, "UNKNOWN", inst["overriddenStatus"])
	assert.Equal(t, "42", inst["lastDirtyTimestamp"])
	dc := inst["dataCenterInfo"].(map[string]interface{})
	assert.Equal(t, "MyOwn", dc["name"])
}

// TestWithLastDirty verifies stamping does not modify the original
func TestWithLastDirty(t *testing.T) {
	d, err := Build(&core.InstanceConfig{App: "orders", IPAddr: "10.0.0.5"}, WithClock(fixedClock(1)))
	require.NoError(t, err)

	stamped := d.WithLastDirty(99)
	assert.Equal(t, "99", stamped.LastDirtyTimestamp)
	assert.Equal(t, "1", d.LastDirtyTimestamp)

	stamped.Metadata["x"] = "y"
	assert.NotContains(t, d.Metadata, "x")
}
