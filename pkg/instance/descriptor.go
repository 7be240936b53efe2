// Package instance builds the registration record of the local service
// instance from raw configuration.
package instance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itsneelabh/eureka/core"
)

// Status is the lifecycle status advertised to the registry
type Status string

const (
	StatusUp           Status = "UP"
	StatusDown         Status = "DOWN"
	StatusStarting     Status = "STARTING"
	StatusOutOfService Status = "OUT_OF_SERVICE"
	StatusUnknown      Status = "UNKNOWN"
)

// ParseStatus converts a status name (any case) to a Status
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusUp, StatusDown, StatusStarting, StatusOutOfService, StatusUnknown:
		return st, nil
	default:
		return "", fmt.Errorf("unknown instance status %q: %w", s, core.ErrInvalidConfiguration)
	}
}

// Port is a port number with its enabled flag, in registry wire form
type Port struct {
	Value   int  `json:"$"`
	Enabled bool `json:"@enabled,string"`
}

// DataCenterInfo identifies the data center the instance runs in
type DataCenterInfo struct {
	Class string `json:"@class"`
	Name  string `json:"name"`
}

// LeaseInfo carries lease timings. Timestamps are epoch milliseconds owned
// by the registry and sent as zero.
type LeaseInfo struct {
	RenewalIntervalInSecs int   `json:"renewalIntervalInSecs"`
	DurationInSecs        int   `json:"durationInSecs"`
	RegistrationTimestamp int64 `json:"registrationTimestamp"`
	LastRenewalTimestamp  int64 `json:"lastRenewalTimestamp"`
	EvictionTimestamp     int64 `json:"evictionTimestamp"`
	ServiceUpTimestamp    int64 `json:"serviceUpTimestamp"`
}

// Descriptor is the fully defaulted registration record of the local
// instance. It is not modified after Build returns.
type Descriptor struct {
	InstanceID                    string            `json:"instanceId"`
	HostName                      string            `json:"hostName"`
	App                           string            `json:"app"`
	IPAddr                        string            `json:"ipAddr"`
	Status                        Status            `json:"status"`
	OverriddenStatus              Status            `json:"overriddenStatus"`
	Port                          Port              `json:"port"`
	SecurePort                    Port              `json:"securePort"`
	CountryID                     int               `json:"countryId"`
	DataCenterInfo                DataCenterInfo    `json:"dataCenterInfo"`
	LeaseInfo                     LeaseInfo         `json:"leaseInfo"`
	Metadata                      map[string]string `json:"metadata"`
	HomePageURL                   string            `json:"homePageUrl"`
	StatusPageURL                 string            `json:"statusPageUrl"`
	HealthCheckURL                string            `json:"healthCheckUrl"`
	VIPAddress                    string            `json:"vipAddress"`
	SecureVIPAddress              string            `json:"secureVipAddress"`
	IsCoordinatingDiscoveryServer string            `json:"isCoordinatingDiscoveryServer"`
	LastUpdatedTimestamp          string            `json:"lastUpdatedTimestamp"`
	LastDirtyTimestamp            string            `json:"lastDirtyTimestamp"`
}

// Registration is the request body of a register call
type Registration struct {
	Instance *Descriptor `json:"instance"`
}

// Copy returns a deep copy of the descriptor
func (d *Descriptor) Copy() *Descriptor {
	out := *d
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// WithLastDirty returns a copy of the descriptor stamped with the given
// last-dirty time in epoch milliseconds
func (d *Descriptor) WithLastDirty(ms int64) *Descriptor {
	out := d.Copy()
	out.LastDirtyTimestamp = strconv.FormatInt(ms, 10)
	return out
}

// BuildOption customizes Build
type BuildOption func(*builder)

type builder struct {
	now    func() time.Time
	addrs  AddressSource
	logger core.Logger
}

// WithClock sets the time source for the construction timestamps
func WithClock(now func() time.Time) BuildOption {
	return func(b *builder) {
		b.now = now
	}
}

// WithAddressSource sets where interface addresses come from when no IP is configured
func WithAddressSource(addrs AddressSource) BuildOption {
	return func(b *builder) {
		b.addrs = addrs
	}
}

// WithLogger sets the logger used while building
func WithLogger(logger core.Logger) BuildOption {
	return func(b *builder) {
		b.logger = logger
	}
}

// Build validates raw and produces a fully defaulted Descriptor.
// raw is not modified.
//
// Defaults are applied in a fixed order, each step seeing the values resolved
// before it: app, instanceId, hostName, metadata, homePageUrl,
// statusPageUrl/healthCheckUrl, vipAddress/secureVipAddress, timestamps.
func Build(raw *core.InstanceConfig, opts ...BuildOption) (*Descriptor, error) {
	b := &builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = &core.NoOpLogger{}
	}

	if raw == nil {
		return nil, core.ConfigError("instance.Build", "instance configuration does not exist", core.ErrMissingConfiguration)
	}
	if strings.TrimSpace(raw.App) == "" {
		return nil, core.ConfigError("instance.Build", "instance app name is required", core.ErrMissingConfiguration)
	}

	status := StatusUp
	if raw.Status != "" {
		st, err := ParseStatus(raw.Status)
		if err != nil {
			return nil, core.ConfigError("instance.Build", err.Error(), core.ErrInvalidConfiguration)
		}
		status = st
	}
	overridden := StatusUnknown
	if raw.OverriddenStatus != "" {
		st, err := ParseStatus(raw.OverriddenStatus)
		if err != nil {
			return nil, core.ConfigError("instance.Build", err.Error(), core.ErrInvalidConfiguration)
		}
		overridden = st
	}

	port := resolvePort(raw.Port, core.DefaultInstancePort, true)
	securePort := resolvePort(raw.SecurePort, core.DefaultSecurePort, false)
	// An enabled port must be one a caller can actually dial.
	if port.Value < 0 || port.Value > 65535 || (port.Enabled && port.Value == 0) {
		return nil, core.ConfigError("instance.Build", fmt.Sprintf("invalid port: %d", port.Value), core.ErrInvalidConfiguration)
	}
	if securePort.Value < 0 || securePort.Value > 65535 || (securePort.Enabled && securePort.Value == 0) {
		return nil, core.ConfigError("instance.Build", fmt.Sprintf("invalid secure port: %d", securePort.Value), core.ErrInvalidConfiguration)
	}

	ipAddr := raw.IPAddr
	if ipAddr == "" {
		ipAddr = ResolveIPAddress(b.addrs, b.logger)
	}

	d := &Descriptor{
		IPAddr:                        ipAddr,
		Status:                        status,
		OverriddenStatus:              overridden,
		Port:                          port,
		SecurePort:                    securePort,
		CountryID:                     raw.CountryID,
		IsCoordinatingDiscoveryServer: "false",
		DataCenterInfo: DataCenterInfo{
			Class: core.DefaultDataCenterClass,
			Name:  core.DefaultDataCenterName,
		},
		LeaseInfo: LeaseInfo{
			RenewalIntervalInSecs: core.DefaultRenewalIntervalSec,
			DurationInSecs:        core.DefaultLeaseDurationSec,
		},
	}
	if d.CountryID == 0 {
		d.CountryID = core.DefaultCountryID
	}
	if dc := raw.DataCenterInfo; dc != nil {
		if dc.Class != "" {
			d.DataCenterInfo.Class = dc.Class
		}
		if dc.Name != "" {
			d.DataCenterInfo.Name = dc.Name
		}
	}
	if li := raw.LeaseInfo; li != nil {
		if li.RenewalIntervalInSecs > 0 {
			d.LeaseInfo.RenewalIntervalInSecs = li.RenewalIntervalInSecs
		}
		if li.DurationInSecs > 0 {
			d.LeaseInfo.DurationInSecs = li.DurationInSecs
		}
	}

	d.App = strings.ToUpper(strings.TrimSpace(raw.App))
	d.InstanceID = orDefault(raw.InstanceID, fmt.Sprintf("%s:%d", d.IPAddr, d.Port.Value))
	d.HostName = orDefault(raw.HostName, d.IPAddr)

	d.Metadata = make(map[string]string, len(raw.Metadata)+1)
	for k, v := range raw.Metadata {
		d.Metadata[k] = v
	}
	if _, ok := d.Metadata[core.MetadataManagementPort]; !ok {
		d.Metadata[core.MetadataManagementPort] = strconv.Itoa(d.Port.Value)
	}

	d.HomePageURL = orDefault(raw.HomePageURL, fmt.Sprintf("http://%s:%d", d.IPAddr, d.Port.Value))
	d.StatusPageURL = orDefault(raw.StatusPageURL, d.HomePageURL+core.DefaultStatusPagePath)
	d.HealthCheckURL = orDefault(raw.HealthCheckURL, d.HomePageURL+core.DefaultHealthCheckPath)
	d.VIPAddress = orDefault(raw.VIPAddress, d.App)
	d.SecureVIPAddress = orDefault(raw.SecureVIPAddress, d.App)

	now := strconv.FormatInt(b.now().UnixMilli(), 10)
	d.LastUpdatedTimestamp = now
	d.LastDirtyTimestamp = now

	b.logger.Debug("Built instance descriptor", map[string]interface{}{
		"app":         d.App,
		"instance_id": d.InstanceID,
		"ip_addr":     d.IPAddr,
		"port":        d.Port.Value,
	})

	return d, nil
}

func resolvePort(p *core.PortConfig, defaultValue int, defaultEnabled bool) Port {
	if p == nil {
		return Port{Value: defaultValue, Enabled: defaultEnabled}
	}
	out := Port{Value: p.Value, Enabled: defaultEnabled}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	return out
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
