package instance

import (
	"net"
	"os"

	"github.com/itsneelabh/eureka/core"
)

// AddressSource reports the addresses available to the local host
type AddressSource func() ([]net.Addr, error)

// ResolveIPAddress determines the address to advertise when none is configured.
//
// Resolution order:
//   - POD_IP (Kubernetes downward API)
//   - first non-loopback IPv4 address of the host
//   - 127.0.0.1
func ResolveIPAddress(addrs AddressSource, logger core.Logger) string {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	if ip := os.Getenv(core.EnvPodIP); ip != "" {
		logger.Debug("Resolved instance address from environment", map[string]interface{}{
			"ip_addr": ip,
			"source":  core.EnvPodIP,
		})
		return ip
	}

	if addrs == nil {
		addrs = net.InterfaceAddrs
	}
	list, err := addrs()
	if err != nil {
		logger.Warn("Failed to list interface addresses, using loopback", map[string]interface{}{
			"error":      err.Error(),
			"error_type": "interface_lookup",
		})
		return "127.0.0.1"
	}

	for _, a := range list {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			logger.Debug("Resolved instance address from interface", map[string]interface{}{
				"ip_addr": v4.String(),
				"source":  "interface",
			})
			return v4.String()
		}
	}

	logger.Warn("No non-loopback IPv4 address found, using loopback", nil)
	return "127.0.0.1"
}
