package config

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/uplink"
)

// Hard-coded fallbacks for fields left empty by both the device entry and
// defaults.yml.
const (
	fallbackCommunity = "public"
	fallbackVersion   = "2c"
	fallbackMaxPolls  = 1
)

// rawDevice is the YAML form of a single device. It maps 1-to-1 with the
// device schema; zero fields are filled from defaults during resolution.
type rawDevice struct {
	IP                 string             `yaml:"ip"`
	Subnet             string             `yaml:"subnet"`
	Port               uint16             `yaml:"port"`
	Community          string             `yaml:"community"`
	Version            string             `yaml:"version"`
	Timeout            time.Duration      `yaml:"timeout"`
	Retries            *int               `yaml:"retries"`
	Branch             string             `yaml:"branch"`
	Vendor             string             `yaml:"vendor"`
	Model              string             `yaml:"model"`
	Registers          models.RegisterMap `yaml:"registers"`
	MaxConcurrentPolls int                `yaml:"max_concurrent_polls"`
}

type rawDefaults struct {
	Default rawDevice `yaml:"default"`
}

// resolveDevice merges e over d and applies the hard-coded fallbacks.
// community is the process-wide default from SNMP_MONITOR_COMMUNITY.
func resolveDevice(hostname string, e, d rawDevice, community string) models.Device {
	dev := models.Device{
		Hostname:           hostname,
		IP:                 e.IP,
		Port:               first(e.Port, d.Port, poller.DefaultPort),
		Community:          first(e.Community, d.Community, community, fallbackCommunity),
		Version:            first(e.Version, d.Version, fallbackVersion),
		Timeout:            first(e.Timeout, d.Timeout, poller.DefaultTimeout),
		Retries:            poller.DefaultRetries,
		Branch:             first(e.Branch, d.Branch),
		Vendor:             e.Vendor,
		Model:              e.Model,
		Registers:          d.Registers.Merge(e.Registers),
		MaxConcurrentPolls: first(e.MaxConcurrentPolls, d.MaxConcurrentPolls, fallbackMaxPolls),
	}
	switch {
	case e.Retries != nil:
		dev.Retries = *e.Retries
	case d.Retries != nil:
		dev.Retries = *d.Retries
	}
	return dev
}

// first returns the first non-zero value.
func first[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}

// validateDevice returns every problem of one resolved device.
func validateDevice(dev models.Device, subnet string) []error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("device %q: "+format, append([]any{dev.Hostname}, args...)...))
	}

	addr, err := netip.ParseAddr(dev.IP)
	if err != nil {
		bad("invalid ip %q", dev.IP)
	}
	if subnet != "" {
		prefix, err := netip.ParsePrefix(subnet)
		switch {
		case err != nil:
			bad("invalid subnet %q", subnet)
		case addr.IsValid() && !prefix.Contains(addr):
			bad("ip %s outside subnet %s", dev.IP, subnet)
		}
	}
	if _, err := poller.Version(dev.Version); err != nil {
		bad("%v", err)
	}
	if dev.Timeout <= 0 {
		bad("timeout must be positive, got %s", dev.Timeout)
	}
	if dev.Retries < 0 {
		bad("retries must not be negative, got %d", dev.Retries)
	}
	if dev.MaxConcurrentPolls < 1 {
		bad("max_concurrent_polls must be at least 1, got %d", dev.MaxConcurrentPolls)
	}
	if c := dev.Registers.Conversion; c != "" && !uplink.ValidConversion(c) {
		bad("unknown conversion %q", c)
	}
	return errs
}
