// Package poller runs device tasks: it turns inventory records into live
// gosnmp sessions, bounds the sessions open against each device and fans
// device tasks out over a fixed set of workers.
package poller

import (
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/client"
)

// Session defaults applied when the inventory leaves a field empty.
const (
	DefaultPort    = 161
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 1
)

// ─────────────────────────────────────────────────────────────────────────────
// Session factory: models.Device → *gosnmp.GoSNMP
// ─────────────────────────────────────────────────────────────────────────────

// NewSession creates and connects a gosnmp session for dev. The caller is
// responsible for closing its Conn.
func NewSession(dev models.Device) (*gosnmp.GoSNMP, error) {
	version, err := Version(dev.Version)
	if err != nil {
		return nil, err
	}
	port := dev.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := dev.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := dev.Retries
	if retries < 0 {
		retries = DefaultRetries
	}

	g := &gosnmp.GoSNMP{
		Target:    dev.IP,
		Port:      port,
		Community: dev.Community,
		Version:   version,
		Timeout:   timeout,
		Retries:   retries,
		MaxOids:   client.DefaultMaxOids,
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("poller: snmp connect %s:%d: %w", dev.IP, port, err)
	}
	return g, nil
}

// Version maps an inventory version string to gosnmp. Only the
// community-based versions are supported.
func Version(v string) (gosnmp.SnmpVersion, error) {
	switch v {
	case "1", "v1":
		return gosnmp.Version1, nil
	case "2c", "v2c", "2", "":
		return gosnmp.Version2c, nil
	default:
		return 0, fmt.Errorf("poller: unsupported SNMP version %q", v)
	}
}
