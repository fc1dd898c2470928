package models

import (
	"strconv"
	"strings"
	"time"
)

// Device is one polled endpoint as supplied by the inventory. It is immutable
// for the duration of a poll.
type Device struct {
	// Hostname is the inventory identifier of the device.
	Hostname string `json:"hostname"`

	// IP is the management address the SNMP session dials.
	IP string `json:"ip"`

	Port      uint16        `json:"port"`
	Community string        `json:"-"`
	Version   string        `json:"version"` // "1" or "2c"
	Timeout   time.Duration `json:"timeout"`
	Retries   int           `json:"retries"`

	// Branch groups devices by site for filtering.
	Branch string `json:"branch,omitempty"`

	// Vendor and Model are optional hints used when the device cannot be
	// identified from its own registers.
	Vendor string `json:"vendor,omitempty"`
	Model  string `json:"model,omitempty"`

	// Registers overrides the identified register map field by field.
	Registers RegisterMap `json:"registers,omitempty"`

	// MaxConcurrentPolls bounds the sessions open against this device.
	// 1 serializes every request to the endpoint.
	MaxConcurrentPolls int `json:"max_concurrent_polls"`
}

// Filter selects the devices of a cycle. Empty fields match everything.
type Filter struct {
	Hostname string `json:"hostname,omitempty"`
	IP       string `json:"ip,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
}

// Match reports whether d is selected by f. vendor is the identified vendor
// when known, else the inventory hint is used.
func (f Filter) Match(d Device, vendor string) bool {
	if f.Hostname != "" && f.Hostname != d.Hostname {
		return false
	}
	if f.IP != "" && f.IP != d.IP {
		return false
	}
	if f.Branch != "" && !strings.EqualFold(f.Branch, d.Branch) {
		return false
	}
	if f.Vendor != "" {
		if vendor == "" {
			vendor = d.Vendor
		}
		if !strings.EqualFold(f.Vendor, vendor) {
			return false
		}
	}
	return true
}

// SnapshotKey builds the counter store key for one interface.
func SnapshotKey(device string, ifIndex int) string {
	return device + "/" + strconv.Itoa(ifIndex)
}
