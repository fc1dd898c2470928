// Package models defines the core data structures shared across all layers of
// the SNMP Monitor. These types represent the canonical in-memory form of all
// produced records; every other package depends on this package and nothing
// here depends on any other internal package.
package models

import "time"

// Counter widths in bits.
const (
	Width32 = 32
	Width64 = 64
)

// CounterSnapshot is the last observed octet counter state of one interface.
// Exactly one snapshot per (device, interface) is retained between cycles; it
// is replaced as a whole value, never mutated in place.
type CounterSnapshot struct {
	Device    string    `json:"device"`
	IfIndex   int       `json:"if_index"`
	InOctets  uint64    `json:"in_octets"`
	OutOctets uint64    `json:"out_octets"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"` // 32 or 64
}

// Key returns the store key of the snapshot, "<device>/<ifIndex>".
func (s CounterSnapshot) Key() string {
	return SnapshotKey(s.Device, s.IfIndex)
}

// BandwidthSample is one computed rate for one interface over one cycle.
// Samples are append-only and only produced when a valid prior snapshot
// exists.
type BandwidthSample struct {
	Device          string    `json:"device"`
	IfIndex         int       `json:"if_index"`
	IfName          string    `json:"if_name,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	InBps           uint64    `json:"in_bps"`
	OutBps          uint64    `json:"out_bps"`
	IntervalSeconds float64   `json:"interval_seconds"`
	InDelta         uint64    `json:"in_delta"`
	OutDelta        uint64    `json:"out_delta"`
	Width           int       `json:"width"`
}

// ForwardingEntry is the current best-known location of a physical address.
// Consumers upsert it keyed by (Device, MAC, VLAN).
type ForwardingEntry struct {
	Device     string    `json:"device"`
	VLAN       int       `json:"vlan"` // 0 when the device has no VLAN-aware table
	IfIndex    int       `json:"if_index"`
	IfName     string    `json:"if_name,omitempty"`
	MAC        string    `json:"mac"`
	PVID       int       `json:"pvid,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// LinkEvent kinds.
const (
	LinkDown  = "link_down"
	LinkUp    = "link_up"
	ColdStart = "cold_start"
	WarmStart = "warm_start"
)

// LinkEvent is a state change notification received from a device.
type LinkEvent struct {
	Device     string    `json:"device"` // source IP address
	Kind       string    `json:"kind"`
	IfIndex    int       `json:"if_index,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
