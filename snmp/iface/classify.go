// Package iface enumerates device interfaces from IF-MIB and decides which of
// them are physical. Classify is the single virtual/physical decision used by
// both bandwidth polling and uplink discovery.
package iface

import (
	"regexp"
	"strconv"
	"strings"
)

// virtualTypes are IANAifType codes that never denote a physical port.
var virtualTypes = map[int]bool{
	24:  true, // softwareLoopback
	53:  true, // propVirtual
	131: true, // tunnel
	135: true, // l2vlan
	136: true, // l3ipvlan
	161: true, // ieee8023adLag
}

// virtualName matches loopback, VLAN, bridge, tunnel, PPP, MPLS,
// link-aggregation and stack naming conventions. A keyword must start a
// word and be followed by digits or a word end, so "Port 1" or "branch"
// in a description do not count.
var virtualName = regexp.MustCompile(`(?i)\b(?:in)?(?:loopback|lo|vlan|vl|bridge|br|tunnel|tun|ppp|mpls|l2vlan|l3vlan|virtual|cpu|null|stack|port-?channel|bond|lag|ae|po)(?:if)?(?:\d+|\b|_|-)`)

// Classify reports whether an interface is virtual and why. It is a pure
// function: the type code decides first, then the naming pattern over
// name, description and alias.
func Classify(ifType int, name, descr, alias string) (virtual bool, reason string) {
	if virtualTypes[ifType] {
		return true, "ifType=" + strconv.Itoa(ifType)
	}
	text := strings.Join([]string{name, descr, alias}, " ")
	if m := virtualName.FindString(text); m != "" {
		return true, strings.TrimRight(m, "-_")
	}
	return false, ""
}

// IsVirtualType reports whether the type code alone marks an interface as
// virtual.
func IsVirtualType(ifType int) bool {
	return virtualTypes[ifType]
}
