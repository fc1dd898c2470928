// Package trap converts received SNMP trap PDUs into models.LinkEvent values.
// It handles the protocol differences between v1 and v2c notifications but
// has no knowledge of UDP socket management; that lives in the trapreceiver
// package.
package trap

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

// ErrIgnored is returned for well-formed notifications that carry no link
// or restart event.
var ErrIgnored = errors.New("trap: not a link event")

// kinds maps the SNMPv2 notification OIDs of interest to event kinds.
var kinds = map[string]string{
	mib.ColdStart: models.ColdStart,
	mib.WarmStart: models.WarmStart,
	mib.LinkDown:  models.LinkDown,
	mib.LinkUp:    models.LinkUp,
}

// ─────────────────────────────────────────────────────────────────────────────
// Parse
// ─────────────────────────────────────────────────────────────────────────────

// Parse converts a packet received by a TrapListener into a LinkEvent. The
// event's Device is the agent address of v1 traps, else the sender address.
// Notifications other than linkDown, linkUp, coldStart and warmStart return
// ErrIgnored.
func Parse(pkt *gosnmp.SnmpPacket, remoteAddr *net.UDPAddr) (models.LinkEvent, error) {
	if pkt == nil {
		return models.LinkEvent{}, fmt.Errorf("trap: nil packet")
	}

	var trapOID string
	payload := pkt.Variables
	switch pkt.Version {
	case gosnmp.Version1:
		trapOID = v1TrapOID(pkt)
	case gosnmp.Version2c:
		trapOID, payload = v2TrapOID(pkt.Variables)
	default:
		return models.LinkEvent{}, fmt.Errorf("trap: unsupported SNMP version %v", pkt.Version)
	}

	kind, ok := kinds[trapOID]
	if !ok {
		return models.LinkEvent{}, fmt.Errorf("%w: %s", ErrIgnored, trapOID)
	}

	ev := models.LinkEvent{
		Device:     source(pkt, remoteAddr),
		Kind:       kind,
		ReceivedAt: time.Now().UTC(),
	}
	if kind == models.LinkDown || kind == models.LinkUp {
		ev.IfIndex = ifIndex(payload)
	}
	return ev, nil
}

// source returns the address the event is attributed to. v1 traps carry an
// explicit AgentAddress field.
func source(pkt *gosnmp.SnmpPacket, remoteAddr *net.UDPAddr) string {
	if pkt.Version == gosnmp.Version1 && pkt.AgentAddress != "" && pkt.AgentAddress != "0.0.0.0" {
		return pkt.AgentAddress
	}
	if remoteAddr != nil {
		return remoteAddr.IP.String()
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Trap OID extraction
// ─────────────────────────────────────────────────────────────────────────────

// v1TrapOID synthesises the v2 trap OID of a v1 trap (RFC 3584 §3.1):
// generic 0-5 map to snmpTraps.<generic+1>, generic 6 to
// <enterprise>.0.<specific>.
func v1TrapOID(pkt *gosnmp.SnmpPacket) string {
	if pkt.GenericTrap >= 0 && pkt.GenericTrap < 6 {
		return "1.3.6.1.6.3.1.1.5." + strconv.Itoa(pkt.GenericTrap+1)
	}
	return normaliseOID(pkt.Enterprise) + ".0." + strconv.Itoa(pkt.SpecificTrap)
}

// v2TrapOID locates snmpTrapOID.0 and returns its value together with the
// varbinds that follow it. It searches instead of assuming the second
// position to tolerate agents that omit sysUpTime.0.
func v2TrapOID(vars []gosnmp.SnmpPDU) (string, []gosnmp.SnmpPDU) {
	for i, v := range vars {
		if normaliseOID(v.Name) != mib.SnmpTrapOID {
			continue
		}
		var oid string
		switch val := v.Value.(type) {
		case string:
			oid = val
		case []byte:
			oid = string(val)
		default:
			oid = fmt.Sprintf("%v", val)
		}
		return normaliseOID(oid), vars[i+1:]
	}
	return "", vars
}

// ifIndex reads the ifIndex varbind of a linkDown/linkUp payload, 0 when
// absent. The value is preferred; the instance suffix is the fallback.
func ifIndex(vars []gosnmp.SnmpPDU) int {
	for _, v := range vars {
		name := normaliseOID(v.Name)
		inst, ok := strings.CutPrefix(name, mib.IfIndex+".")
		if !ok {
			continue
		}
		if v.Type == gosnmp.Integer {
			if n := gosnmp.ToBigInt(v.Value).Int64(); n > 0 {
				return int(n)
			}
		}
		if n, err := strconv.Atoi(inst); err == nil {
			return n
		}
	}
	return 0
}

// normaliseOID strips surrounding whitespace and dots.
func normaliseOID(oid string) string {
	return strings.Trim(strings.TrimSpace(oid), ".")
}
