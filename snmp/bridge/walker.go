// Package bridge reads a device's forwarding database. Devices index FDB
// rows by internal bridge port number, so each walk first maps bridge ports
// to ifIndex and then translates every row through that map.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

// Entry is one (vlan, ifIndex, mac) triple. VLAN is 0 when the device only
// exposes the non VLAN-aware table.
type Entry struct {
	VLAN    int
	IfIndex int
	MAC     net.HardwareAddr
}

// ErrNoPortMap is returned when the bridge port table is empty.
var ErrNoPortMap = errors.New("bridge: no bridge port to ifIndex mapping")

// Walker enumerates forwarding tables.
type Walker struct {
	r       client.Reader
	maxRows int
	logger  *slog.Logger
}

// NewWalker creates a Walker. maxRows bounds each table walk; 0 means no
// limit.
func NewWalker(r client.Reader, maxRows int, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Walker{r: r, maxRows: maxRows, logger: logger}
}

// PortMap walks dot1dBasePortIfIndex and returns bridge port → ifIndex.
// Ports mapped to ifIndex 0 are left out.
func (w *Walker) PortMap(ctx context.Context) (map[int]int, error) {
	rows, err := w.r.Walk(ctx, mib.Dot1dBasePortIfIndex, w.maxRows)
	out := make(map[int]int, len(rows))
	for port, v := range decoder.Column(mib.Dot1dBasePortIfIndex, rows) {
		idx, ok := v.Int()
		if !ok || idx <= 0 {
			continue
		}
		out[port] = idx
	}
	if len(out) == 0 {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoPortMap, err)
		}
		return nil, ErrNoPortMap
	}
	return out, nil
}

// Entries returns the device's forwarding entries. The Q-BRIDGE table is
// tried first; when it yields no usable row the BRIDGE-MIB table is used and
// every entry gets VLAN 0. Malformed or unmapped rows are dropped
// individually. Duplicates are possible; consumers upsert.
func (w *Walker) Entries(ctx context.Context) ([]Entry, error) {
	ports, err := w.PortMap(ctx)
	if err != nil {
		return nil, err
	}
	return w.entries(ctx, ports)
}

func (w *Walker) entries(ctx context.Context, ports map[int]int) ([]Entry, error) {
	qrows, qerr := w.r.Walk(ctx, mib.Dot1qTpFdbPort, w.maxRows)
	entries := translate(mib.Dot1qTpFdbPort, qrows, ports, ParseQBridgeIndex)
	if len(entries) > 0 {
		return entries, nil
	}
	if qerr != nil {
		w.logger.Debug("bridge: q-bridge fdb walk failed, trying dot1d", "error", qerr.Error())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drows, derr := w.r.Walk(ctx, mib.Dot1dTpFdbPort, w.maxRows)
	entries = translate(mib.Dot1dTpFdbPort, drows, ports, ParseBridgeIndex)
	if len(entries) == 0 && qerr != nil && derr != nil {
		return nil, fmt.Errorf("bridge: fdb walks failed: %w", errors.Join(qerr, derr))
	}
	return entries, nil
}

// PortVLANs walks dot1qPvid and returns ifIndex → port VLAN id. The table is
// indexed by bridge port and translated through ports.
func (w *Walker) PortVLANs(ctx context.Context, ports map[int]int) (map[int]int, error) {
	rows, err := w.r.Walk(ctx, mib.Dot1qPvid, w.maxRows)
	out := make(map[int]int, len(rows))
	for port, v := range decoder.Column(mib.Dot1qPvid, rows) {
		pvid, ok := v.Int()
		if !ok {
			continue
		}
		if idx, ok := ports[port]; ok {
			out[idx] = pvid
		}
	}
	if len(out) == 0 && err != nil {
		return nil, fmt.Errorf("bridge: pvid walk: %w", err)
	}
	return out, nil
}

// ForwardingEntries runs Entries and PortVLANs and converts the result to
// records for device. names maps ifIndex to interface name and may be nil.
func (w *Walker) ForwardingEntries(ctx context.Context, device string, names map[int]string, at time.Time) ([]models.ForwardingEntry, error) {
	ports, err := w.PortMap(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := w.entries(ctx, ports)
	if err != nil {
		return nil, err
	}
	pvids, err := w.PortVLANs(ctx, ports)
	if err != nil {
		w.logger.Debug("bridge: no port vlans", "device", device, "error", err.Error())
	}

	out := make([]models.ForwardingEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.ForwardingEntry{
			Device:     device,
			VLAN:       e.VLAN,
			IfIndex:    e.IfIndex,
			IfName:     names[e.IfIndex],
			MAC:        e.MAC.String(),
			PVID:       pvids[e.IfIndex],
			ObservedAt: at,
		})
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row index parsing
// ─────────────────────────────────────────────────────────────────────────────

// ParseQBridgeIndex parses a dot1qTpFdbPort instance: the last seven
// components are the VLAN id and six MAC octets.
func ParseQBridgeIndex(inst string) (vlan int, mac net.HardwareAddr, err error) {
	c, err := decoder.IndexComponents(inst)
	if err != nil {
		return 0, nil, err
	}
	if len(c) < 7 {
		return 0, nil, fmt.Errorf("q-bridge index %q has %d components, want 7", inst, len(c))
	}
	mac, err = macFrom(c[len(c)-6:])
	if err != nil {
		return 0, nil, err
	}
	return c[len(c)-7], mac, nil
}

// ParseBridgeIndex parses a dot1dTpFdbPort instance: the last six
// components are the MAC octets. VLAN is always 0.
func ParseBridgeIndex(inst string) (vlan int, mac net.HardwareAddr, err error) {
	c, err := decoder.IndexComponents(inst)
	if err != nil {
		return 0, nil, err
	}
	if len(c) < 6 {
		return 0, nil, fmt.Errorf("bridge index %q has %d components, want 6", inst, len(c))
	}
	mac, err = macFrom(c[len(c)-6:])
	return 0, mac, err
}

func macFrom(octets []int) (net.HardwareAddr, error) {
	mac := make(net.HardwareAddr, 6)
	for i, o := range octets {
		if o > 255 {
			return nil, fmt.Errorf("mac octet %d out of range", o)
		}
		mac[i] = byte(o)
	}
	return mac, nil
}

type indexParser func(inst string) (int, net.HardwareAddr, error)

func translate(base string, rows map[string]decoder.Value, ports map[int]int, parse indexParser) []Entry {
	out := make([]Entry, 0, len(rows))
	for oid, v := range rows {
		inst, ok := decoder.Instance(base, oid)
		if !ok {
			continue
		}
		vlan, mac, err := parse(inst)
		if err != nil {
			continue
		}
		port, ok := v.Int()
		if !ok {
			continue
		}
		idx, ok := ports[port]
		if !ok || idx == 0 {
			continue
		}
		out = append(out, Entry{VLAN: vlan, IfIndex: idx, MAC: mac})
	}
	return out
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
