package identify

import (
	"context"
	"strings"
	"time"

	"github.com/go-ping/ping"

	"github.com/vpbank/snmp_monitor/models"
)

// EnterpriseOID returns the first seven components of objectID, the
// enterprises.<n> prefix.
func EnterpriseOID(objectID string) string {
	parts := strings.Split(strings.TrimPrefix(objectID, "."), ".")
	if len(parts) > 7 {
		parts = parts[:7]
	}
	return strings.Join(parts, ".")
}

// Device type labels.
const (
	TypeSwitch   = "switch"
	TypeRouter   = "router"
	TypeFirewall = "firewall"
	TypeUnknown  = "unknown"
)

var typeKeywords = []struct {
	kind     string
	keywords []string
}{
	{TypeSwitch, []string{"switch", "catalyst"}},
	{TypeRouter, []string{"router", "asr", "isr"}},
	{TypeFirewall, []string{"firewall", "asa"}},
}

// DeviceType classifies a device from keywords in its description.
func DeviceType(descr string) string {
	descr = strings.ToLower(descr)
	for _, t := range typeKeywords {
		for _, k := range t.keywords {
			if strings.Contains(descr, k) {
				return t.kind
			}
		}
	}
	return TypeUnknown
}

var capabilityKeywords = []struct {
	name     string
	keywords []string
}{
	{"layer3", []string{"layer3", "l3", "routing"}},
	{"poe", []string{"poe", "power over ethernet"}},
	{"stacking", []string{"stack"}},
	{"optical", []string{"sfp", "optical", "fiber"}},
	{"managed", []string{"managed", "management"}},
}

// Capabilities returns the capability labels whose keywords appear in
// descr, in a fixed order.
func Capabilities(descr string) []string {
	descr = strings.ToLower(descr)
	out := []string{}
	for _, c := range capabilityKeywords {
		for _, k := range c.keywords {
			if strings.Contains(descr, k) {
				out = append(out, c.name)
				break
			}
		}
	}
	return out
}

// Uplinks returns a copy of ifs with Uplink set. Only physical interfaces
// qualify. An interface is an uplink when its "descr name" text matches one
// of the vendor's uplink patterns or its speed reaches thresholdMbps.
func Uplinks(t *Table, vendor string, ifs []models.Interface, thresholdMbps uint64) []models.Interface {
	threshold := thresholdMbps * 1_000_000
	out := make([]models.Interface, len(ifs))
	for i, in := range ifs {
		in.Uplink = false
		if !in.Virtual {
			text := strings.ToLower(in.Descr + " " + in.Name)
			matched, _ := t.UplinkMatch(vendor, text)
			in.Uplink = matched || in.SpeedBps >= threshold
		}
		out[i] = in
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Reachability
// ─────────────────────────────────────────────────────────────────────────────

// Pinger checks that a host answers before it is first identified.
type Pinger interface {
	Reachable(ctx context.Context, host string) bool
}

// ICMPPinger pings with go-ping. Unprivileged mode sends UDP pings, which
// needs net.ipv4.ping_group_range on Linux.
type ICMPPinger struct {
	Count      int
	Timeout    time.Duration
	Privileged bool
}

// Reachable reports whether at least one echo reply arrived.
func (p ICMPPinger) Reachable(ctx context.Context, host string) bool {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.Count = p.Count
	if pinger.Count <= 0 {
		pinger.Count = 2
	}
	pinger.Timeout = p.Timeout
	if pinger.Timeout <= 0 {
		pinger.Timeout = 2 * time.Second
	}
	pinger.SetPrivileged(p.Privileged)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()
	err = pinger.Run()
	close(done)
	if err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
