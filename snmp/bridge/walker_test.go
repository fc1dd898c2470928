package bridge_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_monitor/snmp/bridge"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/client/clienttest"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

func walker(s *clienttest.Session) *bridge.Walker {
	c := client.New(s, client.Options{Device: "sw1", Version: gosnmp.Version2c}, nil)
	return bridge.NewWalker(c, 0, nil)
}

func withPorts(s *clienttest.Session) *clienttest.Session {
	return s.
		SetInt(mib.Dot1dBasePortIfIndex+".1", 10101).
		SetInt(mib.Dot1dBasePortIfIndex+".2", 10102).
		SetInt(mib.Dot1dBasePortIfIndex+".3", 0)
}

func TestParseQBridgeIndex(t *testing.T) {
	vlan, mac, err := bridge.ParseQBridgeIndex("100.0.17.34.51.68.85")
	if err != nil {
		t.Fatalf("ParseQBridgeIndex() error = %v", err)
	}
	if vlan != 100 || mac.String() != "00:11:22:33:44:55" {
		t.Errorf("ParseQBridgeIndex() = %d, %s", vlan, mac)
	}

	for _, bad := range []string{"0.17.34.51.68.85", "100.0.17.34.51.68.300", "100.a.17.34.51.68.85"} {
		if _, _, err := bridge.ParseQBridgeIndex(bad); err == nil {
			t.Errorf("ParseQBridgeIndex(%q) err = nil", bad)
		}
	}
}

func TestParseBridgeIndex(t *testing.T) {
	vlan, mac, err := bridge.ParseBridgeIndex("0.26.185.12.52.99")
	if err != nil || vlan != 0 || mac.String() != "00:1a:b9:0c:34:63" {
		t.Errorf("ParseBridgeIndex() = %d, %s, %v", vlan, mac, err)
	}
}

func TestEntries_QBridge(t *testing.T) {
	s := withPorts(clienttest.New()).
		SetInt(mib.Dot1qTpFdbPort+".100.0.17.34.51.68.85", 1).
		SetInt(mib.Dot1qTpFdbPort+".200.0.17.34.51.68.86", 2).
		// Bridge port 3 maps to ifIndex 0 and port 9 is unknown: both dropped.
		SetInt(mib.Dot1qTpFdbPort+".200.0.17.34.51.68.87", 3).
		SetInt(mib.Dot1qTpFdbPort+".200.0.17.34.51.68.88", 9).
		// Malformed row dropped, siblings kept.
		SetInt(mib.Dot1qTpFdbPort+".5.1.2", 1)

	got, err := walker(s).Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].VLAN < got[j].VLAN })
	if len(got) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2: %+v", len(got), got)
	}
	if got[0].VLAN != 100 || got[0].IfIndex != 10101 || got[0].MAC.String() != "00:11:22:33:44:55" {
		t.Errorf("Entries()[0] = %+v", got[0])
	}
	if got[1].VLAN != 200 || got[1].IfIndex != 10102 {
		t.Errorf("Entries()[1] = %+v", got[1])
	}
}

func TestEntries_FallbackToDot1d(t *testing.T) {
	s := withPorts(clienttest.New()).
		SetInt(mib.Dot1dTpFdbPort+".0.26.185.12.52.99", 2).
		SetInt(mib.Dot1dTpFdbPort+".0.26.185.12.52.100", 1)

	got, err := walker(s).Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(got))
	}
	for _, e := range got {
		if e.VLAN != 0 {
			t.Errorf("entry VLAN = %d, want 0 sentinel", e.VLAN)
		}
	}
}

func TestEntries_QBridgeFailsDot1dWorks(t *testing.T) {
	s := withPorts(clienttest.New()).
		FailOn(mib.Dot1qTpFdbPort).
		SetInt(mib.Dot1dTpFdbPort+".0.26.185.12.52.99", 2)

	got, err := walker(s).Entries(context.Background())
	if err != nil || len(got) != 1 {
		t.Errorf("Entries() = %+v, %v, want one dot1d entry", got, err)
	}
}

func TestEntries_NoPortMap(t *testing.T) {
	s := clienttest.New().SetInt(mib.Dot1qTpFdbPort+".100.0.17.34.51.68.85", 1)
	if _, err := walker(s).Entries(context.Background()); !errors.Is(err, bridge.ErrNoPortMap) {
		t.Errorf("Entries() error = %v, want ErrNoPortMap", err)
	}
}

func TestForwardingEntries(t *testing.T) {
	s := withPorts(clienttest.New()).
		SetInt(mib.Dot1qTpFdbPort+".100.0.17.34.51.68.85", 1).
		SetInt(mib.Dot1qPvid+".1", 100).
		SetInt(mib.Dot1qPvid+".2", 1)

	at := time.Unix(1700000000, 0)
	got, err := walker(s).ForwardingEntries(context.Background(), "sw1", map[int]string{10101: "Gi0/1"}, at)
	if err != nil {
		t.Fatalf("ForwardingEntries() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(ForwardingEntries()) = %d, want 1", len(got))
	}
	e := got[0]
	if e.Device != "sw1" || e.IfName != "Gi0/1" || e.PVID != 100 || e.MAC != "00:11:22:33:44:55" || !e.ObservedAt.Equal(at) {
		t.Errorf("ForwardingEntries()[0] = %+v", e)
	}
}
