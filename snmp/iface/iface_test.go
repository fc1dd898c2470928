package iface_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/client/clienttest"
	"github.com/vpbank/snmp_monitor/snmp/iface"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		ifType      int
		name, descr string
		alias       string
		wantVirtual bool
		wantReason  string
	}{
		{24, "GigabitEthernet0/1", "", "", true, "ifType=24"},
		{161, "Eth-Trunk1", "", "", true, "ifType=161"},
		{6, "Vlan100", "", "", true, "Vlan100"},
		{6, "Vlanif20", "", "", true, "Vlanif20"},
		{6, "Port-channel1", "", "", true, "Port-channel1"},
		{6, "Po12", "", "", true, "Po12"},
		{6, "lo0", "", "", true, "lo0"},
		{6, "InLoopBack0", "", "", true, "InLoopBack0"},
		{1, "NULL0", "", "", true, "NULL0"},
		{6, "ae3", "", "", true, "ae3"},
		{6, "", "Tunnel0", "", true, "Tunnel0"},
		{6, "Gi0/5", "", "Virtual-Template1", true, "Virtual"},
		{6, "GigabitEthernet0/0/1", "GigabitEthernet0/0/1", "", false, ""},
		{6, "Gi1/0/48", "Port 48", "uplink to branch core", false, ""},
		{117, "TenGigabitEthernet1/1", "", "global uplink", false, ""},
	}
	for _, tt := range tests {
		gotV, gotR := iface.Classify(tt.ifType, tt.name, tt.descr, tt.alias)
		if gotV != tt.wantVirtual || gotR != tt.wantReason {
			t.Errorf("Classify(%d, %q, %q, %q) = %v, %q, want %v, %q",
				tt.ifType, tt.name, tt.descr, tt.alias, gotV, gotR, tt.wantVirtual, tt.wantReason)
		}
	}
}

func TestClassify_LoopbackTypeWinsOverName(t *testing.T) {
	v, reason := iface.Classify(24, "GigabitEthernet1/0/1", "physical port", "")
	if !v || reason != "ifType=24" {
		t.Errorf("Classify(24, ...) = %v, %q, want true, ifType=24", v, reason)
	}
}

func TestSpeed(t *testing.T) {
	if got := iface.Speed(4294967295, 10000); got != 10_000_000_000 {
		t.Errorf("Speed() = %d, want 10G", got)
	}
	if got := iface.Speed(100_000_000, 0); got != 100_000_000 {
		t.Errorf("Speed() = %d, want 100M", got)
	}
}

func newReader(s *clienttest.Session) client.Reader {
	return client.New(s, client.Options{Device: "sw1", Version: gosnmp.Version2c}, nil)
}

func agent() *clienttest.Session {
	s := clienttest.New()
	s.SetString(mib.IfDescr+".1", "GigabitEthernet0/1").
		SetString(mib.IfDescr+".2", "GigabitEthernet0/2").
		SetString(mib.IfDescr+".10", "Vlan10").
		SetInt(mib.IfType+".1", 6).
		SetInt(mib.IfType+".2", 6).
		SetInt(mib.IfType+".10", 135).
		Set(mib.IfSpeed+".1", gosnmp.Gauge32, uint(1000000000)).
		Set(mib.IfSpeed+".2", gosnmp.Gauge32, uint(100000000)).
		Set(mib.IfHighSpeed+".1", gosnmp.Gauge32, uint(1000)).
		SetInt(mib.IfAdminStatus+".1", 1).
		SetInt(mib.IfAdminStatus+".2", 2).
		SetInt(mib.IfOperStatus+".1", 1).
		SetInt(mib.IfOperStatus+".2", 2).
		SetString(mib.IfName+".1", "Gi0/1").
		SetString(mib.IfName+".2", "Gi0/2").
		SetString(mib.IfAlias+".1", "to-core")
	return s
}

func TestCollect(t *testing.T) {
	ifs, err := iface.Collect(context.Background(), newReader(agent()), nil)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(ifs) != 3 {
		t.Fatalf("len(Collect()) = %d, want 3", len(ifs))
	}
	gi1 := ifs[0]
	if gi1.Index != 1 || gi1.Name != "Gi0/1" || gi1.Alias != "to-core" || gi1.SpeedBps != 1_000_000_000 {
		t.Errorf("ifs[0] = %+v", gi1)
	}
	if gi1.Admin != models.StatusUp || gi1.Oper != models.StatusUp || gi1.Virtual {
		t.Errorf("ifs[0] state = %+v", gi1)
	}
	if ifs[1].Oper != models.StatusDown {
		t.Errorf("ifs[1].Oper = %v, want down", ifs[1].Oper)
	}
	if !ifs[2].Virtual || ifs[2].VirtualReason != "ifType=135" {
		t.Errorf("ifs[2] virtual = %v %q", ifs[2].Virtual, ifs[2].VirtualReason)
	}
}

func TestCollect_PartialColumns(t *testing.T) {
	s := agent().FailOn(mib.IfAlias).FailOn(mib.IfHighSpeed)
	ifs, err := iface.Collect(context.Background(), newReader(s), nil)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if ifs[0].Alias != "" || ifs[0].SpeedBps != 1_000_000_000 {
		t.Errorf("ifs[0] = %+v", ifs[0])
	}
}

func TestCollect_NoNames(t *testing.T) {
	s := clienttest.New().FailOn(mib.IfDescr).FailOn(mib.IfName)
	if _, err := iface.Collect(context.Background(), newReader(s), nil); !errors.Is(err, iface.ErrNoInterfaces) {
		t.Errorf("Collect() error = %v, want ErrNoInterfaces", err)
	}
}

func TestPollCounters_HCThenFallback(t *testing.T) {
	s := agent().
		Set(mib.IfHCInOctets+".1", gosnmp.Counter64, uint64(5_000_000_000)).
		Set(mib.IfHCOutOctets+".1", gosnmp.Counter64, uint64(7_000_000_000)).
		Set(mib.IfInOctets+".2", gosnmp.Counter32, uint(1234)).
		Set(mib.IfOutOctets+".2", gosnmp.Counter32, uint(5678)).
		Set(mib.IfInOctets+".10", gosnmp.Counter32, uint(1)).
		Set(mib.IfOutOctets+".10", gosnmp.Counter32, uint(1))
	r := newReader(s)

	ifs, err := iface.Collect(context.Background(), r, nil)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Unix(1700000000, 0)
	snaps, err := iface.PollCounters(context.Background(), r, "sw1", ifs, func() time.Time { return at })
	if err != nil {
		t.Fatalf("PollCounters() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("len(PollCounters()) = %d, want 2 (virtual Vlan10 skipped)", len(snaps))
	}
	byIdx := map[int]models.CounterSnapshot{}
	for _, s := range snaps {
		byIdx[s.IfIndex] = s
	}
	if s := byIdx[1]; s.Width != 64 || s.InOctets != 5_000_000_000 || s.OutOctets != 7_000_000_000 {
		t.Errorf("if 1 snapshot = %+v", s)
	}
	if s := byIdx[2]; s.Width != 32 || s.InOctets != 1234 || s.OutOctets != 5678 || !s.Timestamp.Equal(at) {
		t.Errorf("if 2 snapshot = %+v", s)
	}
}
