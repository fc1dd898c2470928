package identify_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/identify"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/client/clienttest"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

func table(t *testing.T) *identify.Table {
	t.Helper()
	tbl, err := identify.DefaultTable(nil)
	if err != nil {
		t.Fatalf("DefaultTable() error = %v", err)
	}
	return tbl
}

func TestByEnterprise(t *testing.T) {
	tbl := table(t)
	tests := []struct {
		oid  string
		want string
	}{
		{"1.3.6.1.4.1.9.1.1208", "Cisco"},
		{".1.3.6.1.4.1.2011.2.23.95", "Huawei"},
		{"1.3.6.1.4.1.25506.1.1", "H3C"},
		{"1.3.6.1.4.1.890.1.5.8.68", "Zyxel"},
		{"1.3.6.1.4.1.89.1.1.62.2", "Radware"},
		{"1.3.6.1.4.1.35265.1.81", "Eltex"},
		{"1.3.6.1.4.1.11.2.3.7.11", "HP"},
		{"1.3.6.1.4.1.8072.3.2.10", ""},
	}
	for _, tt := range tests {
		got, _ := tbl.ByEnterprise(tt.oid)
		if got != tt.want {
			t.Errorf("ByEnterprise(%q) = %q, want %q", tt.oid, got, tt.want)
		}
	}
}

func TestByEnterprise_ComponentBoundary(t *testing.T) {
	// 1.3.6.1.4.1.99 must not be taken for Cisco's 1.3.6.1.4.1.9.
	if got, ok := table(t).ByEnterprise("1.3.6.1.4.1.99.1"); ok {
		t.Errorf("ByEnterprise() = %q, want no match", got)
	}
}

func TestByKeyword(t *testing.T) {
	tbl := table(t)
	tests := []struct {
		descr string
		want  string
	}{
		{"Huawei Versatile Routing Platform Software VRP (R) software", "Huawei"},
		{"H3C Comware Platform Software", "H3C"},
		{"Juniper Networks, Inc. ex4300-48t", "Juniper"},
		{"ALCATEL-LUCENT SR 7750", "Nokia"},
		{"Linux router 5.10", ""},
	}
	for _, tt := range tests {
		got, _ := tbl.ByKeyword(tt.descr)
		if got != tt.want {
			t.Errorf("ByKeyword(%q) = %q, want %q", tt.descr, got, tt.want)
		}
	}
}

func TestModel(t *testing.T) {
	tbl := table(t)
	tests := []struct {
		vendor, descr string
		want          string
		wantOK        bool
	}{
		{"Cisco", "Cisco IOS Software, C2960X Software (WS-C2960X-48TS-L)", "2960", true},
		{"Cisco", "Cisco Catalyst 3850 Switch", "3850", true},
		{"Huawei", "Huawei S5720-28X-LI-AC Routing Switch", "5720", true},
		{"Huawei", "S3328-EI Huawei", "3328", true},
		{"Eltex", "Eltex MES2428 AC 28-port", "MES2428", true},
		{"Zyxel", "MES3500-24 Ethernet switch", "MES3500-24", true},
		{"Nokia", "Nokia 7750 SR", "", false},
		{"Nope", "whatever", "", false},
	}
	for _, tt := range tests {
		got, ok := tbl.Model(tt.vendor, tt.descr)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Model(%q, %q) = %q, %v, want %q, %v", tt.vendor, tt.descr, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRegisters_ModelOverride(t *testing.T) {
	tbl := table(t)

	base := tbl.Registers("Huawei", "5720", "Huawei S5720")
	if base.Conversion != models.ConvHundredths || base.RxPower != "1.3.6.1.4.1.2011.5.25.31.1.1.3.1.7" {
		t.Errorf("Registers(Huawei S5720) = %+v", base)
	}
	s3328 := tbl.Registers("Huawei", "3328", "Quidway S3328TP-EI Huawei")
	if s3328.Conversion != models.ConvDBm || s3328.RxPower != "1.3.6.1.4.1.2011.5.25.31.1.1.3.1.8" {
		t.Errorf("Registers(Huawei S3328) = %+v", s3328)
	}
	mes := tbl.Registers("Eltex", "MES2408", "")
	if mes.Conversion != models.ConvThousandths || mes.PartNumber == "" {
		t.Errorf("Registers(Eltex MES2408) = %+v", mes)
	}
	if got := tbl.Registers("Juniper", "ex4300", ""); !got.IsZero() {
		t.Errorf("Registers(Juniper) = %+v, want zero", got)
	}
}

func TestNewTable_OverrideKeepsOrder(t *testing.T) {
	tbl, err := identify.DefaultTable([]identify.Profile{
		{Name: "cisco", Keywords: []string{"nexus"}},
		{Name: "Acme", Enterprises: []string{"1.3.6.1.4.1.4242"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := tbl.Names()[0]; got != "cisco" {
		t.Errorf("Names()[0] = %q, want overridden cisco", got)
	}
	if got, _ := tbl.ByKeyword("Cisco Nexus 9000"); got != "cisco" {
		t.Errorf("ByKeyword() = %q, want cisco", got)
	}
	if got, _ := tbl.ByEnterprise("1.3.6.1.4.1.4242.7"); got != "Acme" {
		t.Errorf("ByEnterprise() = %q, want Acme", got)
	}
}

func TestNewTable_BadPattern(t *testing.T) {
	if _, err := identify.NewTable([]identify.Profile{{Name: "x", ModelPatterns: []string{"("}}}); err == nil {
		t.Error("NewTable() error = nil, want compile error")
	}
}

func TestEnterpriseOID(t *testing.T) {
	if got := identify.EnterpriseOID(".1.3.6.1.4.1.9.1.1208"); got != "1.3.6.1.4.1.9" {
		t.Errorf("EnterpriseOID() = %q", got)
	}
	if got := identify.EnterpriseOID("1.3.6"); got != "1.3.6" {
		t.Errorf("EnterpriseOID(short) = %q", got)
	}
}

func TestDeviceTypeAndCapabilities(t *testing.T) {
	descr := "Cisco Catalyst L3 Switch with PoE and SFP uplinks, stacking"
	if got := identify.DeviceType(descr); got != identify.TypeSwitch {
		t.Errorf("DeviceType() = %q", got)
	}
	if got := identify.DeviceType("Cisco ASR1001-X Router"); got != identify.TypeRouter {
		t.Errorf("DeviceType(router) = %q", got)
	}
	if got := identify.DeviceType("Linux 5.10"); got != identify.TypeUnknown {
		t.Errorf("DeviceType(linux) = %q", got)
	}
	want := []string{"layer3", "poe", "stacking", "optical"}
	if got := identify.Capabilities(descr); !reflect.DeepEqual(got, want) {
		t.Errorf("Capabilities() = %v, want %v", got, want)
	}
}

func TestUplinks(t *testing.T) {
	ifs := []models.Interface{
		{Index: 1, Name: "Gi1/0/1", SpeedBps: 100_000_000},
		{Index: 2, Name: "Fa0/2", SpeedBps: 100_000_000},
		{Index: 3, Name: "Te1/1/1", SpeedBps: 10_000_000_000},
		{Index: 4, Name: "Vlan1", SpeedBps: 10_000_000_000, Virtual: true},
	}
	got := identify.Uplinks(table(t), "Cisco", ifs, 1000)
	want := []bool{true, false, true, false}
	for i, in := range got {
		if in.Uplink != want[i] {
			t.Errorf("Uplinks()[%d] (%s) = %v, want %v", i, in.Name, in.Uplink, want[i])
		}
	}

	// Generic vendor falls back to speed only.
	got = identify.Uplinks(table(t), identify.GenericVendor, ifs, 1000)
	if got[0].Uplink || !got[2].Uplink {
		t.Errorf("generic Uplinks() = %+v", got)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Identifier
// ─────────────────────────────────────────────────────────────────────────────

func ciscoAgent() *clienttest.Session {
	s := clienttest.New()
	s.SetString(mib.SysDescr, "Cisco IOS Software, Catalyst 2960X L2 Switch").
		Set(mib.SysObjectID, gosnmp.ObjectIdentifier, ".1.3.6.1.4.1.9.1.1208").
		SetString(mib.SysName, "sw-branch-01").
		Set(mib.SysUpTime, gosnmp.TimeTicks, uint32(123456)).
		SetInt(mib.IfNumber, 2).
		SetString(mib.IfDescr+".1", "GigabitEthernet1/0/1").
		SetString(mib.IfName+".1", "Gi1/0/1").
		SetInt(mib.IfType+".1", 6).
		Set(mib.IfSpeed+".1", gosnmp.Gauge32, uint(1_000_000_000)).
		SetString(mib.IfDescr+".2", "Vlan1").
		SetInt(mib.IfType+".2", 135)
	return s
}

func reader(s *clienttest.Session) client.Reader {
	return client.New(s, client.Options{Device: "sw1", Version: gosnmp.Version2c}, nil)
}

func TestIdentify(t *testing.T) {
	at := time.Unix(1700000000, 0)
	id := identify.New(nil, identify.Config{}, nil, identify.WithClock(func() time.Time { return at }))
	dev := models.Device{Hostname: "sw1", IP: "10.0.0.1"}

	got, err := id.Identify(context.Background(), dev, reader(ciscoAgent()))
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if got.Vendor != "Cisco" || got.Model != "2960" || got.DeviceType != identify.TypeSwitch {
		t.Errorf("Identify() vendor/model/type = %q/%q/%q", got.Vendor, got.Model, got.DeviceType)
	}
	if got.EnterpriseOID != "1.3.6.1.4.1.9" || got.SysName != "sw-branch-01" || got.Uptime != 123456 || got.IfNumber != 2 {
		t.Errorf("Identify() = %+v", got)
	}
	if len(got.Uplinks) != 1 || got.Uplinks[0].Index != 1 {
		t.Errorf("Identify().Uplinks = %+v, want [Gi1/0/1]", got.Uplinks)
	}
	if got.Registers.Conversion != models.ConvTenths {
		t.Errorf("Identify().Registers = %+v", got.Registers)
	}
	if len(got.FailedSteps) != 0 {
		t.Errorf("Identify().FailedSteps = %v, want none", got.FailedSteps)
	}
	if !got.IdentifiedAt.Equal(at) {
		t.Errorf("IdentifiedAt = %v, want %v", got.IdentifiedAt, at)
	}
}

func TestIdentify_CacheAndFingerprint(t *testing.T) {
	id := identify.New(nil, identify.Config{}, nil)
	dev := models.Device{Hostname: "sw1", IP: "10.0.0.1"}
	agent := ciscoAgent()
	r := reader(agent)

	if _, err := id.Identify(context.Background(), dev, r); err != nil {
		t.Fatal(err)
	}
	first := agent.Calls()
	if _, err := id.Identify(context.Background(), dev, r); err != nil {
		t.Fatal(err)
	}
	if got := agent.Calls() - first; got != 1 {
		t.Errorf("cached Identify() made %d requests, want 1 (system registers only)", got)
	}

	agent.SetString(mib.SysDescr, "Huawei Versatile Routing Platform S5720")
	agent.Set(mib.SysObjectID, gosnmp.ObjectIdentifier, ".1.3.6.1.4.1.2011.2.23.95")
	got, err := id.Identify(context.Background(), dev, r)
	if err != nil {
		t.Fatal(err)
	}
	if got.Vendor != "Huawei" {
		t.Errorf("Identify() after change vendor = %q, want Huawei", got.Vendor)
	}
}

func TestIdentify_Invalidate(t *testing.T) {
	id := identify.New(nil, identify.Config{}, nil)
	dev := models.Device{Hostname: "sw1"}
	if _, err := id.Identify(context.Background(), dev, reader(ciscoAgent())); err != nil {
		t.Fatal(err)
	}
	id.Invalidate("sw1")
	if _, ok := id.Cached("sw1"); ok {
		t.Error("Cached() after Invalidate = true")
	}
}

func TestIdentify_NoDescription(t *testing.T) {
	id := identify.New(nil, identify.Config{}, nil)
	s := clienttest.New().FailOn(mib.SysDescr)
	_, err := id.Identify(context.Background(), models.Device{Hostname: "sw1"}, reader(s))
	if !errors.Is(err, identify.ErrNoDescription) {
		t.Errorf("Identify() error = %v, want ErrNoDescription", err)
	}
}

func TestIdentify_HintsAndFailedSteps(t *testing.T) {
	id := identify.New(nil, identify.Config{}, nil)
	s := clienttest.New().
		SetString(mib.SysDescr, "MES2428 AC 28-port 1G Managed Switch").
		Set(mib.SysObjectID, gosnmp.ObjectIdentifier, ".1.3.6.1.4.1.8072.3.2.10").
		FailOn(mib.IfDescr).FailOn(mib.IfName)
	dev := models.Device{
		Hostname:  "mes1",
		Vendor:    "eltex",
		Registers: models.RegisterMap{Conversion: models.ConvHundredths},
	}

	got, err := id.Identify(context.Background(), dev, reader(s))
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if got.Vendor != "Eltex" || got.Model != "MES2428" {
		t.Errorf("Identify() vendor/model = %q/%q, want Eltex/MES2428", got.Vendor, got.Model)
	}
	if got.Registers.RxPower == "" || got.Registers.Conversion != models.ConvHundredths {
		t.Errorf("Identify().Registers = %+v, want MES template with inventory conversion", got.Registers)
	}
	want := []string{identify.StepInterfaces}
	if !reflect.DeepEqual(got.FailedSteps, want) {
		t.Errorf("FailedSteps = %v, want %v", got.FailedSteps, want)
	}
}

func TestIdentify_Generic(t *testing.T) {
	id := identify.New(nil, identify.Config{}, nil)
	s := clienttest.New().SetString(mib.SysDescr, "Linux box 5.10")
	got, err := id.Identify(context.Background(), models.Device{Hostname: "x"}, reader(s))
	if err != nil {
		t.Fatal(err)
	}
	if got.Vendor != identify.GenericVendor || got.Model != identify.UnknownModel {
		t.Errorf("Identify() = %q/%q", got.Vendor, got.Model)
	}
	for _, step := range []string{identify.StepVendor, identify.StepModel, identify.StepRegisters} {
		found := false
		for _, s := range got.FailedSteps {
			found = found || s == step
		}
		if !found {
			t.Errorf("FailedSteps = %v, missing %q", got.FailedSteps, step)
		}
	}
}

type fakePinger bool

func (p fakePinger) Reachable(context.Context, string) bool { return bool(p) }

func TestIdentify_PingPrecheck(t *testing.T) {
	id := identify.New(nil, identify.Config{}, nil, identify.WithPinger(fakePinger(false)))
	agent := ciscoAgent()
	_, err := id.Identify(context.Background(), models.Device{Hostname: "sw1", IP: "10.0.0.1"}, reader(agent))
	if !errors.Is(err, identify.ErrUnreachable) {
		t.Errorf("Identify() error = %v, want ErrUnreachable", err)
	}
	if agent.Calls() != 0 {
		t.Errorf("Calls() = %d, want 0", agent.Calls())
	}
}
