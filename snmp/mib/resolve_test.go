package mib_test

import (
	"testing"

	"github.com/vpbank/snmp_monitor/snmp/mib"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want mib.Ref
	}{
		{"IF-MIB::ifDescr", mib.Ref{Module: "IF-MIB", Name: "ifDescr"}},
		{"IF-MIB::ifDescr.3", mib.Ref{Module: "IF-MIB", Name: "ifDescr", Instance: "3"}},
		{"sysDescr.0", mib.Ref{Name: "sysDescr", Instance: "0"}},
		{".1.3.6.1.2.1.1.1.0", mib.Ref{Name: "1.3.6.1.2.1.1.1.0"}},
		{"1.3.6.1", mib.Ref{Name: "1.3.6.1"}},
	}
	for _, tt := range tests {
		if got := mib.Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestResolve_Symbols(t *testing.T) {
	r := mib.Default()
	tests := []struct {
		in   string
		want string
	}{
		{"SNMPv2-MIB::sysDescr.0", mib.SysDescr},
		{"sysName.0", mib.SysName},
		{"IF-MIB::ifHCInOctets.12", mib.IfHCInOctets + ".12"},
		{"Q-BRIDGE-MIB::dot1qTpFdbPort", mib.Dot1qTpFdbPort},
		// Module mismatch still resolves through the bare name.
		{"OTHER-MIB::ifAlias", mib.IfAlias},
	}
	for _, tt := range tests {
		if got := r.ResolveString(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve_NumericIdempotent(t *testing.T) {
	r := mib.Default()
	for _, in := range []string{".1.3.6.1.2.1.2.2.1.10.5", "1.3.6.1.2.1.1.3.0", "IF-MIB::ifName.7"} {
		once := r.ResolveString(in)
		twice := r.Resolve(mib.Numeric(once))
		if once != twice {
			t.Errorf("Resolve(Resolve(%q)) = %q, want %q", in, twice, once)
		}
		if !mib.Parse(once).IsNumeric() {
			t.Errorf("Resolve(%q) = %q is not numeric", in, once)
		}
	}
}

func TestResolve_UnknownFallsBackToLiteral(t *testing.T) {
	r := mib.Default()
	if got := r.ResolveString("FOO-MIB::fooBar.1"); got != "fooBar.1" {
		t.Errorf("Resolve(unknown) = %q, want %q", got, "fooBar.1")
	}
}

func TestNewResolver_Extra(t *testing.T) {
	r := mib.NewResolver(map[string]string{
		"CISCO-ENTITY-SENSOR-MIB::entSensorValue": ".1.3.6.1.4.1.9.9.91.1.1.1.1.4",
	}, nil)
	if got := r.ResolveString("entSensorValue.1001"); got != "1.3.6.1.4.1.9.9.91.1.1.1.1.4.1001" {
		t.Errorf("Resolve(extra) = %q", got)
	}
	if oid, ok := r.Lookup("IF-MIB::ifDescr"); !ok || oid != mib.IfDescr {
		t.Errorf("Lookup(ifDescr) = %q, %v", oid, ok)
	}
}
