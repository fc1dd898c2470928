package client_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/client/clienttest"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

func newClient(s client.Session, maxOids int) *client.Client {
	return client.New(s, client.Options{Device: "sw1", Version: gosnmp.Version2c, MaxOids: maxOids}, nil)
}

func TestGetOne(t *testing.T) {
	s := clienttest.New().SetString(mib.SysDescr, "Huawei Versatile Routing Platform")
	c := newClient(s, 0)

	v, err := c.GetOne(context.Background(), "SNMPv2-MIB::sysDescr.0")
	if err != nil {
		t.Fatalf("GetOne() error = %v", err)
	}
	if v.String() != "Huawei Versatile Routing Platform" {
		t.Errorf("GetOne() = %q", v.String())
	}

	v, err = c.GetOne(context.Background(), mib.SysName)
	if err != nil || v.Present() {
		t.Errorf("GetOne(missing) = %v, %v, want absent, nil", v, err)
	}
}

func TestGetOne_TransportFailure(t *testing.T) {
	s := clienttest.New().FailOn(mib.SysDescr)
	v, err := newClient(s, 0).GetOne(context.Background(), mib.SysDescr)
	if !errors.Is(err, client.ErrNoData) {
		t.Errorf("GetOne() error = %v, want ErrNoData", err)
	}
	if v.Present() {
		t.Error("GetOne() returned a value on failure")
	}
}

func TestGetMany_Chunking(t *testing.T) {
	s := clienttest.New()
	var refs []string
	for i := 1; i <= 45; i++ {
		oid := fmt.Sprintf("%s.%d", mib.IfHCInOctets, i)
		s.Set(oid, gosnmp.Counter64, uint64(i*1000))
		refs = append(refs, oid)
	}
	c := newClient(s, 20)

	got, err := c.GetMany(context.Background(), refs)
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 45 {
		t.Errorf("len(GetMany()) = %d, want 45", len(got))
	}
	if s.Calls() != 3 {
		t.Errorf("requests = %d, want 3", s.Calls())
	}
}

func TestGetMany_V1NoSuchNameDropsOnlyMissing(t *testing.T) {
	s := clienttest.New().V1().
		SetInt(mib.IfOperStatus+".1", 1).
		SetInt(mib.IfOperStatus+".2", 2)
	refs := []string{mib.IfOperStatus + ".1", mib.IfHighSpeed + ".1", mib.IfOperStatus + ".2", mib.IfHighSpeed + ".2"}
	c := client.New(s, client.Options{Device: "sw1", Version: gosnmp.Version1}, nil)

	got, err := c.GetMany(context.Background(), refs)
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(GetMany()) = %d, want 2", len(got))
	}
	if v, _ := got[mib.IfOperStatus+".2"].Int(); v != 2 {
		t.Errorf("ifOperStatus.2 = %v, want 2", v)
	}
	if s.Calls() != 3 {
		t.Errorf("requests = %d, want 3", s.Calls())
	}
}

func TestGetMany_FailedBatchIsEmpty(t *testing.T) {
	s := clienttest.New().
		SetInt(mib.IfOperStatus+".1", 1).
		SetInt(mib.IfOperStatus+".2", 2).
		FailOn(mib.IfOperStatus + ".30")
	refs := []string{mib.IfOperStatus + ".1", mib.IfOperStatus + ".2", mib.IfOperStatus + ".30"}

	got, err := newClient(s, 2).GetMany(context.Background(), refs)
	if !errors.Is(err, client.ErrNoData) {
		t.Errorf("GetMany() error = %v, want ErrNoData", err)
	}
	if len(got) != 0 {
		t.Errorf("GetMany() = %v, want empty on batch failure", got)
	}
}

func TestWalk_StaysInSubtree(t *testing.T) {
	s := clienttest.New().
		SetString(mib.IfDescr+".1", "Gi0/1").
		SetString(mib.IfDescr+".2", "Gi0/2").
		SetInt(mib.IfType+".1", 6)

	got, err := newClient(s, 0).Walk(context.Background(), "IF-MIB::ifDescr", 0)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(Walk()) = %d, want 2", len(got))
	}
	if got[mib.IfDescr+".2"].String() != "Gi0/2" {
		t.Errorf("Walk()[.2] = %q", got[mib.IfDescr+".2"].String())
	}
}

func TestWalk_MaxRows(t *testing.T) {
	s := clienttest.New()
	for i := 1; i <= 10; i++ {
		s.SetInt(fmt.Sprintf("%s.%d", mib.IfType, i), 6)
	}
	got, err := newClient(s, 0).Walk(context.Background(), mib.IfType, 4)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(got) != 4 {
		t.Errorf("len(Walk()) = %d, want 4", len(got))
	}
}

func TestWalk_Cancelled(t *testing.T) {
	s := clienttest.New().SetInt(mib.IfType+".1", 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := newClient(s, 0).Walk(ctx, mib.IfType, 0)
	if !errors.Is(err, client.ErrNoData) || !errors.Is(err, context.Canceled) {
		t.Errorf("Walk() error = %v, want ErrNoData and context.Canceled", err)
	}
	if len(got) != 0 {
		t.Errorf("Walk() = %v, want empty", got)
	}
	if s.Calls() != 0 {
		t.Errorf("requests = %d, want 0 after cancellation", s.Calls())
	}
}

func TestWalk_Failure(t *testing.T) {
	s := clienttest.New().FailOn(mib.Dot1qTpFdbPort)
	_, err := newClient(s, 0).Walk(context.Background(), mib.Dot1qTpFdbPort, 0)
	if !errors.Is(err, client.ErrNoData) {
		t.Errorf("Walk() error = %v, want ErrNoData", err)
	}
}
