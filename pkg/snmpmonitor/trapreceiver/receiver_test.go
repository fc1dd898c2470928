package trapreceiver_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/trapreceiver"
	"github.com/vpbank/snmp_monitor/snmp/trap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func stubParseFunc(ev models.LinkEvent, err error) trapreceiver.ParseFunc {
	return func(*gosnmp.SnmpPacket, *net.UDPAddr) (models.LinkEvent, error) {
		return ev, err
	}
}

// freePort finds a free UDP port on localhost.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func startReceiver(t *testing.T, cfg trapreceiver.Config) (*trapreceiver.TrapReceiver, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := trapreceiver.New(cfg, nil)
	if err := r.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	return r, cancel
}

// sendTrap sends one v2c notification to port.
func sendTrap(t *testing.T, port int, community, trapOID string, vars ...gosnmp.SnmpPDU) {
	t.Helper()
	sender := &gosnmp.GoSNMP{
		Target:    "127.0.0.1",
		Port:      uint16(port),
		Version:   gosnmp.Version2c,
		Community: community,
		Timeout:   2 * time.Second,
	}
	if err := sender.Connect(); err != nil {
		t.Fatalf("sender.Connect: %v", err)
	}
	defer sender.Conn.Close()

	pdus := append([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(12345)},
		{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: trapOID},
	}, vars...)
	if _, err := sender.SendTrap(gosnmp.SnmpTrap{Variables: pdus}); err != nil {
		t.Fatalf("SendTrap: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_Defaults(t *testing.T) {
	r := trapreceiver.New(trapreceiver.Config{}, nil)
	if r.ListenAddr() != "0.0.0.0:162" {
		t.Errorf("ListenAddr() = %q", r.ListenAddr())
	}
	if cap(r.Output()) != 1024 {
		t.Errorf("output cap = %d, want 1024", cap(r.Output()))
	}
}

func TestStop_ClosesOutputAndIsIdempotent(t *testing.T) {
	r, cancel := startReceiver(t, trapreceiver.Config{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", freePort(t)),
	})
	defer cancel()

	r.Stop()
	r.Stop()

	select {
	case _, ok := <-r.Output():
		if ok {
			t.Error("expected output channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Error("output channel not closed within 2s")
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	r, cancel := startReceiver(t, trapreceiver.Config{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", freePort(t)),
	})
	defer cancel()
	defer r.Stop()

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error on second Start, got nil")
	}
}

func TestStart_BadAddr(t *testing.T) {
	r := trapreceiver.New(trapreceiver.Config{ListenAddr: "999.999.999.999:9999"}, nil)
	if err := r.Start(context.Background()); err == nil {
		r.Stop()
		t.Fatal("expected error for bad address, got nil")
	}
}

func TestContextCancel_ClosesOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := trapreceiver.New(trapreceiver.Config{ListenAddr: fmt.Sprintf("127.0.0.1:%d", freePort(t))}, nil)
	if err := r.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case _, ok := <-r.Output():
		if ok {
			t.Error("expected closed channel after context cancel")
		}
	case <-time.After(3 * time.Second):
		t.Error("output channel not closed within 3s after ctx cancel")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delivery over loopback
// ─────────────────────────────────────────────────────────────────────────────

func TestRealUDP_LinkDownDelivered(t *testing.T) {
	port := freePort(t)
	r, cancel := startReceiver(t, trapreceiver.Config{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", port),
		Community:  "public",
	})
	defer cancel()
	defer r.Stop()

	sendTrap(t, port, "public", "1.3.6.1.6.3.1.1.5.3",
		gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.1.3", Type: gosnmp.Integer, Value: 3})

	select {
	case got := <-r.Output():
		if got.Kind != models.LinkDown || got.IfIndex != 3 || got.Device != "127.0.0.1" {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for link event")
	}
}

func TestRealUDP_Filtered(t *testing.T) {
	port := freePort(t)
	r, cancel := startReceiver(t, trapreceiver.Config{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", port),
		Community:  "public",
	})
	defer cancel()
	defer r.Stop()

	sendTrap(t, port, "wrong", "1.3.6.1.6.3.1.1.5.3")
	sendTrap(t, port, "public", "1.3.6.1.4.1.9.9.41.2.0.1")

	select {
	case ev, ok := <-r.Output():
		if ok {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestParseError_NoEmit(t *testing.T) {
	port := freePort(t)
	r, cancel := startReceiver(t, trapreceiver.Config{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", port),
		ParseFunc:  stubParseFunc(models.LinkEvent{}, fmt.Errorf("%w: test", trap.ErrIgnored)),
	})
	defer cancel()
	defer r.Stop()

	sendTrap(t, port, "public", "1.3.6.1.6.3.1.1.5.3")
	select {
	case ev, ok := <-r.Output():
		if ok {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(200 * time.Millisecond):
	}
}
