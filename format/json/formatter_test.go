package json_test

import (
	stdjson "encoding/json"
	"strings"
	"testing"
	"time"

	fmtjson "github.com/vpbank/snmp_monitor/format/json"
	"github.com/vpbank/snmp_monitor/models"
)

var testTimestamp = time.Date(2026, 2, 26, 10, 30, 0, 123_000_000, time.UTC)

func fixedNow() time.Time { return testTimestamp }

func TestKindOf(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{models.BandwidthSample{}, fmtjson.KindSample},
		{&models.ForwardingEntry{}, fmtjson.KindForwarding},
		{models.DeviceIdentity{}, fmtjson.KindIdentity},
		{models.UplinkStatus{}, fmtjson.KindUplink},
		{models.MonitoringReport{}, fmtjson.KindReport},
		{models.LinkEvent{}, fmtjson.KindEvent},
		{models.DeviceError{}, fmtjson.KindError},
	}
	for _, tt := range tests {
		got, err := fmtjson.KindOf(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("KindOf(%T) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := fmtjson.KindOf(42); err == nil {
		t.Error("KindOf(int) error = nil")
	}
}

func TestFormat_Sample(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{Now: fixedNow}, nil)
	sample := models.BandwidthSample{
		Device:          "sw1",
		IfIndex:         3,
		IfName:          "Gi1/0/3",
		Timestamp:       testTimestamp,
		InBps:           16000,
		OutBps:          8000,
		IntervalSeconds: 60,
		InDelta:         120000,
		OutDelta:        60000,
		Width:           64,
	}
	data, err := f.Format(sample)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.Contains(string(data), "\n") {
		t.Errorf("compact output contains newline: %s", data)
	}

	var got struct {
		Kind      string                 `json:"kind"`
		Timestamp time.Time              `json:"timestamp"`
		Data      models.BandwidthSample `json:"data"`
	}
	if err := stdjson.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != fmtjson.KindSample || !got.Timestamp.Equal(testTimestamp) {
		t.Errorf("envelope = %q at %v", got.Kind, got.Timestamp)
	}
	if got.Data != sample {
		t.Errorf("data = %+v, want %+v", got.Data, sample)
	}
}

func TestFormat_UplinkPowerAndSeverity(t *testing.T) {
	rx := -22.5
	f := fmtjson.New(fmtjson.Config{Now: fixedNow}, nil)
	data, err := f.Format(models.UplinkStatus{
		Device:   "sw1",
		Oper:     models.StatusLowerDown,
		RxDBm:    &rx,
		Severity: models.Warning,
		Alerts:   []string{"Low RX power warning: -22.5 dBm"},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{
		`"rx_power_dbm":-22.5`,
		`"tx_power_dbm":null`,
		`"severity":"warning"`,
		`"oper_status":"lowerLayerDown"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %s:\n%s", want, s)
		}
	}
}

func TestFormat_CommunityNeverSerialised(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{}, nil)
	data, err := f.Format(models.DeviceError{Device: "sw1", Stage: "connect", Error: "timeout"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "community") {
		t.Errorf("output leaks community: %s", data)
	}
}

func TestFormat_Pretty(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{PrettyPrint: true, Now: fixedNow}, nil)
	data, err := f.Format(models.LinkEvent{Device: "10.0.0.1", Kind: models.LinkDown, IfIndex: 4})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"kind\": \"link_event\"") {
		t.Errorf("pretty output = %s", data)
	}
}

func TestFormat_Errors(t *testing.T) {
	f := fmtjson.New(fmtjson.Config{}, nil)
	if _, err := f.Format(nil); err == nil {
		t.Error("Format(nil) error = nil")
	}
	if _, err := f.Format("text"); err == nil {
		t.Error("Format(string) error = nil")
	}
}
