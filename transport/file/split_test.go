package file_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	fmtjson "github.com/vpbank/snmp_monitor/format/json"
	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/transport/file"
)

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport
// ─────────────────────────────────────────────────────────────────────────────

type splitBufs struct {
	samples, uplinks, def bytes.Buffer
}

func newSplit(t *testing.T) (*splitBufs, *file.SplitWriterTransport) {
	t.Helper()
	b := &splitBufs{}
	tr := file.NewSplit(file.SplitConfig{
		Writers: map[string]io.Writer{
			fmtjson.KindSample: &b.samples,
			fmtjson.KindUplink: &b.uplinks,
		},
		Default: &b.def,
	}, nil)
	return b, tr
}

func TestSplit_RoutesByKind(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want func(*splitBufs) *bytes.Buffer
	}{
		{"sample", `{"kind":"bandwidth_sample","data":{}}`, func(b *splitBufs) *bytes.Buffer { return &b.samples }},
		{"uplink with spaces", `{"kind" : "uplink_status","data":{}}`, func(b *splitBufs) *bytes.Buffer { return &b.uplinks }},
		{"unrouted kind", `{"kind":"link_event","data":{}}`, func(b *splitBufs) *bytes.Buffer { return &b.def }},
		{"no kind", `{"device":"sw1"}`, func(b *splitBufs) *bytes.Buffer { return &b.def }},
		{"kind not a string", `{"kind":3}`, func(b *splitBufs) *bytes.Buffer { return &b.def }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, tr := newSplit(t)
			if err := tr.Send([]byte(tt.msg)); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			want := tt.want(b)
			if want.String() != tt.msg+"\n" {
				t.Errorf("routed output = %q, want %q", want.String(), tt.msg+"\n")
			}
			total := b.samples.Len() + b.uplinks.Len() + b.def.Len()
			if total != len(tt.msg)+1 {
				t.Errorf("record written to more than one destination")
			}
		})
	}
}

func TestSplit_FormatterOutput(t *testing.T) {
	b, tr := newSplit(t)
	f := fmtjson.New(fmtjson.Config{PrettyPrint: true}, nil)

	data, err := f.Format(models.UplinkStatus{Device: "sw1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(data); err != nil {
		t.Fatal(err)
	}
	// The event's own "kind" field is nested under data and must not win.
	ev, _ := f.Format(models.LinkEvent{Device: "10.0.0.1", Kind: models.LinkDown})
	if err := tr.Send(ev); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(b.uplinks.String(), `"device": "sw1"`) {
		t.Errorf("uplink writer = %q", b.uplinks.String())
	}
	if !strings.Contains(b.def.String(), `"link_down"`) {
		t.Errorf("default writer = %q", b.def.String())
	}
}

func TestSplit_ConcurrentSafe(t *testing.T) {
	b, tr := newSplit(t)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = tr.Send([]byte(`{"kind":"bandwidth_sample"}`))
			} else {
				_ = tr.Send([]byte(`{"kind":"uplink_status"}`))
			}
		}(i)
	}
	wg.Wait()

	if n := strings.Count(b.samples.String(), "\n"); n != 20 {
		t.Errorf("sample lines = %d, want 20", n)
	}
	if n := strings.Count(b.uplinks.String(), "\n"); n != 20 {
		t.Errorf("uplink lines = %d, want 20", n)
	}
}

func TestSplit_WriterError(t *testing.T) {
	tr := file.NewSplit(file.SplitConfig{
		Writers: map[string]io.Writer{fmtjson.KindSample: errWriter{}},
		Default: &bytes.Buffer{},
	}, nil)
	err := tr.Send([]byte(`{"kind":"bandwidth_sample"}`))
	if err == nil || !strings.Contains(err.Error(), "bandwidth_sample") {
		t.Errorf("Send() error = %v, want route named", err)
	}
	if err := tr.Send([]byte(`{"kind":"other"}`)); err != nil {
		t.Errorf("default route error = %v", err)
	}
}

func TestSplit_WithRotatingFiles(t *testing.T) {
	dir := t.TempDir()
	open := func(name string) *file.RotatingFile {
		rf, err := file.NewRotatingFile(file.RotateConfig{FilePath: filepath.Join(dir, name)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		return rf
	}
	samples, rest := open("samples.json"), open("records.json")
	tr := file.NewSplit(file.SplitConfig{
		Writers: map[string]io.Writer{fmtjson.KindSample: samples},
		Default: rest,
	}, nil)

	_ = tr.Send([]byte(`{"kind":"bandwidth_sample"}`))
	_ = tr.Send([]byte(`{"kind":"device_identity"}`))
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, err := samples.Write([]byte("x")); err == nil {
		t.Error("sample file still writable after Close")
	}

	got, _ := os.ReadFile(filepath.Join(dir, "samples.json"))
	if string(got) != "{\"kind\":\"bandwidth_sample\"}\n" {
		t.Errorf("samples.json = %q", got)
	}
	got, _ = os.ReadFile(filepath.Join(dir, "records.json"))
	if string(got) != "{\"kind\":\"device_identity\"}\n" {
		t.Errorf("records.json = %q", got)
	}
}

func TestSplit_CloseBuffersIsNoop(t *testing.T) {
	_, tr := newSplit(t)
	if err := tr.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
