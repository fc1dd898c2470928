// Package json serialises the records produced by a monitoring cycle.
//
// Every record is wrapped in an envelope naming its kind so that a single
// stream can carry samples, forwarding entries, identities, uplink statuses,
// reports and link events:
//
//	{"kind":"bandwidth_sample","timestamp":"…","data":{…}}
//
// All json struct tags live on the model types themselves.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vpbank/snmp_monitor/models"
)

// Record kinds carried in the envelope.
const (
	KindSample     = "bandwidth_sample"
	KindForwarding = "forwarding_entry"
	KindIdentity   = "device_identity"
	KindUplink     = "uplink_status"
	KindReport     = "monitoring_report"
	KindEvent      = "link_event"
	KindError      = "device_error"
)

// Kinds lists every record kind.
var Kinds = []string{KindSample, KindForwarding, KindIdentity, KindUplink, KindReport, KindEvent, KindError}

// Envelope is the serialised form of one record.
type Envelope struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// KindOf returns the record kind of v.
func KindOf(v any) (string, error) {
	switch v.(type) {
	case models.BandwidthSample, *models.BandwidthSample:
		return KindSample, nil
	case models.ForwardingEntry, *models.ForwardingEntry:
		return KindForwarding, nil
	case models.DeviceIdentity, *models.DeviceIdentity:
		return KindIdentity, nil
	case models.UplinkStatus, *models.UplinkStatus:
		return KindUplink, nil
	case models.MonitoringReport, *models.MonitoringReport:
		return KindReport, nil
	case models.LinkEvent, *models.LinkEvent:
		return KindEvent, nil
	case models.DeviceError, *models.DeviceError:
		return KindError, nil
	default:
		return "", fmt.Errorf("format/json: unsupported record type %T", v)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Formatter
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises one record into a byte slice.
type Formatter interface {
	Format(record any) ([]byte, error)
}

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented JSON when true.
	PrettyPrint bool

	// Indent is used when PrettyPrint is set. Default two spaces.
	Indent string

	// Now stamps the envelopes. Default time.Now.
	Now func() time.Time
}

// JSONFormatter implements Formatter with encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format wraps record in an Envelope and serialises it.
func (f *JSONFormatter) Format(record any) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("format/json: record must not be nil")
	}
	kind, err := KindOf(record)
	if err != nil {
		return nil, err
	}
	env := Envelope{Kind: kind, Timestamp: f.cfg.Now().UTC(), Data: record}

	var data []byte
	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(env, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(env)
	}
	if err != nil {
		f.logger.Error("format/json: marshal failed", "kind", kind, "error", err.Error())
		return nil, fmt.Errorf("format/json: marshal %s: %w", kind, err)
	}

	f.logger.Debug("format/json: formatted record", "kind", kind, "bytes", len(data))
	return data, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
