package rate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vpbank/snmp_monitor/models"
)

// Engine turns counter observations into bandwidth samples.
type Engine struct {
	store  SnapshotStore
	logger *slog.Logger
}

// NewEngine creates an Engine over store. A nil store means a MemoryStore.
func NewEngine(store SnapshotStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Engine{store: store, logger: logger}
}

// Observe records snap as the interface's latest state and returns a sample
// against the previous state when one can be computed.
//
//   - First observation: no sample.
//   - Counter width changed (HC counters appeared or vanished): no sample,
//     snap becomes the new baseline.
//   - Anomaly (ErrIndeterminate): no sample, snap still becomes the baseline.
//
// A non-nil error is only returned when the store itself fails.
func (e *Engine) Observe(ctx context.Context, snap models.CounterSnapshot, ifName string) (models.BandwidthSample, bool, error) {
	prev, found, err := e.store.Swap(ctx, snap)
	if err != nil {
		return models.BandwidthSample{}, false, err
	}
	if !found {
		return models.BandwidthSample{}, false, nil
	}
	if prev.Width != snap.Width {
		e.logger.Debug("rate: counter width changed, re-baselining",
			"device", snap.Device, "if_index", snap.IfIndex,
			"from", prev.Width, "to", snap.Width,
		)
		return models.BandwidthSample{}, false, nil
	}

	interval := snap.Timestamp.Sub(prev.Timestamp).Seconds()
	r, err := ComputeBps(prev, snap, interval, snap.Width)
	if err != nil {
		if errors.Is(err, ErrIndeterminate) {
			e.logger.Warn("rate: counter anomaly, sample suppressed",
				"device", snap.Device, "if_index", snap.IfIndex, "error", err.Error(),
			)
			return models.BandwidthSample{}, false, nil
		}
		return models.BandwidthSample{}, false, err
	}

	return models.BandwidthSample{
		Device:          snap.Device,
		IfIndex:         snap.IfIndex,
		IfName:          ifName,
		Timestamp:       snap.Timestamp,
		InBps:           r.InBps,
		OutBps:          r.OutBps,
		IntervalSeconds: interval,
		InDelta:         r.InDelta,
		OutDelta:        r.OutDelta,
		Width:           snap.Width,
	}, true, nil
}

// Forget drops every snapshot of device, e.g. after it rebooted and its
// counters restarted from zero.
func (e *Engine) Forget(ctx context.Context, device string) error {
	return e.store.Forget(ctx, device)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
