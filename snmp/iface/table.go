package iface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

// ErrNoInterfaces is returned when neither ifDescr nor ifName could be
// walked.
var ErrNoInterfaces = errors.New("iface: no interfaces")

// ─────────────────────────────────────────────────────────────────────────────
// Interface enumeration
// ─────────────────────────────────────────────────────────────────────────────

// Collect walks the IF-MIB columns and merges them per ifIndex. A column that
// fails to walk leaves its field empty on every row; only the loss of both
// naming columns is an error. Interfaces are returned sorted by index with
// Virtual and VirtualReason filled in.
func Collect(ctx context.Context, r client.Reader, logger *slog.Logger) ([]models.Interface, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	cols := []string{
		mib.IfDescr, mib.IfName, mib.IfType, mib.IfSpeed, mib.IfHighSpeed,
		mib.IfAdminStatus, mib.IfOperStatus, mib.IfLastChange, mib.IfAlias,
	}
	tables := make(map[string]map[int]decoder.Value, len(cols))
	var failed []error
	for _, col := range cols {
		rows, err := r.Walk(ctx, col, 0)
		if err != nil {
			failed = append(failed, err)
			logger.Debug("iface: column walk failed", "oid", col, "error", err.Error())
		}
		tables[col] = decoder.Column(col, rows)
	}
	if len(tables[mib.IfDescr]) == 0 && len(tables[mib.IfName]) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoInterfaces, errors.Join(failed...))
	}

	indexes := make(map[int]bool)
	for _, rows := range tables {
		for idx := range rows {
			indexes[idx] = true
		}
	}

	out := make([]models.Interface, 0, len(indexes))
	for idx := range indexes {
		out = append(out, merge(idx, tables))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func merge(idx int, t map[string]map[int]decoder.Value) models.Interface {
	in := models.Interface{
		Index: idx,
		Descr: t[mib.IfDescr][idx].String(),
		Name:  t[mib.IfName][idx].String(),
		Alias: t[mib.IfAlias][idx].String(),
	}
	in.Type, _ = t[mib.IfType][idx].Int()
	if v, ok := t[mib.IfAdminStatus][idx].Int(); ok {
		in.Admin = models.IfStatus(v)
	}
	if v, ok := t[mib.IfOperStatus][idx].Int(); ok {
		in.Oper = models.IfStatus(v)
	}
	if v, ok := t[mib.IfLastChange][idx].Uint64(); ok {
		in.LastChange = uint32(v)
	}
	speed, _ := t[mib.IfSpeed][idx].Uint64()
	high, _ := t[mib.IfHighSpeed][idx].Uint64()
	in.SpeedBps = Speed(speed, high)
	in.Virtual, in.VirtualReason = Classify(in.Type, in.Name, in.Descr, in.Alias)
	return in
}

// Speed returns the interface speed in bit/s from ifSpeed and ifHighSpeed
// (Mbit/s), taking whichever is larger. ifSpeed saturates at 2^32-1 on
// links faster than ~4.3 Gbit/s.
func Speed(ifSpeed, ifHighSpeed uint64) uint64 {
	return max(ifSpeed, ifHighSpeed*1_000_000)
}

// ─────────────────────────────────────────────────────────────────────────────
// Octet counters
// ─────────────────────────────────────────────────────────────────────────────

// PollCounters reads the octet counters of every physical interface in ifs,
// preferring the 64-bit HC counters and falling back to the 32-bit ones per
// interface. Virtual interfaces are skipped. An interface with neither
// counter pair is left out.
func PollCounters(ctx context.Context, r client.Reader, device string, ifs []models.Interface, now func() time.Time) ([]models.CounterSnapshot, error) {
	if now == nil {
		now = time.Now
	}
	var physical []int
	for _, in := range ifs {
		if !in.Virtual {
			physical = append(physical, in.Index)
		}
	}
	if len(physical) == 0 {
		return nil, nil
	}

	hc, hcErr := r.GetMany(ctx, counterRefs(physical, mib.IfHCInOctets, mib.IfHCOutOctets))
	hcAt := now()

	snaps := make([]models.CounterSnapshot, 0, len(physical))
	var missing []int
	for _, idx := range physical {
		in, okIn := hc[oidAt(mib.IfHCInOctets, idx)].Uint64()
		out, okOut := hc[oidAt(mib.IfHCOutOctets, idx)].Uint64()
		if !okIn || !okOut {
			missing = append(missing, idx)
			continue
		}
		snaps = append(snaps, models.CounterSnapshot{
			Device: device, IfIndex: idx, InOctets: in, OutOctets: out,
			Timestamp: hcAt, Width: models.Width64,
		})
	}
	if len(missing) == 0 {
		return snaps, nil
	}

	lc, lcErr := r.GetMany(ctx, counterRefs(missing, mib.IfInOctets, mib.IfOutOctets))
	lcAt := now()
	for _, idx := range missing {
		in, okIn := lc[oidAt(mib.IfInOctets, idx)].Uint64()
		out, okOut := lc[oidAt(mib.IfOutOctets, idx)].Uint64()
		if !okIn || !okOut {
			continue
		}
		snaps = append(snaps, models.CounterSnapshot{
			Device: device, IfIndex: idx, InOctets: in, OutOctets: out,
			Timestamp: lcAt, Width: models.Width32,
		})
	}
	if len(snaps) == 0 && (hcErr != nil || lcErr != nil) {
		return nil, fmt.Errorf("iface: counters on %s: %w", device, errors.Join(hcErr, lcErr))
	}
	return snaps, nil
}

func counterRefs(idxs []int, inCol, outCol string) []string {
	refs := make([]string, 0, len(idxs)*2)
	for _, idx := range idxs {
		refs = append(refs, oidAt(inCol, idx), oidAt(outCol, idx))
	}
	return refs
}

func oidAt(col string, idx int) string {
	return col + "." + strconv.Itoa(idx)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
