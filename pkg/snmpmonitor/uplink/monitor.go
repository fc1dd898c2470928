package uplink

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/client"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
	"github.com/vpbank/snmp_monitor/snmp/iface"
	"github.com/vpbank/snmp_monitor/snmp/mib"
)

// Monitor reads and classifies uplink health. It keeps no state between
// calls and is safe for concurrent use.
type Monitor struct {
	th     Thresholds
	logger *slog.Logger
	now    func() time.Time
}

// NewMonitor creates a Monitor. now may be nil.
func NewMonitor(th Thresholds, logger *slog.Logger, now func() time.Time) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &Monitor{th: th, logger: logger, now: now}
}

// Thresholds returns the thresholds in use.
func (m *Monitor) Thresholds() Thresholds { return m.th }

// Check polls every uplink of ident and returns one status per uplink. The
// state registers of all uplinks are read in one batch; losing that batch
// fails the device. Optical registers are read in a second batch and their
// loss only leaves the power fields nil.
func (m *Monitor) Check(ctx context.Context, r client.Reader, dev models.Device, ident models.DeviceIdentity) ([]models.UplinkStatus, error) {
	if len(ident.Uplinks) == 0 {
		return nil, nil
	}

	stateRefs := make([]string, 0, len(ident.Uplinks)*5)
	for _, u := range ident.Uplinks {
		for _, col := range stateColumns {
			stateRefs = append(stateRefs, at(col, u.Index))
		}
	}
	state, err := r.GetMany(ctx, stateRefs)
	if err != nil {
		return nil, fmt.Errorf("uplink: state of %s: %w", dev.Hostname, err)
	}

	regs := ident.Registers
	conv, convErr := ConverterFor(regs.Conversion)
	if convErr != nil {
		m.logger.Warn("uplink: optical values dropped",
			"device", dev.Hostname,
			"error", convErr.Error(),
		)
	}

	var optRefs []string
	for _, u := range ident.Uplinks {
		for _, tmpl := range []string{regs.RxPower, regs.TxPower, regs.SFPVendor, regs.PartNumber} {
			if oid := Expand(tmpl, u.Index); oid != "" {
				optRefs = append(optRefs, oid)
			}
		}
	}
	optical := map[string]decoder.Value{}
	if len(optRefs) > 0 {
		if optical, err = r.GetMany(ctx, optRefs); err != nil {
			m.logger.Debug("uplink: optical registers unavailable",
				"device", dev.Hostname,
				"error", err.Error(),
			)
		}
	}

	checked := m.now()
	out := make([]models.UplinkStatus, 0, len(ident.Uplinks))
	for _, u := range ident.Uplinks {
		st := models.UplinkStatus{
			Device:    dev.Hostname,
			IP:        dev.IP,
			Branch:    dev.Branch,
			Vendor:    ident.Vendor,
			Model:     ident.Model,
			IfIndex:   u.Index,
			IfName:    u.DisplayName(),
			CheckedAt: checked,
		}
		if v, ok := state[at(mib.IfAdminStatus, u.Index)].Int(); ok {
			st.Admin = models.IfStatus(v)
		}
		if v, ok := state[at(mib.IfOperStatus, u.Index)].Int(); ok {
			st.Oper = models.IfStatus(v)
		}
		speed, _ := state[at(mib.IfSpeed, u.Index)].Uint64()
		high, _ := state[at(mib.IfHighSpeed, u.Index)].Uint64()
		st.SpeedBps = iface.Speed(speed, high)
		if v, ok := state[at(mib.IfLastChange, u.Index)].Uint64(); ok {
			st.LastChange = uint32(v)
		}

		if convErr == nil {
			st.RxDBm = m.power(dev.Hostname, optical, Expand(regs.RxPower, u.Index), conv)
			st.TxDBm = m.power(dev.Hostname, optical, Expand(regs.TxPower, u.Index), conv)
		}
		st.SFPVendor = optical[Expand(regs.SFPVendor, u.Index)].String()
		st.PartNumber = optical[Expand(regs.PartNumber, u.Index)].String()

		Evaluate(&st, m.th)
		out = append(out, st)
	}
	return out, nil
}

var stateColumns = []string{mib.IfAdminStatus, mib.IfOperStatus, mib.IfSpeed, mib.IfHighSpeed, mib.IfLastChange}

// power converts one optical register. Absent and unparsable values are nil.
func (m *Monitor) power(device string, vals map[string]decoder.Value, oid string, conv Converter) *float64 {
	if oid == "" {
		return nil
	}
	raw, ok := vals[oid].Float64()
	if !ok {
		return nil
	}
	dbm, err := conv(raw)
	if err != nil {
		m.logger.Debug("uplink: optical value dropped", "device", device, "oid", oid, "error", err.Error())
		return nil
	}
	return &dbm
}

func at(col string, idx int) string {
	return col + "." + strconv.Itoa(idx)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
