package uplink

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/vpbank/snmp_monitor/models"
)

// BuildReport aggregates the statuses of one cycle. ExecutionTime is rounded
// to two decimals.
func BuildReport(statuses []models.UplinkStatus, errs []models.DeviceError, started, finished time.Time) models.MonitoringReport {
	rep := models.MonitoringReport{
		Timestamp:    finished,
		Total:        len(statuses),
		Statuses:     statuses,
		DeviceErrors: errs,
	}
	if rep.Statuses == nil {
		rep.Statuses = []models.UplinkStatus{}
	}
	issues := make(map[string]bool)
	for _, st := range statuses {
		switch st.Severity {
		case models.Critical:
			rep.Critical++
		case models.Warning:
			rep.Warning++
		default:
			rep.Healthy++
		}
		down := operDown(st.Oper)
		if down {
			rep.Offline++
		}
		if st.Severity > models.Normal || down {
			issues[st.Device] = true
		}
		rep.AlertsGenerated += len(st.Alerts)
	}
	rep.DevicesWithIssues = len(issues)
	secs := decimal.NewFromInt(finished.Sub(started).Nanoseconds()).Div(decimal.NewFromInt(int64(time.Second)))
	rep.ExecutionTime, _ = secs.Round(2).Float64()
	return rep
}

// CriticalOnly returns rep with only critical statuses listed. Counters
// keep describing the whole cycle.
func CriticalOnly(rep models.MonitoringReport) models.MonitoringReport {
	kept := make([]models.UplinkStatus, 0, rep.Critical)
	for _, st := range rep.Statuses {
		if st.Severity == models.Critical {
			kept = append(kept, st)
		}
	}
	rep.Statuses = kept
	return rep
}

// ─────────────────────────────────────────────────────────────────────────────
// Rendering
// ─────────────────────────────────────────────────────────────────────────────

// WriteConsole renders rep for a terminal.
func WriteConsole(w io.Writer, rep models.MonitoringReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Uplink monitoring report %s\n", rep.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "  uplinks:   %s (healthy %d, warning %d, critical %d, offline %d)\n",
		humanize.Comma(int64(rep.Total)), rep.Healthy, rep.Warning, rep.Critical, rep.Offline)
	fmt.Fprintf(&b, "  devices with issues: %d, alerts: %d, device errors: %d\n",
		rep.DevicesWithIssues, rep.AlertsGenerated, len(rep.DeviceErrors))
	fmt.Fprintf(&b, "  execution time: %.2fs\n", rep.ExecutionTime)

	for _, st := range rep.Statuses {
		fmt.Fprintf(&b, "\n[%s] %s (%s) %s\n", strings.ToUpper(st.Severity.String()), st.Device, st.IP, st.IfName)
		fmt.Fprintf(&b, "  admin %s, oper %s, speed %s, rx %s, tx %s\n",
			st.Admin, st.Oper, bitRate(st.SpeedBps), dbm(st.RxDBm), dbm(st.TxDBm))
		if st.SFPVendor != "" || st.PartNumber != "" {
			fmt.Fprintf(&b, "  sfp %s %s\n", st.SFPVendor, st.PartNumber)
		}
		for _, a := range st.Alerts {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}
	for _, e := range rep.DeviceErrors {
		fmt.Fprintf(&b, "\n[ERROR] %s (%s) %s: %s\n", e.Device, e.IP, e.Stage, e.Error)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

var csvHeader = []string{
	"timestamp", "device", "ip", "branch", "vendor", "model", "if_index", "if_name",
	"admin_status", "oper_status", "speed_bps", "rx_power_dbm", "tx_power_dbm",
	"sfp_vendor", "part_number", "severity", "alerts",
}

// WriteCSV renders one row per status. Absent optical values are empty
// cells; alerts are joined with "; ".
func WriteCSV(w io.Writer, rep models.MonitoringReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, st := range rep.Statuses {
		row := []string{
			st.CheckedAt.Format(time.RFC3339),
			st.Device, st.IP, st.Branch, st.Vendor, st.Model,
			strconv.Itoa(st.IfIndex), st.IfName,
			st.Admin.String(), st.Oper.String(),
			strconv.FormatUint(st.SpeedBps, 10),
			optional(st.RxDBm), optional(st.TxDBm),
			st.SFPVendor, st.PartNumber,
			st.Severity.String(),
			strings.Join(st.Alerts, "; "),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func dbm(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64) + " dBm"
}

// bitRate renders bit/s with SI prefixes, e.g. "10 Gbit/s".
func bitRate(bps uint64) string {
	if bps == 0 {
		return "n/a"
	}
	return humanize.SI(float64(bps), "bit/s")
}
