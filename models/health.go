package models

import (
	"fmt"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Severity
// ─────────────────────────────────────────────────────────────────────────────

// Severity is a totally ordered health level. The zero value is Normal.
type Severity int

const (
	Normal Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Normal:
		return "normal"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "normal", "healthy", "":
		*s = Normal
	case "warning":
		*s = Warning
	case "critical":
		*s = Critical
	default:
		return fmt.Errorf("models: unknown severity %q", b)
	}
	return nil
}

// Worst returns the highest of the given severities.
func Worst(levels ...Severity) Severity {
	w := Normal
	for _, l := range levels {
		if l > w {
			w = l
		}
	}
	return w
}

// ─────────────────────────────────────────────────────────────────────────────
// Interface status (IF-MIB ifAdminStatus / ifOperStatus)
// ─────────────────────────────────────────────────────────────────────────────

// IfStatus is an IF-MIB interface status value.
type IfStatus int

const (
	StatusUnknownValue IfStatus = 0
	StatusUp           IfStatus = 1
	StatusDown         IfStatus = 2
	StatusTesting      IfStatus = 3
	StatusUnknown      IfStatus = 4
	StatusDormant      IfStatus = 5
	StatusNotPresent   IfStatus = 6
	StatusLowerDown    IfStatus = 7
)

var ifStatusNames = map[IfStatus]string{
	StatusUp:         "up",
	StatusDown:       "down",
	StatusTesting:    "testing",
	StatusUnknown:    "unknown",
	StatusDormant:    "dormant",
	StatusNotPresent: "notPresent",
	StatusLowerDown:  "lowerLayerDown",
}

func (s IfStatus) String() string {
	if n, ok := ifStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the status by name.
func (s IfStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *IfStatus) UnmarshalText(b []byte) error {
	for k, n := range ifStatusNames {
		if n == string(b) {
			*s = k
			return nil
		}
	}
	*s = StatusUnknownValue
	return nil
}

// Unstable reports whether the status is one of testing, unknown or dormant.
func (s IfStatus) Unstable() bool {
	return s == StatusTesting || s == StatusUnknown || s == StatusDormant
}

// ─────────────────────────────────────────────────────────────────────────────
// Uplink health records
// ─────────────────────────────────────────────────────────────────────────────

// UplinkStatus is the per-cycle health of one uplink interface. RxDBm and
// TxDBm are nil when the device did not expose the optical registers.
type UplinkStatus struct {
	Device     string    `json:"device"`
	IP         string    `json:"ip"`
	Branch     string    `json:"branch,omitempty"`
	Vendor     string    `json:"vendor"`
	Model      string    `json:"model"`
	IfIndex    int       `json:"if_index"`
	IfName     string    `json:"if_name"`
	Admin      IfStatus  `json:"admin_status"`
	Oper       IfStatus  `json:"oper_status"`
	SpeedBps   uint64    `json:"speed_bps"`
	LastChange uint32    `json:"last_change"` // sysUpTime ticks
	RxDBm      *float64  `json:"rx_power_dbm"`
	TxDBm      *float64  `json:"tx_power_dbm"`
	SFPVendor  string    `json:"sfp_vendor,omitempty"`
	PartNumber string    `json:"part_number,omitempty"`
	Severity   Severity  `json:"severity"`
	Alerts     []string  `json:"alerts"`
	CheckedAt  time.Time `json:"checked_at"`
}

// DeviceError records a device that produced no data for a cycle.
type DeviceError struct {
	Device string `json:"device"`
	IP     string `json:"ip"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// MonitoringReport summarises one monitoring cycle.
type MonitoringReport struct {
	Timestamp         time.Time      `json:"timestamp"`
	Total             int            `json:"total_uplinks"`
	Healthy           int            `json:"healthy"`
	Warning           int            `json:"warning"`
	Critical          int            `json:"critical"`
	Offline           int            `json:"offline"`
	DevicesWithIssues int            `json:"switches_with_issues"`
	Statuses          []UplinkStatus `json:"statuses"`
	DeviceErrors      []DeviceError  `json:"device_errors,omitempty"`
	ExecutionTime     float64        `json:"execution_time"` // seconds, two decimals
	AlertsGenerated   int            `json:"alerts_generated"`
}
