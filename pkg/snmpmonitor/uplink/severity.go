package uplink

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/vpbank/snmp_monitor/models"
)

// Bounds are the four optical power thresholds of one direction, in dBm.
type Bounds struct {
	CriticalLow  float64 `yaml:"critical_low" json:"critical_low"`
	WarningLow   float64 `yaml:"warning_low" json:"warning_low"`
	WarningHigh  float64 `yaml:"warning_high" json:"warning_high"`
	CriticalHigh float64 `yaml:"critical_high" json:"critical_high"`
}

// Thresholds holds the RX and TX bounds.
type Thresholds struct {
	RX Bounds `yaml:"rx_power" json:"rx_power"`
	TX Bounds `yaml:"tx_power" json:"tx_power"`
}

// DefaultBounds are typical limits for SFP/SFP+ optics.
var DefaultBounds = Bounds{CriticalLow: -25, WarningLow: -20, WarningHigh: -8, CriticalHigh: -3}

// DefaultThresholds applies DefaultBounds to both directions.
func DefaultThresholds() Thresholds {
	return Thresholds{RX: DefaultBounds, TX: DefaultBounds}
}

// Validate checks that each direction is strictly ordered
// critical_low < warning_low < warning_high < critical_high.
func (t Thresholds) Validate() error {
	return errors.Join(t.RX.validate("rx_power"), t.TX.validate("tx_power"))
}

func (b Bounds) validate(name string) error {
	if b.CriticalLow < b.WarningLow && b.WarningLow < b.WarningHigh && b.WarningHigh < b.CriticalHigh {
		return nil
	}
	return fmt.Errorf("uplink: %s thresholds must satisfy critical_low < warning_low < warning_high < critical_high, got %v/%v/%v/%v",
		name, b.CriticalLow, b.WarningLow, b.WarningHigh, b.CriticalHigh)
}

// classify returns the severity of one power reading and the alert text,
// empty when normal. label is "RX" or "TX".
func (b Bounds) classify(label string, dbm float64) (models.Severity, string) {
	v := strconv.FormatFloat(dbm, 'f', -1, 64)
	switch {
	case dbm <= b.CriticalLow:
		return models.Critical, fmt.Sprintf("Critical low %s power: %s dBm", label, v)
	case dbm >= b.CriticalHigh:
		return models.Critical, fmt.Sprintf("Critical high %s power: %s dBm", label, v)
	case dbm <= b.WarningLow:
		return models.Warning, fmt.Sprintf("Low %s power warning: %s dBm", label, v)
	case dbm >= b.WarningHigh:
		return models.Warning, fmt.Sprintf("High %s power warning: %s dBm", label, v)
	}
	return models.Normal, ""
}

// operDown reports whether an oper status means no link.
func operDown(s models.IfStatus) bool {
	return s == models.StatusDown || s == models.StatusLowerDown || s == models.StatusNotPresent
}

// Evaluate recomputes st.Severity and st.Alerts from scratch. The result is
// the worst of the oper state, the admin state and each optical reading.
func Evaluate(st *models.UplinkStatus, th Thresholds) {
	var (
		alerts []string
		levels []models.Severity
	)
	name := st.IfName

	switch {
	case operDown(st.Oper):
		alerts = append(alerts, fmt.Sprintf("Interface %s is operationally down", name))
		levels = append(levels, models.Critical)
	case st.Oper.Unstable():
		alerts = append(alerts, fmt.Sprintf("Interface %s has unstable status: %s", name, st.Oper))
		levels = append(levels, models.Warning)
	}
	if st.Admin == models.StatusDown {
		alerts = append(alerts, fmt.Sprintf("Interface %s is administratively down", name))
		levels = append(levels, models.Warning)
	}
	if st.RxDBm != nil {
		if sev, msg := th.RX.classify("RX", *st.RxDBm); msg != "" {
			alerts = append(alerts, msg)
			levels = append(levels, sev)
		}
	}
	if st.TxDBm != nil {
		if sev, msg := th.TX.classify("TX", *st.TxDBm); msg != "" {
			alerts = append(alerts, msg)
			levels = append(levels, sev)
		}
	}

	st.Severity = models.Worst(levels...)
	if alerts == nil {
		alerts = []string{}
	}
	st.Alerts = alerts
}
