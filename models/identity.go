package models

import "time"

// Unit conversion ids for raw optical register values.
const (
	ConvDBm         = "dbm"         // already dBm
	ConvTenths      = "tenths"      // dBm × 10
	ConvHundredths  = "hundredths"  // dBm × 100
	ConvThousandths = "thousandths" // dBm × 1000
	ConvMilliwatt   = "milliwatt"   // mW, 10·log10(mW)
	ConvMicrowatt   = "microwatt"   // µW, 10·log10(µW/1000)
)

// RegisterMap holds the optical register templates of a device. A template
// is a numeric OID that either contains the "{ifindex}" placeholder or gets
// ".<ifIndex>" appended. Empty fields are not polled.
type RegisterMap struct {
	RxPower    string `json:"rx_power,omitempty" yaml:"rx_power"`
	TxPower    string `json:"tx_power,omitempty" yaml:"tx_power"`
	SFPVendor  string `json:"sfp_vendor,omitempty" yaml:"sfp_vendor"`
	PartNumber string `json:"part_number,omitempty" yaml:"part_number"`
	Conversion string `json:"conversion,omitempty" yaml:"conversion"`
}

// Merge returns m with every non-empty field of o applied on top.
func (m RegisterMap) Merge(o RegisterMap) RegisterMap {
	if o.RxPower != "" {
		m.RxPower = o.RxPower
	}
	if o.TxPower != "" {
		m.TxPower = o.TxPower
	}
	if o.SFPVendor != "" {
		m.SFPVendor = o.SFPVendor
	}
	if o.PartNumber != "" {
		m.PartNumber = o.PartNumber
	}
	if o.Conversion != "" {
		m.Conversion = o.Conversion
	}
	return m
}

// IsZero reports whether no register is configured.
func (m RegisterMap) IsZero() bool {
	return m == RegisterMap{}
}

// Interface is one merged IF-MIB row.
type Interface struct {
	Index         int      `json:"if_index"`
	Name          string   `json:"name"`
	Descr         string   `json:"descr"`
	Alias         string   `json:"alias,omitempty"`
	Type          int      `json:"type"`
	SpeedBps      uint64   `json:"speed_bps"`
	Admin         IfStatus `json:"admin_status"`
	Oper          IfStatus `json:"oper_status"`
	LastChange    uint32   `json:"last_change"`
	Virtual       bool     `json:"virtual"`
	VirtualReason string   `json:"virtual_reason,omitempty"`
	Uplink        bool     `json:"uplink"`
}

// DisplayName returns the name, falling back to the description.
func (i Interface) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Descr
}

// DeviceIdentity is the derived identity of a device. It is cached and
// invalidated when the system identity registers change.
type DeviceIdentity struct {
	Device        string      `json:"device"`
	IP            string      `json:"ip"`
	SysName       string      `json:"sys_name"`
	SysDescr      string      `json:"sys_descr"`
	SysObjectID   string      `json:"sys_object_id"`
	EnterpriseOID string      `json:"enterprise_oid"`
	Vendor        string      `json:"vendor"`
	Model         string      `json:"model"`
	DeviceType    string      `json:"device_type"`
	Capabilities  []string    `json:"capabilities"`
	IfNumber      int         `json:"if_number"`
	Uptime        uint32      `json:"uptime"`
	Registers     RegisterMap `json:"register_map"`
	Interfaces    []Interface `json:"interfaces,omitempty"`
	Uplinks       []Interface `json:"uplinks"`
	FailedSteps   []string    `json:"failed_steps,omitempty"`
	IdentifiedAt  time.Time   `json:"identified_at"`
	Fingerprint   uint64      `json:"fingerprint"`
}
