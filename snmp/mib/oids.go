package mib

// SNMPv2-MIB system group scalars.
const (
	SysDescr    = "1.3.6.1.2.1.1.1.0"
	SysObjectID = "1.3.6.1.2.1.1.2.0"
	SysUpTime   = "1.3.6.1.2.1.1.3.0"
	SysName     = "1.3.6.1.2.1.1.5.0"
	IfNumber    = "1.3.6.1.2.1.2.1.0"
)

// IF-MIB ifTable columns.
const (
	IfDescr       = "1.3.6.1.2.1.2.2.1.2"
	IfType        = "1.3.6.1.2.1.2.2.1.3"
	IfSpeed       = "1.3.6.1.2.1.2.2.1.5"
	IfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	IfOperStatus  = "1.3.6.1.2.1.2.2.1.8"
	IfLastChange  = "1.3.6.1.2.1.2.2.1.9"
	IfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	IfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
)

// IF-MIB ifXTable columns.
const (
	IfName        = "1.3.6.1.2.1.31.1.1.1.1"
	IfHCInOctets  = "1.3.6.1.2.1.31.1.1.1.6"
	IfHCOutOctets = "1.3.6.1.2.1.31.1.1.1.10"
	IfHighSpeed   = "1.3.6.1.2.1.31.1.1.1.15"
	IfAlias       = "1.3.6.1.2.1.31.1.1.1.18"
)

// BRIDGE-MIB and Q-BRIDGE-MIB columns.
const (
	Dot1dBasePortIfIndex = "1.3.6.1.2.1.17.1.4.1.2"
	Dot1dTpFdbPort       = "1.3.6.1.2.1.17.4.3.1.2"
	Dot1qTpFdbPort       = "1.3.6.1.2.1.17.7.1.2.2.1.2"
	Dot1qPvid            = "1.3.6.1.2.1.17.7.1.4.5.1.1"
)

// Notification OIDs.
const (
	SnmpTrapOID = "1.3.6.1.6.3.1.1.4.1.0"
	ColdStart   = "1.3.6.1.6.3.1.1.5.1"
	WarmStart   = "1.3.6.1.6.3.1.1.5.2"
	LinkDown    = "1.3.6.1.6.3.1.1.5.3"
	LinkUp      = "1.3.6.1.6.3.1.1.5.4"
	IfIndex     = "1.3.6.1.2.1.2.2.1.1"
)

// EnterprisesPrefix is the root of private enterprise numbers.
const EnterprisesPrefix = "1.3.6.1.4.1"

var builtin = map[string]string{
	"SNMPv2-MIB::sysDescr":    "1.3.6.1.2.1.1.1",
	"SNMPv2-MIB::sysObjectID": "1.3.6.1.2.1.1.2",
	"SNMPv2-MIB::sysUpTime":   "1.3.6.1.2.1.1.3",
	"SNMPv2-MIB::sysContact":  "1.3.6.1.2.1.1.4",
	"SNMPv2-MIB::sysName":     "1.3.6.1.2.1.1.5",
	"SNMPv2-MIB::sysLocation": "1.3.6.1.2.1.1.6",
	"SNMPv2-MIB::snmpTrapOID": "1.3.6.1.6.3.1.1.4.1",
	"SNMPv2-MIB::coldStart":   ColdStart,
	"SNMPv2-MIB::warmStart":   WarmStart,
	"IF-MIB::linkDown":        LinkDown,
	"IF-MIB::linkUp":          LinkUp,

	"IF-MIB::ifNumber":      "1.3.6.1.2.1.2.1",
	"IF-MIB::ifIndex":       IfIndex,
	"IF-MIB::ifDescr":       IfDescr,
	"IF-MIB::ifType":        IfType,
	"IF-MIB::ifSpeed":       IfSpeed,
	"IF-MIB::ifAdminStatus": IfAdminStatus,
	"IF-MIB::ifOperStatus":  IfOperStatus,
	"IF-MIB::ifLastChange":  IfLastChange,
	"IF-MIB::ifInOctets":    IfInOctets,
	"IF-MIB::ifOutOctets":   IfOutOctets,
	"IF-MIB::ifName":        IfName,
	"IF-MIB::ifHCInOctets":  IfHCInOctets,
	"IF-MIB::ifHCOutOctets": IfHCOutOctets,
	"IF-MIB::ifHighSpeed":   IfHighSpeed,
	"IF-MIB::ifAlias":       IfAlias,

	"BRIDGE-MIB::dot1dBasePortIfIndex": Dot1dBasePortIfIndex,
	"BRIDGE-MIB::dot1dTpFdbPort":       Dot1dTpFdbPort,
	"Q-BRIDGE-MIB::dot1qTpFdbPort":     Dot1qTpFdbPort,
	"Q-BRIDGE-MIB::dot1qPvid":          Dot1qPvid,
}
