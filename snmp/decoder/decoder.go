package decoder

import (
	"net"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// Value is one register read. The zero Value is absent.
type Value struct {
	Type    gosnmp.Asn1BER
	Raw     interface{}
	present bool
}

// Absent returns a Value that carries no data.
func Absent() Value { return Value{} }

// FromPDU converts a response varbind. Error sentinels become absent values.
func FromPDU(pdu gosnmp.SnmpPDU) Value {
	if IsErrorType(pdu.Type) {
		return Value{Type: pdu.Type}
	}
	return Value{Type: pdu.Type, Raw: pdu.Value, present: true}
}

// Of wraps a native value, mainly for tests and fakes.
func Of(t gosnmp.Asn1BER, v interface{}) Value {
	return FromPDU(gosnmp.SnmpPDU{Type: t, Value: v})
}

// Present reports whether the device returned a value.
func (v Value) Present() bool { return v.present }

// Int64 returns the value as a signed integer.
func (v Value) Int64() (int64, bool) {
	if !v.present {
		return 0, false
	}
	i, err := toInt64(v.Raw)
	return i, err == nil
}

// Int is Int64 narrowed to int.
func (v Value) Int() (int, bool) {
	i, ok := v.Int64()
	return int(i), ok
}

// Uint64 returns the value as an unsigned integer. Counter64 values are
// returned exactly; negative integers fail.
func (v Value) Uint64() (uint64, bool) {
	if !v.present {
		return 0, false
	}
	u, err := toUint64(v.Raw)
	return u, err == nil
}

// Float64 returns the value as a float. Numeric text is parsed.
func (v Value) Float64() (float64, bool) {
	if !v.present {
		return 0, false
	}
	f, err := toFloat64(v.Raw)
	return f, err == nil
}

// String returns a display form: octet strings as text, OIDs without the
// leading dot, numbers in decimal. Absent values are "".
func (v Value) String() string {
	if !v.present {
		return ""
	}
	switch v.Type {
	case gosnmp.ObjectIdentifier:
		s, _ := toDisplayString(v.Raw)
		return strings.TrimPrefix(s, ".")
	case gosnmp.IPAddress:
		if b, ok := v.Raw.([]byte); ok && len(b) == 4 {
			return net.IP(b).String()
		}
	}
	s, _ := toDisplayString(v.Raw)
	return strings.TrimSpace(s)
}

// MAC returns the value as a hardware address.
func (v Value) MAC() (net.HardwareAddr, bool) {
	if !v.present {
		return nil, false
	}
	m, err := toMAC(v.Raw)
	return m, err == nil
}
