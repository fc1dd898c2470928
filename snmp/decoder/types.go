// Package decoder turns raw gosnmp PDUs into typed values with explicit
// presence. Expected absence (NoSuchObject, NoSuchInstance, EndOfMibView,
// Null) is an absent Value, never an error.
package decoder

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// SNMP PDU Type → String
// ─────────────────────────────────────────────────────────────────────────────

var pduTypeNames = map[gosnmp.Asn1BER]string{
	gosnmp.Integer:          "Integer",
	gosnmp.BitString:        "BitString",
	gosnmp.OctetString:      "OctetString",
	gosnmp.Null:             "Null",
	gosnmp.ObjectIdentifier: "ObjectIdentifier",
	gosnmp.IPAddress:        "IpAddress",
	gosnmp.Counter32:        "Counter32",
	gosnmp.Gauge32:          "Gauge32",
	gosnmp.TimeTicks:        "TimeTicks",
	gosnmp.Opaque:           "Opaque",
	gosnmp.Counter64:        "Counter64",
	gosnmp.Uinteger32:       "Unsigned32",
	gosnmp.OpaqueFloat:      "OpaqueFloat",
	gosnmp.OpaqueDouble:     "OpaqueDouble",
	gosnmp.NoSuchObject:     "NoSuchObject",
	gosnmp.NoSuchInstance:   "NoSuchInstance",
	gosnmp.EndOfMibView:     "EndOfMibView",
}

// PDUTypeString returns the human-readable name for a gosnmp Asn1BER type tag.
func PDUTypeString(t gosnmp.Asn1BER) string {
	if n, ok := pduTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
}

// IsErrorType returns true when the PDU type signals "no value" rather than
// an actual value.
func IsErrorType(t gosnmp.Asn1BER) bool {
	return t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance || t == gosnmp.EndOfMibView || t == gosnmp.Null
}

// ─────────────────────────────────────────────────────────────────────────────
// Low-level conversion helpers
// ─────────────────────────────────────────────────────────────────────────────

// toInt64 converts the raw gosnmp value to int64. gosnmp returns integers as
// int, uint, uint32 or uint64 depending on the PDU type.
func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("uint64 value %d overflows int64", x)
		}
		return int64(x), nil
	case string, []byte:
		f, err := parseNumericText(x)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

// toUint64 converts the raw gosnmp value to uint64, rejecting negatives.
func toUint64(v interface{}) (uint64, error) {
	if u, ok := v.(uint64); ok {
		return u, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("negative value %d cannot be converted to uint64", i)
	}
	return uint64(i), nil
}

// toFloat64 widens any numeric type to float64. Octet strings holding a
// decimal number ("-3.45") are parsed, as some devices report optical power
// as text.
func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string, []byte:
		return parseNumericText(x)
	case uint64:
		return float64(x), nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
	return float64(i), nil
}

func parseNumericText(v interface{}) (float64, error) {
	s, _ := toDisplayString(v)
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", s)
	}
	return f, nil
}

// toDisplayString converts an OctetString to a UTF-8 string, stripping the
// trailing null bytes devices sometimes append.
func toDisplayString(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimRight(x, "\x00"), nil
	case []byte:
		return strings.TrimRight(string(x), "\x00"), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// toMAC interprets a 6-byte octet string as a hardware address.
func toMAC(v interface{}) (net.HardwareAddr, error) {
	var b []byte
	switch x := v.(type) {
	case []byte:
		b = x
	case string:
		b = []byte(x)
	default:
		return nil, fmt.Errorf("cannot convert %T to MAC", v)
	}
	if len(b) != 6 {
		return nil, fmt.Errorf("MAC must be 6 octets, got %d", len(b))
	}
	return net.HardwareAddr(append([]byte(nil), b...)), nil
}
