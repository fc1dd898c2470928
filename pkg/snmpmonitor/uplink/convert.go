// Package uplink polls the state and optical power of uplink interfaces,
// classifies their health and aggregates the results into a monitoring
// report.
package uplink

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vpbank/snmp_monitor/models"
)

// ErrConversion is returned for raw values a conversion cannot map to dBm.
var ErrConversion = errors.New("uplink: unconvertible optical value")

// Converter maps a raw optical register value to dBm.
type Converter func(raw float64) (float64, error)

var (
	ten      = decimal.NewFromInt(10)
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

func scaled(div decimal.Decimal) Converter {
	return func(raw float64) (float64, error) {
		return round(decimal.NewFromFloat(raw).Div(div)), nil
	}
}

func logarithmic(toMilliwatt float64) Converter {
	return func(raw float64) (float64, error) {
		if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
			return 0, fmt.Errorf("%w: %v is not a positive power", ErrConversion, raw)
		}
		return round(decimal.NewFromFloat(10 * math.Log10(raw*toMilliwatt))), nil
	}
}

var converters = map[string]Converter{
	models.ConvDBm:         scaled(decimal.NewFromInt(1)),
	models.ConvTenths:      scaled(ten),
	models.ConvHundredths:  scaled(hundred),
	models.ConvThousandths: scaled(thousand),
	models.ConvMilliwatt:   logarithmic(1),
	models.ConvMicrowatt:   logarithmic(0.001),
}

// ConverterFor returns the converter registered under id. An empty id means
// the device reports dBm.
func ConverterFor(id string) (Converter, error) {
	if id == "" {
		id = models.ConvDBm
	}
	c, ok := converters[strings.ToLower(id)]
	if !ok {
		return nil, fmt.Errorf("uplink: unknown conversion %q", id)
	}
	return c, nil
}

// ValidConversion reports whether id names a known conversion.
func ValidConversion(id string) bool {
	_, err := ConverterFor(id)
	return err == nil
}

// Convert applies the conversion id to raw.
func Convert(id string, raw float64) (float64, error) {
	c, err := ConverterFor(id)
	if err != nil {
		return 0, err
	}
	return c(raw)
}

func round(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// Expand fills an optical register template for one interface. Templates
// with the "{ifindex}" placeholder have it replaced; others get ".ifIndex"
// appended.
func Expand(template string, ifIndex int) string {
	if template == "" {
		return ""
	}
	idx := strconv.Itoa(ifIndex)
	if strings.Contains(template, "{ifindex}") {
		return strings.ReplaceAll(template, "{ifindex}", idx)
	}
	return strings.TrimSuffix(template, ".") + "." + idx
}
