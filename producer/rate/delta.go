// Package rate turns successive octet counter snapshots into bandwidth
// samples. It owns the rollover arithmetic and the last-snapshot state per
// interface; sample history is left to the consumer.
package rate

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/vpbank/snmp_monitor/models"
)

// ErrIndeterminate means no trustworthy rate can be derived from the two
// observations: a counter reset, an out-of-range value, a bad interval.
var ErrIndeterminate = errors.New("rate: indeterminate")

// MaxValue returns the largest value a counter of the given width holds.
func MaxValue(width int) (uint64, error) {
	switch width {
	case models.Width32:
		return 1<<32 - 1, nil
	case models.Width64:
		return ^uint64(0), nil
	default:
		return 0, fmt.Errorf("%w: unsupported counter width %d", ErrIndeterminate, width)
	}
}

// ComputeDelta returns the increase from prev to curr for a counter of width
// bits, assuming at most one rollover when curr < prev:
//
//	delta = (2^width - 1 - prev) + curr + 1
//
// Values that do not fit the width cannot come from a single counter and are
// reported as ErrIndeterminate.
func ComputeDelta(prev, curr uint64, width int) (uint64, error) {
	limit, err := MaxValue(width)
	if err != nil {
		return 0, err
	}
	if prev > limit || curr > limit {
		return 0, fmt.Errorf("%w: value exceeds %d-bit range (prev=%d curr=%d)", ErrIndeterminate, width, prev, curr)
	}
	if curr >= prev {
		return curr - prev, nil
	}
	// curr+1 <= prev, so the sum stays within limit.
	return (limit - prev) + curr + 1, nil
}

// ComputeBps derives floor(delta × 8 / interval) for both directions.
// interval must be positive. The octet deltas are returned alongside.
func ComputeBps(prev, curr models.CounterSnapshot, intervalSeconds float64, width int) (Rates, error) {
	if intervalSeconds <= 0 {
		return Rates{}, fmt.Errorf("%w: non-positive interval %.3fs", ErrIndeterminate, intervalSeconds)
	}
	inDelta, err := ComputeDelta(prev.InOctets, curr.InOctets, width)
	if err != nil {
		return Rates{}, fmt.Errorf("in octets: %w", err)
	}
	outDelta, err := ComputeDelta(prev.OutOctets, curr.OutOctets, width)
	if err != nil {
		return Rates{}, fmt.Errorf("out octets: %w", err)
	}

	interval := decimal.NewFromFloat(intervalSeconds)
	inBps, err := bitsPerSecond(inDelta, interval)
	if err != nil {
		return Rates{}, err
	}
	outBps, err := bitsPerSecond(outDelta, interval)
	if err != nil {
		return Rates{}, err
	}
	return Rates{InBps: inBps, OutBps: outBps, InDelta: inDelta, OutDelta: outDelta}, nil
}

// Rates is the result of ComputeBps.
type Rates struct {
	InBps, OutBps     uint64
	InDelta, OutDelta uint64
}

var eight = decimal.NewFromInt(8)

func bitsPerSecond(delta uint64, interval decimal.Decimal) (uint64, error) {
	bps := decimal.NewFromBigInt(new(big.Int).SetUint64(delta), 0).
		Mul(eight).
		Div(interval).
		Floor()
	if bps.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative rate %s", ErrIndeterminate, bps)
	}
	b := bps.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("%w: rate %s overflows", ErrIndeterminate, bps)
	}
	return b.Uint64(), nil
}
