// Package quant holds the fixed-point conventions shared by the vault:
// amounts are int64 base units of the accounting asset, prices are scaled
// by PriceScale and fee rates are expressed in basis points.
package quant

import (
	"fmt"
	"math"
	"sync/atomic"

	"epoch_vault/pkg/safe"

	"github.com/shopspring/decimal"
)

const (
	// PriceScale is the fixed-point scale of price per share (1.0 == PriceScale).
	PriceScale int64 = 1_000_000_000_000

	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator int64 = 10_000
)

// BpsOf returns floor(amount * bps / 10000).
func BpsOf(amount, bps int64) int64 {
	return safe.MulDiv(amount, bps, BpsDenominator)
}

// ParseUnits converts a human amount ("500.25") into base units using the
// asset decimals. Amounts with more precision than the asset supports are rejected.
func ParseUnits(amount decimal.Decimal, decimals int32) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount: %s", amount)
	}
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s exceeds %d decimals", amount, decimals)
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("amount %s overflows int64 base units", amount)
	}
	return shifted.IntPart(), nil
}

// MustParseUnits is ParseUnits for literals known to be valid.
func MustParseUnits(amount string, decimals int32) int64 {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	v, err := ParseUnits(d, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders base units as a human amount.
func FormatUnits(amount int64, decimals int32) string {
	return decimal.New(amount, -decimals).StringFixed(decimals)
}

// FormatPrice renders a PriceScale-scaled price per share.
func FormatPrice(price int64) string {
	return decimal.NewFromInt(price).Div(decimal.NewFromInt(PriceScale)).StringFixed(6)
}

// FormatBps renders basis points as a percentage.
func FormatBps(bps int64) string {
	return decimal.New(bps, -2).StringFixed(2) + "%"
}

// NextSeq atomically increments the counter and returns the new value.
func NextSeq(counter *uint64) uint64 {
	return atomic.AddUint64(counter, 1)
}
