// Package fees implements performance-fee accrual above a high-water mark.
//
// Fees are only ever charged on share-price gains beyond the highest price
// previously harvested; drawdowns and flat performance charge nothing, and
// the mark never decreases, so a recovery after a loss is not double-billed.
//
// All monetary values use shopspring/decimal — never float64 for money.
package fees

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrFeeTooHigh is returned when the performance fee exceeds the hard
	// cap. Enforced at the setter, not at harvest time.
	ErrFeeTooHigh = errors.New("fees: performance fee exceeds hard cap")

	// ErrInvalidMark is returned when constructing state with a
	// non-positive initial share price.
	ErrInvalidMark = errors.New("fees: initial high-water mark must be positive")

	// MaxFeeBps is the hard cap on the performance fee (30%).
	MaxFeeBps int64 = 3000

	// ShareScale is the number of decimal places for minted fee shares.
	ShareScale int32 = 8
)

var bpsDenominator = decimal.NewFromInt(10000)

// State tracks the high-water mark and fee configuration.
type State struct {
	HighWaterMark decimal.Decimal `json:"high_water_mark"`
	FeeBps        decimal.Decimal `json:"fee_bps"`
	LastHarvestAt time.Time       `json:"last_harvest_at"`
}

// NewState creates fee state with the mark anchored at the genesis share
// price, so fees accrue only on gains above it.
func NewState(initialSharePrice decimal.Decimal, feeBps int64) (*State, error) {
	if initialSharePrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidMark
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return nil, ErrFeeTooHigh
	}
	return &State{
		HighWaterMark: initialSharePrice,
		FeeBps:        decimal.NewFromInt(feeBps),
	}, nil
}

// SetFeeBps changes the fee rate. The hard cap lives here so a harvest can
// never observe an out-of-range rate.
func (s *State) SetFeeBps(feeBps int64) error {
	if feeBps < 0 || feeBps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	s.FeeBps = decimal.NewFromInt(feeBps)
	return nil
}

// Harvest computes the performance fee for the current share price.
//
// If the price is at or below the high-water mark, or the gain is so
// small the fee rounds down to zero shares, this is a no-op: zero fee,
// mark unchanged. Otherwise the fee is feeBps of the profit above
// the mark, returned both as an asset value and as the share count to
// mint at the current price, and the mark advances to the current price.
func (s *State) Harvest(sharePrice, totalShares decimal.Decimal, now time.Time) (feeShares, feeAssets decimal.Decimal) {
	if sharePrice.LessThanOrEqual(s.HighWaterMark) || totalShares.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero
	}

	profit := sharePrice.Sub(s.HighWaterMark).Mul(totalShares)
	feeAssets = profit.Mul(s.FeeBps).Div(bpsDenominator)
	feeShares = feeAssets.Div(sharePrice).RoundDown(ShareScale)
	if feeShares.IsZero() {
		// The gain is too small to mint a single share unit. Leave the
		// mark where it is so the fee is still collectable once the gain
		// grows past rounding dust.
		return decimal.Zero, decimal.Zero
	}

	s.HighWaterMark = sharePrice
	s.LastHarvestAt = now
	return feeShares, feeAssets
}
