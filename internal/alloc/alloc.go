// Package alloc implements the capital allocation engine that splits
// incoming principal between the yield strategy and the hedge position.
//
// Allocation uses the configured target ratio in basis points; deallocation
// is proportional to the *current* holdings of the two legs, because yield
// accrual and hedge PnL make them drift away from the target over time.
//
// All monetary values use shopspring/decimal — never float64 for money.
package alloc

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRatio is returned when the yield leg is not strictly
	// between 0 and 10000 bps. Both legs must receive a share of every
	// allocation, so 0% and 100% are malformed.
	ErrInvalidRatio = errors.New("alloc: yield ratio must be strictly between 0 and 10000 bps")

	// ErrDustAllocation is returned when rounding would leave one leg
	// with zero. Degenerate dust deposits are rejected rather than
	// silently collapsing into a single-leg allocation.
	ErrDustAllocation = errors.New("alloc: amount too small to fund both legs")

	// ErrInsufficientHoldings is returned when a deallocation asks for
	// more than the two legs currently hold.
	ErrInsufficientHoldings = errors.New("alloc: deallocation exceeds current holdings")

	// AmountScale is the number of decimal places for allocated amounts.
	AmountScale int32 = 8
)

var bpsDenominator = decimal.NewFromInt(10000)

// Engine splits capital by a fixed target ratio. It is stateless with
// respect to the vault — holdings are passed as arguments, not stored —
// so a ratio change never retroactively rebalances existing funds.
type Engine struct {
	yieldBps decimal.Decimal
}

// NewEngine creates an allocation engine targeting yieldBps to the yield
// strategy and (10000 - yieldBps) to the hedge.
func NewEngine(yieldBps int64) (*Engine, error) {
	if yieldBps <= 0 || yieldBps >= 10000 {
		return nil, ErrInvalidRatio
	}
	return &Engine{yieldBps: decimal.NewFromInt(yieldBps)}, nil
}

// YieldBps returns the target yield-leg ratio in basis points.
func (e *Engine) YieldBps() int64 {
	return e.yieldBps.IntPart()
}

// Allocate splits amount by the target ratio. Both returned amounts are
// guaranteed non-zero; the hedge leg absorbs the rounding remainder so
// the two legs always sum exactly to amount.
func (e *Engine) Allocate(amount decimal.Decimal) (yieldAmt, hedgeAmt decimal.Decimal, err error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrDustAllocation
	}

	yieldAmt = amount.Mul(e.yieldBps).Div(bpsDenominator).RoundDown(AmountScale)
	hedgeAmt = amount.Sub(yieldAmt)

	if yieldAmt.LessThanOrEqual(decimal.Zero) || hedgeAmt.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrDustAllocation
	}
	return yieldAmt, hedgeAmt, nil
}

// Deallocate computes a proportional withdrawal from both legs matching
// the ratio of the current holdings, not the nominal target. The yield
// amount is rounded down and the hedge leg absorbs the remainder, so the
// two parts always sum exactly to amount.
func (e *Engine) Deallocate(amount, yieldHeld, hedgeHeld decimal.Decimal) (yieldAmt, hedgeAmt decimal.Decimal, err error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrDustAllocation
	}

	total := yieldHeld.Add(hedgeHeld)
	if total.LessThan(amount) {
		return decimal.Zero, decimal.Zero, ErrInsufficientHoldings
	}

	yieldAmt = amount.Mul(yieldHeld).Div(total).RoundDown(AmountScale)
	hedgeAmt = amount.Sub(yieldAmt)

	// A fully drifted vault may legitimately have one empty leg on the
	// way out; clamp rather than reject so full redemptions drain both.
	if hedgeAmt.GreaterThan(hedgeHeld) {
		hedgeAmt = hedgeHeld
		yieldAmt = amount.Sub(hedgeAmt)
	}
	return yieldAmt, hedgeAmt, nil
}
