// Package reserve implements the bootstrap reserve fund.
//
// The fund pays per-operation venue costs on behalf of users and is
// replenished by redemption fees. Its balance never goes negative: a
// shortfall is recorded as yieldBorrowed, an explicit liability, instead
// of an invalid balance. Incoming fees repay liabilities in strict
// priority order — yield debt first, founder capital second, and only
// then does the balance itself grow.
//
// All monetary values use shopspring/decimal — never float64 for money.
package reserve

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for non-positive amounts.
var ErrInvalidAmount = errors.New("reserve: amount must be positive")

// Fund holds the reserve state. Mutation is driven exclusively by the
// vault's serialized operation path.
type Fund struct {
	Balance    decimal.Decimal `json:"balance"`
	MinBalance decimal.Decimal `json:"min_balance"`

	// YieldBorrowed is the outstanding liability created when venue
	// costs exceeded the balance.
	YieldBorrowed decimal.Decimal `json:"yield_borrowed"`

	// FounderContribution is the remaining unpaid bootstrap capital.
	FounderContribution decimal.Decimal `json:"founder_contribution"`

	TotalOpeningFeesPaid         decimal.Decimal `json:"total_opening_fees_paid"`
	TotalRedemptionFeesCollected decimal.Decimal `json:"total_redemption_fees_collected"`
}

// NewFund creates an empty reserve with the given health floor.
func NewFund(minBalance decimal.Decimal) *Fund {
	return &Fund{MinBalance: minBalance}
}

// FundFounder records bootstrap capital: the balance grows and an equal
// founder liability is recorded for later repayment.
func (f *Fund) FundFounder(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	f.Balance = f.Balance.Add(amount)
	f.FounderContribution = f.FounderContribution.Add(amount)
	return nil
}

// CoverOpeningCost pays a venue cost on a user's behalf. If the balance
// is short, it is drained to zero and the shortfall becomes yield debt.
func (f *Fund) CoverOpeningCost(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	f.TotalOpeningFeesPaid = f.TotalOpeningFeesPaid.Add(amount)

	if f.Balance.GreaterThanOrEqual(amount) {
		f.Balance = f.Balance.Sub(amount)
		return nil
	}

	shortfall := amount.Sub(f.Balance)
	f.Balance = decimal.Zero
	f.YieldBorrowed = f.YieldBorrowed.Add(shortfall)
	return nil
}

// CollectRedemptionFee applies an incoming fee through the repayment
// waterfall: (1) yield debt, (2) founder capital, (3) balance. The
// returned founderRepaid amount is what the caller owes back to the
// founder account; the engine journals it, transfer plumbing is outside
// the core.
func (f *Fund) CollectRedemptionFee(fee decimal.Decimal) (founderRepaid decimal.Decimal, err error) {
	if fee.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	f.TotalRedemptionFeesCollected = f.TotalRedemptionFeesCollected.Add(fee)
	remaining := fee

	// Yield debt is always repaid first; founder capital must never be
	// touched while any yield debt is outstanding.
	if f.YieldBorrowed.IsPositive() {
		repay := decimal.Min(remaining, f.YieldBorrowed)
		f.YieldBorrowed = f.YieldBorrowed.Sub(repay)
		remaining = remaining.Sub(repay)
	}

	if remaining.IsPositive() && f.FounderContribution.IsPositive() {
		founderRepaid = decimal.Min(remaining, f.FounderContribution)
		f.FounderContribution = f.FounderContribution.Sub(founderRepaid)
		remaining = remaining.Sub(founderRepaid)
	}

	f.Balance = f.Balance.Add(remaining)
	return founderRepaid, nil
}

// Healthy reports whether the reserve can absorb costs without borrowing:
// balance at or above the floor and no outstanding yield debt.
func (f *Fund) Healthy() bool {
	return f.Balance.GreaterThanOrEqual(f.MinBalance) && f.YieldBorrowed.IsZero()
}
