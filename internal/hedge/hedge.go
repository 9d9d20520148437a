// Package hedge owns the leveraged hedge position and its health math.
//
// The health factor is expressed in basis points of remaining collateral:
//
//	health = (collateral + unrealizedPnL) / collateral * 10000
//
// 10000 bps means the position is exactly as funded as when it opened;
// losses push it down toward liquidation. With no position open the
// factor is reported as 10000 — there is nothing at risk.
//
// All monetary values use shopspring/decimal — never float64 for money.
package hedge

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCollateral is returned when opening a position with
	// non-positive collateral.
	ErrInvalidCollateral = errors.New("hedge: collateral must be positive")

	// ErrInvalidLeverage is returned when leverage is not positive.
	ErrInvalidLeverage = errors.New("hedge: leverage must be positive")

	// ErrInconsistentPosition is returned when collateral * leverage
	// does not match the notional within rounding tolerance.
	ErrInconsistentPosition = errors.New("hedge: collateral * leverage does not match notional")
)

var (
	// FullHealthBps is the health factor of a freshly opened position.
	FullHealthBps = decimal.NewFromInt(10000)

	// RebalanceThresholdBps: below this the position needs a rebalance.
	RebalanceThresholdBps = decimal.NewFromInt(5000)

	// IncreaseGuardBps: below this, position increases are refused
	// outright (liquidation-risk guard), independent of rebalancing.
	IncreaseGuardBps = decimal.NewFromInt(2000)

	// ConsistencyTolerance bounds the allowed rounding drift between
	// notional and collateral * leverage.
	ConsistencyTolerance = decimal.New(1, -6) // 0.000001
)

// Position is the engine's record of the open hedge. It is owned
// exclusively by the vault's serialized mutation path; a nil *Position
// means no position is open.
type Position struct {
	Collateral decimal.Decimal `json:"collateral"`
	Notional   decimal.Decimal `json:"notional"`
	Leverage   decimal.Decimal `json:"leverage"`
}

// NewPosition opens a position record with notional = collateral * leverage.
func NewPosition(collateral, leverage decimal.Decimal) (*Position, error) {
	if collateral.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidCollateral
	}
	if leverage.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLeverage
	}
	return &Position{
		Collateral: collateral,
		Notional:   collateral.Mul(leverage),
		Leverage:   leverage,
	}, nil
}

// Adjust applies a collateral delta, scaling notional by the position's
// leverage so the collateral*leverage == notional invariant holds.
func (p *Position) Adjust(deltaCollateral decimal.Decimal) error {
	newCollateral := p.Collateral.Add(deltaCollateral)
	if newCollateral.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidCollateral
	}
	p.Collateral = newCollateral
	p.Notional = newCollateral.Mul(p.Leverage)
	return nil
}

// Consistent verifies collateral * leverage == notional within tolerance.
func (p *Position) Consistent() error {
	want := p.Collateral.Mul(p.Leverage)
	if want.Sub(p.Notional).Abs().GreaterThan(ConsistencyTolerance) {
		return ErrInconsistentPosition
	}
	return nil
}

// HealthFactor computes the position's health in basis points given the
// venue-reported unrealized PnL. Read-only: callable by anyone, never
// mutates state. A nil position reports full health.
func HealthFactor(p *Position, unrealizedPnL decimal.Decimal) decimal.Decimal {
	if p == nil || p.Collateral.LessThanOrEqual(decimal.Zero) {
		return FullHealthBps
	}
	equity := p.Collateral.Add(unrealizedPnL)
	if equity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return equity.Mul(FullHealthBps).Div(p.Collateral).RoundDown(0)
}

// NeedsRebalance reports whether the health factor has degraded past the
// rebalance threshold.
func NeedsRebalance(healthBps decimal.Decimal) bool {
	return healthBps.LessThan(RebalanceThresholdBps)
}

// IncreaseAllowed reports whether new position increases are permitted.
// Below the guard threshold the position is too close to liquidation for
// more exposure, regardless of whether a rebalance has been triggered.
func IncreaseAllowed(healthBps decimal.Decimal) bool {
	return healthBps.GreaterThanOrEqual(IncreaseGuardBps)
}
