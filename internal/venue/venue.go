// Package venue defines the collaborator interfaces the vault core
// consumes — the yield strategy, the leveraged hedge venue, the price
// oracle, and the fee sink — plus venue reference parsing, the whitelist
// registry, deterministic simulators, and a failure breaker wrapper.
//
// The core never trusts a venue's non-erroring return: after every
// mutating call it re-reads the venue's observable state and verifies the
// post-condition itself.
package venue

import (
	"context"

	"github.com/shopspring/decimal"
)

// YieldStrategy is a lending-style venue holding the principal leg.
type YieldStrategy interface {
	// Deposit places principal and returns the venue's own share count.
	Deposit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)

	// Withdraw removes up to amount and returns what actually came back.
	Withdraw(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)

	// WithdrawAll drains the venue and returns the amount recovered.
	WithdrawAll(ctx context.Context) (decimal.Decimal, error)

	// TotalAssets reports the current value of the vault's holdings.
	TotalAssets(ctx context.Context) (decimal.Decimal, error)
}

// HedgeProvider is a leveraged-position venue holding the hedge leg.
type HedgeProvider interface {
	// Open opens a fresh position.
	Open(ctx context.Context, collateral, notional, leverage decimal.Decimal) error

	// Adjust applies signed collateral/notional deltas to the open position.
	Adjust(ctx context.Context, deltaCollateral, deltaNotional decimal.Decimal) error

	// Close fully closes the position, returning the collateral and the
	// realized PnL (signed).
	Close(ctx context.Context) (collateral, pnl decimal.Decimal, err error)

	// Collateral reports the venue-side collateral of the open position.
	Collateral(ctx context.Context) (decimal.Decimal, error)

	// PnL reports the unrealized PnL (signed) of the open position.
	PnL(ctx context.Context) (decimal.Decimal, error)
}

// PriceOracle supplies a validated price. A stale price must be treated
// as no price at all for any write operation.
type PriceOracle interface {
	Price(ctx context.Context) (value decimal.Decimal, stale bool, err error)
}

// FeeSink receives performance-fee shares. Pull-payment: the core's
// obligation ends at crediting, not at delivery.
type FeeSink interface {
	Receive(ctx context.Context, shares decimal.Decimal) error
}
