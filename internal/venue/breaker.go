package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// Breaker wrappers: defense-in-depth around venue calls. A venue that
// starts failing repeatedly gets its calls short-circuited instead of
// letting every vault operation ride out a full timeout. This is a
// failure-count breaker and entirely separate from the price circuit
// breaker in internal/safety.

func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return gobreaker.NewCircuitBreaker(st)
}

// BreakerStrategy wraps a YieldStrategy with a failure breaker.
type BreakerStrategy struct {
	inner YieldStrategy
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStrategy wraps a strategy.
func NewBreakerStrategy(name string, inner YieldStrategy) *BreakerStrategy {
	return &BreakerStrategy{inner: inner, cb: newBreaker(name)}
}

func (b *BreakerStrategy) call(fn func() (decimal.Decimal, error)) (decimal.Decimal, error) {
	out, err := b.cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		return decimal.Zero, err
	}
	return out.(decimal.Decimal), nil
}

func (b *BreakerStrategy) Deposit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return b.call(func() (decimal.Decimal, error) { return b.inner.Deposit(ctx, amount) })
}

func (b *BreakerStrategy) Withdraw(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return b.call(func() (decimal.Decimal, error) { return b.inner.Withdraw(ctx, amount) })
}

func (b *BreakerStrategy) WithdrawAll(ctx context.Context) (decimal.Decimal, error) {
	return b.call(func() (decimal.Decimal, error) { return b.inner.WithdrawAll(ctx) })
}

func (b *BreakerStrategy) TotalAssets(ctx context.Context) (decimal.Decimal, error) {
	return b.call(func() (decimal.Decimal, error) { return b.inner.TotalAssets(ctx) })
}

// BreakerHedge wraps a HedgeProvider with a failure breaker.
type BreakerHedge struct {
	inner HedgeProvider
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerHedge wraps a hedge provider.
func NewBreakerHedge(name string, inner HedgeProvider) *BreakerHedge {
	return &BreakerHedge{inner: inner, cb: newBreaker(name)}
}

func (b *BreakerHedge) Open(ctx context.Context, collateral, notional, leverage decimal.Decimal) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Open(ctx, collateral, notional, leverage)
	})
	return err
}

func (b *BreakerHedge) Adjust(ctx context.Context, deltaCollateral, deltaNotional decimal.Decimal) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Adjust(ctx, deltaCollateral, deltaNotional)
	})
	return err
}

func (b *BreakerHedge) Close(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	type result struct{ collateral, pnl decimal.Decimal }
	out, err := b.cb.Execute(func() (any, error) {
		c, p, err := b.inner.Close(ctx)
		return result{c, p}, err
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	r := out.(result)
	return r.collateral, r.pnl, nil
}

func (b *BreakerHedge) Collateral(ctx context.Context) (decimal.Decimal, error) {
	out, err := b.cb.Execute(func() (any, error) { return b.inner.Collateral(ctx) })
	if err != nil {
		return decimal.Zero, err
	}
	return out.(decimal.Decimal), nil
}

func (b *BreakerHedge) PnL(ctx context.Context) (decimal.Decimal, error) {
	out, err := b.cb.Execute(func() (any, error) { return b.inner.PnL(ctx) })
	if err != nil {
		return decimal.Zero, err
	}
	return out.(decimal.Decimal), nil
}
