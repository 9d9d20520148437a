package venue

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// Simulated venues: deterministic in-process implementations used by the
// test suites and by the server when no real venue adapters are
// configured. The fault switches (SilentNoOp, FailOps) exist so tests can
// exercise the core's post-condition verification and atomic abort paths.

// ErrSimFailure is returned by a simulator with FailOps set.
var ErrSimFailure = errors.New("venue: simulated failure")

// ErrNoOpenPosition is returned by the sim hedge when no position exists.
var ErrNoOpenPosition = errors.New("venue: no open position")

// --- SimYieldStrategy ---

// SimYieldStrategy is an in-memory lending venue. Value grows only via
// AccrueYield, called explicitly by tests or the dev-mode ticker.
type SimYieldStrategy struct {
	mu      sync.Mutex
	balance decimal.Decimal

	// SilentNoOp makes mutating calls return success without doing
	// anything, imitating a venue whose call "succeeded" but had no
	// observable effect.
	SilentNoOp bool

	// FailOps makes mutating calls return ErrSimFailure.
	FailOps bool
}

// NewSimYieldStrategy creates an empty simulated strategy.
func NewSimYieldStrategy() *SimYieldStrategy {
	return &SimYieldStrategy{}
}

func (s *SimYieldStrategy) Deposit(_ context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOps {
		return decimal.Zero, ErrSimFailure
	}
	if s.SilentNoOp {
		return amount, nil
	}
	s.balance = s.balance.Add(amount)
	return amount, nil
}

func (s *SimYieldStrategy) Withdraw(_ context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOps {
		return decimal.Zero, ErrSimFailure
	}
	if s.SilentNoOp {
		return amount, nil
	}
	if amount.GreaterThan(s.balance) {
		amount = s.balance
	}
	s.balance = s.balance.Sub(amount)
	return amount, nil
}

func (s *SimYieldStrategy) WithdrawAll(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOps {
		return decimal.Zero, ErrSimFailure
	}
	out := s.balance
	if !s.SilentNoOp {
		s.balance = decimal.Zero
	}
	return out, nil
}

func (s *SimYieldStrategy) TotalAssets(_ context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

// AccrueYield adds simulated yield to the venue balance.
func (s *SimYieldStrategy) AccrueYield(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Add(amount)
}

// --- SimHedgeProvider ---

// SimHedgeProvider is an in-memory leveraged-position venue with
// settable unrealized PnL.
type SimHedgeProvider struct {
	mu         sync.Mutex
	open       bool
	collateral decimal.Decimal
	notional   decimal.Decimal
	leverage   decimal.Decimal
	pnl        decimal.Decimal

	SilentNoOp bool
	FailOps    bool
}

// NewSimHedgeProvider creates a provider with no open position.
func NewSimHedgeProvider() *SimHedgeProvider {
	return &SimHedgeProvider{}
}

func (h *SimHedgeProvider) Open(_ context.Context, collateral, notional, leverage decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailOps {
		return ErrSimFailure
	}
	if h.SilentNoOp {
		return nil
	}
	h.open = true
	h.collateral = collateral
	h.notional = notional
	h.leverage = leverage
	h.pnl = decimal.Zero // fresh position opens at market, zero PnL
	return nil
}

func (h *SimHedgeProvider) Adjust(_ context.Context, deltaCollateral, deltaNotional decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailOps {
		return ErrSimFailure
	}
	if !h.open {
		return ErrNoOpenPosition
	}
	if h.SilentNoOp {
		return nil
	}
	h.collateral = h.collateral.Add(deltaCollateral)
	h.notional = h.notional.Add(deltaNotional)
	return nil
}

func (h *SimHedgeProvider) Close(_ context.Context) (decimal.Decimal, decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailOps {
		return decimal.Zero, decimal.Zero, ErrSimFailure
	}
	if !h.open {
		return decimal.Zero, decimal.Zero, ErrNoOpenPosition
	}
	collateral, pnl := h.collateral, h.pnl
	if !h.SilentNoOp {
		h.open = false
		h.collateral = decimal.Zero
		h.notional = decimal.Zero
		h.pnl = decimal.Zero
	}
	return collateral, pnl, nil
}

func (h *SimHedgeProvider) Collateral(_ context.Context) (decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.collateral, nil
}

func (h *SimHedgeProvider) PnL(_ context.Context) (decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pnl, nil
}

// SetPnL injects unrealized PnL (signed), simulating market moves against
// or for the position.
func (h *SimHedgeProvider) SetPnL(pnl decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pnl = pnl
}

// --- SimOracle ---

// SimOracle returns a settable price and staleness flag.
type SimOracle struct {
	mu    sync.Mutex
	price decimal.Decimal
	stale bool
}

// NewSimOracle creates an oracle at the given price.
func NewSimOracle(price decimal.Decimal) *SimOracle {
	return &SimOracle{price: price}
}

func (o *SimOracle) Price(_ context.Context) (decimal.Decimal, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price, o.stale, nil
}

// SetPrice updates the reported price.
func (o *SimOracle) SetPrice(price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
}

// SetStale toggles the staleness flag.
func (o *SimOracle) SetStale(stale bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale = stale
}

// --- SimFeeSink ---

// SimFeeSink records credited fee shares.
type SimFeeSink struct {
	mu       sync.Mutex
	received decimal.Decimal
}

// NewSimFeeSink creates an empty sink.
func NewSimFeeSink() *SimFeeSink {
	return &SimFeeSink{}
}

func (s *SimFeeSink) Receive(_ context.Context, shares decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = s.received.Add(shares)
	return nil
}

// Received returns the total credited shares.
func (s *SimFeeSink) Received() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}
