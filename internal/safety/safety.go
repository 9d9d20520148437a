// Package safety implements the vault's protective policy layer: the
// price circuit breaker, per-account rate limiting, capacity caps with an
// anti-front-running buffer, and the governance timelock.
//
// Checks are pure with respect to the ledger: caller state (timestamps,
// totals) is passed in, and every violation maps to a distinct sentinel
// error so the engine can reject before touching any state.
package safety

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPaused is returned while the vault is administratively paused.
	ErrPaused = errors.New("safety: vault is paused")

	// ErrStalePrice is returned when the oracle flags its price as stale.
	// A stale price is treated as no price at all for write operations.
	ErrStalePrice = errors.New("safety: oracle price is stale")

	// ErrPriceMoved is returned when the observed price moved beyond the
	// allowed delta since the last accepted observation. Blocks deposits;
	// redemptions deliberately remain open on the last good price.
	ErrPriceMoved = errors.New("safety: price moved beyond circuit breaker threshold")

	// ErrCooldownActive is returned when an account operates again before
	// its per-account cooldown has elapsed.
	ErrCooldownActive = errors.New("safety: account cooldown active")

	// ErrMinHoldTime is returned when shares are redeemed before the
	// minimum hold time since the last mint.
	ErrMinHoldTime = errors.New("safety: minimum hold time not elapsed")

	// ErrCapacityExceeded is returned when a deposit would push total
	// assets beyond the effective cap. The effective cap sits strictly
	// below the nominal cap so a pending cap increase cannot be
	// front-run.
	ErrCapacityExceeded = errors.New("safety: deposit exceeds vault capacity")

	// ErrTimelockNotElapsed is returned when a governance change is
	// executed before its activation time.
	ErrTimelockNotElapsed = errors.New("safety: timelock not elapsed")

	// ErrProposalCooldownActive is returned when a new proposal arrives
	// too soon after the previous one. This is independent of the
	// execute timelock; without it an owner could propose+cancel in a
	// loop and keep the effective delay at zero.
	ErrProposalCooldownActive = errors.New("safety: proposal cooldown active")

	// ErrNoPendingChange is returned when executing or cancelling with
	// nothing proposed.
	ErrNoPendingChange = errors.New("safety: no pending governance change")
)

var bpsDenominator = decimal.NewFromInt(10000)

// PendingChange is a timelocked governance action, checked lazily at
// execute time. There is no background scheduler.
type PendingChange struct {
	Ref         string    `json:"ref"`
	ProposedAt  time.Time `json:"proposed_at"`
	ActivatesAt time.Time `json:"activates_at"`
}

// Governor holds the safety policy parameters and the small amount of
// state the policies need (last observed price, last proposal time,
// pause flag). It is mutated only under the vault's operation lock.
type Governor struct {
	MaxPriceChangeBps decimal.Decimal
	TVLCap            decimal.Decimal
	TVLBufferBps      decimal.Decimal
	AccountCooldown   time.Duration
	MinHoldTime       time.Duration
	Timelock          time.Duration
	ProposalCooldown  time.Duration

	lastObservedPrice decimal.Decimal
	lastProposalAt    time.Time
	paused            bool
}

// Config carries the governor's initial parameters.
type Config struct {
	MaxPriceChangeBps int64
	TVLCap            decimal.Decimal
	TVLBufferBps      int64
	AccountCooldown   time.Duration
	MinHoldTime       time.Duration
	Timelock          time.Duration
	ProposalCooldown  time.Duration
}

// NewGovernor creates a governor from config.
func NewGovernor(cfg Config) *Governor {
	return &Governor{
		MaxPriceChangeBps: decimal.NewFromInt(cfg.MaxPriceChangeBps),
		TVLCap:            cfg.TVLCap,
		TVLBufferBps:      decimal.NewFromInt(cfg.TVLBufferBps),
		AccountCooldown:   cfg.AccountCooldown,
		MinHoldTime:       cfg.MinHoldTime,
		Timelock:          cfg.Timelock,
		ProposalCooldown:  cfg.ProposalCooldown,
	}
}

// --- Pause ---

// Pause stops all state-mutating user operations.
func (g *Governor) Pause() { g.paused = true }

// Unpause re-enables user operations.
func (g *Governor) Unpause() { g.paused = false }

// Paused reports the pause flag.
func (g *Governor) Paused() bool { return g.paused }

// CheckNotPaused rejects while paused.
func (g *Governor) CheckNotPaused() error {
	if g.paused {
		return ErrPaused
	}
	return nil
}

// --- Price circuit breaker ---

// CheckPrice validates an oracle observation for a price-sensitive write.
// Stale prices and moves beyond MaxPriceChangeBps both trip the breaker.
// The observation is NOT recorded; call ObservePrice once the operation
// has fully committed.
func (g *Governor) CheckPrice(price decimal.Decimal, stale bool) error {
	if stale {
		return ErrStalePrice
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return ErrStalePrice
	}
	if g.lastObservedPrice.IsZero() {
		return nil // first observation, nothing to compare against
	}

	deltaBps := price.Sub(g.lastObservedPrice).Abs().
		Mul(bpsDenominator).Div(g.lastObservedPrice)
	if deltaBps.GreaterThan(g.MaxPriceChangeBps) {
		return ErrPriceMoved
	}
	return nil
}

// ObservePrice records the last accepted price after a committed write.
func (g *Governor) ObservePrice(price decimal.Decimal) {
	g.lastObservedPrice = price
}

// LastObservedPrice returns the last accepted observation (zero before
// the first committed write).
func (g *Governor) LastObservedPrice() decimal.Decimal {
	return g.lastObservedPrice
}

// --- Rate limiting ---

// CheckCooldown enforces the per-account interval between mutating
// operations. Each account has its own window; there is no shared bucket.
func (g *Governor) CheckCooldown(lastOperationAt, now time.Time) error {
	if lastOperationAt.IsZero() {
		return nil
	}
	if now.Before(lastOperationAt.Add(g.AccountCooldown)) {
		return ErrCooldownActive
	}
	return nil
}

// CheckHoldTime enforces the minimum time between a mint and a redeem.
func (g *Governor) CheckHoldTime(lastMintAt, now time.Time) error {
	if lastMintAt.IsZero() {
		return nil
	}
	if now.Before(lastMintAt.Add(g.MinHoldTime)) {
		return ErrMinHoldTime
	}
	return nil
}

// --- Capacity ---

// EffectiveCap returns the deposit ceiling: the nominal cap reduced by
// the buffer, so capacity opened by a cap raise cannot be sniped the
// moment it lands.
func (g *Governor) EffectiveCap() decimal.Decimal {
	buffer := bpsDenominator.Sub(g.TVLBufferBps)
	return g.TVLCap.Mul(buffer).Div(bpsDenominator)
}

// CheckCapacity rejects a deposit that would push total assets past the
// effective cap.
func (g *Governor) CheckCapacity(totalAssets, incoming decimal.Decimal) error {
	if totalAssets.Add(incoming).GreaterThan(g.EffectiveCap()) {
		return ErrCapacityExceeded
	}
	return nil
}

// SetCap updates the nominal cap. Takes effect immediately; the buffer
// keeps the freed headroom from being front-run.
func (g *Governor) SetCap(cap decimal.Decimal) {
	g.TVLCap = cap
}

// SetCooldown updates the per-account cooldown.
func (g *Governor) SetCooldown(cooldown time.Duration) {
	g.AccountCooldown = cooldown
}

// --- Governance timelock ---

// Propose creates a pending change after enforcing the proposal cooldown.
// The cooldown clock starts at proposal time and is NOT reset by cancel,
// which is what closes the propose/cancel cycling loophole.
func (g *Governor) Propose(ref string, now time.Time) (*PendingChange, error) {
	if !g.lastProposalAt.IsZero() && now.Before(g.lastProposalAt.Add(g.ProposalCooldown)) {
		return nil, ErrProposalCooldownActive
	}
	g.lastProposalAt = now
	return &PendingChange{
		Ref:         ref,
		ProposedAt:  now,
		ActivatesAt: now.Add(g.Timelock),
	}, nil
}

// LastProposalAt returns when the cooldown clock last started (zero if
// nothing was ever proposed).
func (g *Governor) LastProposalAt() time.Time {
	return g.lastProposalAt
}

// RestoreProposalClock reinstates the proposal-cooldown clock from a
// persisted restart image.
func (g *Governor) RestoreProposalClock(lastProposalAt time.Time) {
	g.lastProposalAt = lastProposalAt
}

// CheckExecute validates that a pending change may be executed now.
func (g *Governor) CheckExecute(pending *PendingChange, now time.Time) error {
	if pending == nil {
		return ErrNoPendingChange
	}
	if now.Before(pending.ActivatesAt) {
		return ErrTimelockNotElapsed
	}
	return nil
}
