package safety

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testGovernor() *Governor {
	return NewGovernor(Config{
		MaxPriceChangeBps: 500, // 5%
		TVLCap:            d(1000000),
		TVLBufferBps:      200, // 2%
		AccountCooldown:   time.Minute,
		MinHoldTime:       24 * time.Hour,
		Timelock:          48 * time.Hour,
		ProposalCooldown:  24 * time.Hour,
	})
}

// --- Price circuit breaker ---

func TestCheckPrice_StaleAlwaysTrips(t *testing.T) {
	g := testGovernor()
	if err := g.CheckPrice(d(1), true); !errors.Is(err, ErrStalePrice) {
		t.Errorf("expected ErrStalePrice, got %v", err)
	}
	if err := g.CheckPrice(decimal.Zero, false); !errors.Is(err, ErrStalePrice) {
		t.Errorf("non-positive price should trip, got %v", err)
	}
}

func TestCheckPrice_FirstObservationPasses(t *testing.T) {
	g := testGovernor()
	if err := g.CheckPrice(d(1.0), false); err != nil {
		t.Errorf("first observation should pass, got %v", err)
	}
}

func TestCheckPrice_DeltaWithinBound(t *testing.T) {
	g := testGovernor()
	g.ObservePrice(d(1.00))

	if err := g.CheckPrice(d(1.05), false); err != nil {
		t.Errorf("5%% move is exactly at bound, got %v", err)
	}
	if err := g.CheckPrice(d(0.95), false); err != nil {
		t.Errorf("downward 5%% move is at bound, got %v", err)
	}
}

func TestCheckPrice_DeltaBeyondBoundTrips(t *testing.T) {
	g := testGovernor()
	g.ObservePrice(d(1.00))

	if err := g.CheckPrice(d(1.051), false); !errors.Is(err, ErrPriceMoved) {
		t.Errorf("expected ErrPriceMoved, got %v", err)
	}
	if err := g.CheckPrice(d(0.94), false); !errors.Is(err, ErrPriceMoved) {
		t.Errorf("expected ErrPriceMoved on downward move, got %v", err)
	}
}

func TestCheckPrice_DoesNotRecord(t *testing.T) {
	g := testGovernor()
	g.ObservePrice(d(1.00))

	// A rejected check must not move the reference price.
	g.CheckPrice(d(2.00), false)
	if !g.LastObservedPrice().Equal(d(1.00)) {
		t.Errorf("rejected check recorded a price: %s", g.LastObservedPrice())
	}
}

// --- Rate limiting ---

func TestCheckCooldown(t *testing.T) {
	g := testGovernor()
	now := time.Now().UTC()

	if err := g.CheckCooldown(time.Time{}, now); err != nil {
		t.Errorf("fresh account should pass, got %v", err)
	}
	if err := g.CheckCooldown(now.Add(-30*time.Second), now); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("expected ErrCooldownActive, got %v", err)
	}
	if err := g.CheckCooldown(now.Add(-61*time.Second), now); err != nil {
		t.Errorf("elapsed cooldown should pass, got %v", err)
	}
}

func TestCheckHoldTime(t *testing.T) {
	g := testGovernor()
	now := time.Now().UTC()

	// Redeem 1h after mint with a 24h hold: rejected.
	if err := g.CheckHoldTime(now.Add(-time.Hour), now); !errors.Is(err, ErrMinHoldTime) {
		t.Errorf("expected ErrMinHoldTime, got %v", err)
	}
	// Same redeem after 24h: allowed.
	if err := g.CheckHoldTime(now.Add(-24*time.Hour), now); err != nil {
		t.Errorf("24h-old mint should pass, got %v", err)
	}
}

// --- Capacity ---

func TestEffectiveCapBelowNominal(t *testing.T) {
	g := testGovernor()
	want := d(980000) // 1,000,000 * (1 - 2%)
	if !g.EffectiveCap().Equal(want) {
		t.Errorf("expected effective cap %s, got %s", want, g.EffectiveCap())
	}
}

func TestCheckCapacity(t *testing.T) {
	g := testGovernor()

	if err := g.CheckCapacity(d(900000), d(80000)); err != nil {
		t.Errorf("deposit to exactly effective cap should pass, got %v", err)
	}
	if err := g.CheckCapacity(d(900000), d(80001)); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestSetCap_BufferStillApplies(t *testing.T) {
	g := testGovernor()
	g.SetCap(d(2000000))

	// Front-running guard: the fresh headroom is still buffered.
	if err := g.CheckCapacity(d(1970000), d(30000)); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected buffered cap to reject, got %v", err)
	}
}

// --- Pause ---

func TestPause(t *testing.T) {
	g := testGovernor()
	if err := g.CheckNotPaused(); err != nil {
		t.Errorf("unpaused governor should pass, got %v", err)
	}
	g.Pause()
	if err := g.CheckNotPaused(); !errors.Is(err, ErrPaused) {
		t.Errorf("expected ErrPaused, got %v", err)
	}
	g.Unpause()
	if err := g.CheckNotPaused(); err != nil {
		t.Errorf("unpause should clear, got %v", err)
	}
}

// --- Governance timelock ---

func TestPropose_TimelockWindow(t *testing.T) {
	g := testGovernor()
	now := time.Now().UTC()

	pending, err := g.Propose("yield:lendle:usdt", now)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if !pending.ActivatesAt.Equal(now.Add(48 * time.Hour)) {
		t.Errorf("expected activation at +48h, got %s", pending.ActivatesAt)
	}

	if err := g.CheckExecute(pending, now.Add(time.Hour)); !errors.Is(err, ErrTimelockNotElapsed) {
		t.Errorf("expected ErrTimelockNotElapsed, got %v", err)
	}
	if err := g.CheckExecute(pending, now.Add(48*time.Hour)); err != nil {
		t.Errorf("elapsed timelock should pass, got %v", err)
	}
}

func TestPropose_CooldownBlocksCycling(t *testing.T) {
	g := testGovernor()
	now := time.Now().UTC()

	if _, err := g.Propose("yield:lendle:usdt", now); err != nil {
		t.Fatalf("first propose: %v", err)
	}

	// Cancel-and-repropose must not reset the effective delay: the
	// proposal cooldown runs from the first proposal regardless.
	if _, err := g.Propose("yield:lendle:usdt", now.Add(time.Hour)); !errors.Is(err, ErrProposalCooldownActive) {
		t.Errorf("expected ErrProposalCooldownActive, got %v", err)
	}
	if _, err := g.Propose("yield:lendle:usdt", now.Add(24*time.Hour)); err != nil {
		t.Errorf("propose after cooldown should pass, got %v", err)
	}
}

func TestCheckExecute_NoPending(t *testing.T) {
	g := testGovernor()
	if err := g.CheckExecute(nil, time.Now()); !errors.Is(err, ErrNoPendingChange) {
		t.Errorf("expected ErrNoPendingChange, got %v", err)
	}
}
