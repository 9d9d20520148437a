package fees

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestNewState_Validation(t *testing.T) {
	if _, err := NewState(decimal.Zero, 1000); !errors.Is(err, ErrInvalidMark) {
		t.Errorf("expected ErrInvalidMark, got %v", err)
	}
	if _, err := NewState(d(1), MaxFeeBps+1); !errors.Is(err, ErrFeeTooHigh) {
		t.Errorf("expected ErrFeeTooHigh, got %v", err)
	}
	if _, err := NewState(d(1), -1); !errors.Is(err, ErrFeeTooHigh) {
		t.Errorf("expected ErrFeeTooHigh for negative bps, got %v", err)
	}
}

func TestSetFeeBps_HardCap(t *testing.T) {
	s, _ := NewState(d(1), 1000)

	if err := s.SetFeeBps(3000); err != nil {
		t.Errorf("cap value should be accepted: %v", err)
	}
	if err := s.SetFeeBps(3001); !errors.Is(err, ErrFeeTooHigh) {
		t.Errorf("expected ErrFeeTooHigh, got %v", err)
	}
}

func TestHarvest_NoFeeOnLossOrFlat(t *testing.T) {
	s, _ := NewState(d(1), 2000)
	now := time.Now().UTC()

	for _, price := range []decimal.Decimal{d(1), d(0.9), d(0.5)} {
		feeShares, feeAssets := s.Harvest(price, d(100000), now)
		if !feeShares.IsZero() || !feeAssets.IsZero() {
			t.Errorf("price=%s: expected zero fee, got shares=%s assets=%s", price, feeShares, feeAssets)
		}
		if !s.HighWaterMark.Equal(d(1)) {
			t.Errorf("price=%s: mark must not move on no-op, got %s", price, s.HighWaterMark)
		}
	}
}

func TestHarvest_FeeOnProfit(t *testing.T) {
	s, _ := NewState(d(1), 2000) // 20%
	now := time.Now().UTC()

	// Price 1.10, 100,000 shares: profit = 0.10 * 100,000 = 10,000.
	// Fee assets = 2,000; fee shares = 2,000 / 1.10.
	feeShares, feeAssets := s.Harvest(d(1.10), d(100000), now)

	if !feeAssets.Equal(d(2000)) {
		t.Errorf("expected fee assets 2000, got %s", feeAssets)
	}
	wantShares := d(2000).Div(d(1.10)).RoundDown(ShareScale)
	if !feeShares.Equal(wantShares) {
		t.Errorf("expected fee shares %s, got %s", wantShares, feeShares)
	}
	if !s.HighWaterMark.Equal(d(1.10)) {
		t.Errorf("mark should advance to 1.10, got %s", s.HighWaterMark)
	}
	if !s.LastHarvestAt.Equal(now) {
		t.Error("last harvest timestamp not recorded")
	}
}

func TestHarvest_DustGainLeavesMarkUnchanged(t *testing.T) {
	s, _ := NewState(d(1), 2000)
	now := time.Now().UTC()

	// Profit of 1e-8 on 2000 shares: the 20% fee rounds below one share
	// unit. Charging nothing while advancing the mark would forfeit the
	// fee on this gain permanently.
	price := decimal.RequireFromString("1.000000000005")
	feeShares, feeAssets := s.Harvest(price, d(2000), now)
	if !feeShares.IsZero() || !feeAssets.IsZero() {
		t.Errorf("expected zero fee on dust gain, got shares=%s assets=%s", feeShares, feeAssets)
	}
	if !s.HighWaterMark.Equal(d(1)) {
		t.Errorf("mark must not move on a zero-share harvest, got %s", s.HighWaterMark)
	}
	if !s.LastHarvestAt.IsZero() {
		t.Error("harvest timestamp must not be recorded on a no-op")
	}

	// The same gain is still chargeable once it grows.
	feeShares, _ = s.Harvest(d(1.10), d(2000), now)
	if feeShares.IsZero() {
		t.Error("grown gain should charge a fee")
	}
	if !s.HighWaterMark.Equal(d(1.10)) {
		t.Errorf("mark should advance to 1.10, got %s", s.HighWaterMark)
	}
}

func TestHarvest_IdempotentAtMark(t *testing.T) {
	s, _ := NewState(d(1), 2000)
	now := time.Now().UTC()

	s.Harvest(d(1.10), d(100000), now)
	feeShares, feeAssets := s.Harvest(d(1.10), d(100000), now)
	if !feeShares.IsZero() || !feeAssets.IsZero() {
		t.Errorf("second harvest at same price must be a no-op, got %s/%s", feeShares, feeAssets)
	}
}

func TestHarvest_MarkMonotonic(t *testing.T) {
	// Property: across any sequence of harvests the mark never decreases,
	// and fees are only charged when the price exceeds the mark.
	s, _ := NewState(d(1), 1500)
	rng := rand.New(rand.NewSource(42))
	now := time.Now().UTC()

	prev := s.HighWaterMark
	for i := 0; i < 500; i++ {
		price := d(0.5 + rng.Float64()*1.5)
		markBefore := s.HighWaterMark
		feeShares, _ := s.Harvest(price, d(100000), now)

		if s.HighWaterMark.LessThan(prev) {
			t.Fatalf("iteration %d: mark decreased from %s to %s", i, prev, s.HighWaterMark)
		}
		if price.LessThanOrEqual(markBefore) && !feeShares.IsZero() {
			t.Fatalf("iteration %d: fee charged at price %s with mark %s", i, price, markBefore)
		}
		prev = s.HighWaterMark
	}
}
