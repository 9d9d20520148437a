package reserve

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCoverOpeningCost_SufficientBalance(t *testing.T) {
	f := NewFund(d(10))
	f.Balance = d(100)

	if err := f.CoverOpeningCost(d(3)); err != nil {
		t.Fatalf("CoverOpeningCost: %v", err)
	}
	if !f.Balance.Equal(d(97)) {
		t.Errorf("expected balance 97, got %s", f.Balance)
	}
	if !f.YieldBorrowed.IsZero() {
		t.Errorf("no debt expected, got %s", f.YieldBorrowed)
	}
}

func TestCoverOpeningCost_ShortfallBecomesDebt(t *testing.T) {
	// Scenario: reserve at $0, a $3 opening cost → yieldBorrowed == 3.
	f := NewFund(d(10))

	if err := f.CoverOpeningCost(d(3)); err != nil {
		t.Fatalf("CoverOpeningCost: %v", err)
	}
	if !f.Balance.IsZero() {
		t.Errorf("balance must never go negative, got %s", f.Balance)
	}
	if !f.YieldBorrowed.Equal(d(3)) {
		t.Errorf("expected yieldBorrowed=3, got %s", f.YieldBorrowed)
	}
}

func TestCollectRedemptionFee_RepaysDebtThenKeepsRest(t *testing.T) {
	// Scenario continued: $3 of debt, then a $20 fee → debt cleared,
	// balance 17.
	f := NewFund(d(10))
	f.CoverOpeningCost(d(3))

	founderRepaid, err := f.CollectRedemptionFee(d(20))
	if err != nil {
		t.Fatalf("CollectRedemptionFee: %v", err)
	}
	if !founderRepaid.IsZero() {
		t.Errorf("no founder capital to repay, got %s", founderRepaid)
	}
	if !f.YieldBorrowed.IsZero() {
		t.Errorf("expected debt cleared, got %s", f.YieldBorrowed)
	}
	if !f.Balance.Equal(d(17)) {
		t.Errorf("expected balance 17, got %s", f.Balance)
	}
}

func TestCollectRedemptionFee_FounderAfterDebt(t *testing.T) {
	f := NewFund(d(10))
	f.FundFounder(d(50))
	f.CoverOpeningCost(d(60)) // drains 50, borrows 10

	if !f.YieldBorrowed.Equal(d(10)) {
		t.Fatalf("expected 10 borrowed, got %s", f.YieldBorrowed)
	}

	// A 15 fee: 10 repays debt, 5 repays founder. Balance untouched.
	founderRepaid, _ := f.CollectRedemptionFee(d(15))
	if !founderRepaid.Equal(d(5)) {
		t.Errorf("expected founderRepaid=5, got %s", founderRepaid)
	}
	if !f.FounderContribution.Equal(d(45)) {
		t.Errorf("expected founder contribution 45, got %s", f.FounderContribution)
	}
	if !f.Balance.IsZero() {
		t.Errorf("balance should remain 0 until liabilities clear, got %s", f.Balance)
	}
}

func TestRepaymentOrder_Property(t *testing.T) {
	// Property: for any fee sequence, yieldBorrowed reaches zero strictly
	// before founderContribution decreases, and balance never goes
	// negative.
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		f := NewFund(d(10))
		f.FundFounder(d(float64(rng.Intn(100) + 20)))
		founderStart := f.FounderContribution

		// Random cost/fee interleaving.
		for op := 0; op < 100; op++ {
			amount := d(float64(rng.Intn(30) + 1))
			if rng.Intn(2) == 0 {
				f.CoverOpeningCost(amount)
			} else {
				before := f.FounderContribution
				f.CollectRedemptionFee(amount)
				if f.FounderContribution.LessThan(before) && f.YieldBorrowed.IsPositive() {
					t.Fatalf("trial %d op %d: founder repaid while yield debt outstanding (%s)",
						trial, op, f.YieldBorrowed)
				}
			}
			if f.Balance.IsNegative() {
				t.Fatalf("trial %d op %d: negative balance %s", trial, op, f.Balance)
			}
			if f.FounderContribution.GreaterThan(founderStart) {
				t.Fatalf("trial %d op %d: founder contribution grew", trial, op)
			}
		}
	}
}

func TestNetProfitableCycle_Property(t *testing.T) {
	// Design parameter check: with opening cost strictly below the
	// redemption fee, the fund is net profitable over any number of full
	// mint+redeem cycles.
	f := NewFund(d(0))
	openingCost := d(3)
	redemptionFee := d(20)

	for i := 0; i < 200; i++ {
		f.CoverOpeningCost(openingCost)
		f.CollectRedemptionFee(redemptionFee)
	}

	if f.YieldBorrowed.IsPositive() {
		t.Errorf("profitable cycle left debt: %s", f.YieldBorrowed)
	}
	wantBalance := redemptionFee.Sub(openingCost).Mul(d(200))
	if !f.Balance.Equal(wantBalance) {
		t.Errorf("expected balance %s, got %s", wantBalance, f.Balance)
	}
}

func TestHealthy(t *testing.T) {
	f := NewFund(d(10))
	if f.Healthy() {
		t.Error("empty fund below floor should be unhealthy")
	}

	f.FundFounder(d(15))
	if !f.Healthy() {
		t.Error("funded reserve with no debt should be healthy")
	}

	f.CoverOpeningCost(d(20)) // borrows 5
	if f.Healthy() {
		t.Error("fund with yield debt must be unhealthy")
	}
}

func TestInvalidAmounts(t *testing.T) {
	f := NewFund(d(10))
	if err := f.CoverOpeningCost(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.CollectRedemptionFee(d(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.FundFounder(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
