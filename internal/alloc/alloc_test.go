package alloc

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestNewEngine_RejectsMalformedRatio(t *testing.T) {
	for _, bps := range []int64{-1, 0, 10000, 12000} {
		if _, err := NewEngine(bps); !errors.Is(err, ErrInvalidRatio) {
			t.Errorf("bps=%d: expected ErrInvalidRatio, got %v", bps, err)
		}
	}
}

func TestAllocate_NinetyTen(t *testing.T) {
	// Scenario: 10,000 at 90/10 → 9,000 yield / 1,000 hedge.
	e, err := NewEngine(9000)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	yieldAmt, hedgeAmt, err := e.Allocate(d(10000))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !yieldAmt.Equal(d(9000)) {
		t.Errorf("expected yield=9000, got %s", yieldAmt)
	}
	if !hedgeAmt.Equal(d(1000)) {
		t.Errorf("expected hedge=1000, got %s", hedgeAmt)
	}
}

func TestAllocate_LegsSumExactly(t *testing.T) {
	e, _ := NewEngine(9000)

	for _, amount := range []decimal.Decimal{d(0.01), d(1), d(3333.33), d(1234567.89)} {
		yieldAmt, hedgeAmt, err := e.Allocate(amount)
		if err != nil {
			t.Fatalf("Allocate(%s): %v", amount, err)
		}
		if !yieldAmt.Add(hedgeAmt).Equal(amount) {
			t.Errorf("legs must sum to %s, got %s + %s", amount, yieldAmt, hedgeAmt)
		}
		if !yieldAmt.IsPositive() || !hedgeAmt.IsPositive() {
			t.Errorf("both legs must be positive, got %s / %s", yieldAmt, hedgeAmt)
		}
	}
}

func TestAllocate_RejectsDust(t *testing.T) {
	e, _ := NewEngine(9999)

	// At 99.99/0.01, an amount this small rounds the hedge leg to zero.
	_, _, err := e.Allocate(decimal.New(1, -8)) // 0.00000001
	if !errors.Is(err, ErrDustAllocation) {
		t.Errorf("expected ErrDustAllocation, got %v", err)
	}
}

func TestAllocate_RejectsNonPositive(t *testing.T) {
	e, _ := NewEngine(9000)

	for _, amount := range []decimal.Decimal{decimal.Zero, d(-5)} {
		if _, _, err := e.Allocate(amount); !errors.Is(err, ErrDustAllocation) {
			t.Errorf("amount=%s: expected ErrDustAllocation, got %v", amount, err)
		}
	}
}

func TestDeallocate_FollowsCurrentHoldings(t *testing.T) {
	e, _ := NewEngine(9000)

	// Holdings have drifted to 80/20: withdrawals must follow the drifted
	// ratio, not the nominal 90/10 target.
	yieldAmt, hedgeAmt, err := e.Deallocate(d(1000), d(8000), d(2000))
	if err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if !yieldAmt.Equal(d(800)) {
		t.Errorf("expected yield withdrawal 800, got %s", yieldAmt)
	}
	if !hedgeAmt.Equal(d(200)) {
		t.Errorf("expected hedge withdrawal 200, got %s", hedgeAmt)
	}
}

func TestDeallocate_SumsExactly(t *testing.T) {
	e, _ := NewEngine(9000)

	amount := d(777.77)
	yieldAmt, hedgeAmt, err := e.Deallocate(amount, d(9123.456), d(876.54))
	if err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if !yieldAmt.Add(hedgeAmt).Equal(amount) {
		t.Errorf("parts must sum to %s, got %s + %s", amount, yieldAmt, hedgeAmt)
	}
}

func TestDeallocate_ExceedsHoldings(t *testing.T) {
	e, _ := NewEngine(9000)

	_, _, err := e.Deallocate(d(10001), d(9000), d(1000))
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Errorf("expected ErrInsufficientHoldings, got %v", err)
	}
}

func TestDeallocate_FullDrain(t *testing.T) {
	e, _ := NewEngine(9000)

	yieldAmt, hedgeAmt, err := e.Deallocate(d(10000), d(9000), d(1000))
	if err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if !yieldAmt.Equal(d(9000)) || !hedgeAmt.Equal(d(1000)) {
		t.Errorf("full drain should empty both legs, got %s / %s", yieldAmt, hedgeAmt)
	}
}

func TestDeallocate_ClampsHedgeLeg(t *testing.T) {
	e, _ := NewEngine(9000)

	// Hedge leg nearly empty: the proportional hedge part would exceed the
	// holding without clamping only due to rounding, so verify the clamp
	// keeps hedgeAmt within what is actually held.
	yieldAmt, hedgeAmt, err := e.Deallocate(d(100), d(99999.99999999), d(0.00000001))
	if err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if hedgeAmt.GreaterThan(d(0.00000001)) {
		t.Errorf("hedge withdrawal exceeds holding: %s", hedgeAmt)
	}
	if !yieldAmt.Add(hedgeAmt).Equal(d(100)) {
		t.Errorf("parts must sum to 100, got %s + %s", yieldAmt, hedgeAmt)
	}
}
