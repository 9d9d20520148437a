package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseRef_Valid(t *testing.T) {
	ref, err := ParseRef("yield:lendle:usdt")
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if ref.Kind != KindYield || ref.Venue != "lendle" || ref.Asset != "usdt" {
		t.Errorf("unexpected parse: %+v", ref)
	}
}

func TestParseRef_Hedge(t *testing.T) {
	ref, err := ParseRef("hedge:mcdex:eth")
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if ref.Kind != KindHedge {
		t.Errorf("expected hedge kind, got %s", ref.Kind)
	}
}

func TestParseRef_Invalid(t *testing.T) {
	for _, raw := range []string{"", "lendle", "yield:lendle", "YIELD:lendle:usdt", "yield:lendle:usdt:extra"} {
		if _, err := ParseRef(raw); !errors.Is(err, ErrInvalidRef) {
			t.Errorf("%q: expected ErrInvalidRef, got %v", raw, err)
		}
	}
}

func TestParseRef_UnknownKind(t *testing.T) {
	if _, err := ParseRef("swap:curve:usdt"); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestRegistry_WhitelistEnforced(t *testing.T) {
	r, err := NewRegistry([]string{"yield:lendle:usdt"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if err := r.Register("yield:lendle:usdt", NewSimYieldStrategy()); err != nil {
		t.Errorf("whitelisted register should pass: %v", err)
	}
	if err := r.Register("yield:aave:usdt", NewSimYieldStrategy()); !errors.Is(err, ErrNotWhitelisted) {
		t.Errorf("expected ErrNotWhitelisted, got %v", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r, _ := NewRegistry([]string{"yield:lendle:usdt", "yield:aave:usdt"})
	s := NewSimYieldStrategy()
	r.Register("yield:lendle:usdt", s)

	got, err := r.Resolve("yield:lendle:usdt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != YieldStrategy(s) {
		t.Error("resolved wrong implementation")
	}

	if _, err := r.Resolve("yield:aave:usdt"); !errors.Is(err, ErrUnknownRef) {
		t.Errorf("whitelisted but unregistered: expected ErrUnknownRef, got %v", err)
	}
	if _, err := r.Resolve("yield:spark:dai"); !errors.Is(err, ErrNotWhitelisted) {
		t.Errorf("expected ErrNotWhitelisted, got %v", err)
	}
}

func TestNewRegistry_RejectsMalformedAndNonYield(t *testing.T) {
	if _, err := NewRegistry([]string{"not-a-ref"}); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("expected ErrInvalidRef, got %v", err)
	}
	if _, err := NewRegistry([]string{"hedge:mcdex:eth"}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind for hedge whitelist entry, got %v", err)
	}
}

func TestSimHedgeProvider_Lifecycle(t *testing.T) {
	ctx := context.Background()
	h := NewSimHedgeProvider()

	if err := h.Adjust(ctx, decimal.NewFromInt(1), decimal.NewFromInt(1)); !errors.Is(err, ErrNoOpenPosition) {
		t.Errorf("adjust without position: expected ErrNoOpenPosition, got %v", err)
	}

	if err := h.Open(ctx, decimal.NewFromInt(1000), decimal.NewFromInt(2000), decimal.NewFromInt(2)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	h.SetPnL(decimal.NewFromInt(-400))
	collateral, pnl, err := h.Close(ctx)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !collateral.Equal(decimal.NewFromInt(1000)) || !pnl.Equal(decimal.NewFromInt(-400)) {
		t.Errorf("unexpected close result: %s / %s", collateral, pnl)
	}

	got, _ := h.Collateral(ctx)
	if !got.IsZero() {
		t.Errorf("collateral should be zero after close, got %s", got)
	}
}

func TestBreakerStrategy_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := NewSimYieldStrategy()
	inner.FailOps = true
	b := NewBreakerStrategy("test-yield", inner)

	for i := 0; i < 3; i++ {
		if _, err := b.Deposit(ctx, decimal.NewFromInt(1)); !errors.Is(err, ErrSimFailure) {
			t.Fatalf("call %d: expected ErrSimFailure, got %v", i, err)
		}
	}

	// Breaker is open now; the inner venue is no longer reached.
	inner.FailOps = false
	if _, err := b.Deposit(ctx, decimal.NewFromInt(1)); err == nil {
		t.Error("expected open-breaker error, got nil")
	}
}
