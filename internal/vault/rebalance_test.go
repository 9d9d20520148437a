package vault_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/vault"
)

func TestRebalanceRequiresOpenDegradedPosition(t *testing.T) {
	e := newEnv(t, testParams())
	ctx := context.Background()

	if _, err := e.svc.Rebalance(ctx); !errors.Is(err, vault.ErrNoActivePosition) {
		t.Errorf("err = %v, want ErrNoActivePosition", err)
	}

	e.deposit(t, "alice", 1000)
	e.hedger.SetPnL(d(-40)) // health 6000, above the 5000 threshold
	if _, err := e.svc.Rebalance(ctx); !errors.Is(err, vault.ErrRebalanceNotNeeded) {
		t.Errorf("err = %v, want ErrRebalanceNotNeeded", err)
	}
}

func TestRebalanceClosesAndReopensAtTargetRatio(t *testing.T) {
	e := newEnv(t, testParams())
	ctx := context.Background()
	e.deposit(t, "alice", 1000)

	// Health (100 - 60) / 100 = 4000 bps, under the threshold.
	e.hedger.SetPnL(d(-60))
	if _, err := e.svc.Rebalance(ctx); err != nil {
		t.Fatal(err)
	}

	// Close realizes -60: proceeds 40 consolidate into yield (940 total),
	// then re-split 90/10 and reopen at 5x.
	snap := e.svc.Snapshot()
	if !snap.TotalAssets.Equal(d(940)) {
		t.Errorf("total assets = %s, want 940", snap.TotalAssets)
	}
	if !snap.YieldAssets.Equal(d(846)) {
		t.Errorf("yield assets = %s, want 846", snap.YieldAssets)
	}
	if !snap.HedgeCollateral.Equal(d(94)) {
		t.Errorf("hedge collateral = %s, want 94", snap.HedgeCollateral)
	}
	if !snap.HedgeNotional.Equal(d(470)) {
		t.Errorf("hedge notional = %s, want 470", snap.HedgeNotional)
	}
	if !snap.HealthFactorBps.Equal(d(10000)) {
		t.Errorf("health = %s, want full after reopen", snap.HealthFactorBps)
	}
	if snap.RebalanceState != model.RebalanceHealthy {
		t.Errorf("state = %s, want healthy", snap.RebalanceState)
	}
	// Shares untouched: the loss was already priced in.
	if !snap.TotalShares.Equal(d(2000)) {
		t.Errorf("total shares = %s, want 2000", snap.TotalShares)
	}
}

func TestRebalanceJournalsEveryTransition(t *testing.T) {
	e := newEnv(t, testParams())
	ctx := context.Background()
	e.deposit(t, "alice", 1000)
	e.hedger.SetPnL(d(-60))

	if _, err := e.svc.Rebalance(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := e.ms.ListEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}

	wantStates := []string{
		model.RebalanceTriggered,
		model.RebalanceClosing,
		model.RebalanceConsolidating,
		model.RebalanceReopening,
		model.RebalanceHealthy,
	}
	var got []string
	for _, ev := range events {
		if ev.Kind == model.EventRebalance {
			got = append(got, strings.SplitN(ev.Note, ":", 2)[0])
		}
	}
	if len(got) != len(wantStates) {
		t.Fatalf("journaled transitions = %v, want %v", got, wantStates)
	}
	for i, state := range wantStates {
		if got[i] != state {
			t.Errorf("transition %d = %s, want %s", i, got[i], state)
		}
	}
}

func TestRebalanceAbortsOnVenueFailure(t *testing.T) {
	e := newEnv(t, testParams())
	ctx := context.Background()
	e.deposit(t, "alice", 1000)
	e.hedger.SetPnL(d(-60))
	e.hedger.FailOps = true

	if _, err := e.svc.Rebalance(ctx); err == nil {
		t.Fatal("expected error from failing hedge close")
	}

	snap := e.svc.Snapshot()
	if snap.RebalanceState != model.RebalanceHealthy {
		t.Errorf("state = %s, want restored healthy", snap.RebalanceState)
	}
	if !snap.HedgeCollateral.Equal(d(100)) {
		t.Errorf("hedge collateral = %s, want untouched 100", snap.HedgeCollateral)
	}
}
