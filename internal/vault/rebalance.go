package vault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/hedge"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
)

// Rebalance rebuilds a degraded hedge position. The whole machine —
// triggered, closing, consolidating, reopening, healthy — runs to
// completion inside one serialized call; each transition is journaled so
// the sequence is auditable after the fact.
//
// Refused when no position is open or when the health factor is still at
// or above the rebalance threshold.
func (s *Service) Rebalance(ctx context.Context) (*Receipt, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()
	now := s.clock()

	if s.position == nil {
		return nil, ErrNoActivePosition
	}
	pnl, err := s.hedger.PnL(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: hedge pnl: %w", err)
	}
	health := hedge.HealthFactor(s.position, pnl)
	if !hedge.NeedsRebalance(health) {
		return nil, ErrRebalanceNotNeeded
	}

	undo := s.capture()
	var events []*model.VaultEvent
	transition := func(state, note string) {
		s.rebalState = state
		events = append(events, s.newEvent(model.EventRebalance, "", decimal.Zero, decimal.Zero,
			decimal.Zero, decimal.Zero, state+": "+note, now))
	}

	transition(model.RebalanceTriggered,
		fmt.Sprintf("health %s below threshold %s", health, hedge.RebalanceThresholdBps))

	// Close: realize the damaged position.
	transition(model.RebalanceClosing, "closing hedge position")
	collateral, realized, err := s.hedger.Close(ctx)
	if err != nil {
		s.restore(undo)
		return nil, fmt.Errorf("vault: hedge close: %w", err)
	}
	proceeds := collateral.Add(realized)
	if proceeds.IsNegative() {
		proceeds = decimal.Zero
	}
	s.position = nil

	// Consolidate: park the proceeds in the yield strategy so the whole
	// balance is in one place before re-splitting.
	transition(model.RebalanceConsolidating, "consolidating proceeds into yield strategy")
	if proceeds.IsPositive() {
		before, err := s.strategy.TotalAssets(ctx)
		if err != nil {
			s.restore(undo)
			return nil, fmt.Errorf("vault: yield value: %w", err)
		}
		if _, err := s.strategy.Deposit(ctx, proceeds); err != nil {
			s.restore(undo)
			return nil, fmt.Errorf("vault: consolidate deposit: %w", err)
		}
		after, err := s.strategy.TotalAssets(ctx)
		if err != nil {
			s.restore(undo)
			return nil, fmt.Errorf("vault: yield read-back: %w", err)
		}
		if after.Sub(before.Add(proceeds)).Abs().GreaterThan(verifyTolerance) {
			s.restore(undo)
			return nil, fmt.Errorf("%w: yield strategy", ErrProviderVerification)
		}
	}

	// Reopen: split the consolidated balance at the target ratio and open
	// a fresh position at full health.
	transition(model.RebalanceReopening, "reopening hedge at target ratio")
	total, err := s.strategy.TotalAssets(ctx)
	if err != nil {
		s.restore(undo)
		return nil, fmt.Errorf("vault: yield value: %w", err)
	}
	_, hedgeAmt, err := s.alloc.Allocate(total)
	if err != nil {
		s.restore(undo)
		return nil, err
	}
	if _, err := s.strategy.Withdraw(ctx, hedgeAmt); err != nil {
		s.restore(undo)
		return nil, fmt.Errorf("vault: reopen withdraw: %w", err)
	}
	pos, err := hedge.NewPosition(hedgeAmt, s.params.Leverage)
	if err != nil {
		s.restore(undo)
		return nil, err
	}
	if err := s.hedger.Open(ctx, pos.Collateral, pos.Notional, pos.Leverage); err != nil {
		s.restore(undo)
		return nil, fmt.Errorf("vault: reopen hedge: %w", err)
	}
	readBack, err := s.hedger.Collateral(ctx)
	if err != nil {
		s.restore(undo)
		return nil, fmt.Errorf("vault: hedge read-back: %w", err)
	}
	if readBack.Sub(pos.Collateral).Abs().GreaterThan(verifyTolerance) {
		s.restore(undo)
		return nil, fmt.Errorf("%w: hedge provider", ErrProviderVerification)
	}
	s.position = pos

	// The reserve pays the venue costs of the close/reopen pair.
	venueCost := s.params.CloseCost.Add(s.params.OpeningCost)
	if venueCost.IsPositive() {
		if err := s.fund.CoverOpeningCost(venueCost); err != nil {
			s.restore(undo)
			return nil, err
		}
	}

	transition(model.RebalanceHealthy, "rebalance complete")
	s.commit(ctx, events)
	s.publishSnapshot(ctx)

	metrics.RebalancesTotal.Inc()
	metrics.OperationLatency.WithLabelValues("rebalance").Observe(time.Since(start).Seconds())
	slog.Info("rebalance complete",
		"health_before", health.String(),
		"realized_pnl", realized.String(),
		"new_collateral", pos.Collateral.String(),
	)
	s.broadcast(ctx, "rebalance")

	return &Receipt{
		EventID:    events[len(events)-1].ID,
		Assets:     realized,
		SharePrice: s.snapshot.Load().SharePrice,
	}, nil
}
