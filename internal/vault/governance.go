package vault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/alloc"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/safety"
	"github.com/atmx/vault-engine/internal/venue"
)

// Owner-only operations. Authentication happens at the HTTP layer; these
// methods assume the caller is the owner.

// Pause stops deposits and redemptions. Idempotent.
func (s *Service) Pause(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.governor.Pause()
	s.journalGovernance(ctx, "pause")
	s.publishSnapshot(ctx)
	slog.Warn("vault paused")
}

// Unpause re-enables user operations. Idempotent.
func (s *Service) Unpause(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.governor.Unpause()
	s.journalGovernance(ctx, "unpause")
	s.publishSnapshot(ctx)
	slog.Info("vault unpaused")
}

// SetCap updates the nominal TVL cap. The anti-front-running buffer
// applies on top, so freed capacity is not immediately snipeable.
func (s *Service) SetCap(ctx context.Context, cap decimal.Decimal) error {
	if cap.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("vault: cap must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.governor.SetCap(cap)
	s.journalGovernance(ctx, "set cap "+cap.String())
	s.publishSnapshot(ctx)
	slog.Info("cap updated", "cap", cap.String())
	return nil
}

// SetCooldown updates the per-account operation cooldown.
func (s *Service) SetCooldown(ctx context.Context, cooldown time.Duration) error {
	if cooldown < 0 {
		return fmt.Errorf("vault: cooldown must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.governor.SetCooldown(cooldown)
	s.journalGovernance(ctx, "set cooldown "+cooldown.String())
	slog.Info("cooldown updated", "cooldown", cooldown.String())
	return nil
}

// SetPerformanceFee updates the performance fee rate, bounded by the
// hard cap in the fees package.
func (s *Service) SetPerformanceFee(ctx context.Context, feeBps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.feeState.SetFeeBps(feeBps); err != nil {
		return err
	}
	s.journalGovernance(ctx, fmt.Sprintf("set performance fee %d bps", feeBps))
	slog.Info("performance fee updated", "fee_bps", feeBps)
	return nil
}

// SetAllocationRatio retargets the yield/hedge split. Prospective only:
// existing holdings keep their drifted proportions until the next
// deposit or rebalance allocates at the new ratio.
func (s *Service) SetAllocationRatio(ctx context.Context, yieldBps int64) error {
	engine, err := alloc.NewEngine(yieldBps)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alloc = engine
	s.journalGovernance(ctx, fmt.Sprintf("set allocation ratio %d bps", yieldBps))
	slog.Info("allocation ratio updated", "yield_bps", yieldBps)
	return nil
}

// FundReserve records founder bootstrap capital in the reserve fund.
func (s *Service) FundReserve(ctx context.Context, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fund.FundFounder(amount); err != nil {
		return err
	}
	s.journalGovernance(ctx, "fund reserve "+amount.String())
	s.publishSnapshot(ctx)
	slog.Info("reserve funded", "amount", amount.String(), "balance", s.fund.Balance.String())
	return nil
}

// --- Strategy change (propose → timelock → execute) ---

// ProposeStrategy starts a timelocked switch to a whitelisted yield
// strategy. A separate proposal cooldown prevents propose/cancel cycling
// from resetting the effective delay.
func (s *Service) ProposeStrategy(ctx context.Context, ref string) (*safety.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()

	parsed, err := venue.ParseRef(ref)
	if err != nil {
		return nil, err
	}
	if parsed.Kind != venue.KindYield {
		return nil, fmt.Errorf("%w: %s", venue.ErrInvalidKind, ref)
	}
	if !s.registry.Whitelisted(ref) {
		return nil, fmt.Errorf("%w: %s", venue.ErrNotWhitelisted, ref)
	}

	pending, err := s.governor.Propose(ref, now)
	if err != nil {
		return nil, err
	}
	s.pending = pending
	s.journalGovernance(ctx, "propose strategy "+ref)
	s.publishSnapshot(ctx)
	slog.Info("strategy proposed", "ref", ref, "activates_at", pending.ActivatesAt)
	return pending, nil
}

// CancelStrategy drops the pending change. The proposal cooldown clock
// keeps running; cancelling does not allow an immediate re-propose.
func (s *Service) CancelStrategy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return safety.ErrNoPendingChange
	}
	ref := s.pending.Ref
	s.pending = nil
	s.journalGovernance(ctx, "cancel strategy "+ref)
	s.publishSnapshot(ctx)
	slog.Info("strategy proposal cancelled", "ref", ref)
	return nil
}

// ExecuteStrategy applies the pending change after the timelock: drains
// the active strategy, moves the full balance into the new one, and
// verifies the landed value.
func (s *Service) ExecuteStrategy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()
	now := s.clock()

	if err := s.governor.CheckExecute(s.pending, now); err != nil {
		return err
	}
	next, err := s.registry.Resolve(s.pending.Ref)
	if err != nil {
		return err
	}

	undo := s.capture()
	ref := s.pending.Ref
	s.pending = nil

	before, err := next.TotalAssets(ctx)
	if err != nil {
		s.restore(undo)
		return fmt.Errorf("vault: strategy read: %w", err)
	}
	moved, err := s.strategy.WithdrawAll(ctx)
	if err != nil {
		s.restore(undo)
		return fmt.Errorf("vault: drain strategy: %w", err)
	}
	if moved.IsPositive() {
		if _, err := next.Deposit(ctx, moved); err != nil {
			s.restore(undo)
			return fmt.Errorf("vault: fund strategy: %w", err)
		}
	}
	after, err := next.TotalAssets(ctx)
	if err != nil {
		s.restore(undo)
		return fmt.Errorf("vault: strategy read-back: %w", err)
	}
	if after.Sub(before.Add(moved)).Abs().GreaterThan(verifyTolerance) {
		s.restore(undo)
		return fmt.Errorf("%w: yield strategy", ErrProviderVerification)
	}

	s.strategy = next
	s.activeRef = ref
	s.journalGovernance(ctx, "execute strategy "+ref)
	s.publishSnapshot(ctx)
	slog.Info("strategy changed", "ref", ref, "moved", moved.String())
	return nil
}

// journalGovernance writes a governance event. Called with the lock held.
func (s *Service) journalGovernance(ctx context.Context, note string) {
	event := s.newEvent(model.EventGovernance, "", decimal.Zero, decimal.Zero,
		decimal.Zero, decimal.Zero, note, s.clock())
	s.commit(ctx, []*model.VaultEvent{event})
}
