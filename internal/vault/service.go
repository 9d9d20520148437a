// Package vault implements the custodial share ledger: deposits and
// redemptions against a derived share price, capital placement across the
// yield and hedge venues, performance-fee harvests, the rebalance state
// machine, and the governance surface.
//
// Every mutating operation is serialized behind a single mutex, finalizes
// internal state before the first venue call, verifies each venue call's
// post-condition against re-read venue state, and fully restores the prior
// state on any failure. Read-only views are served from an atomically
// swapped snapshot and never take the operation lock.
//
// All monetary values use shopspring/decimal — never float64 for money.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/alloc"
	"github.com/atmx/vault-engine/internal/config"
	"github.com/atmx/vault-engine/internal/fees"
	"github.com/atmx/vault-engine/internal/hedge"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/reserve"
	"github.com/atmx/vault-engine/internal/safety"
	"github.com/atmx/vault-engine/internal/store"
	"github.com/atmx/vault-engine/internal/venue"
)

// shareScale is the number of decimal places for minted shares.
const shareScale int32 = 8

// verifyTolerance bounds the allowed drift between the expected and the
// re-read venue state after a mutating venue call.
var verifyTolerance = decimal.New(1, -6)

var one = decimal.NewFromInt(1)

// Service is the vault engine. A single instance owns the ledger; all
// mutation goes through its serialized operation path.
type Service struct {
	store  store.Store
	hub    *WSHub
	params *config.Params

	alloc    *alloc.Engine
	governor *safety.Governor
	feeState *fees.State
	fund     *reserve.Fund

	registry *venue.Registry
	strategy venue.YieldStrategy
	hedger   venue.HedgeProvider
	oracle   venue.PriceOracle
	feeSink  venue.FeeSink

	mu       sync.Mutex
	inFlight bool
	clock    func() time.Time

	accounts    map[string]*model.Account
	totalShares decimal.Decimal
	position    *hedge.Position
	rebalState  string
	activeRef   string
	pending     *safety.PendingChange

	snapshot atomic.Pointer[model.Snapshot]
}

// Deps carries the service's collaborators. Store and Hub may be nil
// (no persistence, no broadcasting); everything else is required.
type Deps struct {
	Store     store.Store
	Hub       *WSHub
	Registry  *venue.Registry
	ActiveRef string
	Hedge     venue.HedgeProvider
	Oracle    venue.PriceOracle
	FeeSink   venue.FeeSink

	// Clock overrides time.Now for deterministic tests. Nil means UTC now.
	Clock func() time.Time
}

// New constructs the engine, performing the genesis share mint on a fresh
// ledger or rehydrating from the store's restart image when one exists.
func New(ctx context.Context, params *config.Params, deps Deps) (*Service, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	allocEngine, err := alloc.NewEngine(params.TargetYieldBps)
	if err != nil {
		return nil, err
	}

	strategy, err := deps.Registry.Resolve(deps.ActiveRef)
	if err != nil {
		return nil, err
	}

	feeState, err := fees.NewState(one, params.PerformanceFeeBps)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:    deps.Store,
		hub:      deps.Hub,
		params:   params,
		alloc:    allocEngine,
		feeState: feeState,
		fund:     reserve.NewFund(params.ReserveMinBalance),
		registry: deps.Registry,
		strategy: strategy,
		hedger:   deps.Hedge,
		oracle:   deps.Oracle,
		feeSink:  deps.FeeSink,
		clock:    deps.Clock,

		accounts:   make(map[string]*model.Account),
		rebalState: model.RebalanceHealthy,
		activeRef:  deps.ActiveRef,
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}

	s.governor = safety.NewGovernor(safety.Config{
		MaxPriceChangeBps: params.MaxPriceChangeBps,
		TVLCap:            params.TVLCap,
		TVLBufferBps:      params.TVLBufferBps,
		AccountCooldown:   params.AccountCooldown,
		MinHoldTime:       params.MinHoldTime,
		Timelock:          params.Timelock,
		ProposalCooldown:  params.ProposalCooldown,
	})

	restored, err := s.rehydrate(ctx)
	if err != nil {
		return nil, err
	}
	if !restored {
		// Genesis mint: a fixed share count to a reserved locked account.
		// Keeps totalShares > 0 forever, so a pre-deposit donation cannot
		// capture the entire share supply.
		s.accounts[model.GenesisLockAccount] = &model.Account{
			ID:     model.GenesisLockAccount,
			Shares: params.GenesisShares,
		}
		s.totalShares = params.GenesisShares
		if s.store != nil {
			if err := s.store.SaveAccount(ctx, s.accounts[model.GenesisLockAccount]); err != nil {
				slog.Error("genesis account save failed", "err", err)
			}
		}
		slog.Info("genesis mint", "shares", params.GenesisShares.String())
	}

	s.publishSnapshot(ctx)
	return s, nil
}

// rehydrate loads the restart image if the store holds one.
func (s *Service) rehydrate(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	st, err := s.store.LoadState(ctx)
	if err != nil {
		return false, fmt.Errorf("vault: load state: %w", err)
	}
	if st == nil {
		return false, nil
	}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return false, fmt.Errorf("vault: load accounts: %w", err)
	}
	for i := range accounts {
		a := accounts[i]
		s.accounts[a.ID] = &a
	}

	s.totalShares = st.TotalShares
	s.rebalState = st.RebalanceState
	if st.ActiveStrategyRef != "" && st.ActiveStrategyRef != s.activeRef {
		strategy, err := s.registry.Resolve(st.ActiveStrategyRef)
		if err != nil {
			return false, err
		}
		s.strategy = strategy
		s.activeRef = st.ActiveStrategyRef
	}
	if st.HedgeCollateral.IsPositive() {
		s.position = &hedge.Position{
			Collateral: st.HedgeCollateral,
			Notional:   st.HedgeNotional,
			Leverage:   st.HedgeLeverage,
		}
	}
	s.feeState.HighWaterMark = st.HighWaterMark
	s.feeState.LastHarvestAt = st.LastHarvestAt
	s.fund.Balance = st.ReserveBalance
	s.fund.YieldBorrowed = st.YieldBorrowed
	s.fund.FounderContribution = st.FounderContribution
	s.fund.TotalOpeningFeesPaid = st.TotalOpeningFeesPaid
	s.fund.TotalRedemptionFeesCollected = st.TotalRedemptionFeesCollected
	s.governor.ObservePrice(st.LastObservedPrice)
	s.governor.RestoreProposalClock(st.LastProposalAt)
	if st.PendingStrategyRef != "" {
		s.pending = &safety.PendingChange{
			Ref:         st.PendingStrategyRef,
			ProposedAt:  st.PendingProposedAt,
			ActivatesAt: st.PendingActivatesAt,
		}
	}

	slog.Info("ledger rehydrated",
		"total_shares", st.TotalShares.String(),
		"accounts", len(accounts),
		"rebalance_state", st.RebalanceState,
	)
	return true, nil
}

// Receipt summarizes a committed mutating operation.
type Receipt struct {
	EventID    string          `json:"event_id"`
	AccountID  string          `json:"account_id,omitempty"`
	Assets     decimal.Decimal `json:"assets"`
	Shares     decimal.Decimal `json:"shares"`
	Fee        decimal.Decimal `json:"fee"`
	SharePrice decimal.Decimal `json:"share_price"`
}

// --- Deposit ---

// Deposit accepts principal, places it across the two venues at the
// target ratio, and mints shares at the current derived price.
func (s *Service) Deposit(ctx context.Context, accountID string, principal decimal.Decimal) (*Receipt, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()
	now := s.clock()

	if err := s.checkDeposit(ctx, accountID, principal, now); err != nil {
		reject("deposit", err)
		return nil, err
	}

	total, yieldVal, _, pnl, err := s.venueTotals(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.governor.CheckCapacity(total, principal); err != nil {
		reject("deposit", err)
		return nil, err
	}
	health := hedge.HealthFactor(s.position, pnl)
	if s.position != nil && !hedge.IncreaseAllowed(health) {
		reject("deposit", ErrIncreaseRefused)
		return nil, ErrIncreaseRefused
	}

	price := s.sharePrice(total)
	minted := principal.Div(price).RoundDown(shareScale)
	yieldAmt, hedgeAmt, err := s.alloc.Allocate(principal)
	if err != nil {
		reject("deposit", err)
		return nil, err
	}

	// Finalize internal state before the first venue call.
	undo := s.capture()
	opening := s.position == nil

	acct := s.accounts[accountID]
	if acct == nil {
		acct = &model.Account{ID: accountID}
		s.accounts[accountID] = acct
	}
	acct.Shares = acct.Shares.Add(minted)
	acct.LastOperationAt = now
	acct.LastMintAt = now
	s.totalShares = s.totalShares.Add(minted)

	if opening {
		pos, err := hedge.NewPosition(hedgeAmt, s.params.Leverage)
		if err != nil {
			s.restore(undo)
			return nil, err
		}
		s.position = pos
	} else if err := s.position.Adjust(hedgeAmt); err != nil {
		s.restore(undo)
		return nil, err
	}
	if s.params.OpeningCost.IsPositive() {
		if err := s.fund.CoverOpeningCost(s.params.OpeningCost); err != nil {
			s.restore(undo)
			return nil, err
		}
	}

	// Venue interactions, each verified against re-read venue state.
	if err := s.placeFunds(ctx, yieldAmt, hedgeAmt, yieldVal, opening); err != nil {
		s.restore(undo)
		return nil, err
	}

	if value, stale, oerr := s.oracle.Price(ctx); oerr == nil && !stale {
		s.governor.ObservePrice(value)
	}

	event := s.newEvent(model.EventDeposit, accountID, principal, minted, decimal.Zero, price, "", now)
	s.commit(ctx, []*model.VaultEvent{event}, acct)
	s.publishSnapshot(ctx)

	metrics.DepositsTotal.Inc()
	metrics.OperationLatency.WithLabelValues("deposit").Observe(time.Since(start).Seconds())
	slog.Info("deposit",
		"account", accountID,
		"principal", principal.String(),
		"shares", minted.String(),
		"share_price", price.String(),
	)
	s.broadcast(ctx, "deposit")

	return &Receipt{
		EventID:    event.ID,
		AccountID:  accountID,
		Assets:     principal,
		Shares:     minted,
		Fee:        decimal.Zero,
		SharePrice: price,
	}, nil
}

// checkDeposit runs the pre-flight policy checks that need no venue calls
// beyond the oracle.
func (s *Service) checkDeposit(ctx context.Context, accountID string, principal decimal.Decimal, now time.Time) error {
	if accountID == "" {
		return ErrUnknownAccount
	}
	if principal.LessThan(s.params.MinDeposit) {
		return ErrBelowMinDeposit
	}
	if err := s.governor.CheckNotPaused(); err != nil {
		return err
	}
	if s.rebalState != model.RebalanceHealthy {
		return ErrRebalanceInProgress
	}

	value, stale, err := s.oracle.Price(ctx)
	if err != nil {
		return fmt.Errorf("vault: oracle: %w", err)
	}
	if err := s.governor.CheckPrice(value, stale); err != nil {
		return err
	}

	if acct := s.accounts[accountID]; acct != nil {
		if err := s.governor.CheckCooldown(acct.LastOperationAt, now); err != nil {
			return err
		}
	}
	return nil
}

// placeFunds deposits the yield leg and opens/grows the hedge leg,
// verifying each venue's observable state afterwards.
func (s *Service) placeFunds(ctx context.Context, yieldAmt, hedgeAmt, yieldBefore decimal.Decimal, opening bool) error {
	if _, err := s.strategy.Deposit(ctx, yieldAmt); err != nil {
		return fmt.Errorf("vault: yield deposit: %w", err)
	}
	after, err := s.strategy.TotalAssets(ctx)
	if err != nil {
		return fmt.Errorf("vault: yield read-back: %w", err)
	}
	if after.Sub(yieldBefore.Add(yieldAmt)).Abs().GreaterThan(verifyTolerance) {
		return fmt.Errorf("%w: yield strategy", ErrProviderVerification)
	}

	notionalDelta := hedgeAmt.Mul(s.params.Leverage)
	if opening {
		err = s.hedger.Open(ctx, hedgeAmt, notionalDelta, s.params.Leverage)
	} else {
		err = s.hedger.Adjust(ctx, hedgeAmt, notionalDelta)
	}
	if err != nil {
		return fmt.Errorf("vault: hedge adjust: %w", err)
	}
	collateral, err := s.hedger.Collateral(ctx)
	if err != nil {
		return fmt.Errorf("vault: hedge read-back: %w", err)
	}
	if collateral.Sub(s.position.Collateral).Abs().GreaterThan(verifyTolerance) {
		return fmt.Errorf("%w: hedge provider", ErrProviderVerification)
	}
	return nil
}

// --- Redeem ---

// Redeem burns shares at the current derived price, withdraws the
// corresponding assets proportionally from both venues, and routes the
// redemption fee through the reserve fund's repayment waterfall.
//
// Redemptions deliberately skip the price circuit breaker: exits stay
// open on the last good price even when deposits are blocked.
func (s *Service) Redeem(ctx context.Context, accountID string, shares decimal.Decimal) (*Receipt, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()
	now := s.clock()

	acct, err := s.checkRedeem(accountID, shares, now)
	if err != nil {
		reject("redeem", err)
		return nil, err
	}

	total, yieldVal, hedgeVal, _, err := s.venueTotals(ctx)
	if err != nil {
		return nil, err
	}
	price := s.sharePrice(total)
	assets := shares.Mul(price).RoundDown(shareScale)
	fee := assets.Mul(decimal.NewFromInt(s.params.RedemptionFeeBps)).
		Div(decimal.NewFromInt(10000)).RoundDown(shareScale)
	payout := assets.Sub(fee)

	yieldAmt, hedgeAmt, err := s.alloc.Deallocate(assets, yieldVal, hedgeVal)
	if err != nil {
		reject("redeem", err)
		return nil, err
	}

	undo := s.capture()
	closeHedge := s.position != nil && hedgeAmt.GreaterThanOrEqual(s.position.Collateral)

	acct.Shares = acct.Shares.Sub(shares)
	acct.LastOperationAt = now
	s.totalShares = s.totalShares.Sub(shares)
	if fee.IsPositive() {
		if _, err := s.fund.CollectRedemptionFee(fee); err != nil {
			s.restore(undo)
			return nil, err
		}
	}
	if s.params.CloseCost.IsPositive() {
		if err := s.fund.CoverOpeningCost(s.params.CloseCost); err != nil {
			s.restore(undo)
			return nil, err
		}
	}
	if closeHedge {
		s.position = nil
	} else if s.position != nil && hedgeAmt.IsPositive() {
		if err := s.position.Adjust(hedgeAmt.Neg()); err != nil {
			s.restore(undo)
			return nil, err
		}
	}

	if err := s.withdrawFunds(ctx, yieldAmt, hedgeAmt, yieldVal, closeHedge); err != nil {
		s.restore(undo)
		return nil, err
	}

	event := s.newEvent(model.EventRedeem, accountID, payout.Neg(), shares.Neg(), fee, price, "", now)
	s.commit(ctx, []*model.VaultEvent{event}, acct)
	s.publishSnapshot(ctx)

	metrics.RedeemsTotal.Inc()
	metrics.OperationLatency.WithLabelValues("redeem").Observe(time.Since(start).Seconds())
	slog.Info("redeem",
		"account", accountID,
		"shares", shares.String(),
		"payout", payout.String(),
		"fee", fee.String(),
		"share_price", price.String(),
	)
	s.broadcast(ctx, "redeem")

	return &Receipt{
		EventID:    event.ID,
		AccountID:  accountID,
		Assets:     payout,
		Shares:     shares,
		Fee:        fee,
		SharePrice: price,
	}, nil
}

func (s *Service) checkRedeem(accountID string, shares decimal.Decimal, now time.Time) (*model.Account, error) {
	if err := s.governor.CheckNotPaused(); err != nil {
		return nil, err
	}
	if s.rebalState != model.RebalanceHealthy {
		return nil, ErrRebalanceInProgress
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidShares
	}
	acct := s.accounts[accountID]
	if acct == nil || accountID == model.GenesisLockAccount {
		return nil, ErrUnknownAccount
	}
	if acct.Shares.LessThan(shares) {
		return nil, ErrInsufficientShares
	}
	if err := s.governor.CheckCooldown(acct.LastOperationAt, now); err != nil {
		return nil, err
	}
	if err := s.governor.CheckHoldTime(acct.LastMintAt, now); err != nil {
		return nil, err
	}
	return acct, nil
}

// withdrawFunds pulls the redemption out of the venues. When the hedge
// leg is being drained completely the position is closed outright and any
// shortfall against the target amount comes out of the yield strategy.
func (s *Service) withdrawFunds(ctx context.Context, yieldAmt, hedgeAmt, yieldBefore decimal.Decimal, closeHedge bool) error {
	hedgeRecovered := decimal.Zero
	if closeHedge {
		collateral, pnl, err := s.hedger.Close(ctx)
		if err != nil {
			return fmt.Errorf("vault: hedge close: %w", err)
		}
		hedgeRecovered = collateral.Add(pnl)
		if hedgeRecovered.IsNegative() {
			hedgeRecovered = decimal.Zero
		}
	} else if hedgeAmt.IsPositive() {
		notionalDelta := hedgeAmt.Mul(s.params.Leverage)
		if err := s.hedger.Adjust(ctx, hedgeAmt.Neg(), notionalDelta.Neg()); err != nil {
			return fmt.Errorf("vault: hedge adjust: %w", err)
		}
		collateral, err := s.hedger.Collateral(ctx)
		if err != nil {
			return fmt.Errorf("vault: hedge read-back: %w", err)
		}
		if collateral.Sub(s.position.Collateral).Abs().GreaterThan(verifyTolerance) {
			return fmt.Errorf("%w: hedge provider", ErrProviderVerification)
		}
		hedgeRecovered = hedgeAmt
	}

	// The hedge close may return more or less than the hedge leg's target
	// share; the yield leg covers a shortfall, and a surplus (a profitable
	// close exceeding the whole redemption) is parked back in the yield
	// strategy so it stays in totalAssets for the remaining holders.
	need := yieldAmt.Add(hedgeAmt).Sub(hedgeRecovered)
	switch {
	case need.IsPositive():
		got, err := s.strategy.Withdraw(ctx, need)
		if err != nil {
			return fmt.Errorf("vault: yield withdraw: %w", err)
		}
		after, err := s.strategy.TotalAssets(ctx)
		if err != nil {
			return fmt.Errorf("vault: yield read-back: %w", err)
		}
		if after.Sub(yieldBefore.Sub(got)).Abs().GreaterThan(verifyTolerance) {
			return fmt.Errorf("%w: yield strategy", ErrProviderVerification)
		}
	case need.IsNegative():
		surplus := need.Neg()
		if _, err := s.strategy.Deposit(ctx, surplus); err != nil {
			return fmt.Errorf("vault: surplus deposit: %w", err)
		}
		after, err := s.strategy.TotalAssets(ctx)
		if err != nil {
			return fmt.Errorf("vault: yield read-back: %w", err)
		}
		if after.Sub(yieldBefore.Add(surplus)).Abs().GreaterThan(verifyTolerance) {
			return fmt.Errorf("%w: yield strategy", ErrProviderVerification)
		}
	}
	return nil
}

// --- Harvest ---

// Harvest charges the performance fee on share-price gains above the
// high-water mark by minting fee shares to the fee sink account.
func (s *Service) Harvest(ctx context.Context) (*Receipt, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()
	now := s.clock()

	total, _, _, _, err := s.venueTotals(ctx)
	if err != nil {
		return nil, err
	}
	price := s.sharePrice(total)
	if price.LessThanOrEqual(s.feeState.HighWaterMark) {
		return nil, ErrNothingToHarvest
	}

	undo := s.capture()
	feeShares, feeAssets := s.feeState.Harvest(price, s.totalShares, now)
	if feeShares.IsZero() {
		return nil, ErrNothingToHarvest
	}

	sink := s.accounts[model.FeeSinkAccount]
	if sink == nil {
		sink = &model.Account{ID: model.FeeSinkAccount}
		s.accounts[model.FeeSinkAccount] = sink
	}
	sink.Shares = sink.Shares.Add(feeShares)
	sink.LastOperationAt = now
	s.totalShares = s.totalShares.Add(feeShares)

	// Pull-payment: credit the sink collaborator; delivery is its problem.
	if err := s.feeSink.Receive(ctx, feeShares); err != nil {
		s.restore(undo)
		return nil, fmt.Errorf("vault: fee sink: %w", err)
	}

	event := s.newEvent(model.EventHarvest, model.FeeSinkAccount, feeAssets, feeShares, feeAssets, price, "", now)
	s.commit(ctx, []*model.VaultEvent{event}, sink)
	s.publishSnapshot(ctx)

	metrics.HarvestsTotal.Inc()
	metrics.OperationLatency.WithLabelValues("harvest").Observe(time.Since(start).Seconds())
	slog.Info("harvest",
		"fee_shares", feeShares.String(),
		"fee_assets", feeAssets.String(),
		"share_price", price.String(),
		"high_water_mark", s.feeState.HighWaterMark.String(),
	)
	s.broadcast(ctx, "harvest")

	return &Receipt{
		EventID:    event.ID,
		AccountID:  model.FeeSinkAccount,
		Assets:     feeAssets,
		Shares:     feeShares,
		Fee:        feeAssets,
		SharePrice: price,
	}, nil
}

// --- Derived state ---

// venueTotals reads both venues and derives the totals. totalAssets is
// always computed from live venue state, hedge PnL included; it is never
// stored or substituted with a neutral value.
func (s *Service) venueTotals(ctx context.Context) (total, yieldVal, hedgeVal, pnl decimal.Decimal, err error) {
	yieldVal, err = s.strategy.TotalAssets(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("vault: yield value: %w", err)
	}
	if s.position != nil {
		pnl, err = s.hedger.PnL(ctx)
		if err != nil {
			return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero,
				fmt.Errorf("vault: hedge pnl: %w", err)
		}
		hedgeVal = s.position.Collateral.Add(pnl)
		if hedgeVal.IsNegative() {
			hedgeVal = decimal.Zero
		}
	}
	return yieldVal.Add(hedgeVal), yieldVal, hedgeVal, pnl, nil
}

// sharePrice derives the price from live totals. An empty vault (genesis
// shares only, no assets placed yet) prices the first deposit at 1.
func (s *Service) sharePrice(total decimal.Decimal) decimal.Decimal {
	if s.totalShares.IsPositive() && total.IsPositive() {
		return total.Div(s.totalShares)
	}
	return one
}

// --- Serialization and atomicity ---

func (s *Service) begin() error {
	if s.inFlight {
		return ErrReentrancy
	}
	s.inFlight = true
	return nil
}

func (s *Service) end() { s.inFlight = false }

// undoState is a full copy of the mutable ledger state, taken before the
// effects of an operation and restored on any venue failure.
type undoState struct {
	accounts    map[string]model.Account
	totalShares decimal.Decimal
	position    *hedge.Position
	fund        reserve.Fund
	feeState    fees.State
	rebalState  string
	activeRef   string
	strategy    venue.YieldStrategy
	pending     *safety.PendingChange
}

func (s *Service) capture() *undoState {
	accounts := make(map[string]model.Account, len(s.accounts))
	for id, a := range s.accounts {
		accounts[id] = *a
	}
	u := &undoState{
		accounts:    accounts,
		totalShares: s.totalShares,
		fund:        *s.fund,
		feeState:    *s.feeState,
		rebalState:  s.rebalState,
		activeRef:   s.activeRef,
		strategy:    s.strategy,
		pending:     s.pending,
	}
	if s.position != nil {
		pos := *s.position
		u.position = &pos
	}
	return u
}

func (s *Service) restore(u *undoState) {
	s.accounts = make(map[string]*model.Account, len(u.accounts))
	for id, a := range u.accounts {
		copy := a
		s.accounts[id] = &copy
	}
	s.totalShares = u.totalShares
	s.position = u.position
	*s.fund = u.fund
	*s.feeState = u.feeState
	s.rebalState = u.rebalState
	s.activeRef = u.activeRef
	s.strategy = u.strategy
	s.pending = u.pending
}

// --- Journal, persistence, views ---

func (s *Service) newEvent(kind, accountID string, assets, shares, fee, price decimal.Decimal, note string, now time.Time) *model.VaultEvent {
	return &model.VaultEvent{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Kind:       kind,
		Assets:     assets,
		Shares:     shares,
		Fee:        fee,
		SharePrice: price,
		Note:       note,
		Timestamp:  now,
	}
}

// commit journals the events and persists the touched accounts plus the
// restart image. Post-commit and best-effort: the in-memory ledger is
// authoritative, so store failures are logged and counted, not fatal.
func (s *Service) commit(ctx context.Context, events []*model.VaultEvent, accounts ...*model.Account) {
	if s.store == nil {
		return
	}
	for _, e := range events {
		if err := s.store.AppendEvent(ctx, e); err != nil {
			metrics.JournalErrors.Inc()
			slog.Error("journal append failed", "event", e.ID, "err", err)
		}
	}
	for _, a := range accounts {
		if err := s.store.SaveAccount(ctx, a); err != nil {
			metrics.JournalErrors.Inc()
			slog.Error("account save failed", "account", a.ID, "err", err)
		}
	}
	if err := s.store.SaveState(ctx, s.persistedState()); err != nil {
		metrics.JournalErrors.Inc()
		slog.Error("state save failed", "err", err)
	}
}

func (s *Service) persistedState() *model.VaultState {
	st := &model.VaultState{
		TotalShares:                  s.totalShares,
		HighWaterMark:                s.feeState.HighWaterMark,
		RebalanceState:               s.rebalState,
		ActiveStrategyRef:            s.activeRef,
		ReserveBalance:               s.fund.Balance,
		YieldBorrowed:                s.fund.YieldBorrowed,
		FounderContribution:          s.fund.FounderContribution,
		TotalOpeningFeesPaid:         s.fund.TotalOpeningFeesPaid,
		TotalRedemptionFeesCollected: s.fund.TotalRedemptionFeesCollected,
		LastProposalAt:               s.governor.LastProposalAt(),
		LastObservedPrice:            s.governor.LastObservedPrice(),
		LastHarvestAt:                s.feeState.LastHarvestAt,
		UpdatedAt:                    s.clock(),
	}
	if s.position != nil {
		st.HedgeCollateral = s.position.Collateral
		st.HedgeNotional = s.position.Notional
		st.HedgeLeverage = s.position.Leverage
	}
	if s.pending != nil {
		st.PendingStrategyRef = s.pending.Ref
		st.PendingProposedAt = s.pending.ProposedAt
		st.PendingActivatesAt = s.pending.ActivatesAt
	}
	return st
}

// publishSnapshot swaps in a fresh read view. Called with the operation
// lock held; readers never take the lock.
func (s *Service) publishSnapshot(ctx context.Context) {
	total, yieldVal, _, pnl, err := s.venueTotals(ctx)
	if err != nil {
		slog.Error("snapshot venue read failed", "err", err)
		return
	}

	snap := &model.Snapshot{
		TotalShares:         s.totalShares,
		TotalAssets:         total,
		SharePrice:          s.sharePrice(total),
		YieldAssets:         yieldVal,
		HedgePnL:            pnl,
		HealthFactorBps:     hedge.HealthFactor(s.position, pnl),
		HighWaterMark:       s.feeState.HighWaterMark,
		Cap:                 s.governor.TVLCap,
		EffectiveCap:        s.governor.EffectiveCap(),
		ReserveBalance:      s.fund.Balance,
		YieldBorrowed:       s.fund.YieldBorrowed,
		FounderContribution: s.fund.FounderContribution,
		ReserveHealthy:      s.fund.Healthy(),
		Paused:              s.governor.Paused(),
		RebalanceState:      s.rebalState,
		ActiveStrategyRef:   s.activeRef,
		UpdatedAt:           s.clock(),
	}
	if s.position != nil {
		snap.HedgeCollateral = s.position.Collateral
		snap.HedgeNotional = s.position.Notional
	}
	if s.pending != nil {
		snap.PendingStrategyRef = s.pending.Ref
	}
	s.snapshot.Store(snap)

	f, _ := snap.TotalAssets.Float64()
	metrics.TVL.Set(f)
	f, _ = snap.SharePrice.Float64()
	metrics.SharePrice.Set(f)
	f, _ = snap.HealthFactorBps.Float64()
	metrics.HealthFactorBps.Set(f)
	f, _ = snap.ReserveBalance.Float64()
	metrics.ReserveBalance.Set(f)
	f, _ = snap.YieldBorrowed.Float64()
	metrics.YieldBorrowed.Set(f)
}

// Snapshot returns the latest published read view without locking.
func (s *Service) Snapshot() *model.Snapshot {
	return s.snapshot.Load()
}

// Account returns a copy of an account's current state.
func (s *Service) Account(id string) (*model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	copy := *a
	return &copy, true
}

func (s *Service) broadcast(ctx context.Context, opType string) {
	if s.hub == nil {
		return
	}
	snap := s.snapshot.Load()
	if snap == nil {
		return
	}
	s.hub.Broadcast(WSMessage{
		Type:            opType,
		SharePrice:      snap.SharePrice.String(),
		TotalAssets:     snap.TotalAssets.String(),
		HealthFactorBps: snap.HealthFactorBps.String(),
		RebalanceState:  snap.RebalanceState,
	})
}

func reject(op string, err error) {
	metrics.RejectionsTotal.WithLabelValues(op, reason(err)).Inc()
}

func reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, safety.ErrPaused):
		return "paused"
	case errors.Is(err, safety.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, safety.ErrPriceMoved):
		return "price_moved"
	case errors.Is(err, safety.ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, safety.ErrMinHoldTime):
		return "hold_time"
	case errors.Is(err, safety.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, ErrBelowMinDeposit):
		return "min_deposit"
	case errors.Is(err, ErrInsufficientShares), errors.Is(err, ErrInvalidShares):
		return "shares"
	case errors.Is(err, ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, ErrIncreaseRefused):
		return "hedge_guard"
	case errors.Is(err, ErrRebalanceInProgress):
		return "rebalancing"
	default:
		return "other"
	}
}
