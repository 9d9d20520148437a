// Package model defines the core domain types shared across the vault engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reserved system account IDs. These hold shares but never correspond to a
// real depositor.
const (
	// GenesisLockAccount receives the genesis share mint at construction.
	// Its shares are never redeemable, which keeps totalShares > 0 forever
	// and defeats the first-depositor donation attack.
	GenesisLockAccount = "vault:genesis-lock"

	// FeeSinkAccount receives performance-fee shares minted by harvests.
	FeeSinkAccount = "vault:fee-sink"
)

// Event kinds recorded in the immutable journal.
const (
	EventDeposit    = "deposit"
	EventRedeem     = "redeem"
	EventHarvest    = "harvest"
	EventRebalance  = "rebalance"
	EventGovernance = "governance"
)

// Rebalance states. The coordinator walks Healthy → RebalanceTriggered →
// Closing → Consolidating → Reopening → Healthy inside a single serialized
// operation; transitions are journaled so the sequence is auditable.
const (
	RebalanceHealthy       = "healthy"
	RebalanceTriggered     = "triggered"
	RebalanceClosing       = "closing"
	RebalanceConsolidating = "consolidating"
	RebalanceReopening     = "reopening"
)

// Account tracks one depositor's share balance and the timestamps that
// drive cooldown and minimum-hold-time rules. Accounts are created on
// first deposit and never deleted; a balance may reach zero.
type Account struct {
	ID              string          `json:"id" db:"id"`
	Shares          decimal.Decimal `json:"shares" db:"shares"`
	LastOperationAt time.Time       `json:"last_operation_at" db:"last_operation_at"`
	LastMintAt      time.Time       `json:"last_mint_at" db:"last_mint_at"`
}

// VaultEvent is an immutable record of a vault operation.
// Once created, these are never modified or deleted.
type VaultEvent struct {
	ID         string          `json:"id" db:"id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	Kind       string          `json:"kind" db:"kind"`
	Assets     decimal.Decimal `json:"assets" db:"assets"` // signed principal moved
	Shares     decimal.Decimal `json:"shares" db:"shares"` // signed shares minted/burned
	Fee        decimal.Decimal `json:"fee" db:"fee"`       // fee charged, if any
	SharePrice decimal.Decimal `json:"share_price" db:"share_price"`
	Note       string          `json:"note,omitempty" db:"note"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// VaultState is the persisted scalar state of the ledger: everything needed
// to restart the engine apart from per-account balances and the journal.
type VaultState struct {
	TotalShares       decimal.Decimal `json:"total_shares"`
	HighWaterMark     decimal.Decimal `json:"high_water_mark"`
	RebalanceState    string          `json:"rebalance_state"`
	ActiveStrategyRef string          `json:"active_strategy_ref"`

	// Hedge position; zero collateral means no position open.
	HedgeCollateral decimal.Decimal `json:"hedge_collateral"`
	HedgeNotional   decimal.Decimal `json:"hedge_notional"`
	HedgeLeverage   decimal.Decimal `json:"hedge_leverage"`

	// Reserve fund scalars.
	ReserveBalance               decimal.Decimal `json:"reserve_balance"`
	YieldBorrowed                decimal.Decimal `json:"yield_borrowed"`
	FounderContribution          decimal.Decimal `json:"founder_contribution"`
	TotalOpeningFeesPaid         decimal.Decimal `json:"total_opening_fees_paid"`
	TotalRedemptionFeesCollected decimal.Decimal `json:"total_redemption_fees_collected"`

	// Pending timelocked strategy change; an empty ref means none. The
	// proposal-cooldown clock is persisted alongside so a restart cannot
	// be used to cycle proposals faster than the cooldown allows.
	PendingStrategyRef string    `json:"pending_strategy_ref"`
	PendingProposedAt  time.Time `json:"pending_proposed_at"`
	PendingActivatesAt time.Time `json:"pending_activates_at"`
	LastProposalAt     time.Time `json:"last_proposal_at"`

	LastObservedPrice decimal.Decimal `json:"last_observed_price"`
	LastHarvestAt     time.Time       `json:"last_harvest_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Snapshot is the read-only view of the vault published after every
// mutating operation. Handlers and off-process monitors read it without
// taking the engine lock.
type Snapshot struct {
	TotalShares     decimal.Decimal `json:"total_shares"`
	TotalAssets     decimal.Decimal `json:"total_assets"`
	SharePrice      decimal.Decimal `json:"share_price"`
	YieldAssets     decimal.Decimal `json:"yield_assets"`
	HedgeCollateral decimal.Decimal `json:"hedge_collateral"`
	HedgeNotional   decimal.Decimal `json:"hedge_notional"`
	HedgePnL        decimal.Decimal `json:"hedge_pnl"`
	HealthFactorBps decimal.Decimal `json:"health_factor_bps"`

	HighWaterMark decimal.Decimal `json:"high_water_mark"`
	Cap           decimal.Decimal `json:"cap"`
	EffectiveCap  decimal.Decimal `json:"effective_cap"`

	ReserveBalance      decimal.Decimal `json:"reserve_balance"`
	YieldBorrowed       decimal.Decimal `json:"yield_borrowed"`
	FounderContribution decimal.Decimal `json:"founder_contribution"`
	ReserveHealthy      bool            `json:"reserve_healthy"`

	Paused             bool      `json:"paused"`
	RebalanceState     string    `json:"rebalance_state"`
	ActiveStrategyRef  string    `json:"active_strategy_ref"`
	PendingStrategyRef string    `json:"pending_strategy_ref,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}
