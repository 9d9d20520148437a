package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.VaultEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vault_events (id, account_id, kind, assets, shares, fee, share_price, note, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		e.ID, e.AccountID, e.Kind,
		e.Assets.String(), e.Shares.String(), e.Fee.String(), e.SharePrice.String(),
		e.Note, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.VaultEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, kind,
		        assets::TEXT, shares::TEXT, fee::TEXT, share_price::TEXT,
		        note, timestamp
		 FROM vault_events ORDER BY timestamp`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) GetEventsByAccount(ctx context.Context, accountID string) ([]model.VaultEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, kind,
		        assets::TEXT, shares::TEXT, fee::TEXT, share_price::TEXT,
		        note, timestamp
		 FROM vault_events WHERE account_id = $1 ORDER BY timestamp`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, shares, last_operation_at, last_mint_at)
		 VALUES ($1, $2::NUMERIC, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET shares = EXCLUDED.shares,
		     last_operation_at = EXCLUDED.last_operation_at,
		     last_mint_at = EXCLUDED.last_mint_at`,
		a.ID, a.Shares.String(), a.LastOperationAt, a.LastMintAt,
	)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	var shares string

	err := s.pool.QueryRow(ctx,
		`SELECT id, shares::TEXT, last_operation_at, last_mint_at
		 FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &shares, &a.LastOperationAt, &a.LastMintAt)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}

	a.Shares, _ = decimal.NewFromString(shares)
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, shares::TEXT, last_operation_at, last_mint_at
		 FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var shares string
		if err := rows.Scan(&a.ID, &shares, &a.LastOperationAt, &a.LastMintAt); err != nil {
			return nil, err
		}
		a.Shares, _ = decimal.NewFromString(shares)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SaveState writes the single-row restart image. The table has one row
// with a fixed key; every save replaces it.
func (s *PostgresStore) SaveState(ctx context.Context, st *model.VaultState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vault_state (
			key, total_shares, high_water_mark, rebalance_state, active_strategy_ref,
			hedge_collateral, hedge_notional, hedge_leverage,
			reserve_balance, yield_borrowed, founder_contribution,
			total_opening_fees_paid, total_redemption_fees_collected,
			pending_strategy_ref, pending_proposed_at, pending_activates_at, last_proposal_at,
			last_observed_price, last_harvest_at, updated_at)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3, $4,
		         $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
		         $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
		         $11::NUMERIC, $12::NUMERIC,
		         $13, $14, $15, $16,
		         $17::NUMERIC, $18, $19)
		 ON CONFLICT (key) DO UPDATE SET
			total_shares = EXCLUDED.total_shares,
			high_water_mark = EXCLUDED.high_water_mark,
			rebalance_state = EXCLUDED.rebalance_state,
			active_strategy_ref = EXCLUDED.active_strategy_ref,
			hedge_collateral = EXCLUDED.hedge_collateral,
			hedge_notional = EXCLUDED.hedge_notional,
			hedge_leverage = EXCLUDED.hedge_leverage,
			reserve_balance = EXCLUDED.reserve_balance,
			yield_borrowed = EXCLUDED.yield_borrowed,
			founder_contribution = EXCLUDED.founder_contribution,
			total_opening_fees_paid = EXCLUDED.total_opening_fees_paid,
			total_redemption_fees_collected = EXCLUDED.total_redemption_fees_collected,
			pending_strategy_ref = EXCLUDED.pending_strategy_ref,
			pending_proposed_at = EXCLUDED.pending_proposed_at,
			pending_activates_at = EXCLUDED.pending_activates_at,
			last_proposal_at = EXCLUDED.last_proposal_at,
			last_observed_price = EXCLUDED.last_observed_price,
			last_harvest_at = EXCLUDED.last_harvest_at,
			updated_at = EXCLUDED.updated_at`,
		st.TotalShares.String(), st.HighWaterMark.String(), st.RebalanceState, st.ActiveStrategyRef,
		st.HedgeCollateral.String(), st.HedgeNotional.String(), st.HedgeLeverage.String(),
		st.ReserveBalance.String(), st.YieldBorrowed.String(), st.FounderContribution.String(),
		st.TotalOpeningFeesPaid.String(), st.TotalRedemptionFeesCollected.String(),
		st.PendingStrategyRef, st.PendingProposedAt, st.PendingActivatesAt, st.LastProposalAt,
		st.LastObservedPrice.String(), st.LastHarvestAt, st.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) LoadState(ctx context.Context) (*model.VaultState, error) {
	var st model.VaultState
	var totalShares, hwm, hedgeCollateral, hedgeNotional, hedgeLeverage string
	var reserveBalance, yieldBorrowed, founder, openingFees, redemptionFees, lastPrice string

	err := s.pool.QueryRow(ctx,
		`SELECT total_shares::TEXT, high_water_mark::TEXT, rebalance_state, active_strategy_ref,
		        hedge_collateral::TEXT, hedge_notional::TEXT, hedge_leverage::TEXT,
		        reserve_balance::TEXT, yield_borrowed::TEXT, founder_contribution::TEXT,
		        total_opening_fees_paid::TEXT, total_redemption_fees_collected::TEXT,
		        pending_strategy_ref, pending_proposed_at, pending_activates_at, last_proposal_at,
		        last_observed_price::TEXT, last_harvest_at, updated_at
		 FROM vault_state WHERE key = 1`).
		Scan(&totalShares, &hwm, &st.RebalanceState, &st.ActiveStrategyRef,
			&hedgeCollateral, &hedgeNotional, &hedgeLeverage,
			&reserveBalance, &yieldBorrowed, &founder,
			&openingFees, &redemptionFees,
			&st.PendingStrategyRef, &st.PendingProposedAt, &st.PendingActivatesAt, &st.LastProposalAt,
			&lastPrice, &st.LastHarvestAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load vault state: %w", err)
	}

	st.TotalShares, _ = decimal.NewFromString(totalShares)
	st.HighWaterMark, _ = decimal.NewFromString(hwm)
	st.HedgeCollateral, _ = decimal.NewFromString(hedgeCollateral)
	st.HedgeNotional, _ = decimal.NewFromString(hedgeNotional)
	st.HedgeLeverage, _ = decimal.NewFromString(hedgeLeverage)
	st.ReserveBalance, _ = decimal.NewFromString(reserveBalance)
	st.YieldBorrowed, _ = decimal.NewFromString(yieldBorrowed)
	st.FounderContribution, _ = decimal.NewFromString(founder)
	st.TotalOpeningFeesPaid, _ = decimal.NewFromString(openingFees)
	st.TotalRedemptionFeesCollected, _ = decimal.NewFromString(redemptionFees)
	st.LastObservedPrice, _ = decimal.NewFromString(lastPrice)

	return &st, nil
}

// scanEvents reads pgx rows into VaultEvent slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows pgxRows) ([]model.VaultEvent, error) {
	var events []model.VaultEvent
	for rows.Next() {
		var e model.VaultEvent
		var assetsS, sharesS, feeS, priceS string

		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind,
			&assetsS, &sharesS, &feeS, &priceS,
			&e.Note, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Assets, _ = decimal.NewFromString(assetsS)
		e.Shares, _ = decimal.NewFromString(sharesS)
		e.Fee, _ = decimal.NewFromString(feeS)
		e.SharePrice, _ = decimal.NewFromString(priceS)

		events = append(events, e)
	}
	return events, rows.Err()
}
