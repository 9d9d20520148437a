// Package store defines the persistence interface for the vault engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
//
// The in-memory ledger inside the engine is authoritative; the store is a
// durable journal and restart image written post-commit.
package store

import (
	"context"

	"github.com/atmx/vault-engine/internal/model"
)

// Store is the persistence interface.
type Store interface {
	// --- Immutable journal ---

	// AppendEvent appends an immutable operation record.
	AppendEvent(ctx context.Context, event *model.VaultEvent) error

	// ListEvents returns all events in append order.
	ListEvents(ctx context.Context) ([]model.VaultEvent, error)

	// GetEventsByAccount returns all events for an account.
	GetEventsByAccount(ctx context.Context, accountID string) ([]model.VaultEvent, error)

	// --- Accounts ---

	// SaveAccount upserts an account's share balance and timestamps.
	SaveAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// ListAccounts returns all accounts.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Ledger scalars ---

	// SaveState persists the vault's scalar state (restart image).
	SaveState(ctx context.Context, state *model.VaultState) error

	// LoadState returns the persisted scalar state, or nil if none
	// has been written yet.
	LoadState(ctx context.Context) (*model.VaultState, error)
}
