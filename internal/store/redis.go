package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/vault-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: account lookups, per-account event lists,
// and the vault state image. Writes go to the primary store and invalidate
// the cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) AppendEvent(ctx context.Context, event *model.VaultEvent) error {
	if err := s.primary.AppendEvent(ctx, event); err != nil {
		return err
	}
	s.rdb.Del(ctx, eventsKey(event.AccountID))
	return nil
}

func (s *CachedStore) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := s.primary.SaveAccount(ctx, account); err != nil {
		return err
	}
	s.cacheAccount(ctx, account)
	return nil
}

func (s *CachedStore) SaveState(ctx context.Context, state *model.VaultState) error {
	if err := s.primary.SaveState(ctx, state); err != nil {
		return err
	}
	if data, err := json.Marshal(state); err == nil {
		s.rdb.Set(ctx, stateKey(), data, s.ttl)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) GetEventsByAccount(ctx context.Context, accountID string) ([]model.VaultEvent, error) {
	data, err := s.rdb.Get(ctx, eventsKey(accountID)).Bytes()
	if err == nil {
		var events []model.VaultEvent
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	// Cache miss.
	events, err := s.primary.GetEventsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, eventsKey(accountID), data, s.ttl)
	}
	return events, nil
}

func (s *CachedStore) LoadState(ctx context.Context) (*model.VaultState, error) {
	data, err := s.rdb.Get(ctx, stateKey()).Bytes()
	if err == nil {
		var st model.VaultState
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.primary.LoadState(ctx)
	if err != nil || st == nil {
		return st, err
	}

	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, stateKey(), data, s.ttl)
	}
	return st, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListEvents(ctx context.Context) ([]model.VaultEvent, error) {
	return s.primary.ListEvents(ctx)
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID), data, s.ttl)
	}
}

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
func eventsKey(id string) string { return fmt.Sprintf("events:%s", id) }
func stateKey() string { return "vault:state" }
