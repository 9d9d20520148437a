package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/vault-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	events   []model.VaultEvent
	state    *model.VaultState
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
	}
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *model.VaultEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.VaultEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]model.VaultEvent, len(s.events))
	copy(events, s.events)
	return events, nil
}

func (s *MemoryStore) GetEventsByAccount(_ context.Context, accountID string) ([]model.VaultEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.VaultEvent
	for _, e := range s.events {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *account
	s.accounts[account.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s not found", id)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

func (s *MemoryStore) SaveState(_ context.Context, state *model.VaultState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *state
	s.state = &copy
	return nil
}

func (s *MemoryStore) LoadState(_ context.Context) (*model.VaultState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, nil
	}
	copy := *s.state
	return &copy, nil
}
