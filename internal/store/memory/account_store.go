package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// AccountStore is an in-memory domain.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

// NewAccountStore creates an empty in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

var _ domain.AccountStore = (*AccountStore)(nil)

func (s *AccountStore) Create(_ context.Context, acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.accounts[acct.ID] = acct
	return nil
}

func (s *AccountStore) GetByID(_ context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *AccountStore) List(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *AccountStore) UpdateBalance(_ context.Context, id string, balance, marginUsed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Balance = balance
	a.MarginUsed = marginUsed
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}
