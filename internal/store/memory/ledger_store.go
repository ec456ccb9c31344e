package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// LedgerStore is an in-memory domain.LedgerStore. Entries are kept in append
// order.
type LedgerStore struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	nextID  int64
}

// NewLedgerStore creates an empty in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{nextID: 1}
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

func (s *LedgerStore) Append(_ context.Context, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextID
	s.nextID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *LedgerStore) ListByAccount(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LedgerEntry
	// Newest first.
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, opts), nil
}

func (s *LedgerStore) EquityCurve(_ context.Context, accountID string, since time.Time) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var curve []float64
	for _, e := range s.entries {
		if e.AccountID == accountID && !e.CreatedAt.Before(since) {
			curve = append(curve, e.BalanceAfter)
		}
	}
	return curve, nil
}
