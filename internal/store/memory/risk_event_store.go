package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// RiskEventStore is an in-memory domain.RiskEventStore.
type RiskEventStore struct {
	mu     sync.RWMutex
	events []domain.RiskEvent
}

// NewRiskEventStore creates an empty in-memory risk event store.
func NewRiskEventStore() *RiskEventStore {
	return &RiskEventStore{}
}

var _ domain.RiskEventStore = (*RiskEventStore)(nil)

func (s *RiskEventStore) Insert(_ context.Context, evt domain.RiskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *RiskEventStore) ListByAccount(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.RiskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RiskEvent
	for _, e := range s.events {
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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (s *RiskEventStore) LastByAccount(_ context.Context, accountID string) (domain.RiskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *domain.RiskEvent
	for i := range s.events {
		e := s.events[i]
		if e.AccountID != accountID {
			continue
		}
		if last == nil || e.CreatedAt.After(last.CreatedAt) {
			last = &e
		}
	}
	if last == nil {
		return domain.RiskEvent{}, domain.ErrNotFound
	}
	return *last, nil
}

func (s *RiskEventStore) ListBefore(_ context.Context, before time.Time) ([]domain.RiskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RiskEvent
	for _, e := range s.events {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
