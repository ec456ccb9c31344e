package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// OrderStore is an in-memory domain.OrderStore.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderStore creates an empty in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

var _ domain.OrderStore = (*OrderStore)(nil)

func (s *OrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.orders[o.ID] = o
	return nil
}

func (s *OrderStore) Update(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	s.orders[o.ID] = o
	return nil
}

func (s *OrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *OrderStore) ListPending(_ context.Context, accountID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.AccountID == accountID && o.Status == domain.OrderStatusPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *OrderStore) ListByAccount(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.AccountID != accountID {
			continue
		}
		if opts.Since != nil && o.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && o.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (s *OrderStore) ListFilledBefore(_ context.Context, before time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusFilled && o.FilledAt != nil && o.FilledAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilledAt.Before(*out[j].FilledAt) })
	return out, nil
}
