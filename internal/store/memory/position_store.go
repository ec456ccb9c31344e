// Package memory provides in-memory implementations of the domain store
// interfaces. They back unit tests and local development without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// PositionStore is an in-memory domain.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.Position)}
}

var _ domain.PositionStore = (*PositionStore)(nil)

func (s *PositionStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.positions[p.ID] = p
	return nil
}

func (s *PositionStore) Update(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.positions[p.ID] = p
	return nil
}

func (s *PositionStore) MarkClosing(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	if p.Status != domain.PositionStatusOpen {
		return domain.Position{}, domain.ErrConflict
	}
	claimed := p
	claimed.Status = domain.PositionStatusClosing
	s.positions[id] = claimed
	return p, nil
}

func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *PositionStore) GetOpen(_ context.Context, accountID string) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.AccountID == accountID && p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	sortByOpenedAtDesc(out)
	return out, nil
}

func (s *PositionStore) GetAllOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (s *PositionStore) ListHistory(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.AccountID != accountID {
			continue
		}
		if opts.Since != nil && p.OpenedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && p.OpenedAt.After(*opts.Until) {
			continue
		}
		out = append(out, p)
	}
	sortByOpenedAtDesc(out)
	return paginate(out, opts), nil
}

func (s *PositionStore) ListClosedBefore(_ context.Context, before time.Time) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusClosed && p.ClosedAt != nil && p.ClosedAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(*out[j].ClosedAt) })
	return out, nil
}

func sortByOpenedAtDesc(positions []domain.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].OpenedAt.After(positions[j].OpenedAt)
	})
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
