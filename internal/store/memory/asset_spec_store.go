package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/quillfx/papertrader/internal/domain"
)

// AssetSpecStore is an in-memory domain.AssetSpecStore.
type AssetSpecStore struct {
	mu    sync.RWMutex
	specs map[string]domain.AssetSpec
}

// NewAssetSpecStore creates an in-memory asset spec store seeded with the
// given specs.
func NewAssetSpecStore(seed ...domain.AssetSpec) *AssetSpecStore {
	s := &AssetSpecStore{specs: make(map[string]domain.AssetSpec)}
	for _, spec := range seed {
		s.specs[spec.Symbol] = spec
	}
	return s
}

var _ domain.AssetSpecStore = (*AssetSpecStore)(nil)

func (s *AssetSpecStore) Get(_ context.Context, symbol string) (domain.AssetSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[symbol]
	if !ok {
		return domain.AssetSpec{}, domain.ErrNotFound
	}
	return spec, nil
}

func (s *AssetSpecStore) List(_ context.Context) ([]domain.AssetSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AssetSpec, 0, len(s.specs))
	for _, spec := range s.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *AssetSpecStore) Upsert(_ context.Context, spec domain.AssetSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.Symbol] = spec
	return nil
}
