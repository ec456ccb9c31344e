package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillfx/papertrader/internal/domain"
)

// AssetSpecStore implements domain.AssetSpecStore using PostgreSQL.
type AssetSpecStore struct {
	pool *pgxpool.Pool
}

// NewAssetSpecStore creates a new AssetSpecStore backed by the given connection pool.
func NewAssetSpecStore(pool *pgxpool.Pool) *AssetSpecStore {
	return &AssetSpecStore{pool: pool}
}

var _ domain.AssetSpecStore = (*AssetSpecStore)(nil)

const assetSpecSelectCols = `symbol, asset_class, pip_size, contract_size,
	max_leverage, min_quantity, max_quantity, commission_rate, maintenance_margin_ratio`

func scanAssetSpec(row pgx.Row) (domain.AssetSpec, error) {
	var spec domain.AssetSpec
	var class string

	err := row.Scan(
		&spec.Symbol, &class, &spec.PipSize, &spec.ContractSize,
		&spec.MaxLeverage, &spec.MinQuantity, &spec.MaxQuantity,
		&spec.CommissionRate, &spec.MaintenanceMarginRatio,
	)
	if err != nil {
		return domain.AssetSpec{}, err
	}
	spec.AssetClass = domain.AssetClass(class)
	return spec, nil
}

// Get retrieves the spec for a single symbol.
func (s *AssetSpecStore) Get(ctx context.Context, symbol string) (domain.AssetSpec, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assetSpecSelectCols+` FROM asset_specs WHERE symbol = $1`, symbol)

	spec, err := scanAssetSpec(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AssetSpec{}, domain.ErrNotFound
		}
		return domain.AssetSpec{}, fmt.Errorf("postgres: get asset spec %s: %w", symbol, err)
	}
	return spec, nil
}

// List returns all configured asset specs ordered by symbol.
func (s *AssetSpecStore) List(ctx context.Context) ([]domain.AssetSpec, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assetSpecSelectCols+` FROM asset_specs ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list asset specs: %w", err)
	}
	defer rows.Close()

	var specs []domain.AssetSpec
	for rows.Next() {
		spec, err := scanAssetSpec(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan asset spec: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list asset specs rows: %w", err)
	}
	return specs, nil
}

// Upsert inserts or replaces the spec for a symbol.
func (s *AssetSpecStore) Upsert(ctx context.Context, spec domain.AssetSpec) error {
	const query = `
		INSERT INTO asset_specs (
			symbol, asset_class, pip_size, contract_size,
			max_leverage, min_quantity, max_quantity, commission_rate, maintenance_margin_ratio
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol) DO UPDATE SET
			asset_class              = EXCLUDED.asset_class,
			pip_size                 = EXCLUDED.pip_size,
			contract_size            = EXCLUDED.contract_size,
			max_leverage             = EXCLUDED.max_leverage,
			min_quantity             = EXCLUDED.min_quantity,
			max_quantity             = EXCLUDED.max_quantity,
			commission_rate          = EXCLUDED.commission_rate,
			maintenance_margin_ratio = EXCLUDED.maintenance_margin_ratio`

	_, err := s.pool.Exec(ctx, query,
		spec.Symbol, string(spec.AssetClass), spec.PipSize, spec.ContractSize,
		spec.MaxLeverage, spec.MinQuantity, spec.MaxQuantity,
		spec.CommissionRate, spec.MaintenanceMarginRatio,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert asset spec %s: %w", spec.Symbol, err)
	}
	return nil
}
