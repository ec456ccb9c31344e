package domain

// AssetClass groups symbols for correlation and volatility heuristics.
type AssetClass string

const (
	AssetClassForex  AssetClass = "forex"
	AssetClassMetal  AssetClass = "metal"
	AssetClassIndex  AssetClass = "index"
	AssetClassCrypto AssetClass = "crypto"
)

// AssetSpec is the static per-symbol trading configuration. It is owned by
// configuration storage and is a read-only input to the risk engines.
type AssetSpec struct {
	Symbol                 string     `json:"symbol"`
	AssetClass             AssetClass `json:"asset_class"`
	PipSize                float64    `json:"pip_size"`
	ContractSize           float64    `json:"contract_size"`
	MaxLeverage            int        `json:"max_leverage"`
	MinQuantity            float64    `json:"min_quantity"`
	MaxQuantity            float64    `json:"max_quantity"`
	CommissionRate         float64    `json:"commission_rate"`
	MaintenanceMarginRatio float64    `json:"maintenance_margin_ratio"`
}
