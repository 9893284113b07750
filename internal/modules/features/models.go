package features

import (
	"github.com/halcyonwealth/churn-pipeline/internal/modules/aggregation"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/risk"
)

// Dictionary domains used for categorical encoding.
const (
	DomainAccountType     = "account_type"
	DomainClassification  = "classification"
	DomainObjective       = "objective"
	DomainAssetClass      = "asset_class"
	DomainTransactionType = "transaction_type"
)

// AccountFeatures is the account-level feature vector: one row per
// account, combining lifecycle, portfolio, transaction behavior and risk
// features as of the run's reference time.
type AccountFeatures struct {
	AccountID string `json:"account_id"`
	ShortName string `json:"short_name"`
	ChurnFlag int    `json:"churn_flag"`

	// Lifecycle
	AccountAgeDays       int     `json:"account_age_days"`
	AccountAgeYears      float64 `json:"account_age_years"`
	IsClosed             int     `json:"is_closed"`
	DaysSinceClose       int     `json:"days_since_close"` // -1 while open
	CapitalCommitment    float64 `json:"capital_commitment"`
	HasCapitalCommitment int     `json:"has_capital_commitment"`
	LogCapitalCommitment float64 `json:"log_capital_commitment"`
	IsUSAccount          int     `json:"is_us_account"`
	IsHighTaxState       int     `json:"is_high_tax_state"`
	IsUSDAccount         int     `json:"is_usd_account"`
	AccountTypeCode      int     `json:"account_type_code"`
	ClassificationCode   int     `json:"classification_code"`
	ObjectiveCode        int     `json:"objective_code"`

	// Latest observed portfolio state
	CurrentMarketValue   float64 `json:"current_market_value"`
	CurrentUnrealizedPnL float64 `json:"current_unrealized_pnl"`

	// Per-window statistics keyed by window length in days
	PnLWindows map[int]aggregation.TrailingPnL `json:"pnl_windows"`
	TxnWindows map[int]aggregation.TrailingTxn `json:"txn_windows"`

	DaysSinceLastTransaction int `json:"days_since_last_transaction"`

	// Asset diversification
	NumAssetClasses            int     `json:"num_asset_classes"`
	TopAssetClassConcentration float64 `json:"top_asset_class_concentration"`
	PrimaryAssetClass          string  `json:"primary_asset_class"`
	PrimaryAssetClassCode      int     `json:"primary_asset_class_code"`

	// Transaction behavior
	TotalTransactions          int     `json:"total_transactions"`
	TotalTransactionVolume     float64 `json:"total_transaction_volume"`
	AvgTransactionSize         float64 `json:"avg_transaction_size"`
	MaxTransactionSize         float64 `json:"max_transaction_size"`
	NumTransactionTypes        int     `json:"num_transaction_types"`
	PrimaryTransactionType     string  `json:"primary_transaction_type"`
	PrimaryTransactionTypeCode int     `json:"primary_transaction_type_code"`
	PrimaryTransactionTypePct  float64 `json:"primary_transaction_type_pct"`
	ConsistencyScore           float64 `json:"consistency_score"`
	ActivityDecay              float64 `json:"activity_decay"`

	// Portfolio risk statistics over the full history
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	ValueAtRisk    float64 `json:"value_at_risk"`

	Risk risk.Indicators `json:"risk"`
}
