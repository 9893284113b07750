package aggregation

import (
	"github.com/halcyonwealth/churn-pipeline/internal/domain"
)

// PnLMonthly is the position-side monthly aggregate: one row per
// account-month, reduced from that month's snapshots ordered by as-of
// date. Ratio fields are NaN when their denominator is zero.
type PnLMonthly struct {
	AccountID string          `json:"account_id"`
	Month     domain.MonthKey `json:"month"`

	NumberOfPositions   int     `json:"number_of_positions"` // distinct asset classes
	StartBookUGL        float64 `json:"start_book_ugl"`
	EndBookUGL          float64 `json:"end_book_ugl"`
	MaxBookUGL          float64 `json:"max_book_ugl"`
	UGLStd              float64 `json:"ugl_std"` // sample stddev, NaN below 2 points
	GainDays            int     `json:"gain_days"`
	LossDays            int     `json:"loss_days"`
	FirstQuantity       float64 `json:"first_quantity"`
	LastQuantity        float64 `json:"last_quantity"`
	QuantityChangeCount int     `json:"quantity_change_count"`
	FirstMarketValue    float64 `json:"first_market_value"`
	LastMarketValue     float64 `json:"last_market_value"`
	MaxMarketValue      float64 `json:"max_market_value"`
	MinMarketValue      float64 `json:"min_market_value"`
	OriginalInvested    float64 `json:"original_invested"`
	AvgPricePeriodEnd   float64 `json:"avg_price_period_end"`
	AvgUnitCost         float64 `json:"avg_unit_cost"`

	// Derived
	UGLChangePct          float64 `json:"ugl_change_pct"`
	UGLMaxOpportunityLoss float64 `json:"ugl_max_opportunity_loss"`
	QuantityNetChange     float64 `json:"quantity_net_change"`
	QuantityChangePct     float64 `json:"quantity_change_pct"`
	MarketValueNetChange  float64 `json:"market_value_net_change"`
	MarketValueChangePct  float64 `json:"market_value_change_pct"`
	MaxDrawDown           float64 `json:"max_draw_down"` // max minus min market value
	PriceToCostRatio      float64 `json:"price_to_cost_ratio"`
}

// Key returns the account-month join key.
func (p PnLMonthly) Key() domain.AccountMonth {
	return domain.AccountMonth{AccountID: p.AccountID, Month: p.Month}
}

// TxnMonthly is the transaction-side monthly aggregate.
type TxnMonthly struct {
	AccountID string          `json:"account_id"`
	Month     domain.MonthKey `json:"month"`

	NumTransactions        int     `json:"num_transactions"`
	TradeDays              int     `json:"trade_days"` // distinct event dates
	TradedAssetClasses     int     `json:"traded_asset_classes"`
	CashFlow               float64 `json:"cash_flow"` // signed sum
	AvgBookAmount          float64 `json:"avg_book_amount"`
	TotalQuantityTraded    float64 `json:"total_quantity_traded"`
	AvgQuantityTraded      float64 `json:"avg_quantity_traded"`
	RealizedGain           float64 `json:"realized_gain"`
	RealizedLoss           float64 `json:"realized_loss"`
	TransactionAmountTotal float64 `json:"transaction_amount_total"` // absolute sum

	// Derived
	NetRealizedPnL    float64 `json:"net_realized_pnl"`
	NetRealizedPnLPct float64 `json:"net_realized_pnl_pct"` // NaN when amount total is 0
}

// Key returns the account-month join key.
func (t TxnMonthly) Key() domain.AccountMonth {
	return domain.AccountMonth{AccountID: t.AccountID, Month: t.Month}
}

// TrailingPnL holds position statistics over a trailing window ending at
// the run's reference time.
type TrailingPnL struct {
	AccountID  string `json:"account_id"`
	WindowDays int    `json:"window_days"`

	Observations       int     `json:"observations"`
	AvgMarketValue     float64 `json:"avg_market_value"`
	MaxMarketValue     float64 `json:"max_market_value"`
	MinMarketValue     float64 `json:"min_market_value"`
	StdMarketValue     float64 `json:"std_market_value"` // sample stddev, NaN below 2 points
	AvgUnrealizedPnL   float64 `json:"avg_unrealized_pnl"`
	TotalUnrealizedPnL float64 `json:"total_unrealized_pnl"`
	MarketValueTrend   float64 `json:"market_value_trend"` // OLS slope, 0 below 2 points
}

// TrailingTxn holds transaction statistics over a trailing window ending
// at the run's reference time.
type TrailingTxn struct {
	AccountID  string `json:"account_id"`
	WindowDays int    `json:"window_days"`

	Count       int     `json:"count"`
	Volume      float64 `json:"volume"` // absolute sum
	AvgSize     float64 `json:"avg_size"`
	Frequency   float64 `json:"frequency"` // count per day
	NetCashFlow float64 `json:"net_cash_flow"`
}

// NoRecentTransactions is the sentinel for days-since-last-transaction
// when an account has no dated transactions at all.
const NoRecentTransactions = 9999
