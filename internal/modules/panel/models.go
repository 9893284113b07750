package panel

import (
	"math"
	"time"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/aggregation"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/risk"
)

// Row is one feature-panel row: an account at one month-end of its
// generated window, with both monthly aggregate sides attached and the
// churn label for that month.
type Row struct {
	Key            domain.AccountMonth `json:"key"`
	Account        domain.Account      `json:"account"`
	MonthEnd       time.Time           `json:"month_end"`
	ChurnFlag      int                 `json:"churn_flag"`
	AccountAgeDays int                 `json:"account_age_days"`

	// Aggregate sides. HasPnL/HasTxn distinguish a real bucket from the
	// zero/NaN fill of a month with no activity.
	PnL    aggregation.PnLMonthly `json:"pnl"`
	HasPnL bool                   `json:"has_pnl"`
	Txn    aggregation.TxnMonthly `json:"txn"`
	HasTxn bool                   `json:"has_txn"`

	Risk risk.Indicators `json:"risk"`
}

// Skip records an account excluded from the panel and why. Skips are
// logged and reported, never fatal for the run.
type Skip struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// Skip reasons.
const (
	SkipMissingOpenDate  = "missing open date"
	SkipCloseBeforeOpen  = "close date precedes open date"
	SkipWindowOutOfRange = "active window predates lookback"
)

// emptyPnLMonthly fills a panel row's position side for a month with no
// snapshots: zero for count-like and sum-like fields, NaN for ratio-like
// fields. Zero-filling a ratio would silently read as "no change".
func emptyPnLMonthly(key domain.AccountMonth) aggregation.PnLMonthly {
	nan := math.NaN()
	return aggregation.PnLMonthly{
		AccountID:            key.AccountID,
		Month:                key.Month,
		UGLStd:               nan,
		UGLChangePct:         nan,
		QuantityChangePct:    nan,
		MarketValueChangePct: nan,
		PriceToCostRatio:     nan,
	}
}

// emptyTxnMonthly fills a panel row's transaction side for a month with
// no transactions.
func emptyTxnMonthly(key domain.AccountMonth) aggregation.TxnMonthly {
	nan := math.NaN()
	return aggregation.TxnMonthly{
		AccountID:         key.AccountID,
		Month:             key.Month,
		AvgBookAmount:     nan,
		AvgQuantityTraded: nan,
		NetRealizedPnLPct: nan,
	}
}
