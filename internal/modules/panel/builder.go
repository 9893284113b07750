package panel

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/aggregation"
)

// Builder expands account lifecycles into gap-free monthly panel rows and
// attaches the monthly aggregates.
type Builder struct {
	lookbackMonths int
	log            zerolog.Logger
}

// NewBuilder creates a new panel builder
func NewBuilder(lookbackMonths int, log zerolog.Logger) *Builder {
	return &Builder{
		lookbackMonths: lookbackMonths,
		log:            log.With().Str("component", "panel").Logger(),
	}
}

// Build generates one row per active month per account, between
// max(open month, reference month - lookback + 1) and
// min(close month, reference month). The close month, when inside the
// window, is the single row labeled churn=1; no rows are generated after
// it. Accounts that cannot anchor a timeline are skipped, not fatal.
func (b *Builder) Build(accounts []domain.Account, ref time.Time) ([]Row, []Skip) {
	var (
		rows  []Row
		skips []Skip
	)

	refMonth := domain.MonthOf(ref)

	for _, acc := range accounts {
		if !acc.HasOpenDate() {
			skips = append(skips, Skip{AccountID: acc.ID, Reason: SkipMissingOpenDate})
			b.log.Warn().Str("account", acc.ID).Msg("Skipping account: missing open date")
			continue
		}
		if acc.Closed() && acc.CloseDate.Before(acc.OpenDate) {
			skips = append(skips, Skip{AccountID: acc.ID, Reason: SkipCloseBeforeOpen})
			b.log.Warn().Str("account", acc.ID).Msg("Skipping account: close date precedes open date")
			continue
		}

		endMonth := refMonth
		var closeMonth domain.MonthKey
		if acc.Closed() {
			closeMonth = domain.MonthOf(*acc.CloseDate)
			if closeMonth.Before(endMonth) {
				endMonth = closeMonth
			}
		}

		startMonth := domain.MonthOf(acc.OpenDate)
		if floor := endMonth.AddMonths(-(b.lookbackMonths - 1)); startMonth.Before(floor) {
			startMonth = floor
		}

		if endMonth.Before(startMonth) {
			skips = append(skips, Skip{AccountID: acc.ID, Reason: SkipWindowOutOfRange})
			b.log.Debug().Str("account", acc.ID).Msg("Skipping account: no months inside lookback window")
			continue
		}

		for idx := startMonth.Index(); idx <= endMonth.Index(); idx++ {
			month := domain.MonthFromIndex(idx)
			monthEnd := month.End()
			key := domain.AccountMonth{AccountID: acc.ID, Month: month}

			churn := 0
			if acc.Closed() && month == closeMonth {
				churn = 1
			}

			rows = append(rows, Row{
				Key:            key,
				Account:        acc,
				MonthEnd:       monthEnd,
				ChurnFlag:      churn,
				AccountAgeDays: int(monthEnd.Sub(acc.OpenDate).Hours() / 24),
				PnL:            emptyPnLMonthly(key),
				Txn:            emptyTxnMonthly(key),
			})
		}
	}

	b.log.Info().
		Int("rows", len(rows)).
		Int("skipped_accounts", len(skips)).
		Msg("Panel generated")

	return rows, skips
}

// Attach left-joins the monthly aggregates onto the panel rows by
// account-month key. The join preserves cardinality: it never adds or
// drops panel rows, and it fails if either aggregate side carries a
// duplicate key.
func (b *Builder) Attach(rows []Row, pnl []aggregation.PnLMonthly, txn []aggregation.TxnMonthly) error {
	pnlByKey := make(map[domain.AccountMonth]aggregation.PnLMonthly, len(pnl))
	for _, p := range pnl {
		if _, dup := pnlByKey[p.Key()]; dup {
			return fmt.Errorf("duplicate P&L aggregate for key %s", p.Key())
		}
		pnlByKey[p.Key()] = p
	}

	txnByKey := make(map[domain.AccountMonth]aggregation.TxnMonthly, len(txn))
	for _, t := range txn {
		if _, dup := txnByKey[t.Key()]; dup {
			return fmt.Errorf("duplicate transaction aggregate for key %s", t.Key())
		}
		txnByKey[t.Key()] = t
	}

	for i := range rows {
		if p, ok := pnlByKey[rows[i].Key]; ok {
			rows[i].PnL = p
			rows[i].HasPnL = true
		}
		if t, ok := txnByKey[rows[i].Key]; ok {
			rows[i].Txn = t
			rows[i].HasTxn = true
		}
	}

	return nil
}

// ChurnLagFlag derives the account-level churn label: 1 when the account
// has been closed for at least lagDays as of the reference time. Recent
// closures stay 0 until the lag passes, keeping accounts that may still
// reverse a closure out of the churned class.
func ChurnLagFlag(acc domain.Account, ref time.Time, lagDays int) int {
	if !acc.Closed() {
		return 0
	}
	cutoff := ref.AddDate(0, 0, -lagDays)
	if acc.CloseDate.After(cutoff) {
		return 0
	}
	return 1
}
