package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/modules/features"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/panel"
)

// Writer emits CSV artifacts. Files are staged to a temp file in the
// target directory and renamed into place, so a crashed run never leaves
// a partial artifact behind.
type Writer struct {
	dir string
	log zerolog.Logger
}

// Staged is a fully written artifact awaiting publication. The data sits
// in a temp file next to its final path until Publish renames it into
// place, so callers can hold artifacts back until the rest of the run
// has committed.
type Staged struct {
	tmp   string
	final string
	rows  int
	log   zerolog.Logger
}

// Path returns the artifact's final path, valid once Publish succeeds.
func (a *Staged) Path() string { return a.final }

// Publish renames the staged file into its final path.
func (a *Staged) Publish() error {
	if err := os.Rename(a.tmp, a.final); err != nil {
		return fmt.Errorf("failed to publish artifact: %w", err)
	}

	a.log.Info().
		Str("path", a.final).
		Int("rows", a.rows).
		Msg("Artifact written")

	return nil
}

// Discard removes the staged file. Calling it after Publish is a no-op.
func (a *Staged) Discard() {
	os.Remove(a.tmp)
}

// NewWriter creates a new CSV writer rooted at dir
func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "export").Logger(),
	}
}

var panelColumns = []string{
	"account_id", "month", "month_end", "churn_flag", "account_age_days",
	"number_of_positions", "start_book_ugl", "end_book_ugl", "max_book_ugl",
	"ugl_std", "gain_days", "loss_days", "first_quantity", "last_quantity",
	"quantity_change_count", "first_market_value", "last_market_value",
	"max_market_value", "min_market_value", "original_invested",
	"avg_price_period_end", "avg_unit_cost", "ugl_change_pct",
	"ugl_max_opportunity_loss", "quantity_net_change", "quantity_change_pct",
	"market_value_net_change", "market_value_change_pct", "max_draw_down",
	"price_to_cost_ratio",
	"num_transactions", "trade_days", "traded_asset_classes", "cash_flow",
	"avg_book_amount", "total_quantity_traded", "avg_quantity_traded",
	"realized_gain", "realized_loss", "transaction_amount_total",
	"net_realized_pnl", "net_realized_pnl_pct",
	"volatility_score", "low_activity", "declining_value", "composite_risk",
}

// WritePanel writes and immediately publishes the monthly panel artifact,
// returning its final path.
func (w *Writer) WritePanel(name string, rows []panel.Row) (string, error) {
	return publishNow(w.StagePanel(name, rows))
}

// StagePanel writes the monthly panel artifact to a staging file. Rows
// are written in the order given; NaN values become empty cells.
func (w *Writer) StagePanel(name string, rows []panel.Row) (*Staged, error) {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		p, t := row.PnL, row.Txn
		records = append(records, []string{
			row.Key.AccountID,
			row.Key.Month.String(),
			row.MonthEnd.Format("2006-01-02"),
			strconv.Itoa(row.ChurnFlag),
			strconv.Itoa(row.AccountAgeDays),
			strconv.Itoa(p.NumberOfPositions),
			cell(p.StartBookUGL), cell(p.EndBookUGL), cell(p.MaxBookUGL),
			cell(p.UGLStd),
			strconv.Itoa(p.GainDays), strconv.Itoa(p.LossDays),
			cell(p.FirstQuantity), cell(p.LastQuantity),
			strconv.Itoa(p.QuantityChangeCount),
			cell(p.FirstMarketValue), cell(p.LastMarketValue),
			cell(p.MaxMarketValue), cell(p.MinMarketValue),
			cell(p.OriginalInvested), cell(p.AvgPricePeriodEnd), cell(p.AvgUnitCost),
			cell(p.UGLChangePct), cell(p.UGLMaxOpportunityLoss),
			cell(p.QuantityNetChange), cell(p.QuantityChangePct),
			cell(p.MarketValueNetChange), cell(p.MarketValueChangePct),
			cell(p.MaxDrawDown), cell(p.PriceToCostRatio),
			strconv.Itoa(t.NumTransactions), strconv.Itoa(t.TradeDays),
			strconv.Itoa(t.TradedAssetClasses),
			cell(t.CashFlow), cell(t.AvgBookAmount),
			cell(t.TotalQuantityTraded), cell(t.AvgQuantityTraded),
			cell(t.RealizedGain), cell(t.RealizedLoss),
			cell(t.TransactionAmountTotal),
			cell(t.NetRealizedPnL), cell(t.NetRealizedPnLPct),
			cell(row.Risk.VolatilityScore),
			strconv.Itoa(row.Risk.LowActivity), strconv.Itoa(row.Risk.DecliningValue),
			cell(row.Risk.CompositeRisk),
		})
	}

	return w.stage(name, panelColumns, records)
}

// WriteAccountFeatures writes and immediately publishes the account-level
// feature artifact, returning its final path.
func (w *Writer) WriteAccountFeatures(name string, feats []features.AccountFeatures, windows []int) (string, error) {
	return publishNow(w.StageAccountFeatures(name, feats, windows))
}

// StageAccountFeatures writes the account-level feature artifact to a
// staging file. Window columns expand in the order of windows, so the
// header is stable for a fixed configuration.
func (w *Writer) StageAccountFeatures(name string, feats []features.AccountFeatures, windows []int) (*Staged, error) {
	header := []string{
		"account_id", "short_name", "churn_flag",
		"account_age_days", "account_age_years", "is_closed", "days_since_close",
		"capital_commitment", "has_capital_commitment", "log_capital_commitment",
		"is_us_account", "is_high_tax_state", "is_usd_account",
		"account_type_code", "classification_code", "objective_code",
		"current_market_value", "current_unrealized_pnl",
	}
	for _, days := range windows {
		header = append(header,
			fmt.Sprintf("avg_market_value_%dd", days),
			fmt.Sprintf("max_market_value_%dd", days),
			fmt.Sprintf("min_market_value_%dd", days),
			fmt.Sprintf("std_market_value_%dd", days),
			fmt.Sprintf("avg_unrealized_pnl_%dd", days),
			fmt.Sprintf("total_unrealized_pnl_%dd", days),
			fmt.Sprintf("market_value_trend_%dd", days),
			fmt.Sprintf("transaction_count_%dd", days),
			fmt.Sprintf("transaction_volume_%dd", days),
			fmt.Sprintf("avg_transaction_size_%dd", days),
			fmt.Sprintf("transaction_frequency_%dd", days),
			fmt.Sprintf("net_cash_flow_%dd", days),
		)
	}
	header = append(header,
		"days_since_last_transaction",
		"num_asset_classes", "top_asset_class_concentration",
		"primary_asset_class", "primary_asset_class_code",
		"total_transactions", "total_transaction_volume",
		"avg_transaction_size", "max_transaction_size",
		"num_transaction_types", "primary_transaction_type",
		"primary_transaction_type_code", "primary_transaction_type_pct",
		"consistency_score", "activity_decay",
		"max_drawdown_pct", "value_at_risk",
		"volatility_score", "low_activity", "declining_value", "composite_risk",
	)

	records := make([][]string, 0, len(feats))
	for _, f := range feats {
		rec := []string{
			f.AccountID, f.ShortName, strconv.Itoa(f.ChurnFlag),
			strconv.Itoa(f.AccountAgeDays), cell(f.AccountAgeYears),
			strconv.Itoa(f.IsClosed), strconv.Itoa(f.DaysSinceClose),
			cell(f.CapitalCommitment), strconv.Itoa(f.HasCapitalCommitment),
			cell(f.LogCapitalCommitment),
			strconv.Itoa(f.IsUSAccount), strconv.Itoa(f.IsHighTaxState),
			strconv.Itoa(f.IsUSDAccount),
			strconv.Itoa(f.AccountTypeCode), strconv.Itoa(f.ClassificationCode),
			strconv.Itoa(f.ObjectiveCode),
			cell(f.CurrentMarketValue), cell(f.CurrentUnrealizedPnL),
		}
		for _, days := range windows {
			p := f.PnLWindows[days]
			t := f.TxnWindows[days]
			rec = append(rec,
				cell(p.AvgMarketValue), cell(p.MaxMarketValue), cell(p.MinMarketValue),
				cell(p.StdMarketValue), cell(p.AvgUnrealizedPnL), cell(p.TotalUnrealizedPnL),
				cell(p.MarketValueTrend),
				strconv.Itoa(t.Count), cell(t.Volume), cell(t.AvgSize),
				cell(t.Frequency), cell(t.NetCashFlow),
			)
		}
		rec = append(rec,
			strconv.Itoa(f.DaysSinceLastTransaction),
			strconv.Itoa(f.NumAssetClasses), cell(f.TopAssetClassConcentration),
			f.PrimaryAssetClass, strconv.Itoa(f.PrimaryAssetClassCode),
			strconv.Itoa(f.TotalTransactions), cell(f.TotalTransactionVolume),
			cell(f.AvgTransactionSize), cell(f.MaxTransactionSize),
			strconv.Itoa(f.NumTransactionTypes), f.PrimaryTransactionType,
			strconv.Itoa(f.PrimaryTransactionTypeCode), cell(f.PrimaryTransactionTypePct),
			cell(f.ConsistencyScore), cell(f.ActivityDecay),
			cell(f.MaxDrawdownPct), cell(f.ValueAtRisk),
			cell(f.Risk.VolatilityScore),
			strconv.Itoa(f.Risk.LowActivity), strconv.Itoa(f.Risk.DecliningValue),
			cell(f.Risk.CompositeRisk),
		)
		records = append(records, rec)
	}

	return w.stage(name, header, records)
}

func (w *Writer) stage(name string, header []string, records [][]string) (*Staged, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, name+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write records: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to close staging file: %w", err)
	}

	return &Staged{
		tmp:   tmp.Name(),
		final: filepath.Join(w.dir, name),
		rows:  len(records),
		log:   w.log,
	}, nil
}

func publishNow(st *Staged, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if err := st.Publish(); err != nil {
		st.Discard()
		return "", err
	}
	return st.Path(), nil
}

// cell renders a float for CSV output. NaN renders as an empty cell, the
// same way a missing value round-trips through a dataframe export.
func cell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
