package quality

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/modules/panel"
	"github.com/halcyonwealth/churn-pipeline/pkg/formulas"
)

// Ratio is a float64 that survives JSON encoding when NaN: NaN renders
// as null and null decodes back to NaN.
type Ratio float64

// MarshalJSON implements json.Marshaler
func (r Ratio) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(r)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Ratio(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Summary is the per-run data quality report persisted alongside the
// panel artifact.
type Summary struct {
	RunID         string    `json:"run_id"`
	ReferenceDate time.Time `json:"reference_date"`

	AccountRows     int `json:"account_rows"`
	PositionRows    int `json:"position_rows"`
	TransactionRows int `json:"transaction_rows"`

	// Per-field coercion tallies, keyed "table.column".
	Coercions map[string]int `json:"coercions"`

	SkippedAccounts []panel.Skip `json:"skipped_accounts"`

	PanelRows    int   `json:"panel_rows"`
	ChurnRows    int   `json:"churn_rows"`
	ChurnRate    Ratio `json:"churn_rate"`
	PnLCoverage  Ratio `json:"pnl_coverage"` // share of panel rows with a position aggregate
	TxnCoverage  Ratio `json:"txn_coverage"` // share of panel rows with a transaction aggregate
	RiskChurnCor Ratio `json:"risk_churn_correlation"`
}

// Reporter derives quality summaries from a finished pipeline stage.
type Reporter struct {
	log zerolog.Logger
}

// NewReporter creates a new quality reporter
func NewReporter(log zerolog.Logger) *Reporter {
	return &Reporter{log: log.With().Str("component", "quality").Logger()}
}

// Summarize computes the quality summary for a run's panel. Ratio fields
// are NaN when their denominator is zero; the correlation is NaN when
// either series is constant.
func (r *Reporter) Summarize(runID string, ref time.Time, rows []panel.Row, skips []panel.Skip, inputRows [3]int, coercions map[string]int) Summary {
	s := Summary{
		RunID:           runID,
		ReferenceDate:   ref,
		AccountRows:     inputRows[0],
		PositionRows:    inputRows[1],
		TransactionRows: inputRows[2],
		Coercions:       coercions,
		SkippedAccounts: skips,
		PanelRows:       len(rows),
	}

	var (
		withPnL int
		withTxn int
		risks   []float64
		churns  []float64
	)
	for _, row := range rows {
		if row.ChurnFlag == 1 {
			s.ChurnRows++
		}
		if row.HasPnL {
			withPnL++
		}
		if row.HasTxn {
			withTxn++
		}
		risks = append(risks, row.Risk.CompositeRisk)
		churns = append(churns, float64(row.ChurnFlag))
	}

	total := float64(len(rows))
	s.ChurnRate = Ratio(formulas.SafeRatio(float64(s.ChurnRows), total))
	s.PnLCoverage = Ratio(formulas.SafeRatio(float64(withPnL), total))
	s.TxnCoverage = Ratio(formulas.SafeRatio(float64(withTxn), total))
	s.RiskChurnCor = Ratio(formulas.Correlation(risks, churns))

	r.log.Info().
		Str("run_id", runID).
		Int("panel_rows", s.PanelRows).
		Int("churn_rows", s.ChurnRows).
		Int("skipped_accounts", len(skips)).
		Msg("Quality summary computed")

	if !math.IsNaN(float64(s.RiskChurnCor)) && s.RiskChurnCor < 0 {
		r.log.Warn().
			Float64("correlation", float64(s.RiskChurnCor)).
			Msg("Composite risk correlates negatively with churn")
	}

	return s
}
