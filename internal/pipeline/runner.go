package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/config"
	"github.com/halcyonwealth/churn-pipeline/internal/database/repositories"
	"github.com/halcyonwealth/churn-pipeline/internal/events"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/aggregation"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/export"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/features"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/panel"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/quality"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/risk"
	"github.com/halcyonwealth/churn-pipeline/internal/warehouse"
)

// Runner executes one full pipeline pass: extract, aggregate, panel,
// score, features, quality, export, persist. A run either completes with
// all of its artifacts in place or fails leaving none.
type Runner struct {
	cfg       *config.Config
	extractor *warehouse.Extractor
	agg       *aggregation.Aggregator
	builder   *panel.Builder
	scorer    *risk.Scorer
	features  *features.Service
	reporter  *quality.Reporter
	writer    *export.Writer
	runs      *repositories.RunRepository
	events    *events.Manager
	log       zerolog.Logger
}

// Deps bundles the runner's collaborators.
type Deps struct {
	Config    *config.Config
	Extractor *warehouse.Extractor
	Agg       *aggregation.Aggregator
	Builder   *panel.Builder
	Scorer    *risk.Scorer
	Features  *features.Service
	Reporter  *quality.Reporter
	Writer    *export.Writer
	Runs      *repositories.RunRepository
	Events    *events.Manager
	Log       zerolog.Logger
}

// NewRunner creates a new pipeline runner
func NewRunner(d Deps) *Runner {
	return &Runner{
		cfg:       d.Config,
		extractor: d.Extractor,
		agg:       d.Agg,
		builder:   d.Builder,
		scorer:    d.Scorer,
		features:  d.Features,
		reporter:  d.Reporter,
		writer:    d.Writer,
		runs:      d.Runs,
		events:    d.Events,
		log:       d.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the pipeline as of the given reference time. Every stage
// derives its windows and cutoffs from ref, never from the wall clock, so
// re-running with the same ref against the same extract reproduces the
// same artifacts.
func (r *Runner) Run(ctx context.Context, ref time.Time) (*repositories.Run, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()

	run := &repositories.Run{
		ID:            runID,
		ReferenceDate: ref,
		StartedAt:     started,
		Status:        repositories.RunStatusRunning,
	}
	if err := r.runs.Create(run); err != nil {
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	r.events.Emit(events.RunStarted, "pipeline", map[string]interface{}{
		"run_id":         runID,
		"reference_date": ref.Format("2006-01-02"),
	})
	r.log.Info().Str("run_id", runID).Time("ref", ref).Msg("Pipeline run started")

	if err := r.execute(ctx, run, ref); err != nil {
		if failErr := r.runs.Fail(runID, err); failErr != nil {
			r.log.Error().Err(failErr).Str("run_id", runID).Msg("Failed to record run failure")
		}
		r.events.Emit(events.RunFailed, "pipeline", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
		return nil, err
	}

	r.events.Emit(events.RunCompleted, "pipeline", map[string]interface{}{
		"run_id":     runID,
		"panel_rows": run.PanelRows,
		"churn_rows": run.ChurnRows,
	})
	r.log.Info().
		Str("run_id", runID).
		Int("panel_rows", run.PanelRows).
		Int("churn_rows", run.ChurnRows).
		Dur("elapsed", time.Since(started)).
		Msg("Pipeline run completed")

	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *repositories.Run, ref time.Time) error {
	extract, err := r.extractor.Extract(ref)
	if err != nil {
		return fmt.Errorf("extract stage: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pnlMonthly := r.agg.MonthlyPnL(extract.Positions)
	txnMonthly := r.agg.MonthlyTransactions(extract.Transactions)

	rows, skips := r.builder.Build(extract.Accounts, ref)
	for _, skip := range skips {
		r.events.Emit(events.AccountSkipped, "panel", map[string]interface{}{
			"run_id":     run.ID,
			"account_id": skip.AccountID,
			"reason":     skip.Reason,
		})
	}

	if err := r.builder.Attach(rows, pnlMonthly, txnMonthly); err != nil {
		return fmt.Errorf("panel stage: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.scoreRows(rows, extract, ref)

	feats, err := r.features.Build(extract.Accounts, extract.Positions, extract.Transactions, ref)
	if err != nil {
		return fmt.Errorf("feature stage: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	summary := r.reporter.Summarize(run.ID, ref, rows, skips,
		[3]int{extract.Stats.AccountRows, extract.Stats.PositionRows, extract.Stats.TransactionRows},
		extract.Stats.Coercions)

	// Artifacts stay staged until the completion transaction commits, so
	// a failure in any later stage publishes nothing.
	stamp := ref.Format("20060102")
	panelArt, err := r.writer.StagePanel(fmt.Sprintf("churn_panel_%s_%s.csv", stamp, run.ID[:8]), rows)
	if err != nil {
		return fmt.Errorf("export stage: %w", err)
	}
	defer panelArt.Discard()

	featArt, err := r.writer.StageAccountFeatures(
		fmt.Sprintf("account_features_%s_%s.csv", stamp, run.ID[:8]),
		feats, r.cfg.TrailingWindowsDays,
	)
	if err != nil {
		return fmt.Errorf("export stage: %w", err)
	}
	defer featArt.Discard()

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode quality summary: %w", err)
	}
	if err := r.runs.SaveQuality(run.ID, payload); err != nil {
		return fmt.Errorf("persist stage: %w", err)
	}

	index := make([]repositories.PanelIndexRow, 0, len(rows))
	for _, row := range rows {
		index = append(index, repositories.PanelIndexRow{
			AccountID:      row.Key.AccountID,
			Month:          row.Key.Month.String(),
			ChurnFlag:      row.ChurnFlag,
			AccountAgeDays: row.AccountAgeDays,
			CompositeRisk:  row.Risk.CompositeRisk,
		})
	}
	if err := r.runs.Complete(run.ID, panelArt.Path(), index, summary.ChurnRows); err != nil {
		return fmt.Errorf("persist stage: %w", err)
	}

	if err := panelArt.Publish(); err != nil {
		return fmt.Errorf("export stage: %w", err)
	}
	if err := featArt.Publish(); err != nil {
		return fmt.Errorf("export stage: %w", err)
	}

	now := time.Now().UTC()
	run.Status = repositories.RunStatusCompleted
	run.CompletedAt = &now
	run.PanelRows = len(rows)
	run.ChurnRows = summary.ChurnRows
	run.ArtifactPath = panelArt.Path()

	return nil
}

// scoreRows attaches the trailing-window risk indicators. Indicators are
// account-level as of ref; every panel row of an account carries the same
// indicator values.
func (r *Runner) scoreRows(rows []panel.Row, extract *warehouse.Extract, ref time.Time) {
	vol := r.agg.TrailingPnL(extract.Positions, ref, r.cfg.Risk.VolatilityWindowDays)
	trend := r.agg.TrailingPnL(extract.Positions, ref, r.cfg.Risk.TrendWindowDays)
	act := r.agg.TrailingTransactions(extract.Transactions, ref, r.cfg.Risk.ActivityWindowDays)

	byAccount := make(map[string]risk.Indicators)
	for i := range rows {
		id := rows[i].Key.AccountID
		ind, ok := byAccount[id]
		if !ok {
			ind = r.scorer.Score(risk.Inputs{
				MarketValueStd:       vol[id].StdMarketValue,
				MarketValueAvg:       vol[id].AvgMarketValue,
				TransactionFrequency: act[id].Frequency,
				MarketValueTrend:     trend[id].MarketValueTrend,
			})
			byAccount[id] = ind
		}
		rows[i].Risk = ind
	}
}
