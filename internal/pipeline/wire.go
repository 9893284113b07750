package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/halcyonwealth/churn-pipeline/internal/config"
	"github.com/halcyonwealth/churn-pipeline/internal/database"
	"github.com/halcyonwealth/churn-pipeline/internal/database/repositories"
	"github.com/halcyonwealth/churn-pipeline/internal/events"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/aggregation"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/encoding"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/export"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/features"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/panel"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/quality"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/risk"
	"github.com/halcyonwealth/churn-pipeline/internal/warehouse"
)

// Wire assembles a Runner and its run repository from configuration and
// an open results store.
func Wire(cfg *config.Config, db *database.DB, log zerolog.Logger) (*Runner, *repositories.RunRepository) {
	runs := repositories.NewRunRepository(db.Conn(), log)
	agg := aggregation.New(log)
	dict := encoding.NewDictionary(db.Conn(), log)
	scorer := risk.NewScorer(risk.Config{
		LowActivityThreshold: cfg.Risk.LowActivityThreshold,
		VolatilityWeight:     cfg.Risk.VolatilityWeight,
		LowActivityWeight:    cfg.Risk.LowActivityWeight,
		DecliningValueWeight: cfg.Risk.DecliningValueWeight,
	}, log)

	featureSvc := features.NewService(agg, dict, scorer, cfg.TrailingWindowsDays, features.RiskWindows{
		VolatilityDays: cfg.Risk.VolatilityWindowDays,
		ActivityDays:   cfg.Risk.ActivityWindowDays,
		TrendDays:      cfg.Risk.TrendWindowDays,
	}, cfg.ChurnLagDays, log)

	runner := NewRunner(Deps{
		Config:    cfg,
		Extractor: warehouse.NewExtractor(cfg.WarehousePath, cfg.ExtractLookbackDays, log),
		Agg:       agg,
		Builder:   panel.NewBuilder(cfg.LookbackMonths, log),
		Scorer:    scorer,
		Features:  featureSvc,
		Reporter:  quality.NewReporter(log),
		Writer:    export.NewWriter(cfg.ExportDir, log),
		Runs:      runs,
		Events:    events.NewManager(log),
		Log:       log,
	})

	return runner, runs
}
