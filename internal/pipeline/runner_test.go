package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonwealth/churn-pipeline/internal/config"
	"github.com/halcyonwealth/churn-pipeline/internal/database"
	"github.com/halcyonwealth/churn-pipeline/internal/database/repositories"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/quality"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	return &config.Config{
		WarehousePath:       filepath.Join(dir, "warehouse.db"),
		ResultsPath:         filepath.Join(dir, "results.db"),
		ExportDir:           filepath.Join(dir, "exports"),
		LookbackMonths:      12,
		ChurnLagDays:        90,
		ExtractLookbackDays: 730,
		TrailingWindowsDays: []int{30, 90, 180, 365},
		Risk: config.RiskConfig{
			LowActivityThreshold: 0.1,
			VolatilityWeight:     0.3,
			LowActivityWeight:    0.4,
			DecliningValueWeight: 0.3,
			VolatilityWindowDays: 365,
			ActivityWindowDays:   90,
			TrendWindowDays:      180,
		},
	}
}

func seedWarehouse(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE accounts (
			account_id TEXT, short_name TEXT, account_type TEXT, classification TEXT,
			status TEXT, open_date TEXT, close_date TEXT, domicile_country TEXT,
			domicile_state TEXT, book_ccy TEXT, objective TEXT, capital_commitment TEXT
		);
		CREATE TABLE position_snapshots (
			account_id TEXT, as_of TEXT, asset_class TEXT, market_value TEXT,
			unrealized_gl TEXT, quantity TEXT, unit_cost TEXT, price_period_end TEXT,
			original_cost TEXT
		);
		CREATE TABLE transactions (
			account_id TEXT, event_date TEXT, event_type TEXT, asset_class TEXT,
			book_amount TEXT, quantity TEXT, realized_gain TEXT, realized_loss TEXT
		);
		INSERT INTO accounts VALUES
			('ACC-1', 'alpha', 'IRA', 'Individual', 'CLOSED', '2023-01-15', '2023-04-10', 'US', 'CA', 'USD', 'Growth', '0'),
			('ACC-2', 'beta', 'Trust', 'Entity', 'OPEN', '2022-11-01', NULL, 'US', 'TX', 'USD', 'Income', '25000'),
			('ACC-3', 'gamma', 'IRA', 'Individual', 'OPEN', NULL, NULL, 'DE', '', 'EUR', '', '');
		INSERT INTO position_snapshots VALUES
			('ACC-1', '2023-03-05', 'Equity', '100', '10', '50', '2', '2.1', '95'),
			('ACC-1', '2023-03-20', 'Equity', '150', '15', '50', '2', '3.0', '95'),
			('ACC-2', '2023-05-01', 'Bond', '500', '-5', '20', '25', '24', '510'),
			('ACC-2', '2023-05-15', 'Bond', '480', '-8', '20', '25', '23', '510');
		INSERT INTO transactions VALUES
			('ACC-1', '2023-02-10', 'BUY', 'Equity', '-100', '50', '0', '0'),
			('ACC-2', '2023-05-02', 'SELL', 'Bond', '250', '-10', '12', '-2');
	`)
	require.NoError(t, err)
}

func setupRunner(t *testing.T) (*Runner, *repositories.RunRepository, *config.Config) {
	t.Helper()

	cfg := testConfig(t)
	seedWarehouse(t, cfg.WarehousePath)

	db, err := database.New(cfg.ResultsPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	runner, runs := Wire(cfg, db, zerolog.Nop())
	return runner, runs, cfg
}

func TestRunner_Run_EndToEnd(t *testing.T) {
	runner, runs, cfg := setupRunner(t)
	ref := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	run, err := runner.Run(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, repositories.RunStatusCompleted, run.Status)
	// ACC-1: Jan through Apr (closed). ACC-2: Nov through Jun. ACC-3 skipped.
	assert.Equal(t, 12, run.PanelRows)
	assert.Equal(t, 1, run.ChurnRows)
	assert.FileExists(t, run.ArtifactPath)

	stored, err := runs.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, repositories.RunStatusCompleted, stored.Status)
	assert.Equal(t, 12, stored.PanelRows)

	payload, err := runs.QualityFor(run.ID)
	require.NoError(t, err)

	var summary quality.Summary
	require.NoError(t, json.Unmarshal(payload, &summary))
	assert.Equal(t, 3, summary.AccountRows)
	assert.Equal(t, 12, summary.PanelRows)
	assert.Equal(t, 1, summary.ChurnRows)
	require.Len(t, summary.SkippedAccounts, 1)
	assert.Equal(t, "ACC-3", summary.SkippedAccounts[0].AccountID)

	// Both artifacts published
	entries, err := os.ReadDir(cfg.ExportDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunner_Run_IdempotentWithFrozenReference(t *testing.T) {
	runner, _, _ := setupRunner(t)
	ref := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	first, err := runner.Run(context.Background(), ref)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), ref)
	require.NoError(t, err)

	a, err := os.ReadFile(first.ArtifactPath)
	require.NoError(t, err)
	b, err := os.ReadFile(second.ArtifactPath)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, a, b)
	assert.Equal(t, first.PanelRows, second.PanelRows)
	assert.Equal(t, first.ChurnRows, second.ChurnRows)
}

func TestRunner_Run_FailureAfterStagingPublishesNothing(t *testing.T) {
	cfg := testConfig(t)
	seedWarehouse(t, cfg.WarehousePath)

	results, err := database.New(cfg.ResultsPath)
	require.NoError(t, err)
	t.Cleanup(func() { results.Close() })
	require.NoError(t, results.Migrate())

	// Break the persist stage so the run fails after the artifacts
	// have been staged
	_, err = results.Conn().Exec(`DROP TABLE quality_summaries`)
	require.NoError(t, err)

	runner, runs := Wire(cfg, results, zerolog.Nop())

	_, err = runner.Run(context.Background(), time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist stage")

	latest, err := runs.Latest()
	require.NoError(t, err)
	assert.Equal(t, repositories.RunStatusFailed, latest.Status)
	assert.Empty(t, latest.ArtifactPath)

	// Staged files were discarded and nothing was published
	entries, err := os.ReadDir(cfg.ExportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunner_Run_ContractViolationFailsRun(t *testing.T) {
	cfg := testConfig(t)

	// Warehouse with a missing transactions table
	db, err := sql.Open("sqlite", cfg.WarehousePath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE accounts (account_id TEXT)`)
	require.NoError(t, err)
	db.Close()

	results, err := database.New(cfg.ResultsPath)
	require.NoError(t, err)
	t.Cleanup(func() { results.Close() })
	require.NoError(t, results.Migrate())

	runner, runs := Wire(cfg, results, zerolog.Nop())

	_, err = runner.Run(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input contract violation")

	// The run is recorded as failed, with no artifacts
	latest, err := runs.Latest()
	require.NoError(t, err)
	assert.Equal(t, repositories.RunStatusFailed, latest.Status)
	assert.Empty(t, latest.ArtifactPath)
	assert.NoDirExists(t, cfg.ExportDir)
}
