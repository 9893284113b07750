package export

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
	"github.com/halcyonwealth/churn-pipeline/internal/modules/panel"
)

func sampleRows() []panel.Row {
	month := domain.MonthKey{Year: 2023, Month: time.March}
	row := panel.Row{
		Key:            domain.AccountMonth{AccountID: "ACC-1", Month: month},
		MonthEnd:       month.End(),
		ChurnFlag:      1,
		AccountAgeDays: 74,
	}
	row.PnL.AccountID = "ACC-1"
	row.PnL.Month = month
	row.PnL.MaxMarketValue = 150
	row.PnL.UGLStd = math.NaN()
	row.Txn.NetRealizedPnLPct = math.NaN()
	return []panel.Row{row}
}

func TestWriter_WritePanel(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	path, err := w.WritePanel("panel.csv", sampleRows())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "panel.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header, record := records[0], records[1]
	assert.Equal(t, panelColumns, header)
	require.Equal(t, len(header), len(record))

	byColumn := make(map[string]string, len(header))
	for i, col := range header {
		byColumn[col] = record[i]
	}

	assert.Equal(t, "ACC-1", byColumn["account_id"])
	assert.Equal(t, "2023-03", byColumn["month"])
	assert.Equal(t, "2023-03-31", byColumn["month_end"])
	assert.Equal(t, "1", byColumn["churn_flag"])
	assert.Equal(t, "150", byColumn["max_market_value"])
	// NaN renders as an empty cell
	assert.Equal(t, "", byColumn["ugl_std"])
	assert.Equal(t, "", byColumn["net_realized_pnl_pct"])
}

func TestWriter_WritePanel_Deterministic(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())

	first, err := w.WritePanel("a.csv", sampleRows())
	require.NoError(t, err)
	second, err := w.WritePanel("b.csv", sampleRows())
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriter_StagePanel_NotVisibleUntilPublish(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	staged, err := w.StagePanel("panel.csv", sampleRows())
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, "panel.csv"))

	require.NoError(t, staged.Publish())
	assert.FileExists(t, filepath.Join(dir, "panel.csv"))
	assert.Equal(t, filepath.Join(dir, "panel.csv"), staged.Path())

	// Discard after publish leaves the published artifact alone
	staged.Discard()
	assert.FileExists(t, filepath.Join(dir, "panel.csv"))
}

func TestWriter_StagePanel_DiscardLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	staged, err := w.StagePanel("panel.csv", sampleRows())
	require.NoError(t, err)
	staged.Discard()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriter_WritePanel_OverwriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	_, err := w.WritePanel("panel.csv", sampleRows())
	require.NoError(t, err)
	_, err = w.WritePanel("panel.csv", sampleRows())
	require.NoError(t, err)

	// No staging leftovers survive a successful publish
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "panel.csv", entries[0].Name())
	assert.False(t, strings.Contains(entries[0].Name(), ".tmp-"))
}
