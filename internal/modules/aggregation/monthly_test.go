package aggregation

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregator_MonthlyPnL_TwoSnapshotMonth(t *testing.T) {
	agg := New(zerolog.Nop())

	snaps := []domain.PositionSnapshot{
		{AccountID: "ACC-1", AsOf: day(2023, 3, 5), MarketValue: 100, UnrealizedGL: 10, Quantity: 50, AssetClass: "Equity"},
		{AccountID: "ACC-1", AsOf: day(2023, 3, 20), MarketValue: 150, UnrealizedGL: -5, Quantity: 50, AssetClass: "Equity"},
	}

	out := agg.MonthlyPnL(snaps)
	require.Len(t, out, 1)

	row := out[0]
	assert.Equal(t, "ACC-1", row.AccountID)
	assert.Equal(t, domain.MonthKey{Year: 2023, Month: time.March}, row.Month)
	assert.Equal(t, 100.0, row.FirstMarketValue)
	assert.Equal(t, 150.0, row.LastMarketValue)
	assert.Equal(t, 150.0, row.MaxMarketValue)
	assert.Equal(t, 100.0, row.MinMarketValue)
	assert.InDelta(t, 0.5, row.MarketValueChangePct, 1e-9)
	assert.Equal(t, 10.0, row.StartBookUGL)
	assert.Equal(t, -5.0, row.EndBookUGL)
	assert.Equal(t, 10.0, row.MaxBookUGL)
	assert.Equal(t, 1, row.GainDays)
	assert.Equal(t, 1, row.LossDays)
	assert.Equal(t, 1, row.NumberOfPositions)
}

func TestAggregator_MonthlyPnL_QuantityChangeCountsFirstObservation(t *testing.T) {
	agg := New(zerolog.Nop())

	snaps := []domain.PositionSnapshot{
		{AccountID: "A", AsOf: day(2023, 1, 1), Quantity: 10},
		{AccountID: "A", AsOf: day(2023, 1, 2), Quantity: 10},
		{AccountID: "A", AsOf: day(2023, 1, 3), Quantity: 12},
		{AccountID: "A", AsOf: day(2023, 1, 4), Quantity: 12},
	}

	out := agg.MonthlyPnL(snaps)
	require.Len(t, out, 1)

	// First observation counts as a change, then one real change
	assert.Equal(t, 2, out[0].QuantityChangeCount)
}

func TestAggregator_MonthlyPnL_SingleSnapshotStatistics(t *testing.T) {
	agg := New(zerolog.Nop())

	out := agg.MonthlyPnL([]domain.PositionSnapshot{
		{AccountID: "A", AsOf: day(2023, 5, 10), MarketValue: 200, UnrealizedGL: 3},
	})
	require.Len(t, out, 1)

	row := out[0]
	// Sample stddev is undefined for one point
	assert.True(t, math.IsNaN(row.UGLStd))
	assert.Equal(t, 0.0, row.MarketValueNetChange)
	assert.Equal(t, 1, row.QuantityChangeCount)
}

func TestAggregator_MonthlyPnL_ZeroStartRatiosAreNaN(t *testing.T) {
	agg := New(zerolog.Nop())

	out := agg.MonthlyPnL([]domain.PositionSnapshot{
		{AccountID: "A", AsOf: day(2023, 5, 1), MarketValue: 0, UnrealizedGL: 0, Quantity: 0},
		{AccountID: "A", AsOf: day(2023, 5, 15), MarketValue: 80, UnrealizedGL: 4, Quantity: 7},
	})
	require.Len(t, out, 1)

	row := out[0]
	assert.True(t, math.IsNaN(row.MarketValueChangePct))
	assert.True(t, math.IsNaN(row.QuantityChangePct))
	assert.True(t, math.IsNaN(row.UGLChangePct))
}

func TestAggregator_MonthlyPnL_UndatedSnapshotsExcluded(t *testing.T) {
	agg := New(zerolog.Nop())

	out := agg.MonthlyPnL([]domain.PositionSnapshot{
		{AccountID: "A", MarketValue: 999}, // no as-of date
		{AccountID: "A", AsOf: day(2023, 2, 1), MarketValue: 10},
	})
	require.Len(t, out, 1)
	assert.Equal(t, 10.0, out[0].MaxMarketValue)
}

func TestAggregator_MonthlyPnL_DeterministicOrder(t *testing.T) {
	agg := New(zerolog.Nop())

	snaps := []domain.PositionSnapshot{
		{AccountID: "B", AsOf: day(2023, 2, 1)},
		{AccountID: "A", AsOf: day(2023, 3, 1)},
		{AccountID: "A", AsOf: day(2023, 1, 1)},
	}

	out := agg.MonthlyPnL(snaps)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].AccountID)
	assert.Equal(t, domain.MonthKey{Year: 2023, Month: time.January}, out[0].Month)
	assert.Equal(t, "A", out[1].AccountID)
	assert.Equal(t, "B", out[2].AccountID)
}

func TestAggregator_MonthlyTransactions_ZeroAmountMonth(t *testing.T) {
	agg := New(zerolog.Nop())

	out := agg.MonthlyTransactions([]domain.Transaction{
		{AccountID: "ACC-9", EventDate: day(2023, 7, 3), EventType: "FEE", BookAmount: 0},
	})
	require.Len(t, out, 1)

	row := out[0]
	assert.Equal(t, 1, row.NumTransactions)
	assert.Equal(t, 0.0, row.AvgBookAmount)
	assert.Equal(t, 0.0, row.TransactionAmountTotal)
	// Ratio over a zero denominator stays NaN, never 0
	assert.True(t, math.IsNaN(row.NetRealizedPnLPct))
}

func TestAggregator_MonthlyTransactions_Reduction(t *testing.T) {
	agg := New(zerolog.Nop())

	out := agg.MonthlyTransactions([]domain.Transaction{
		{AccountID: "A", EventDate: day(2023, 4, 3), EventType: "BUY", AssetClass: "Equity", BookAmount: -100, Quantity: 10, RealizedGain: 0},
		{AccountID: "A", EventDate: day(2023, 4, 3), EventType: "SELL", AssetClass: "Equity", BookAmount: 60, Quantity: -5, RealizedGain: 12, RealizedLoss: -2},
		{AccountID: "A", EventDate: day(2023, 4, 10), EventType: "SELL", AssetClass: "Bond", BookAmount: 40, Quantity: -4},
	})
	require.Len(t, out, 1)

	row := out[0]
	assert.Equal(t, 3, row.NumTransactions)
	assert.Equal(t, 2, row.TradeDays)
	assert.Equal(t, 2, row.TradedAssetClasses)
	assert.Equal(t, 0.0, row.CashFlow)
	assert.Equal(t, 200.0, row.TransactionAmountTotal)
	assert.Equal(t, 10.0, row.NetRealizedPnL)
	assert.InDelta(t, 0.05, row.NetRealizedPnLPct, 1e-9)
}
