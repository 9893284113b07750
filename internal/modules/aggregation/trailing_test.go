package aggregation

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonwealth/churn-pipeline/internal/domain"
)

func TestAggregator_TrailingPnL_WindowBounds(t *testing.T) {
	agg := New(zerolog.Nop())
	ref := day(2023, 6, 1)

	snaps := []domain.PositionSnapshot{
		{AccountID: "A", AsOf: day(2023, 5, 10), MarketValue: 100, UnrealizedGL: 5},
		{AccountID: "A", AsOf: day(2023, 5, 20), MarketValue: 120, UnrealizedGL: 7},
		{AccountID: "A", AsOf: day(2023, 1, 1), MarketValue: 999}, // outside 30d window
		{AccountID: "A", AsOf: day(2023, 6, 2), MarketValue: 888}, // after ref
	}

	out := agg.TrailingPnL(snaps, ref, 30)
	require.Contains(t, out, "A")

	w := out["A"]
	assert.Equal(t, 2, w.Observations)
	assert.Equal(t, 110.0, w.AvgMarketValue)
	assert.Equal(t, 120.0, w.MaxMarketValue)
	assert.Equal(t, 100.0, w.MinMarketValue)
	assert.Equal(t, 12.0, w.TotalUnrealizedPnL)
	assert.InDelta(t, 20.0, w.MarketValueTrend, 1e-9)
}

func TestAggregator_TrailingPnL_SinglePoint(t *testing.T) {
	agg := New(zerolog.Nop())
	ref := day(2023, 6, 1)

	out := agg.TrailingPnL([]domain.PositionSnapshot{
		{AccountID: "A", AsOf: day(2023, 5, 25), MarketValue: 50},
	}, ref, 30)

	w := out["A"]
	assert.True(t, math.IsNaN(w.StdMarketValue))
	assert.Equal(t, 0.0, w.MarketValueTrend)
}

func TestAggregator_TrailingPnL_NoObservationsNoEntry(t *testing.T) {
	agg := New(zerolog.Nop())

	out := agg.TrailingPnL([]domain.PositionSnapshot{
		{AccountID: "A", AsOf: day(2020, 1, 1), MarketValue: 10},
	}, day(2023, 6, 1), 30)

	assert.NotContains(t, out, "A")
}

func TestAggregator_TrailingTransactions_Frequency(t *testing.T) {
	agg := New(zerolog.Nop())
	ref := day(2023, 6, 1)

	out := agg.TrailingTransactions([]domain.Transaction{
		{AccountID: "A", EventDate: day(2023, 5, 1), BookAmount: -100},
		{AccountID: "A", EventDate: day(2023, 5, 15), BookAmount: 60},
		{AccountID: "A", EventDate: day(2023, 5, 28), BookAmount: 40},
	}, ref, 90)

	w := out["A"]
	assert.Equal(t, 3, w.Count)
	assert.Equal(t, 200.0, w.Volume)
	assert.Equal(t, 0.0, w.NetCashFlow)
	assert.InDelta(t, 3.0/90.0, w.Frequency, 1e-9)
}

func TestAggregator_DaysSinceLastTransaction(t *testing.T) {
	agg := New(zerolog.Nop())
	ref := day(2023, 6, 1)

	out := agg.DaysSinceLastTransaction([]domain.Transaction{
		{AccountID: "A", EventDate: day(2023, 5, 22)},
		{AccountID: "A", EventDate: day(2023, 5, 2)},
		{AccountID: "B"}, // only an undated record
	}, ref)

	assert.Equal(t, 10, out["A"])
	assert.Equal(t, NoRecentTransactions, out["B"])
}
