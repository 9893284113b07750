package risk

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestScorer_Score_CompositeWeights(t *testing.T) {
	s := NewScorer(DefaultConfig(), zerolog.Nop())

	// std 50 over avg 99: volatility 50/(99+1) = 0.5
	// frequency 0.05 < 0.1: low activity
	// trend -2: declining
	out := s.Score(Inputs{
		MarketValueStd:       50,
		MarketValueAvg:       99,
		TransactionFrequency: 0.05,
		MarketValueTrend:     -2,
	})

	assert.InDelta(t, 0.5, out.VolatilityScore, 1e-9)
	assert.Equal(t, 1, out.LowActivity)
	assert.Equal(t, 1, out.DecliningValue)
	assert.InDelta(t, 0.3*0.5+0.4+0.3, out.CompositeRisk, 1e-9)
}

func TestScorer_Score_HealthyAccount(t *testing.T) {
	s := NewScorer(DefaultConfig(), zerolog.Nop())

	out := s.Score(Inputs{
		MarketValueStd:       10,
		MarketValueAvg:       999,
		TransactionFrequency: 0.5,
		MarketValueTrend:     3,
	})

	assert.Equal(t, 0, out.LowActivity)
	assert.Equal(t, 0, out.DecliningValue)
	assert.InDelta(t, 0.3*(10.0/1000.0), out.CompositeRisk, 1e-9)
}

func TestScorer_Score_NaNInputsReadAsZero(t *testing.T) {
	s := NewScorer(DefaultConfig(), zerolog.Nop())
	nan := math.NaN()

	out := s.Score(Inputs{
		MarketValueStd:       nan,
		MarketValueAvg:       nan,
		TransactionFrequency: nan,
		MarketValueTrend:     nan,
	})

	// Missing data is non-risky on volatility and trend, but zero
	// frequency still counts as low activity
	assert.Equal(t, 0.0, out.VolatilityScore)
	assert.Equal(t, 1, out.LowActivity)
	assert.Equal(t, 0, out.DecliningValue)
	assert.InDelta(t, 0.4, out.CompositeRisk, 1e-9)
	assert.False(t, math.IsNaN(out.CompositeRisk))
}

func TestScorer_Score_ThresholdBoundaries(t *testing.T) {
	s := NewScorer(DefaultConfig(), zerolog.Nop())

	tests := []struct {
		name      string
		frequency float64
		trend     float64
		lowAct    int
		declining int
	}{
		{"frequency exactly at threshold", 0.1, 1, 0, 0},
		{"frequency just below", 0.0999, 1, 1, 0},
		{"flat trend", 1, 0, 0, 0},
		{"barely negative trend", 1, -0.0001, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Score(Inputs{TransactionFrequency: tt.frequency, MarketValueTrend: tt.trend})
			assert.Equal(t, tt.lowAct, out.LowActivity)
			assert.Equal(t, tt.declining, out.DecliningValue)
		})
	}
}
