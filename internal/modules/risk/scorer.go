package risk

import (
	"math"

	"github.com/rs/zerolog"
)

// Config holds indicator thresholds and composite weights. The weights
// are heuristic constants of the scoring design, not fitted values.
type Config struct {
	LowActivityThreshold float64 // transactions/day
	VolatilityWeight     float64
	LowActivityWeight    float64
	DecliningValueWeight float64
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		LowActivityThreshold: 0.1,
		VolatilityWeight:     0.3,
		LowActivityWeight:    0.4,
		DecliningValueWeight: 0.3,
	}
}

// Inputs are the trailing aggregates an indicator evaluation needs. A
// missing upstream aggregate arrives as NaN and is treated as zero, so
// missing data reads as non-risky rather than propagating NaN into a
// label-adjacent feature.
type Inputs struct {
	MarketValueStd       float64 // volatility window (e.g. 365d)
	MarketValueAvg       float64
	TransactionFrequency float64 // activity window (e.g. 90d), per day
	MarketValueTrend     float64 // trend window (e.g. 180d) OLS slope
}

// Indicators holds the three risk sub-scores and the weighted composite.
// The composite is a heuristic ranking score, not a calibrated
// probability.
type Indicators struct {
	VolatilityScore float64 `json:"volatility_score"`
	LowActivity     int     `json:"low_activity"`
	DecliningValue  int     `json:"declining_value"`
	CompositeRisk   float64 `json:"composite_risk"`
}

// Scorer computes risk indicators pointwise from trailing aggregates.
type Scorer struct {
	cfg Config
	log zerolog.Logger
}

// NewScorer creates a new risk scorer
func NewScorer(cfg Config, log zerolog.Logger) *Scorer {
	return &Scorer{
		cfg: cfg,
		log: log.With().Str("component", "risk").Logger(),
	}
}

// Score evaluates the three indicators and their weighted composite.
func (s *Scorer) Score(in Inputs) Indicators {
	std := zeroIfNaN(in.MarketValueStd)
	avg := zeroIfNaN(in.MarketValueAvg)
	freq := zeroIfNaN(in.TransactionFrequency)
	trend := zeroIfNaN(in.MarketValueTrend)

	var ind Indicators

	// The +1 keeps near-empty portfolios from blowing the ratio up; it is
	// a smoothing constant, not a division-by-zero guard alone.
	ind.VolatilityScore = std / (avg + 1)

	if freq < s.cfg.LowActivityThreshold {
		ind.LowActivity = 1
	}
	if trend < 0 {
		ind.DecliningValue = 1
	}

	ind.CompositeRisk = s.cfg.VolatilityWeight*ind.VolatilityScore +
		s.cfg.LowActivityWeight*float64(ind.LowActivity) +
		s.cfg.DecliningValueWeight*float64(ind.DecliningValue)

	return ind
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
