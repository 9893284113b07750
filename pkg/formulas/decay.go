package formulas

import (
	"github.com/markcheno/go-talib"
)

// DecayedActivity calculates an exponentially weighted activity level from
// a sequence of per-period counts (oldest first). Recent periods dominate,
// so a customer that used to trade heavily but has gone quiet decays
// towards zero faster than a plain average would.
//
// Returns the latest EMA value, or 0 when the series is shorter than the
// smoothing period.
func DecayedActivity(counts []float64, period int) float64 {
	if period < 1 || len(counts) < period {
		return 0
	}

	ema := talib.Ema(counts, period)

	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		return ema[len(ema)-1]
	}

	return 0
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
