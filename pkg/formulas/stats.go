package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (N-1 denominator) of a
// slice of float64 values. Undefined for fewer than two values, in which
// case NaN is returned.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return math.NaN()
	}
	return stat.StdDev(data, nil)
}

// Slope calculates the ordinary-least-squares slope of values against
// their sequential index. Defined only for two or more points; returns 0
// otherwise.
func Slope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	return beta
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// CalculateReturns converts a value series to percentage returns
// Returns[i] = (Value[i] - Value[i-1]) / Value[i-1]
func CalculateReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}

	return returns
}

// ValueAtRisk calculates an empirical value-at-risk: the given quantile of
// the return series of the value series (e.g. 0.05 for the 5th percentile).
// Requires more than ten observations; returns 0 otherwise.
func ValueAtRisk(values []float64, quantile float64) float64 {
	if len(values) <= 10 {
		return 0
	}

	returns := CalculateReturns(values)
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return stat.Quantile(quantile, stat.Empirical, sorted, nil)
}

// SafeRatio divides num by den, returning NaN when the denominator is
// zero. Ratios over empty buckets must stay NaN rather than collapse to
// zero, which would read as "no change".
func SafeRatio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
