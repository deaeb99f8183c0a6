package indicator

import "math"

// TrueRange returns the per-bar true range. The first bar uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	tr := make([]float64, len(close))
	for i := range close {
		if i == 0 {
			tr[i] = high[i] - low[i]
			continue
		}
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
	}
	return tr
}

// ATR is Wilder's average true range. The first period-1 values are NaN.
func ATR(high, low, close []float64, period int) []float64 {
	return wilder(TrueRange(high, low, close), period, 0)
}
