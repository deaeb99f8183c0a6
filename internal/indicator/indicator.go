// Package indicator computes the technical indicator columns consumed by
// the signal scorer.
package indicator

import "math"

// nanSlice returns n NaN values.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// wilder applies Wilder's smoothing (RMA) to values. The first valid
// output sits at index start+period-1 and is the plain mean of the first
// period inputs counted from start; earlier values are NaN.
func wilder(values []float64, period, start int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || start < 0 || len(values)-start < period {
		return out
	}
	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev
	for i := start + period; i < len(values); i++ {
		prev = (prev*float64(period-1) + values[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// fillNaN replaces NaN values with v in place and returns values.
func fillNaN(values []float64, v float64) []float64 {
	for i, x := range values {
		if math.IsNaN(x) {
			values[i] = v
		}
	}
	return values
}
