package indicator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SMA is a rolling mean that starts with a growing window, so the first
// period-1 values average whatever history exists.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		return fillNaN(out, math.NaN())
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(min(i+1, period))
	}
	return out
}

// Bollinger returns the upper, middle and lower bands using the population
// standard deviation of the last period closes. Values before a full
// window are NaN.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower []float64) {
	upper, middle, lower = nanSlice(len(values)), nanSlice(len(values)), nanSlice(len(values))
	if period <= 0 {
		return upper, middle, lower
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean, std := stat.PopMeanStdDev(window, nil)
		middle[i] = mean
		upper[i] = mean + k*std
		lower[i] = mean - k*std
	}
	return upper, middle, lower
}
