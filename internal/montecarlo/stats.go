package montecarlo

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Cap replaces infinite metric values before ranking and p-values.
const Cap = 1e9

// Distribution summarizes a null distribution. Mean, Std, Skew and
// Kurtosis use finite samples only; P5 and P95 use the capped samples.
type Distribution struct {
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Skew     float64 `json:"skew"`
	Kurtosis float64 `json:"kurtosis"`
	P5       float64 `json:"p5"`
	P95      float64 `json:"p95"`
}

func nanDistribution() Distribution {
	nan := math.NaN()
	return Distribution{Mean: nan, Std: nan, Skew: nan, Kurtosis: nan, P5: nan, P95: nan}
}

func capped(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return Cap
	case math.IsInf(v, -1):
		return -Cap
	}
	return v
}

// Test compares observed with the simulated values of m. NaN samples are
// ignored. The outcome is all NaN when observed is NaN or no sample is
// usable.
func Test(m Metric, observed float64, simulated []float64) Outcome {
	var capd, finite []float64
	for _, v := range simulated {
		if math.IsNaN(v) {
			continue
		}
		capd = append(capd, capped(v))
		if !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if math.IsNaN(observed) || len(capd) == 0 {
		return Outcome{Observed: observed, PValue: math.NaN(), Percentile: math.NaN(), Null: nanDistribution()}
	}
	obs := capped(observed)

	atLeast := 0
	for _, v := range capd {
		if m.HigherIsBetter() && v >= obs || !m.HigherIsBetter() && v <= obs {
			atLeast++
		}
	}

	slices.Sort(capd)
	out := Outcome{
		Observed:   observed,
		PValue:     float64(atLeast) / float64(len(capd)),
		Percentile: PercentileOfScore(capd, obs),
		Null:       nanDistribution(),
	}
	out.Null.P5 = stat.Quantile(0.05, stat.LinInterp, capd, nil)
	out.Null.P95 = stat.Quantile(0.95, stat.LinInterp, capd, nil)

	if len(finite) > 0 {
		out.Null.Mean = stat.Mean(finite, nil)
	}
	if len(finite) > 1 {
		out.Null.Std = stat.PopStdDev(finite, nil)
	}
	m2 := stat.Moment(2, finite, nil)
	if len(finite) > 2 && m2 > 0 {
		out.Null.Skew = stat.Moment(3, finite, nil) / math.Pow(m2, 1.5)
	}
	if len(finite) > 3 && m2 > 0 {
		out.Null.Kurtosis = stat.Moment(4, finite, nil)/(m2*m2) - 3
	}
	return out
}

// PercentileOfScore is the percentile rank of score within sorted, with
// ties sharing the mean of their ranks.
func PercentileOfScore(sorted []float64, score float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	left, _ := slices.BinarySearch(sorted, score)
	right := left
	for right < n && sorted[right] == score {
		right++
	}
	plus1 := 0
	if left < right {
		plus1 = 1
	}
	return float64(left+right+plus1) * 50 / float64(n)
}
