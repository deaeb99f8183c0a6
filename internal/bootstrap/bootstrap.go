// Package bootstrap draws stationary block-bootstrap resamples of an
// indicator table.
package bootstrap

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// NewRand returns the generator used for sample i of a run seeded with
// seed. Every sample owns its stream, so samples can be drawn in any order
// or in parallel and still reproduce.
func NewRand(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)))
}

// StationaryIndices returns length row indices into a series of n rows.
// The first index is uniform; every later step jumps to a fresh uniform
// index with probability 1/block and otherwise advances by one, wrapping
// at n.
func StationaryIndices(n, length, block int, rng *rand.Rand) []int {
	if n <= 0 || length <= 0 {
		return nil
	}
	p := 1.0 / float64(max(1, block))
	out := make([]int, length)
	t := rng.IntN(n)
	out[0] = t
	for j := 1; j < length; j++ {
		if rng.Float64() < p {
			t = rng.IntN(n)
		} else {
			t = (t + 1) % n
		}
		out[j] = t
	}
	return out
}

// Sample draws one resampled table. Rows are copied from table in
// bootstrap order and then stamped with the first length dates of the
// source so the result stays strictly date ordered. length <= 0 or above
// the source length means the source length.
func Sample(table candle.Table, block, length int, rng *rand.Rand) candle.Table {
	n := table.Len()
	if n == 0 {
		return candle.NewTable(nil, table.Columns)
	}
	if length <= 0 || length > n {
		length = n
	}
	bars := make([]candle.Bar, length)
	for j, idx := range StationaryIndices(n, length, block, rng) {
		bars[j] = table.Bars[idx]
		bars[j].Timestamp = table.Bars[j].Timestamp
	}
	return candle.NewTable(bars, table.Columns)
}

// Resample draws count independent samples of table.
func Resample(table candle.Table, block, count, length int, seed uint64) []candle.Table {
	out := make([]candle.Table, count)
	for i := range out {
		out[i] = Sample(table, block, length, NewRand(seed, i))
	}
	return out
}

// OptimalBlockLength picks the first lag in [1, maxLag] whose
// autocorrelation is not significant at level alpha under Bartlett's
// formula. It returns maxLag when every lag is significant and def when
// the series is shorter than maxLag+1 or constant.
func OptimalBlockLength(series []float64, maxLag int, alpha float64, def int) int {
	logger := utils.Component("bootstrap")
	n := len(series)
	if maxLag < 1 || n < maxLag+1 || stat.Variance(series, nil) == 0 {
		logger.Warn().Msgf("OptimalBlockLength | series too short or constant, using default %d", def)
		return def
	}

	acf := ACF(series, maxLag)
	z := distuv.UnitNormal.Quantile(1 - alpha/2)
	sumSq := 0.0
	for k := 1; k <= maxLag; k++ {
		variance := (1 + 2*sumSq) / float64(n)
		half := z * math.Sqrt(variance)
		if acf[k]-half <= 0 && acf[k]+half >= 0 {
			logger.Debug().Msgf("OptimalBlockLength | lag %d acf %.3f not significant", k, acf[k])
			return k
		}
		sumSq += acf[k] * acf[k]
	}
	logger.Warn().Msgf("OptimalBlockLength | acf significant up to lag %d", maxLag)
	return maxLag
}

// ACF returns the sample autocorrelations of series for lags 0..maxLag,
// normalized by the lag-0 autocovariance.
func ACF(series []float64, maxLag int) []float64 {
	n := len(series)
	out := make([]float64, maxLag+1)
	if n == 0 {
		return out
	}
	mean := stat.Mean(series, nil)
	c0 := 0.0
	for _, v := range series {
		c0 += (v - mean) * (v - mean)
	}
	if c0 == 0 {
		return out
	}
	for k := 0; k <= maxLag && k < n; k++ {
		ck := 0.0
		for i := k; i < n; i++ {
			ck += (series[i] - mean) * (series[i-k] - mean)
		}
		out[k] = ck / c0
	}
	return out
}
