package strategy

import (
	"math"
	"sort"
)

// neutralRank replaces ranks that cannot be computed.
const neutralRank = 0.5

// PercentileRank returns the percentile rank in (0,1] of every value
// against all finite values of the series. Ties share their average rank;
// non-finite inputs get the neutral rank 0.5.
func PercentileRank(values []float64) []float64 {
	out := make([]float64, len(values))
	idx := make([]int, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = neutralRank
			continue
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return out
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	n := float64(len(idx))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		// 1-based ranks start+1..end share their mean
		avg := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			out[idx[k]] = avg / n
		}
		start = end
	}
	return out
}

// RollingPercentileRank ranks each value against the trailing window of
// up to window values ending at it (a shorter window at the start of the
// series). Ties share their average rank.
func RollingPercentileRank(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 1 {
		window = 1
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = neutralRank
			continue
		}
		less, equal, count := 0, 0, 0
		for _, w := range values[max(0, i-window+1) : i+1] {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				continue
			}
			count++
			switch {
			case w < v:
				less++
			case w == v:
				equal++
			}
		}
		rank := float64(less) + float64(equal+1)/2
		out[i] = rank / float64(count)
	}
	return out
}
