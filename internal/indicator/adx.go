package indicator

import "math"

// ADX returns Wilder's average directional index together with the +DI and
// -DI lines. ADX needs 2*period bars before its first valid value.
func ADX(high, low, close []float64, period int) (adx, plusDI, minusDI []float64) {
	n := len(close)
	adx, plusDI, minusDI = nanSlice(n), nanSlice(n), nanSlice(n)
	if period <= 0 || n <= period {
		return adx, plusDI, minusDI
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	tr := TrueRange(high, low, close)
	atr := wilder(tr, period, 1)
	smPlus := wilder(plusDM, period, 1)
	smMinus := wilder(minusDM, period, 1)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if atr[i] == 0 || math.IsNaN(atr[i]) {
			plusDI[i], minusDI[i] = 0, 0
			continue
		}
		plusDI[i] = 100 * smPlus[i] / atr[i]
		minusDI[i] = 100 * smMinus[i] / atr[i]
		if sum := plusDI[i] + minusDI[i]; sum > 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}
	return wilder(dx, period, period), plusDI, minusDI
}
