package indicator

// CalculateRSI returns Wilder's RSI. The first period values are NaN.
func CalculateRSI(prices []float64, period int) []float64 {
	if len(prices) <= period || period <= 0 {
		return nanSlice(len(prices))
	}
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}
	avgGain := wilder(gains, period, 1)
	avgLoss := wilder(losses, period, 1)

	rsi := nanSlice(len(prices))
	for i := period; i < len(prices); i++ {
		switch {
		case avgLoss[i] == 0 && avgGain[i] == 0:
			rsi[i] = 50
		case avgLoss[i] == 0:
			rsi[i] = 100
		default:
			rs := avgGain[i] / avgLoss[i]
			rsi[i] = 100 - (100 / (1 + rs))
		}
	}
	return rsi
}
