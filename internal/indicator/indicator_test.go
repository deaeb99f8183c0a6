package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
)

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		check  func(t *testing.T, rsi []float64)
	}{
		{
			name:   "all increasing prices",
			prices: []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
			period: 3,
			check: func(t *testing.T, rsi []float64) {
				for i := 0; i < 3; i++ {
					assert.True(t, math.IsNaN(rsi[i]))
				}
				for i := 3; i < len(rsi); i++ {
					assert.Equal(t, 100.0, rsi[i])
				}
			},
		},
		{
			name:   "all decreasing prices",
			prices: []float64{19, 18, 17, 16, 15, 14, 13, 12},
			period: 3,
			check: func(t *testing.T, rsi []float64) {
				for i := 3; i < len(rsi); i++ {
					assert.InDelta(t, 0.0, rsi[i], 1e-9)
				}
			},
		},
		{
			name:   "flat prices are neutral",
			prices: []float64{5, 5, 5, 5, 5},
			period: 2,
			check: func(t *testing.T, rsi []float64) {
				assert.Equal(t, 50.0, rsi[4])
			},
		},
		{
			name:   "wilder smoothing",
			prices: []float64{10, 11, 10, 12},
			period: 2,
			check: func(t *testing.T, rsi []float64) {
				// seed: gains (1,0) losses (0,1) -> 50; then gain 2 -> avgGain 1.25 avgLoss 0.25
				assert.InDelta(t, 50.0, rsi[2], 1e-9)
				assert.InDelta(t, 100-100/(1+5.0), rsi[3], 1e-9)
			},
		},
		{
			name:   "too short",
			prices: []float64{1, 2},
			period: 5,
			check: func(t *testing.T, rsi []float64) {
				require.Len(t, rsi, 2)
				assert.True(t, math.IsNaN(rsi[1]))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := CalculateRSI(tt.prices, tt.period)
			require.Len(t, rsi, len(tt.prices))
			tt.check(t, rsi)
		})
	}
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{2, 4, 6, 8}, 2)
	assert.Equal(t, []float64{2, 3, 5, 7}, got)
}

func TestATRConstantRange(t *testing.T) {
	high := []float64{11, 11, 11, 11, 11}
	low := []float64{9, 9, 9, 9, 9}
	closes := []float64{10, 10, 10, 10, 10}
	atr := ATR(high, low, closes, 3)
	assert.True(t, math.IsNaN(atr[1]))
	assert.InDelta(t, 2.0, atr[2], 1e-12)
	assert.InDelta(t, 2.0, atr[4], 1e-12)
}

func TestADXTrend(t *testing.T) {
	n := 60
	high, low, closes := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range n {
		closes[i] = 100 + float64(i)
		high[i] = closes[i] + 0.5
		low[i] = closes[i] - 0.5
	}
	adx, plus, minus := ADX(high, low, closes, 14)
	assert.True(t, math.IsNaN(adx[10]))
	assert.Greater(t, adx[n-1], 90.0, "a clean uptrend is all directional movement")
	assert.Greater(t, plus[n-1], minus[n-1])
}

func TestBollinger(t *testing.T) {
	upper, middle, lower := Bollinger([]float64{1, 1, 1, 3}, 2, 2)
	assert.True(t, math.IsNaN(middle[0]))
	assert.Equal(t, 1.0, upper[1])
	assert.Equal(t, 2.0, middle[3])
	assert.InDelta(t, 4.0, upper[3], 1e-12)
	assert.InDelta(t, 0.0, lower[3], 1e-12)
}

func TestPrepare(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	candles := make([]candle.Candle, 80)
	for i := range candles {
		c := 100 + float64(i)
		candles[i] = candle.Candle{Timestamp: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000, VIX: 18}
	}
	table := Prepare(candles, config.DefaultStrategy())

	require.Equal(t, 80, table.Len())
	assert.True(t, table.Has(candle.AllColumns))
	for _, b := range table.Bars {
		assert.False(t, math.IsNaN(b.RSI))
		assert.False(t, math.IsNaN(b.ATR))
		assert.False(t, math.IsNaN(b.ADX))
		assert.False(t, math.IsNaN(b.UpperBand))
	}
	last := table.Bars[79]
	assert.Greater(t, last.FastMA, last.SlowMA)
	assert.Equal(t, 18.0, last.VIXMA)
	assert.Equal(t, 50.0, table.Bars[0].RSI)
	assert.Zero(t, table.Bars[5].PriceROC, "no lookback history yet")
	assert.InDelta(t, 179.0/165.0-1, last.PriceROC, 1e-12)
	assert.Equal(t, 1.0, last.VolAccel)
	assert.InDelta(t, 1.0, last.VIXFactor, 1e-6)
}

func TestRSIZone(t *testing.T) {
	s := config.DefaultStrategy().Scoring
	tests := []struct {
		rsi  float64
		want float64
	}{
		{10, 0},
		{20, 0},
		{30, 0.5},
		{40, 1},
		{55, 1},
		{70, 1},
		{80, 0.5},
		{90, 0},
		{95, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, RSIZone(tt.rsi, s), 1e-12, "rsi=%v", tt.rsi)
	}
}

func TestPrepareEmpty(t *testing.T) {
	table := Prepare(nil, config.DefaultStrategy())
	assert.Equal(t, 0, table.Len())
}
