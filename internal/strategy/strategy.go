// Package strategy turns indicator tables into per-date momentum scores
// and entry/exit flags.
package strategy

import (
	"time"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// RequiredColumns must be present for Score to produce signals.
const RequiredColumns = candle.ColFastMA | candle.ColSlowMA | candle.ColRSI | candle.ColATR |
	candle.ColADX | candle.ColVolumeMA | candle.ColVIXMA | candle.ColDrivers

// Signal is the scorer output for one date. The simulation acts on it
// one bar later.
type Signal struct {
	Time          time.Time `json:"time"`
	Buy           bool      `json:"buy"`
	Exit          bool      `json:"exit"`
	ImmediateExit bool      `json:"immediate_exit"`
	Score         float64   `json:"score"` // momentum score in [0,100]
}

// Score ranks the raw momentum drivers over the whole table, combines them
// into a volatility adjusted momentum score and derives the signal flags.
// A table without the required columns yields no signals.
func Score(table candle.Table, adxThreshold float64, cfg config.Strategy) []Signal {
	if table.Len() == 0 {
		return nil
	}
	if !table.Has(RequiredColumns) {
		logger := utils.Component("strategy")
		logger.Warn().Msgf("Score | missing indicator columns (have %b, need %b), returning no signals", table.Columns, RequiredColumns)
		return nil
	}

	bars := table.Bars
	column := func(f func(b candle.Bar) float64) []float64 {
		out := make([]float64, len(bars))
		for i, b := range bars {
			out[i] = f(b)
		}
		return out
	}

	roc := PercentileRank(column(func(b candle.Bar) float64 { return b.PriceROC }))
	maDist := PercentileRank(column(func(b candle.Bar) float64 { return b.MADist }))
	rsiZone := PercentileRank(column(func(b candle.Bar) float64 { return b.RSIZone }))
	adxSlope := PercentileRank(column(func(b candle.Bar) float64 { return b.ADXSlope }))
	volAccel := PercentileRank(column(func(b candle.Bar) float64 { return b.VolAccel }))
	vix := PercentileRank(column(func(b candle.Bar) float64 { return b.VIXFactor }))
	volRank := RollingPercentileRank(column(func(b candle.Bar) float64 { return b.ATRPct }), cfg.Indicators.VolatilityLookback)

	w := cfg.Scoring
	sig := cfg.Signals
	out := make([]Signal, len(bars))
	for i, b := range bars {
		raw := w.PriceWeight*(roc[i]*w.ROCShare+maDist[i]*w.MADistShare) +
			w.RSIWeight*rsiZone[i] +
			w.ADXWeight*adxSlope[i] +
			w.VolumeWeight*volAccel[i] +
			w.VIXWeight*vix[i]
		adj := clamp(1-volRank[i], w.VolAdjustMin, w.VolAdjustMax)
		score := clamp(raw*adj, 0, 1) * 100

		out[i] = Signal{
			Time:  b.Timestamp,
			Score: score,
			Buy: b.FastMA > b.SlowMA &&
				b.ADX > adxThreshold &&
				b.VIX < sig.VIXEntryCeiling &&
				score > sig.BuyScore,
			Exit: score < sig.ExitScore ||
				(b.RSI > sig.ExitRSI && score < sig.ExitRSIScore),
			ImmediateExit: score < sig.ImmediateScore ||
				b.ADX < adxThreshold/sig.ImmediateADXFactor ||
				b.RSI > sig.ImmediateRSI,
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
