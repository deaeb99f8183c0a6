package indicator

import (
	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
)

// Prepare computes every indicator column and raw momentum driver for
// candles, which must already be cleaned and date ordered. Warm-up gaps
// are filled with neutral values: RSI 50, ATR and ADX 0, bands collapse
// onto the close.
func Prepare(candles []candle.Candle, cfg config.Strategy) candle.Table {
	n := len(candles)
	if n == 0 {
		return candle.NewTable(nil, candle.AllColumns)
	}
	in := cfg.Indicators

	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	vix := make([]float64, n)
	for i, c := range candles {
		high[i], low[i], closes[i], volume[i], vix[i] = c.High, c.Low, c.Close, c.Volume, c.VIX
	}

	fast := SMA(closes, in.FastMA)
	slow := SMA(closes, in.SlowMA)
	volMA := SMA(volume, in.VolumeMAPeriod)
	vixMA := SMA(vix, in.VIXMAPeriod)
	rsi := fillNaN(CalculateRSI(closes, in.RSIPeriod), 50)
	atr := fillNaN(ATR(high, low, closes, in.ATRPeriod), 0)
	adx, _, _ := ADX(high, low, closes, in.ADXPeriod)
	adx = fillNaN(adx, 0)
	upper, middle, lower := Bollinger(closes, in.BBPeriod, in.BBStdDev)

	bars := make([]candle.Bar, n)
	for i, c := range candles {
		b := candle.Bar{
			Candle:     c,
			FastMA:     fast[i],
			SlowMA:     slow[i],
			RSI:        rsi[i],
			ATR:        atr[i],
			ADX:        adx[i],
			UpperBand:  upper[i],
			MiddleBand: middle[i],
			LowerBand:  lower[i],
			VolumeMA:   volMA[i],
			VIXMA:      vixMA[i],
		}
		if i < in.BBPeriod-1 {
			b.UpperBand, b.MiddleBand, b.LowerBand = c.Close, c.Close, c.Close
		}

		lb := in.MomentumLookback
		if i >= lb && closes[i-lb] != 0 {
			b.PriceROC = closes[i]/closes[i-lb] - 1
		}
		if i >= lb {
			b.ADXSlope = adx[i] - adx[i-lb]
		}
		if b.FastMA != 0 {
			b.MADist = c.Close/b.FastMA - 1
		}
		b.VolAccel = 1.0
		if b.VolumeMA != 0 {
			b.VolAccel = c.Volume / b.VolumeMA
		}
		if c.Close != 0 {
			b.ATRPct = b.ATR / c.Close
		}
		b.VIXFactor = 1.0
		if c.VIX > 1e-6 {
			b.VIXFactor = b.VIXMA / (c.VIX + 1e-6)
		}
		b.RSIZone = RSIZone(b.RSI, cfg.Scoring)
		bars[i] = b
	}
	return candle.NewTable(bars, candle.AllColumns)
}

// RSIZone is a tent function: 1 inside [RSIZoneLow, RSIZoneHigh], falling
// linearly to 0 at RSIZoneFloor and RSIZoneCeiling, 0 outside.
func RSIZone(rsi float64, s config.Scoring) float64 {
	switch {
	case rsi >= s.RSIZoneLow && rsi <= s.RSIZoneHigh:
		return 1.0
	case rsi >= s.RSIZoneFloor && rsi < s.RSIZoneLow:
		if s.RSIZoneLow == s.RSIZoneFloor {
			return 0
		}
		return (rsi - s.RSIZoneFloor) / (s.RSIZoneLow - s.RSIZoneFloor)
	case rsi > s.RSIZoneHigh && rsi <= s.RSIZoneCeiling:
		if s.RSIZoneCeiling == s.RSIZoneHigh {
			return 0
		}
		return (s.RSIZoneCeiling - rsi) / (s.RSIZoneCeiling - s.RSIZoneHigh)
	default:
		return 0
	}
}
