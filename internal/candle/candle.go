// Package candle
package candle

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

// ErrInvalidCandle wraps every Validate failure.
var ErrInvalidCandle = errors.New("invalid candle")

// Candle is one daily OHLCV record plus the volatility index close for
// the same session.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	VIX       float64   `json:"vix"`
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is zero", ErrInvalidCandle)
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume, c.VIX} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite field at %s", ErrInvalidCandle, c.Timestamp.Format(time.DateOnly))
		}
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: prices must be positive", ErrInvalidCandle)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high cannot be less than low", ErrInvalidCandle)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("%w: open must be between high and low", ErrInvalidCandle)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("%w: close must be between high and low", ErrInvalidCandle)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: volume cannot be negative", ErrInvalidCandle)
	}
	if c.VIX < 0 {
		return fmt.Errorf("%w: vix cannot be negative", ErrInvalidCandle)
	}
	return nil
}

// Clean sorts candles by day, keeps the first record of each day and drops
// rows that fail validation. It returns the cleaned slice and the number of
// rejected rows.
func Clean(candles []Candle) ([]Candle, int) {
	if len(candles) == 0 {
		return nil, 0
	}
	sorted := slices.Clone(candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := make([]Candle, 0, len(sorted))
	seen := make(map[time.Time]struct{}, len(sorted))
	dropped := 0
	for _, c := range sorted {
		c.Timestamp = c.Timestamp.UTC().Truncate(24 * time.Hour)
		if _, ok := seen[c.Timestamp]; ok {
			dropped++
			continue
		}
		if err := c.Validate(); err != nil {
			dropped++
			continue
		}
		seen[c.Timestamp] = struct{}{}
		out = append(out, c)
	}
	return out, dropped
}
