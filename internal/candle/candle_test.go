package candle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func validCandle(n int, close float64) Candle {
	return Candle{Timestamp: day(n), Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1000, VIX: 15}
}

func TestCandleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Candle)
		wantErr bool
	}{
		{"valid", func(c *Candle) {}, false},
		{"zero timestamp", func(c *Candle) { c.Timestamp = time.Time{} }, true},
		{"negative price", func(c *Candle) { c.Low = -1 }, true},
		{"high below low", func(c *Candle) { c.High = c.Low - 1 }, true},
		{"open above high", func(c *Candle) { c.Open = c.High + 1 }, true},
		{"close below low", func(c *Candle) { c.Close = c.Low - 0.5 }, true},
		{"negative volume", func(c *Candle) { c.Volume = -1 }, true},
		{"nan vix", func(c *Candle) { c.VIX = math.NaN() }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandle(0, 100)
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCandle)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClean(t *testing.T) {
	dup := validCandle(1, 200)
	bad := validCandle(3, 100)
	bad.High = 0

	in := []Candle{validCandle(2, 102), validCandle(1, 101), dup, bad, validCandle(0, 100)}
	out, dropped := Clean(in)

	require.Len(t, out, 3)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, day(0), out[0].Timestamp)
	assert.Equal(t, day(1), out[1].Timestamp)
	assert.Equal(t, 101.0, out[1].Close, "first record of a day wins")
	assert.Equal(t, day(2), out[2].Timestamp)
}

func TestTableSlicing(t *testing.T) {
	bars := make([]Bar, 5)
	for i := range bars {
		bars[i] = Bar{Candle: validCandle(i, float64(100+i))}
	}
	table := NewTable(bars, AllColumns)

	assert.Equal(t, 2, table.Head(2).Len())
	assert.Equal(t, day(3), table.Tail(2).First())
	assert.Equal(t, 5, table.Tail(10).Len())
	assert.Equal(t, 0, table.Slice(4, 2).Len())

	joined := table.Head(2).Append(table.Tail(3))
	assert.Equal(t, 5, joined.Len())
	assert.True(t, joined.Has(ColATR|ColADX))

	// appending must not write into the source table
	grown := table.Head(2).Append(NewTable([]Bar{{Candle: validCandle(9, 1)}}, AllColumns))
	assert.Equal(t, day(9), grown.Last())
	assert.Equal(t, day(2), table.Bars[2].Timestamp)

	partial := NewTable(bars, ColFastMA)
	assert.False(t, partial.Has(ColFastMA|ColATR))

	rets := table.CloseReturns()
	require.Len(t, rets, 4)
	assert.InDelta(t, 0.01, rets[0], 1e-12)
}
