package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/optimize"
)

func table(n int) candle.Table {
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]candle.Bar, n)
	for i := range bars {
		bars[i] = candle.Bar{Candle: candle.Candle{Timestamp: start.AddDate(0, 0, i), Open: 1, High: 1, Low: 1, Close: 1}}
	}
	return candle.NewTable(bars, candle.AllColumns)
}

func TestSplit(t *testing.T) {
	data := config.Data{InSampleYears: 2, WarmupBars: 5, FinalOOSYears: 1, TradingDays: 10}

	tests := []struct {
		name          string
		bars          int
		wantIS        int
		wantOOS       int
		wantISFirstAt int
	}{
		{"long series", 100, 25, 10, 65},
		{"exact", 35, 25, 10, 0},
		{"short in-sample", 20, 10, 10, 0},
		{"shorter than oos", 6, 0, 6, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := table(tt.bars)
			is, oos := split(tbl, data)
			assert.Equal(t, tt.wantIS, is.Len())
			assert.Equal(t, tt.wantOOS, oos.Len())
			if is.Len() > 0 {
				assert.Equal(t, tbl.Bars[tt.wantISFirstAt].Timestamp, is.First())
				assert.True(t, is.Last().Before(oos.First()))
			}
			assert.Equal(t, tbl.Last(), oos.Last())
		})
	}
}

func TestTopParams(t *testing.T) {
	trials := []optimize.Trial{
		{Params: config.Params{MaxOpenPositions: 1}},
		{Params: config.Params{MaxOpenPositions: 2}},
	}
	assert.Len(t, topParams(trials, 3), 2)
	assert.Len(t, topParams(trials, 0), 1)
	assert.Equal(t, 1, topParams(trials, 1)[0].MaxOpenPositions)
}
