package candle

import (
	"slices"
	"time"
)

// Column is a bit set of the indicator columns carried by a Table.
type Column uint16

const (
	ColFastMA Column = 1 << iota
	ColSlowMA
	ColRSI
	ColATR
	ColADX
	ColBands
	ColVolumeMA
	ColVIXMA
	ColDrivers
)

// AllColumns is the full indicator set produced by indicator.Prepare.
const AllColumns = ColFastMA | ColSlowMA | ColRSI | ColATR | ColADX | ColBands | ColVolumeMA | ColVIXMA | ColDrivers

// Bar is a candle with its precomputed indicator values. Bars are never
// mutated once the indicator stage has produced them.
type Bar struct {
	Candle
	FastMA     float64
	SlowMA     float64
	RSI        float64
	ATR        float64
	ADX        float64
	UpperBand  float64
	MiddleBand float64
	LowerBand  float64
	VolumeMA   float64
	VIXMA      float64

	// Raw momentum drivers, ranked by the signal scorer.
	PriceROC  float64
	MADist    float64
	RSIZone   float64
	ADXSlope  float64
	VolAccel  float64
	ATRPct    float64
	VIXFactor float64
}

// Table is a date ordered sequence of bars together with the set of
// indicator columns that were filled in.
type Table struct {
	Bars    []Bar
	Columns Column
}

func NewTable(bars []Bar, cols Column) Table {
	return Table{Bars: bars, Columns: cols}
}

func (t Table) Len() int { return len(t.Bars) }

// Has reports whether every column in cols is present.
func (t Table) Has(cols Column) bool { return t.Columns&cols == cols }

// Slice returns bars [i, j). The result shares storage with t and must be
// treated as read-only.
func (t Table) Slice(i, j int) Table {
	i = max(0, min(i, len(t.Bars)))
	j = max(i, min(j, len(t.Bars)))
	return Table{Bars: t.Bars[i:j:j], Columns: t.Columns}
}

func (t Table) Head(n int) Table { return t.Slice(0, n) }

func (t Table) Tail(n int) Table { return t.Slice(len(t.Bars)-n, len(t.Bars)) }

// Append returns a new table holding t followed by other. Only columns
// present in both tables survive.
func (t Table) Append(other Table) Table {
	cols := t.Columns & other.Columns
	if len(t.Bars) == 0 {
		cols = other.Columns
	} else if len(other.Bars) == 0 {
		cols = t.Columns
	}
	return Table{Bars: slices.Concat(t.Bars, other.Bars), Columns: cols}
}

func (t Table) Dates() []time.Time {
	out := make([]time.Time, len(t.Bars))
	for i, b := range t.Bars {
		out[i] = b.Timestamp
	}
	return out
}

func (t Table) Closes() []float64 {
	out := make([]float64, len(t.Bars))
	for i, b := range t.Bars {
		out[i] = b.Close
	}
	return out
}

// CloseReturns returns simple close-to-close returns, len(t)-1 values.
func (t Table) CloseReturns() []float64 {
	if len(t.Bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(t.Bars)-1)
	for i := 1; i < len(t.Bars); i++ {
		prev := t.Bars[i-1].Close
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, t.Bars[i].Close/prev-1)
	}
	return out
}

func (t Table) First() time.Time {
	if len(t.Bars) == 0 {
		return time.Time{}
	}
	return t.Bars[0].Timestamp
}

func (t Table) Last() time.Time {
	if len(t.Bars) == 0 {
		return time.Time{}
	}
	return t.Bars[len(t.Bars)-1].Timestamp
}
