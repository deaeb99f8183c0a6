package optimize

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/indicator"
)

func marketTable(n int) candle.Table {
	rng := rand.New(rand.NewPCG(11, 2))
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]candle.Candle, n)
	price := 50.0
	for i := range candles {
		open := price
		price *= 1 + 0.0006 + 0.015*rng.NormFloat64()
		candles[i] = candle.Candle{
			Timestamp: start.AddDate(0, 0, i), Open: open,
			High: math.Max(open, price) * 1.005, Low: math.Min(open, price) * 0.995, Close: price,
			Volume: 5e5 * (1 + 0.3*rng.Float64()), VIX: 14 + 8*rng.Float64(),
		}
	}
	return indicator.Prepare(candles, config.DefaultStrategy())
}

func TestSpaceSample(t *testing.T) {
	space := DefaultSpace()
	rng := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 500; i++ {
		p := space.Sample(rng)
		require.True(t, space.Contains(p), "%s", p)
		assert.InDelta(t, math.Round(p.LongRisk*100)/100, p.LongRisk, 1e-12)
		assert.Equal(t, math.Round(p.ADXThreshold), p.ADXThreshold)
		assert.NoError(t, p.Validate())
	}
}

func TestObjectives(t *testing.T) {
	a := Objectives{ProfitFactor: 2, AvgWinLossRatio: 1.5, ExpectancyPct: 0.4, MaxDrawdown: 10}
	b := Objectives{ProfitFactor: 1.5, AvgWinLossRatio: 1.5, ExpectancyPct: 0.2, MaxDrawdown: 12}
	c := Objectives{ProfitFactor: 3, AvgWinLossRatio: 1, ExpectancyPct: 0.4, MaxDrawdown: 10}

	assert.True(t, a.Dominates(b))
	assert.False(t, b.Dominates(a))
	assert.False(t, a.Dominates(c))
	assert.False(t, c.Dominates(a))
	assert.False(t, a.Dominates(a))

	assert.InDelta(t, 0.3*2+0.4*1.5+0.15*0.4-0.15*10, a.Score(), 1e-12)
	capped := Objectives{ProfitFactor: 1e6}
	assert.InDelta(t, 30.0, capped.Score(), 1e-12)

	assert.True(t, a.finite())
	assert.False(t, Objectives{ProfitFactor: math.Inf(1)}.finite())
	assert.False(t, Objectives{MaxDrawdown: math.NaN()}.finite())
}

func TestMarkPareto(t *testing.T) {
	trials := []Trial{
		{Number: 0, Values: Objectives{ProfitFactor: 2, AvgWinLossRatio: 1.5, ExpectancyPct: 0.4, MaxDrawdown: 10}},
		{Number: 1, Values: Objectives{ProfitFactor: 1.5, AvgWinLossRatio: 1.5, ExpectancyPct: 0.2, MaxDrawdown: 12}},
		{Number: 2, Values: Objectives{ProfitFactor: 3, AvgWinLossRatio: 1, ExpectancyPct: 0.4, MaxDrawdown: 10}},
	}
	markPareto(trials)
	assert.True(t, trials[0].Pareto)
	assert.False(t, trials[1].Pareto)
	assert.True(t, trials[2].Pareto)
}

func testConfig() config.Optimizer {
	cfg := config.Default().Optimizer
	cfg.Trials = 12
	cfg.TopK = 5
	cfg.Workers = 3
	return cfg
}

func TestOptimize(t *testing.T) {
	table := marketTable(260)
	opt := New(testConfig(), config.DefaultStrategy())

	trials, err := opt.Optimize(context.Background(), table)
	require.NoError(t, err)
	require.NotEmpty(t, trials)
	assert.LessOrEqual(t, len(trials), 5)

	pareto := 0
	for i, tr := range trials {
		assert.Equal(t, StateComplete, tr.State)
		assert.True(t, tr.Values.finite())
		assert.InDelta(t, tr.Values.Score(), tr.Score, 1e-12)
		assert.True(t, DefaultSpace().Contains(tr.Params))
		if i > 0 {
			assert.GreaterOrEqual(t, trials[i-1].Score, tr.Score)
		}
		if tr.Pareto {
			pareto++
		}
	}
	assert.Positive(t, pareto)

	again, err := opt.Optimize(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, again, len(trials))
	for i := range trials {
		assert.Equal(t, trials[i].Number, again[i].Number)
		assert.Equal(t, trials[i].Params, again[i].Params)
	}

	best, err := opt.Best(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, trials[0].Params, best)
}

func TestOptimizeErrors(t *testing.T) {
	opt := New(testConfig(), config.DefaultStrategy())

	_, err := opt.Optimize(context.Background(), candle.Table{})
	assert.ErrorIs(t, err, ErrEmptyTable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = opt.Optimize(ctx, marketTable(100))
	assert.ErrorIs(t, err, ErrNoTrials, "every trial is pruned once the budget is gone")

	_, err = opt.Best(ctx, marketTable(100))
	assert.ErrorIs(t, err, ErrNoTrials)
}

func TestOptimizeNarrowSpace(t *testing.T) {
	space := Space{
		LongRisk:            FloatRange{Min: 0.03, Max: 0.03, Step: 0.01},
		MaxOpenPositions:    IntRange{Min: 4, Max: 4},
		ADXThreshold:        FloatRange{Min: 22, Max: 22, Step: 1},
		MaxPositionDuration: IntRange{Min: 9, Max: 9},
	}
	trials, err := New(testConfig(), config.DefaultStrategy()).WithSpace(space).Optimize(context.Background(), marketTable(200))
	require.NoError(t, err)
	for _, tr := range trials {
		assert.Equal(t, config.Params{LongRisk: 0.03, MaxOpenPositions: 4, ADXThreshold: 22, MaxPositionDuration: 9}, tr.Params)
		// identical trials never dominate each other
		assert.True(t, tr.Pareto)
	}
}
