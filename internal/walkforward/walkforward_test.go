package walkforward

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/indicator"
	"github.com/amirphl/momentum-validator/internal/optimize"
)

type mockOptimizer struct {
	mock.Mock
}

func (m *mockOptimizer) Best(ctx context.Context, train candle.Table) (config.Params, error) {
	args := m.Called(ctx, train)
	return args.Get(0).(config.Params), args.Error(1)
}

func marketTable(n int) candle.Table {
	rng := rand.New(rand.NewPCG(21, 5))
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]candle.Candle, n)
	price := 80.0
	for i := range candles {
		open := price
		price *= 1 + 0.0005 + 0.013*rng.NormFloat64()
		candles[i] = candle.Candle{
			Timestamp: start.AddDate(0, 0, i), Open: open,
			High: math.Max(open, price) * 1.004, Low: math.Min(open, price) * 0.996, Close: price,
			Volume: 1e6 * (1 + 0.25*rng.Float64()), VIX: 13 + 9*rng.Float64(),
		}
	}
	return indicator.Prepare(candles, config.DefaultStrategy())
}

func testConfig() config.WalkForward {
	cfg := config.Default().WalkForward
	cfg.OOSWindow = 20
	cfg.OptimizationFrequency = 40
	cfg.RetryAttempts = 1
	return cfg
}

func newDriver(opt Optimizer) *Driver {
	d := New(testConfig(), config.DefaultStrategy(), opt)
	d.retryInterval = time.Millisecond
	return d
}

var tuned = config.Params{LongRisk: 0.03, MaxOpenPositions: 6, ADXThreshold: 22, MaxPositionDuration: 12}

func TestDecay(t *testing.T) {
	tests := []struct {
		name        string
		train, test float64
		want        float64
	}{
		{"half kept", 1, 0.5, 0.5},
		{"both zero", 0, 0, 1},
		{"both negative", -1, -0.5, 0.5},
		{"outperformed", 1, 2, -1},
		{"tiny train sharpe is floored", 0.05, 0.05, 0.5},
		{"sign flip down", 1, -0.5, SignDivergencePenalty},
		{"sign flip up", -1, 0.5, SignDivergencePenalty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Decay(tt.train, tt.test, 0.1), 1e-12)
		})
	}
}

func TestRunShortOutOfSample(t *testing.T) {
	opt := &mockOptimizer{}
	table := marketTable(160)

	summary, err := newDriver(opt).Run(context.Background(), table.Head(150), table.Tail(10), config.DefaultParams())
	require.NoError(t, err)
	assert.False(t, summary.Completed())
	assert.Empty(t, summary.Steps)
	assert.False(t, summary.HasAggregate)
	assert.False(t, summary.HasDecay)
	assert.Equal(t, config.DefaultParams(), summary.FinalParams)
	opt.AssertNotCalled(t, "Best", mock.Anything, mock.Anything)
}

func TestRunAnchoredSteps(t *testing.T) {
	table := marketTable(250)
	train, oos := table.Head(150), table.Tail(100)

	opt := &mockOptimizer{}
	opt.On("Best", mock.Anything, mock.Anything).Return(tuned, nil).Twice()

	summary, err := newDriver(opt).Run(context.Background(), train, oos, config.DefaultParams())
	require.NoError(t, err)
	opt.AssertExpectations(t)

	require.Len(t, summary.Steps, 5)
	for i, st := range summary.Steps {
		assert.Equal(t, i+1, st.Number)
		assert.Equal(t, 150+20*i, st.Train.Days, "training window only grows")
		assert.Equal(t, train.First(), st.Train.Start)
		assert.Equal(t, 20, st.Test.Days)
		assert.Equal(t, oos.Bars[20*i].Timestamp, st.Test.Start)
		assert.Equal(t, st.Train.End.AddDate(0, 0, 1), st.Test.Start)
		assert.False(t, math.IsNaN(st.Decay))
	}

	// re-optimization happens before steps 3 and 5
	wantReopt := []bool{false, false, true, false, true}
	for i, st := range summary.Steps {
		assert.Equal(t, wantReopt[i], st.Reoptimized, "step %d", i+1)
	}
	assert.Equal(t, config.DefaultParams(), summary.Steps[1].Params)
	assert.Equal(t, tuned, summary.Steps[2].Params)
	assert.Equal(t, tuned, summary.FinalParams)
	assert.Equal(t, 2, summary.Reoptimizations)

	assert.Len(t, summary.OOSReturns, 100)
	assert.Equal(t, oos.Dates(), summary.OOSDates)
	assert.Equal(t, summary.ValidTests+summary.ZeroTradeWindows, 5)
}

func TestRunOptimizerFailureKeepsParameters(t *testing.T) {
	table := marketTable(250)

	opt := &mockOptimizer{}
	opt.On("Best", mock.Anything, mock.Anything).Return(config.Params{}, errors.New("solver crashed"))

	summary, err := newDriver(opt).Run(context.Background(), table.Head(150), table.Tail(100), config.DefaultParams())
	require.NoError(t, err)
	// two re-optimizations, each retried once
	opt.AssertNumberOfCalls(t, "Best", 4)
	assert.Equal(t, 2, summary.OptimizerFailures)
	assert.Zero(t, summary.Reoptimizations)
	for _, st := range summary.Steps {
		assert.Equal(t, config.DefaultParams(), st.Params)
		assert.False(t, st.Reoptimized)
	}
}

func TestRunNoTrialsIsNotRetried(t *testing.T) {
	table := marketTable(250)

	opt := &mockOptimizer{}
	opt.On("Best", mock.Anything, mock.Anything).Return(config.Params{}, optimize.ErrNoTrials)

	summary, err := newDriver(opt).Run(context.Background(), table.Head(150), table.Tail(100), config.DefaultParams())
	require.NoError(t, err)
	opt.AssertNumberOfCalls(t, "Best", 2)
	assert.Equal(t, 2, summary.OptimizerFailures)
}

func TestRunWithoutOptimizer(t *testing.T) {
	table := marketTable(230)
	summary, err := newDriver(nil).Run(context.Background(), table.Head(150), table.Tail(80), config.DefaultParams())
	require.NoError(t, err)
	assert.Len(t, summary.Steps, 4)
	assert.Zero(t, summary.Reoptimizations)
}

func TestRunCancelled(t *testing.T) {
	table := marketTable(250)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newDriver(nil).Run(ctx, table.Head(150), table.Tail(100), config.DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Steps)
}

func TestSummarizeAggregates(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n) }
	traded := Window{Trades: 3}
	steps := []Step{
		{Number: 1, Train: traded, Test: traded, Decay: 0.2, returns: []datedReturn{{day(0), 0.01}, {day(1), -0.02}, {day(2), 0.015}, {day(3), 0.005}}},
		{Number: 2, Train: traded, Test: Window{}, Decay: 1, returns: []datedReturn{{day(4), 0}, {day(5), 0}}},
		{Number: 3, Train: traded, Test: traded, Decay: 0.6, returns: []datedReturn{{day(3), 0.5}, {day(6), 0.01}, {day(7), -0.01}, {day(8), 0.02}}},
		{Number: 4, Train: traded, Test: traded, Decay: 1.5, returns: []datedReturn{{day(9), 0.003}}},
	}
	s := summarize("run", steps, tuned, 1, 0, testConfig(), config.DefaultStrategy())

	assert.Equal(t, 3, s.ValidTests)
	assert.Equal(t, 1, s.ZeroTradeWindows)
	assert.Equal(t, "MODERATE RISK", s.ZeroTradeRisk)

	assert.True(t, s.HasDecay)
	assert.Equal(t, 3, s.ValidComparisons)
	assert.InDelta(t, (0.2+0.6+1.5)/3, s.DecayMean, 1e-12)
	assert.Equal(t, "CATASTROPHIC", s.DecayClass)
	assert.Equal(t, "EXTREME VOLATILITY", s.DecayVolatility)
	require.Len(t, s.RollingDecay, 1)
	assert.InDelta(t, s.DecayMean, s.RecentRollingDecay, 1e-12)

	// day 3 appears twice; the first value wins
	require.Len(t, s.OOSReturns, 10)
	assert.Equal(t, 0.005, s.OOSReturns[3])
	assert.Equal(t, 8, s.ActiveDays)
	assert.True(t, s.HasAggregate)
	assert.NotEmpty(t, s.MarketClass)
}

func TestCompound(t *testing.T) {
	cum, dd := compound([]float64{math.Log(1.1), math.Log(0.9)})
	assert.InDelta(t, -1.0, cum, 1e-9)
	assert.InDelta(t, 10.0, dd, 1e-9)

	cum, dd = compound([]float64{0.01, 0.01})
	assert.InDelta(t, (math.Exp(0.02)-1)*100, cum, 1e-9)
	assert.Zero(t, dd)
}

func TestAggregateSharpe(t *testing.T) {
	assert.Equal(t, 5.0, aggregateSharpe([]float64{0.01, 0.01, 0.01}, 0, 252))
	assert.Equal(t, -5.0, aggregateSharpe([]float64{-0.01, -0.01}, 0, 252))
	assert.Zero(t, aggregateSharpe([]float64{0, 0}, 0, 252))
	assert.Greater(t, aggregateSharpe([]float64{0.01, 0.02, -0.005}, 0, 252), 0.0)
}

func TestClassifications(t *testing.T) {
	assert.Equal(t, "MINIMAL", DecayClass(0.1))
	assert.Equal(t, "MODERATE", DecayClass(0.2))
	assert.Equal(t, "CATASTROPHIC", DecayClass(0.71))
	assert.Equal(t, "STABLE", DecayVolatility(0.05))
	assert.Equal(t, "HIGH VOLATILITY", DecayVolatility(0.3))
	assert.Equal(t, "NONE", ZeroTradeRisk(0))
	assert.Equal(t, "LOW RISK", ZeroTradeRisk(10))
	assert.Equal(t, "HIGH RISK", ZeroTradeRisk(50))
	assert.Equal(t, "HIGHLY FAVORABLE", MarketClass(2))
	assert.Equal(t, "NEUTRAL", MarketClass(0))
	assert.Equal(t, "HIGHLY ADVERSE", MarketClass(-1.5))
}
