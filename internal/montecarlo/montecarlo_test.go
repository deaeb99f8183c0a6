package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/indicator"
)

func TestTestHigherIsBetter(t *testing.T) {
	out := Test(ProfitFactor, 2.5, []float64{1, 2, 3, 4})
	assert.InDelta(t, 0.5, out.PValue, 1e-12)
	assert.InDelta(t, 50.0, out.Percentile, 1e-12)
	assert.InDelta(t, 2.5, out.Null.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), out.Null.Std, 1e-12)
	assert.InDelta(t, 0.0, out.Null.Skew, 1e-12)
	assert.InDelta(t, -1.36, out.Null.Kurtosis, 1e-12)
}

func TestTestDrawdownIsLowerBetter(t *testing.T) {
	out := Test(MaxDrawdown, 10, []float64{5, 10, 15, 20})
	assert.InDelta(t, 0.5, out.PValue, 1e-12)
	assert.InDelta(t, 50.0, out.Percentile, 1e-12)
}

func TestTestCapsInfinities(t *testing.T) {
	inf := math.Inf(1)
	out := Test(ProfitFactor, inf, []float64{1, inf, 2, math.NaN()})

	// the capped observation ties with the capped sample
	assert.InDelta(t, 1.0/3, out.PValue, 1e-12)
	assert.Equal(t, inf, out.Observed)
	// shape statistics only see the finite samples
	assert.InDelta(t, 1.5, out.Null.Mean, 1e-12)
	assert.InDelta(t, 0.5, out.Null.Std, 1e-12)
	assert.True(t, math.IsNaN(out.Null.Skew))
	assert.Greater(t, out.Null.P95, 2.0)
}

func TestTestDegenerate(t *testing.T) {
	for name, out := range map[string]Outcome{
		"nan observed": Test(ProfitFactor, math.NaN(), []float64{1, 2}),
		"no samples":   Test(ProfitFactor, 1, nil),
		"only nan":     Test(ProfitFactor, 1, []float64{math.NaN()}),
	} {
		assert.True(t, math.IsNaN(out.PValue), name)
		assert.True(t, math.IsNaN(out.Percentile), name)
		assert.True(t, math.IsNaN(out.Null.P5), name)
	}
}

func TestPercentileOfScore(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 75.0, PercentileOfScore(sorted, 3), 1e-12)
	assert.InDelta(t, 50.0, PercentileOfScore(sorted, 2.5), 1e-12)
	assert.InDelta(t, 0.0, PercentileOfScore(sorted, 0), 1e-12)
	assert.InDelta(t, 100.0, PercentileOfScore(sorted, 9), 1e-12)
	assert.InDelta(t, 75.0, PercentileOfScore([]float64{2, 2}, 2), 1e-12)
	assert.True(t, math.IsNaN(PercentileOfScore(nil, 1)))
}

func TestRankOrdersByPValueSum(t *testing.T) {
	cs := []Candidate{{PValueSum: 1.2}, {PValueSum: 0.3}, {PValueSum: 1.2}, {PValueSum: 0.9}}
	cs[0].Params.MaxOpenPositions = 1
	cs[2].Params.MaxOpenPositions = 3
	rank(cs)
	assert.Equal(t, []float64{0.3, 0.9, 1.2, 1.2}, []float64{cs[0].PValueSum, cs[1].PValueSum, cs[2].PValueSum, cs[3].PValueSum})
	assert.Equal(t, 1, cs[2].Params.MaxOpenPositions, "ties keep input order")
	assert.Equal(t, 4, cs[3].Rank)
}

func marketTable(n int) candle.Table {
	rng := rand.New(rand.NewPCG(3, 3))
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]candle.Candle, n)
	price := 100.0
	for i := range candles {
		open := price
		price *= 1 + 0.0008 + 0.012*rng.NormFloat64()
		hi := math.Max(open, price) * 1.004
		lo := math.Min(open, price) * 0.996
		candles[i] = candle.Candle{
			Timestamp: start.AddDate(0, 0, i), Open: open, High: hi, Low: lo, Close: price,
			Volume: 1e6 * (1 + 0.2*rng.Float64()), VIX: 15 + 5*rng.Float64(),
		}
	}
	return indicator.Prepare(candles, config.DefaultStrategy())
}

func testConfig() config.MonteCarlo {
	cfg := config.Default().MonteCarlo
	cfg.NumSimulations = 12
	cfg.Workers = 3
	return cfg
}

func TestValidatorRun(t *testing.T) {
	table := marketTable(300)
	candidates := []config.Params{
		config.DefaultParams(),
		{LongRisk: 0.02, MaxOpenPositions: 5, ADXThreshold: 20, MaxPositionDuration: 10},
	}
	v := NewValidator(testConfig(), config.DefaultStrategy())

	report, err := v.Run(context.Background(), table, candidates)
	require.NoError(t, err)
	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 30, report.BlockSize)
	require.Len(t, report.Candidates, 2)
	for i, c := range report.Candidates {
		assert.Equal(t, i+1, c.Rank)
		require.Len(t, c.Outcomes, len(Metrics))
		for _, m := range Metrics {
			p := c.Outcomes[m].PValue
			assert.True(t, math.IsNaN(p) || p >= 0 && p <= 1, "%s p=%v", m, p)
		}
	}
	assert.LessOrEqual(t, report.Candidates[0].PValueSum, report.Candidates[1].PValueSum)

	again, err := v.Run(context.Background(), table, candidates)
	require.NoError(t, err)
	for i := range report.Candidates {
		assert.Equal(t, report.Candidates[i].Params, again.Candidates[i].Params)
		assert.Equal(t, report.Candidates[i].PValueSum, again.Candidates[i].PValueSum)
	}
}

func TestValidatorRunErrors(t *testing.T) {
	v := NewValidator(testConfig(), config.DefaultStrategy())

	_, err := v.Run(context.Background(), marketTable(100), nil)
	assert.Error(t, err)

	_, err = v.Run(context.Background(), candle.Table{}, []config.Params{config.DefaultParams()})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.Run(ctx, marketTable(100), []config.Params{config.DefaultParams()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidatorAutoBlockSize(t *testing.T) {
	cfg := testConfig()
	cfg.AutoBlockSize = true
	v := NewValidator(cfg, config.DefaultStrategy())

	size := v.BlockSize(marketTable(400))
	assert.GreaterOrEqual(t, size, 1)
	assert.LessOrEqual(t, size, cfg.MaxLag)
	assert.Equal(t, cfg.BlockSize, v.BlockSize(marketTable(20)), "too short for the acf")
}
