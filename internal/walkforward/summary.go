package walkforward

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/amirphl/momentum-validator/internal/config"
)

// minActiveDays is the number of non-zero out-of-sample returns needed
// before aggregate metrics are reported.
const minActiveDays = 5

// Summary is the outcome of a walk-forward run.
type Summary struct {
	RunID             string        `json:"run_id"`
	Steps             []Step        `json:"steps"`
	FinalParams       config.Params `json:"final_params"`
	Reoptimizations   int           `json:"reoptimizations"`
	OptimizerFailures int           `json:"optimizer_failures"`

	ValidTests       int     `json:"valid_tests"`
	ValidComparisons int     `json:"valid_comparisons"`
	ZeroTradeWindows int     `json:"zero_trade_windows"`
	ZeroTradeRisk    string  `json:"zero_trade_risk"`
	ActiveDays       int     `json:"active_days"`
	TotalDays        int     `json:"total_days"`
	ActivityPct      float64 `json:"activity_pct"`

	// Decay statistics over valid comparisons; HasDecay is false when
	// there are none.
	HasDecay           bool      `json:"has_decay"`
	DecayMean          float64   `json:"decay_mean"`
	DecayStd           float64   `json:"decay_std"`
	DecayClass         string    `json:"decay_class"`
	DecayVolatility    string    `json:"decay_volatility"`
	RollingDecay       []float64 `json:"rolling_decay"`
	RecentRollingDecay float64   `json:"recent_rolling_decay"`

	// Aggregate out-of-sample metrics over the concatenated test
	// returns; HasAggregate is false below minActiveDays active days.
	OOSDates            []time.Time `json:"oos_dates"`
	OOSReturns          []float64   `json:"oos_returns"`
	HasAggregate        bool        `json:"has_aggregate"`
	Sharpe              float64     `json:"sharpe"`
	CumulativeReturnPct float64     `json:"cumulative_return_pct"`
	MaxDrawdownPct      float64     `json:"max_drawdown_pct"`
	MarketClass         string      `json:"market_class"`
}

// Completed reports whether at least one step ran.
func (s Summary) Completed() bool { return len(s.Steps) > 0 }

func summarize(runID string, steps []Step, final config.Params, reopts, failures int, cfg config.WalkForward, strategy config.Strategy) Summary {
	s := Summary{
		RunID:             runID,
		Steps:             steps,
		FinalParams:       final,
		Reoptimizations:   reopts,
		OptimizerFailures: failures,
	}
	if len(steps) == 0 {
		return s
	}

	var decays []float64
	for _, st := range steps {
		if st.Test.Valid() {
			s.ValidTests++
		}
		if st.ValidComparison() {
			s.ValidComparisons++
			decays = append(decays, st.Decay)
		}
	}
	s.ZeroTradeWindows = len(steps) - s.ValidTests
	s.ZeroTradeRisk = ZeroTradeRisk(float64(s.ZeroTradeWindows) / float64(len(steps)) * 100)

	if len(decays) > 0 {
		s.HasDecay = true
		s.DecayMean = stat.Mean(decays, nil)
		if len(decays) > 1 {
			s.DecayStd = stat.StdDev(decays, nil)
		}
		s.DecayClass = DecayClass(s.DecayMean)
		s.DecayVolatility = DecayVolatility(s.DecayStd)
	}
	if len(decays) >= 2 {
		s.RollingDecay = rollingMean(decays, min(max(1, cfg.RollingWindow), len(decays)))
		s.RecentRollingDecay = s.RollingDecay[len(s.RollingDecay)-1]
	}

	s.OOSDates, s.OOSReturns = concatReturns(steps)
	s.TotalDays = len(s.OOSReturns)
	for _, r := range s.OOSReturns {
		if r != 0 {
			s.ActiveDays++
		}
	}
	if s.TotalDays > 0 {
		s.ActivityPct = float64(s.ActiveDays) / float64(s.TotalDays) * 100
	}
	if s.TotalDays > 1 && s.ActiveDays > minActiveDays {
		s.HasAggregate = true
		s.Sharpe = aggregateSharpe(s.OOSReturns, strategy.RiskFreeRate/float64(strategy.TradingDays), strategy.TradingDays)
		s.CumulativeReturnPct, s.MaxDrawdownPct = compound(s.OOSReturns)
		s.MarketClass = MarketClass(s.Sharpe)
	}
	return s
}

// concatReturns joins the test-window log returns in date order, keeping
// the first value seen for a date.
func concatReturns(steps []Step) ([]time.Time, []float64) {
	var all []datedReturn
	for _, st := range steps {
		all = append(all, st.returns...)
	}
	slices.SortStableFunc(all, func(a, b datedReturn) int { return a.date.Compare(b.date) })

	dates := make([]time.Time, 0, len(all))
	returns := make([]float64, 0, len(all))
	for i, dr := range all {
		if i > 0 && dr.date.Equal(all[i-1].date) {
			continue
		}
		dates = append(dates, dr.date)
		returns = append(returns, dr.r)
	}
	return dates, returns
}

// aggregateSharpe annualizes the mean excess log return over its sample
// standard deviation. A zero deviation gives 0 for a zero mean and ±5
// otherwise, matching the per-run Sharpe.
func aggregateSharpe(returns []float64, riskFree float64, periods int) float64 {
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFree
	}
	mean, std := stat.MeanStdDev(excess, nil)
	switch {
	case std != 0 && !math.IsNaN(std):
		return mean / std * math.Sqrt(float64(periods))
	case mean > 0:
		return 5
	case mean < 0:
		return -5
	}
	return 0
}

// compound returns the cumulative return and the maximum drawdown, both in
// percent, of a log return series. The drawdown is a positive number.
func compound(returns []float64) (cumulativePct, maxDrawdownPct float64) {
	cum := 0.0
	peak := math.Inf(-1)
	worst := 0.0
	for _, r := range returns {
		cum += r
		growth := math.Exp(cum) - 1
		peak = math.Max(peak, growth)
		if dd := (growth - peak) / (peak + 1) * 100; dd < worst {
			worst = dd
		}
	}
	return (math.Exp(cum) - 1) * 100, -worst
}

func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, 0, len(values)-window+1)
	for i := window; i <= len(values); i++ {
		out = append(out, stat.Mean(values[i-window:i], nil))
	}
	return out
}

func DecayClass(mean float64) string {
	switch {
	case mean > 0.7:
		return "CATASTROPHIC"
	case mean > 0.5:
		return "SEVERE"
	case mean > 0.3:
		return "SIGNIFICANT"
	case mean > 0.1:
		return "MODERATE"
	}
	return "MINIMAL"
}

func DecayVolatility(std float64) string {
	switch {
	case std > 0.4:
		return "EXTREME VOLATILITY"
	case std > 0.2:
		return "HIGH VOLATILITY"
	case std > 0.1:
		return "MODERATE VOLATILITY"
	}
	return "STABLE"
}

// ZeroTradeRisk grades the share of test windows without a trade.
func ZeroTradeRisk(pct float64) string {
	switch {
	case pct > 40:
		return "HIGH RISK"
	case pct > 20:
		return "MODERATE RISK"
	case pct > 0:
		return "LOW RISK"
	}
	return "NONE"
}

func MarketClass(sharpe float64) string {
	switch {
	case sharpe > 1.5:
		return "HIGHLY FAVORABLE"
	case sharpe > 0.5:
		return "FAVORABLE"
	case sharpe > -0.5:
		return "NEUTRAL"
	case sharpe > -1.5:
		return "CHALLENGING"
	}
	return "HIGHLY ADVERSE"
}
