package backtest

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/position"
)

// minStd is the standard deviation below which a return series is treated
// as constant by RiskRatios.
const minStd = 1e-8

// degenerateRatio replaces Sharpe/Sortino for near-constant returns with
// a non-zero mean.
const degenerateRatio = 5.0

// Statistics summarizes a simulation run. Percentages are in percent
// units (12.5 means 12.5%).
type Statistics struct {
	TotalTrades         int            `json:"total_trades"`
	WinRate             float64        `json:"win_rate"`
	HitRate             float64        `json:"hit_rate"`
	GrossProfit         float64        `json:"gross_profit"`
	GrossLoss           float64        `json:"gross_loss"`
	NetProfit           float64        `json:"net_profit"`
	ReturnPct           float64        `json:"return_pct"`
	ProfitFactor        float64        `json:"profit_factor"`
	AvgWin              float64        `json:"avg_win"`
	AvgLoss             float64        `json:"avg_loss"`
	AvgWinLossRatio     float64        `json:"avg_win_loss_ratio"`
	Expectancy          float64        `json:"expectancy"`
	ExpectancyPct       float64        `json:"expectancy_pct"`
	MaxDrawdownPct      float64        `json:"max_drawdown_pct"`
	AnnualizedReturnPct float64        `json:"annualized_return_pct"`
	Sharpe              float64        `json:"sharpe"`
	Sortino             float64        `json:"sortino"`
	ExitReasons         map[string]int `json:"exit_reasons"`

	BestTradePct    float64 `json:"best_trade_pct"`
	WorstTradePct   float64 `json:"worst_trade_pct"`
	AvgTradePct     float64 `json:"avg_trade_pct"`
	AvgDurationDays float64 `json:"avg_duration_days"`
	MaxDurationDays int     `json:"max_duration_days"`
	TotalCommission float64 `json:"total_commission"`

	EquityFinal         float64 `json:"equity_final"`
	OpenPnL             float64 `json:"open_pnl"`
	OpenPositionValue   float64 `json:"open_position_value"`
	TotalPortfolioValue float64 `json:"total_portfolio_value"`
}

// Compute derives the statistics of a run from its equity curve and closed
// trades. Degenerate inputs produce neutral values, never NaN.
func Compute(dates []time.Time, equity []float64, trades []position.Trade, wins, losses []float64, cfg config.Strategy) Statistics {
	s := Statistics{
		TotalTrades: len(trades),
		ExitReasons: map[string]int{},
	}

	initial := cfg.InitialCapital
	final := initial
	if len(equity) > 0 {
		initial, final = equity[0], equity[len(equity)-1]
	}
	s.EquityFinal = final
	s.TotalPortfolioValue = final
	if initial > 0 {
		s.ReturnPct = (final/initial - 1) * 100
	}

	s.GrossProfit = floats(wins).sum()
	s.GrossLoss = floats(losses).sum()
	s.NetProfit = s.GrossProfit + s.GrossLoss
	s.ProfitFactor = ratioOrDefault(s.GrossProfit, s.GrossLoss)

	if s.TotalTrades > 0 {
		s.WinRate = float64(len(wins)) / float64(s.TotalTrades) * 100
	}
	if len(wins) > 0 {
		s.AvgWin = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		s.AvgLoss = stat.Mean(losses, nil)
	}
	s.AvgWinLossRatio = ratioOrDefault(s.AvgWin, s.AvgLoss)
	p := s.WinRate / 100
	s.Expectancy = p*s.AvgWin + (1-p)*s.AvgLoss
	if initial > 0 {
		s.ExpectancyPct = s.Expectancy / initial * 100
	}

	hits := 0
	durations := 0
	charged := make(map[int]struct{})
	for i, t := range trades {
		s.ExitReasons[t.Reason]++
		if position.ProfitReasons[t.Reason] {
			hits++
		}
		r := t.ReturnPct()
		if i == 0 || r > s.BestTradePct {
			s.BestTradePct = r
		}
		if i == 0 || r < s.WorstTradePct {
			s.WorstTradePct = r
		}
		s.AvgTradePct += r
		durations += t.DurationDays
		s.MaxDurationDays = max(s.MaxDurationDays, t.DurationDays)
		s.TotalCommission += t.ExitCommission
		if _, ok := charged[t.PositionID]; !ok {
			charged[t.PositionID] = struct{}{}
			s.TotalCommission += t.EntryCommission
		}
	}
	if s.TotalTrades > 0 {
		s.HitRate = float64(hits) / float64(s.TotalTrades) * 100
		s.AvgTradePct /= float64(s.TotalTrades)
		s.AvgDurationDays = float64(durations) / float64(s.TotalTrades)
	}

	s.MaxDrawdownPct = MaxDrawdownPct(equity)

	if len(dates) > 1 && initial > 0 {
		years := dates[len(dates)-1].Sub(dates[0]).Hours() / 24 / 365.25
		if years > 0 {
			s.AnnualizedReturnPct = (math.Pow(final/initial, 1/years) - 1) * 100
		}
	}

	if len(equity) > 1 {
		returns := make([]float64, len(equity)-1)
		for i := 1; i < len(equity); i++ {
			returns[i-1] = math.Log(math.Max(equity[i], cfg.EquityFloor)) - math.Log(math.Max(equity[i-1], cfg.EquityFloor))
		}
		s.Sharpe, s.Sortino = RiskRatios(returns, cfg.RiskFreeRate/float64(cfg.TradingDays), cfg.TradingDays)
	}
	return s
}

// ratioOrDefault returns |num/den|, +Inf when only den is zero with a
// positive num, and 1.0 when both are zero.
func ratioOrDefault(num, den float64) float64 {
	if den == 0 {
		if num > 0 {
			return math.Inf(1)
		}
		return 1.0
	}
	return math.Abs(num / den)
}

// MaxDrawdownPct is the largest peak-to-trough fall of equity in percent,
// reported as a positive number. Non-finite drawdowns count as zero.
func MaxDrawdownPct(equity []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range equity {
		peak = math.Max(peak, v)
		dd := (v - peak) / peak * 100
		if math.IsNaN(dd) || math.IsInf(dd, 0) {
			dd = 0
		}
		worst = math.Min(worst, dd)
	}
	return math.Abs(worst)
}

// RiskRatios returns the annualized Sharpe and Sortino ratios of returns
// against a per-period risk-free rate. A series shorter than two or with
// no movement at all returns zeros. When a standard deviation is below
// minStd the ratio is 0 for a zero excess mean and ±5 otherwise, so a
// constant non-zero return scores ±5.
func RiskRatios(returns []float64, riskFree float64, periods int) (sharpe, sortino float64) {
	if len(returns) <= 1 || allZero(returns) {
		return 0, 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFree
	}
	mean, std := stat.PopMeanStdDev(excess, nil)
	scale := math.Sqrt(float64(periods))

	if std > minStd {
		sharpe = mean / std * scale
	} else {
		sharpe = signedFallback(mean)
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	downStd := 0.0
	if len(downside) > 0 {
		downStd = stat.PopStdDev(downside, nil)
	}
	if downStd > minStd {
		sortino = (stat.Mean(returns, nil) - riskFree) / downStd * scale
	} else {
		sortino = signedFallback(mean)
	}
	return sharpe, sortino
}

func signedFallback(mean float64) float64 {
	switch {
	case mean > 0:
		return degenerateRatio
	case mean < 0:
		return -degenerateRatio
	default:
		return 0
	}
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}

type floats []float64

func (f floats) sum() float64 {
	total := 0.0
	for _, v := range f {
		total += v
	}
	return total
}
