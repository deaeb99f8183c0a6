// Package report renders run results as console tables and CSV files.
package report

import (
	"fmt"
	"io"
	"math"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/amirphl/momentum-validator/internal/backtest"
	"github.com/amirphl/momentum-validator/internal/journal"
	"github.com/amirphl/momentum-validator/internal/montecarlo"
	"github.com/amirphl/momentum-validator/internal/optimize"
	"github.com/amirphl/momentum-validator/internal/position"
	"github.com/amirphl/momentum-validator/internal/walkforward"
)

// maxTrades is how many trades Trades prints before summarizing the rest.
const maxTrades = 10

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// num formats v with prec decimals, N/A for NaN.
func num(v float64, prec int) string {
	switch {
	case math.IsNaN(v):
		return "N/A"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

func pct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return num(v, 2)
	}
	return num(v, 2) + "%"
}

// Statistics prints a run's statistics under title.
func Statistics(w io.Writer, title string, s backtest.Statistics) error {
	fmt.Fprintf(w, "%s\n", title)
	tw := newTable(w)
	rows := [][2]string{
		{"Total trades", fmt.Sprint(s.TotalTrades)},
		{"Win rate", pct(s.WinRate)},
		{"Net profit", num(s.NetProfit, 2)},
		{"Return", pct(s.ReturnPct)},
		{"Annualized return", pct(s.AnnualizedReturnPct)},
		{"Profit factor", num(s.ProfitFactor, 2)},
		{"Avg win", num(s.AvgWin, 2)},
		{"Avg loss", num(s.AvgLoss, 2)},
		{"Avg win/loss", num(s.AvgWinLossRatio, 2)},
		{"Expectancy", pct(s.ExpectancyPct)},
		{"Max drawdown", pct(s.MaxDrawdownPct)},
		{"Sharpe", num(s.Sharpe, 2)},
		{"Sortino", num(s.Sortino, 2)},
		{"Best trade", pct(s.BestTradePct)},
		{"Worst trade", pct(s.WorstTradePct)},
		{"Avg duration (days)", num(s.AvgDurationDays, 1)},
		{"Max duration (days)", fmt.Sprint(s.MaxDurationDays)},
		{"Commission", num(s.TotalCommission, 2)},
		{"Final equity", num(s.EquityFinal, 2)},
		{"Open PnL", num(s.OpenPnL, 2)},
		{"Portfolio value", num(s.TotalPortfolioValue, 2)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\n", r[0], r[1])
	}
	reasons := make([]string, 0, len(s.ExitReasons))
	for reason := range s.ExitReasons {
		reasons = append(reasons, reason)
	}
	slices.Sort(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(tw, "  Exit: %s\t%d\n", reason, s.ExitReasons[reason])
	}
	return tw.Flush()
}

// Trades prints the first trades of the log and a count of the rest.
func Trades(w io.Writer, trades []position.Trade) error {
	fmt.Fprintln(w, "Trade Log Summary:")
	tw := newTable(w)
	fmt.Fprintln(tw, "  #\tEntry\tExit\tShares\tEntry Px\tExit Px\tPnL\tReason")
	for i, t := range trades {
		if i >= maxTrades {
			break
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n", i+1,
			t.EntryDate.Format(time.DateOnly), t.ExitDate.Format(time.DateOnly), t.Shares,
			num(t.EntryPrice, 2), num(t.ExitPrice, 2), num(t.PnL, 2), t.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(trades) > maxTrades {
		fmt.Fprintf(w, "  ... and %d more trades\n", len(trades)-maxTrades)
	}
	return nil
}

// Trials prints ranked optimizer trials.
func Trials(w io.Writer, trials []optimize.Trial) error {
	fmt.Fprintln(w, "Optimizer Trials:")
	tw := newTable(w)
	fmt.Fprintln(tw, "  #\tParams\tPF\tW/L\tExp%\tDD%\tTrades\tScore\tPareto")
	for _, t := range trials {
		pareto := ""
		if t.Pareto {
			pareto = "*"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n", t.Number, t.Params,
			num(t.Values.ProfitFactor, 2), num(t.Values.AvgWinLossRatio, 2),
			num(t.Values.ExpectancyPct, 2), num(t.Values.MaxDrawdown, 2),
			t.Attributes.NumTrades, num(t.Score, 3), pareto)
	}
	return tw.Flush()
}

// MonteCarlo prints every candidate's per-metric test results.
func MonteCarlo(w io.Writer, r montecarlo.Report) error {
	fmt.Fprintf(w, "Monte Carlo Validation (run %s, %d samples, block %d, alpha %.2f, %s)\n",
		r.RunID, r.Samples, r.BlockSize, r.Alpha, r.Duration.Round(time.Millisecond))
	for _, c := range r.Candidates {
		fmt.Fprintf(w, "Rank %d: %s  significant %d/%d  p-sum %s\n",
			c.Rank, c.Params, c.Significant, len(montecarlo.Metrics), num(c.PValueSum, 3))
		tw := newTable(w)
		fmt.Fprintln(tw, "  Metric\tObserved\tp-value\tPercentile\tMean\tStd\tSkew\tKurt\tP5\tP95")
		for _, m := range montecarlo.Metrics {
			o, ok := c.Outcomes[m]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", m,
				num(o.Observed, 3), num(o.PValue, 3), num(o.Percentile, 1),
				num(o.Null.Mean, 3), num(o.Null.Std, 3), num(o.Null.Skew, 2), num(o.Null.Kurtosis, 2),
				num(o.Null.P5, 3), num(o.Null.P95, 3))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WalkForward prints the per-step table and the run summary.
func WalkForward(w io.Writer, s walkforward.Summary) error {
	fmt.Fprintf(w, "Walk-Forward Analysis (run %s)\n", s.RunID)
	if !s.Completed() {
		fmt.Fprintln(w, "  no steps: not enough out-of-sample data")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "  Step\tTest window\tDays\tTrain SR\tTest SR\tTrades\tReturn\tDD\tDecay\tReopt")
	for _, st := range s.Steps {
		reopt := ""
		if st.Reoptimized {
			reopt = "*"
		}
		decay := num(st.Decay, 2)
		if !st.ValidComparison() {
			decay = "N/A"
		}
		fmt.Fprintf(tw, "  %d\t%s..%s\t%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n", st.Number,
			st.Test.Start.Format(time.DateOnly), st.Test.End.Format(time.DateOnly), st.Test.Days,
			num(st.Train.Sharpe, 2), num(st.Test.Sharpe, 2), st.Test.Trades,
			pct(st.Test.ReturnPct), pct(st.Test.MaxDrawdownPct), decay, reopt)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	tw = newTable(w)
	fmt.Fprintf(tw, "  Steps\t%d (valid tests %d, valid comparisons %d)\n", len(s.Steps), s.ValidTests, s.ValidComparisons)
	fmt.Fprintf(tw, "  Re-optimizations\t%d (failures %d)\n", s.Reoptimizations, s.OptimizerFailures)
	fmt.Fprintf(tw, "  Zero-trade windows\t%d (%s risk)\n", s.ZeroTradeWindows, s.ZeroTradeRisk)
	fmt.Fprintf(tw, "  Active days\t%d/%d (%s)\n", s.ActiveDays, s.TotalDays, pct(s.ActivityPct))
	if s.HasDecay {
		fmt.Fprintf(tw, "  Decay\t%s ± %s %s, %s\n", num(s.DecayMean, 3), num(s.DecayStd, 3), s.DecayClass, s.DecayVolatility)
		fmt.Fprintf(tw, "  Recent rolling decay\t%s\n", num(s.RecentRollingDecay, 3))
	} else {
		fmt.Fprintf(tw, "  Decay\tN/A\n")
	}
	if s.HasAggregate {
		fmt.Fprintf(tw, "  OOS Sharpe\t%s (%s)\n", num(s.Sharpe, 2), s.MarketClass)
		fmt.Fprintf(tw, "  OOS cumulative return\t%s\n", pct(s.CumulativeReturnPct))
		fmt.Fprintf(tw, "  OOS max drawdown\t%s\n", pct(s.MaxDrawdownPct))
	} else {
		fmt.Fprintf(tw, "  OOS aggregate\tN/A (too few active days)\n")
	}
	fmt.Fprintf(tw, "  Final params\t%s\n", s.FinalParams)
	return tw.Flush()
}

// Timeline prints journaled events with their offset from the first one.
func Timeline(w io.Writer, events []journal.Event) error {
	if len(events) == 0 {
		return nil
	}
	fmt.Fprintln(w, "Run Timeline:")
	tw := newTable(w)
	start := events[0].Time
	for _, e := range events {
		fmt.Fprintf(tw, "  +%s\t%s\t%s\n", e.Time.Sub(start).Round(time.Millisecond), e.Type, e.Description)
	}
	return tw.Flush()
}
