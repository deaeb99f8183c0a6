// Package montecarlo tests candidate parameter sets against a bootstrap
// null distribution of their own performance.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amirphl/momentum-validator/internal/backtest"
	"github.com/amirphl/momentum-validator/internal/bootstrap"
	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/metrics"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// Metric names a statistic compared against the null distribution.
type Metric string

const (
	ProfitFactor    Metric = "profit_factor"
	ExpectancyPct   Metric = "expectancy_pct"
	AvgWinLossRatio Metric = "avg_win_loss_ratio"
	MaxDrawdown     Metric = "max_drawdown"
)

// Metrics lists the tested statistics in report order.
var Metrics = []Metric{ProfitFactor, ExpectancyPct, AvgWinLossRatio, MaxDrawdown}

// HigherIsBetter reports the direction of the one-sided test for m.
func (m Metric) HigherIsBetter() bool { return m != MaxDrawdown }

func (m Metric) from(s backtest.Statistics) float64 {
	switch m {
	case ProfitFactor:
		return s.ProfitFactor
	case ExpectancyPct:
		return s.ExpectancyPct
	case AvgWinLossRatio:
		return s.AvgWinLossRatio
	case MaxDrawdown:
		return s.MaxDrawdownPct
	}
	return math.NaN()
}

// Outcome is the test result of one metric for one parameter set.
type Outcome struct {
	Observed   float64      `json:"observed"`
	PValue     float64      `json:"p_value"`
	Percentile float64      `json:"percentile"`
	Null       Distribution `json:"null"`
}

// Candidate is the validation result of one parameter set.
type Candidate struct {
	Rank        int                 `json:"rank"`
	Params      config.Params       `json:"params"`
	Outcomes    map[Metric]Outcome  `json:"outcomes"`
	PValueSum   float64             `json:"p_value_sum"`
	Significant int                 `json:"significant"`
	Observed    backtest.Statistics `json:"observed"`
}

// Report is the outcome of one validation run, candidates ordered best
// first.
type Report struct {
	RunID      string        `json:"run_id"`
	BlockSize  int           `json:"block_size"`
	Samples    int           `json:"samples"`
	Alpha      float64       `json:"alpha"`
	Candidates []Candidate   `json:"candidates"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Best returns the candidate with the lowest summed p-value.
func (r Report) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

type Validator struct {
	cfg      config.MonteCarlo
	strategy config.Strategy
}

func NewValidator(cfg config.MonteCarlo, strategy config.Strategy) *Validator {
	return &Validator{cfg: cfg, strategy: strategy}
}

// BlockSize returns the configured block size, or the autocorrelation
// derived one when AutoBlockSize is set.
func (v *Validator) BlockSize(table candle.Table) int {
	if !v.cfg.AutoBlockSize {
		return v.cfg.BlockSize
	}
	return bootstrap.OptimalBlockLength(table.CloseReturns(), v.cfg.MaxLag, v.cfg.Alpha, v.cfg.BlockSize)
}

// Run simulates every candidate once on table and once on each of
// NumSimulations bootstrap samples. Sample i is identical for every
// candidate. Simulations fan out over Workers goroutines; each owns its
// sample and ledger.
func (v *Validator) Run(ctx context.Context, table candle.Table, candidates []config.Params) (Report, error) {
	logger := utils.Component("montecarlo")
	report := Report{
		RunID:     uuid.NewString(),
		Samples:   v.cfg.NumSimulations,
		Alpha:     v.cfg.Alpha,
		StartedAt: time.Now(),
	}
	if len(candidates) == 0 {
		return report, fmt.Errorf("montecarlo: no candidate parameter sets")
	}
	if table.Len() == 0 {
		return report, fmt.Errorf("montecarlo: empty table")
	}
	report.BlockSize = v.BlockSize(table)
	logger.Info().Msgf("Run | %s: %d candidates x %d samples, block size %d",
		report.RunID, len(candidates), v.cfg.NumSimulations, report.BlockSize)

	observed := make([]backtest.Statistics, len(candidates))
	null := make([][]backtest.Statistics, len(candidates))
	for c := range null {
		null[c] = make([]backtest.Statistics, v.cfg.NumSimulations)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, v.cfg.Workers))
	for c, params := range candidates {
		g.Go(func() error {
			observed[c] = backtest.Run(table, params, v.strategy).Stats
			return nil
		})
		for i := 0; i < v.cfg.NumSimulations; i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sample := bootstrap.Sample(table, report.BlockSize, v.cfg.SampleLength, bootstrap.NewRand(v.cfg.Seed, i))
				metrics.BootstrapSamplesTotal.Inc()
				null[c][i] = backtest.Run(sample, params, v.strategy).Stats
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("montecarlo: %w", err)
	}

	report.Candidates = make([]Candidate, len(candidates))
	for c, params := range candidates {
		report.Candidates[c] = evaluate(params, observed[c], null[c], v.cfg.Alpha)
	}
	rank(report.Candidates)
	report.Duration = time.Since(report.StartedAt)

	if best, ok := report.Best(); ok {
		logger.Info().Msgf("Run | %s: best %s, p-value sum %.3f, %d/%d significant",
			report.RunID, best.Params, best.PValueSum, best.Significant, len(Metrics))
	}
	return report, nil
}

func evaluate(params config.Params, observed backtest.Statistics, null []backtest.Statistics, alpha float64) Candidate {
	c := Candidate{Params: params, Observed: observed, Outcomes: make(map[Metric]Outcome, len(Metrics))}
	values := make([]float64, len(null))
	for _, m := range Metrics {
		for i, s := range null {
			values[i] = m.from(s)
		}
		out := Test(m, m.from(observed), values)
		c.Outcomes[m] = out
		if !math.IsNaN(out.PValue) {
			c.PValueSum += out.PValue
			if out.PValue < alpha {
				c.Significant++
			}
		}
	}
	return c
}

// rank orders candidates by ascending p-value sum, keeping input order
// for ties, and numbers them from 1.
func rank(candidates []Candidate) {
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		switch {
		case a.PValueSum < b.PValueSum:
			return -1
		case a.PValueSum > b.PValueSum:
			return 1
		}
		return 0
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}
