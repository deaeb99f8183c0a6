// Package optimize searches the strategy parameter space for sets that do
// well on four objectives at once.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/amirphl/momentum-validator/internal/backtest"
	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/metrics"
	"github.com/amirphl/momentum-validator/internal/utils"
)

var (
	ErrEmptyTable = errors.New("optimize: empty table")
	ErrNoTrials   = errors.New("optimize: no valid trials")
)

// Trial states.
const (
	StateComplete = "complete"
	StateFailed   = "failed"
	StatePruned   = "pruned"
)

// Combined score weights. Profit factor is capped before weighting.
const (
	weightProfitFactor = 0.30
	weightWinLoss      = 0.40
	weightExpectancy   = 0.15
	weightDrawdown     = 0.15
	profitFactorCap    = 100
)

// Objectives are maximized except MaxDrawdown, which is minimized.
type Objectives struct {
	ProfitFactor    float64 `json:"profit_factor"`
	AvgWinLossRatio float64 `json:"avg_win_loss_ratio"`
	ExpectancyPct   float64 `json:"expectancy_pct"`
	MaxDrawdown     float64 `json:"max_drawdown"`
}

func (o Objectives) finite() bool {
	for _, v := range []float64{o.ProfitFactor, o.AvgWinLossRatio, o.ExpectancyPct, o.MaxDrawdown} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Score is the weighted scalarization used to rank trials.
func (o Objectives) Score() float64 {
	return weightProfitFactor*math.Min(o.ProfitFactor, profitFactorCap) +
		weightWinLoss*o.AvgWinLossRatio +
		weightExpectancy*o.ExpectancyPct -
		weightDrawdown*math.Abs(o.MaxDrawdown)
}

// Dominates reports whether o is at least as good as other on every
// objective and strictly better on one.
func (o Objectives) Dominates(other Objectives) bool {
	geq := o.ProfitFactor >= other.ProfitFactor && o.AvgWinLossRatio >= other.AvgWinLossRatio &&
		o.ExpectancyPct >= other.ExpectancyPct && o.MaxDrawdown <= other.MaxDrawdown
	gt := o.ProfitFactor > other.ProfitFactor || o.AvgWinLossRatio > other.AvgWinLossRatio ||
		o.ExpectancyPct > other.ExpectancyPct || o.MaxDrawdown < other.MaxDrawdown
	return geq && gt
}

type Attributes struct {
	NumTrades        int     `json:"num_trades"`
	Sharpe           float64 `json:"sharpe"`
	ReturnPct        float64 `json:"return_pct"`
	AvgTradeDuration float64 `json:"avg_trade_duration"`
	TotalPnL         float64 `json:"total_pnl"`
}

type Trial struct {
	Number     int           `json:"number"`
	Params     config.Params `json:"params"`
	State      string        `json:"state"`
	Values     Objectives    `json:"values"`
	Attributes Attributes    `json:"attributes"`
	Score      float64       `json:"score"`
	Pareto     bool          `json:"pareto"`
}

type Optimizer struct {
	cfg      config.Optimizer
	strategy config.Strategy
	space    Space
}

func New(cfg config.Optimizer, strategy config.Strategy) *Optimizer {
	return &Optimizer{cfg: cfg, strategy: strategy, space: DefaultSpace()}
}

// WithSpace replaces the search space.
func (o *Optimizer) WithSpace(s Space) *Optimizer {
	o.space = s
	return o
}

// Optimize evaluates up to Trials random parameter sets on table within
// the Timeout budget and returns the best TopK valid trials, highest
// combined score first. Trials still queued when the budget runs out are
// pruned; whatever completed is ranked. Parameter draws depend only on
// Seed and the trial number.
func (o *Optimizer) Optimize(ctx context.Context, table candle.Table) ([]Trial, error) {
	logger := utils.Component("optimize")
	if table.Len() == 0 {
		return nil, ErrEmptyTable
	}
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	rng := rand.New(rand.NewPCG(o.cfg.Seed, 0))
	trials := make([]Trial, o.cfg.Trials)
	for i := range trials {
		trials[i] = Trial{Number: i, Params: o.space.Sample(rng), State: StatePruned}
	}

	var g errgroup.Group
	g.SetLimit(max(1, o.cfg.Workers))
	for i := range trials {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o.evaluate(&trials[i], table)
			return nil
		})
	}
	_ = g.Wait()

	valid := make([]Trial, 0, len(trials))
	for _, t := range trials {
		metrics.OptimizerTrialsTotal.WithLabelValues(t.State).Inc()
		if t.State == StateComplete {
			valid = append(valid, t)
		}
	}
	markPareto(valid)
	slices.SortStableFunc(valid, func(a, b Trial) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	logger.Info().Msgf("Optimize | %d of %d trials valid", len(valid), len(trials))
	if len(valid) == 0 {
		return nil, ErrNoTrials
	}
	if o.cfg.TopK > 0 && len(valid) > o.cfg.TopK {
		valid = valid[:o.cfg.TopK]
	}
	return valid, nil
}

// Best runs Optimize and returns the parameters of the top trial.
func (o *Optimizer) Best(ctx context.Context, table candle.Table) (config.Params, error) {
	trials, err := o.Optimize(ctx, table)
	if err != nil {
		return config.Params{}, err
	}
	return trials[0].Params, nil
}

func (o *Optimizer) evaluate(t *Trial, table candle.Table) {
	defer func() {
		if r := recover(); r != nil {
			logger := utils.Component("optimize")
			logger.Error().Msgf("evaluate | trial %d (%s) panicked: %v", t.Number, t.Params, r)
			t.State = StateFailed
		}
	}()

	res := backtest.Run(table, t.Params, o.strategy)
	t.Values = Objectives{
		ProfitFactor:    res.Stats.ProfitFactor,
		AvgWinLossRatio: res.Stats.AvgWinLossRatio,
		ExpectancyPct:   res.Stats.ExpectancyPct,
		MaxDrawdown:     res.Stats.MaxDrawdownPct,
	}
	if !t.Values.finite() {
		t.State = StateFailed
		return
	}

	t.Attributes = Attributes{
		NumTrades:        len(res.Trades),
		Sharpe:           res.Stats.Sharpe,
		ReturnPct:        res.Stats.ReturnPct,
		AvgTradeDuration: math.NaN(),
		TotalPnL:         math.NaN(),
	}
	if len(res.Trades) > 0 {
		t.Attributes.AvgTradeDuration = res.Stats.AvgDurationDays
		t.Attributes.TotalPnL = 0
		for _, tr := range res.Trades {
			t.Attributes.TotalPnL += tr.PnL
		}
	}
	t.Score = t.Values.Score()
	t.State = StateComplete
}

func markPareto(trials []Trial) {
	for i := range trials {
		trials[i].Pareto = true
		for j := range trials {
			if i != j && trials[j].Values.Dominates(trials[i].Values) {
				trials[i].Pareto = false
				break
			}
		}
	}
}

func (t Trial) String() string {
	return fmt.Sprintf("#%d %s score=%.3f", t.Number, t.Params, t.Score)
}
