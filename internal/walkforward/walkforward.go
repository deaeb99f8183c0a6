// Package walkforward runs anchored walk-forward analysis: the training
// window starts as the whole in-sample table and absorbs each
// out-of-sample window once it has been tested.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/amirphl/momentum-validator/internal/backtest"
	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/metrics"
	"github.com/amirphl/momentum-validator/internal/optimize"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// SignDivergencePenalty is the decay assigned when the training and test
// Sharpe ratios have opposite signs.
const SignDivergencePenalty = 1.5

// Optimizer proposes a parameter set for a training table.
type Optimizer interface {
	Best(ctx context.Context, train candle.Table) (config.Params, error)
}

// Window describes one side of a step.
type Window struct {
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	Days                int       `json:"days"`
	Trades              int       `json:"trades"`
	Sharpe              float64   `json:"sharpe"`
	ReturnPct           float64   `json:"return_pct"`
	AnnualizedReturnPct float64   `json:"annualized_return_pct"`
	MaxDrawdownPct      float64   `json:"max_drawdown_pct"`
	WinRate             float64   `json:"win_rate"`
	ProfitFactor        float64   `json:"profit_factor"`
}

// Valid reports whether the window traded at all.
func (w Window) Valid() bool { return w.Trades > 0 }

// Step is the record of one tested out-of-sample window.
type Step struct {
	Number      int           `json:"number"`
	Train       Window        `json:"train"`
	Test        Window        `json:"test"`
	Decay       float64       `json:"decay"`
	Params      config.Params `json:"params"`
	Reoptimized bool          `json:"reoptimized"`

	returns []datedReturn
}

// ValidComparison reports whether both windows traded, the only case in
// which Decay is aggregated.
func (s Step) ValidComparison() bool { return s.Train.Valid() && s.Test.Valid() }

type datedReturn struct {
	date time.Time
	r    float64
}

// Decay compares the test Sharpe to the training Sharpe. Equal signs (zero
// counts as positive) give 1 - |test|/max(|train|, floor); opposite signs
// give SignDivergencePenalty.
func Decay(train, test, floor float64) float64 {
	if train >= 0 && test >= 0 || train < 0 && test < 0 {
		return 1 - math.Abs(test)/math.Max(math.Abs(train), floor)
	}
	return SignDivergencePenalty
}

type Driver struct {
	cfg       config.WalkForward
	strategy  config.Strategy
	optimizer Optimizer

	retryInterval time.Duration
}

// New returns a driver. A nil optimizer disables re-optimization.
func New(cfg config.WalkForward, strategy config.Strategy, optimizer Optimizer) *Driver {
	return &Driver{cfg: cfg, strategy: strategy, optimizer: optimizer, retryInterval: 200 * time.Millisecond}
}

// Run consumes oos in OOSWindow sized chunks. For each chunk it simulates
// the active parameters on the grown training table and on the chunk, then
// appends the chunk to the training table. Once OptimizationFrequency
// out-of-sample days have been absorbed the optimizer is asked for new
// parameters before the next step; if it fails the active set is kept.
// Fewer than OOSWindow out-of-sample bars yield an empty summary, not an
// error.
func (d *Driver) Run(ctx context.Context, train, oos candle.Table, initial config.Params) (Summary, error) {
	logger := utils.Component("walkforward")
	runID := uuid.NewString()
	active := initial

	logger.Info().Msgf("Run | %s: training %s..%s (%d bars), %d out-of-sample bars, window %d, re-optimize every %d",
		runID, train.First().Format(time.DateOnly), train.Last().Format(time.DateOnly), train.Len(),
		oos.Len(), d.cfg.OOSWindow, d.cfg.OptimizationFrequency)

	var steps []Step
	sinceOpt := 0
	reopts, failures := 0, 0
	for remaining := oos; d.cfg.OOSWindow > 0 && remaining.Len() >= d.cfg.OOSWindow; remaining = remaining.Slice(d.cfg.OOSWindow, remaining.Len()) {
		if err := ctx.Err(); err != nil {
			return summarize(runID, steps, active, reopts, failures, d.cfg, d.strategy), fmt.Errorf("walkforward: %w", err)
		}
		number := len(steps) + 1

		reoptimized := false
		if number > 1 && sinceOpt >= d.cfg.OptimizationFrequency && d.optimizer != nil {
			if params, err := d.reoptimize(ctx, train); err != nil {
				failures++
				metrics.OptimizerFailuresTotal.Inc()
				logger.Warn().Msgf("Run | step %d: optimizer failed, keeping %s: %v", number, active, err)
			} else {
				active = params
				reoptimized = true
				reopts++
				logger.Info().Msgf("Run | step %d: parameters updated to %s", number, active)
			}
			sinceOpt = 0
		}

		chunk := remaining.Head(d.cfg.OOSWindow)
		step := d.step(number, train, chunk, active)
		step.Reoptimized = reoptimized
		steps = append(steps, step)
		metrics.WalkForwardStepsTotal.WithLabelValues(fmt.Sprint(step.ValidComparison())).Inc()

		logger.Info().Msgf("Run | step %d: train sharpe %.2f (%d trades), test sharpe %.2f (%d trades), decay %.2f",
			number, step.Train.Sharpe, step.Train.Trades, step.Test.Sharpe, step.Test.Trades, step.Decay)

		train = train.Append(chunk)
		sinceOpt += chunk.Len()
	}

	summary := summarize(runID, steps, active, reopts, failures, d.cfg, d.strategy)
	if len(steps) == 0 {
		logger.Warn().Msgf("Run | %s: no walk-forward steps completed", runID)
	}
	return summary, nil
}

func (d *Driver) step(number int, train, test candle.Table, params config.Params) Step {
	trainRes := backtest.Run(train, params, d.strategy)
	testRes := backtest.Run(test, params, d.strategy)

	s := Step{
		Number: number,
		Train:  window(train, trainRes),
		Test:   window(test, testRes),
		Params: params,
	}
	// a side without trades gets a neutral Sharpe so Decay stays defined
	if !s.Train.Valid() {
		s.Train.Sharpe = 0
	}
	if !s.Test.Valid() {
		s.Test.Sharpe = 0
	}
	s.Decay = Decay(s.Train.Sharpe, s.Test.Sharpe, d.cfg.MinTrainSharpe)

	s.returns = make([]datedReturn, len(testRes.Returns))
	for i, r := range testRes.Returns {
		s.returns[i] = datedReturn{date: testRes.Dates[i], r: r}
	}
	return s
}

func window(t candle.Table, res backtest.Result) Window {
	return Window{
		Start:               t.First(),
		End:                 t.Last(),
		Days:                t.Len(),
		Trades:              res.Stats.TotalTrades,
		Sharpe:              res.Stats.Sharpe,
		ReturnPct:           res.Stats.ReturnPct,
		AnnualizedReturnPct: res.Stats.AnnualizedReturnPct,
		MaxDrawdownPct:      res.Stats.MaxDrawdownPct,
		WinRate:             res.Stats.WinRate,
		ProfitFactor:        res.Stats.ProfitFactor,
	}
}

// reoptimize asks the optimizer for new parameters, retrying transient
// failures with exponential back-off. An optimizer that finds no valid
// trial is not retried.
func (d *Driver) reoptimize(ctx context.Context, train candle.Table) (config.Params, error) {
	logger := utils.Component("walkforward")
	var params config.Params
	operation := func() error {
		p, err := d.optimizer.Best(ctx, train)
		if err != nil {
			if errors.Is(err, optimize.ErrNoTrials) || errors.Is(err, optimize.ErrEmptyTable) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := p.Validate(); err != nil {
			return backoff.Permanent(err)
		}
		params = p
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = d.retryInterval
	strategy.MaxElapsedTime = d.cfg.RetryMaxElapsed
	b := backoff.WithContext(backoff.WithMaxRetries(strategy, d.cfg.RetryAttempts), ctx)

	notify := func(err error, wait time.Duration) {
		logger.Warn().Msgf("reoptimize | retrying in %s: %v", wait, err)
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return config.Params{}, err
	}
	return params, nil
}
