package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/momentum-validator/internal/backtest"
	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/db"
	"github.com/amirphl/momentum-validator/internal/indicator"
	"github.com/amirphl/momentum-validator/internal/journal"
	"github.com/amirphl/momentum-validator/internal/metrics"
	"github.com/amirphl/momentum-validator/internal/montecarlo"
	"github.com/amirphl/momentum-validator/internal/optimize"
	"github.com/amirphl/momentum-validator/internal/report"
	"github.com/amirphl/momentum-validator/internal/utils"
	"github.com/amirphl/momentum-validator/internal/walkforward"
)

// fullModeCandidates is how many optimizer trials full mode validates.
const fullModeCandidates = 3

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	closer, err := utils.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	logger := utils.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		logger.Info().Msgf("main | metrics on %s/metrics", cfg.Metrics.Addr)
	}

	logger.Info().Msgf("main | starting in mode %s for %s", cfg.Mode, cfg.Data.Symbol)
	j := journal.NewMemory()
	runErr := run(ctx, cfg, j)

	if events, err := j.GetEvents("", time.Time{}, time.Time{}); err == nil {
		_ = report.Timeline(os.Stdout, events)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn().Msg("main | interrupted, partial results above")
			return
		}
		logger.Error().Msgf("main | %v", runErr)
		stop()
		closer.Close()
		os.Exit(1)
	}
}

// run loads and prepares the data, then dispatches on cfg.Mode.
func run(ctx context.Context, cfg config.Config, j journal.Journaler) error {
	if err := prepareStore(ctx, cfg, j); err != nil {
		return err
	}

	done := journal.Stage(j, "load")
	table, err := loadTable(ctx, cfg)
	done(err)
	if err != nil {
		return err
	}
	inSample, outOfSample := split(table, cfg.Data)
	logger := utils.Component("main")
	logger.Info().Msgf("run | in-sample %s..%s (%d bars), out-of-sample %s..%s (%d bars)",
		inSample.First().Format(time.DateOnly), inSample.Last().Format(time.DateOnly), inSample.Len(),
		outOfSample.First().Format(time.DateOnly), outOfSample.Last().Format(time.DateOnly), outOfSample.Len())

	switch cfg.Mode {
	case config.ModeTest:
		return runTest(cfg, inSample, j)
	case config.ModeOptimize:
		_, err := runOptimize(ctx, cfg, inSample, j)
		return err
	case config.ModeMonteCarlo:
		candidates := []config.Params{cfg.Params}
		if cfg.Optimizer.Enabled {
			trials, err := runOptimize(ctx, cfg, inSample, j)
			if err != nil {
				return err
			}
			candidates = topParams(trials, cfg.MonteCarlo.TopCandidates)
		}
		_, err := runMonteCarlo(ctx, cfg, inSample, candidates, j)
		return err
	case config.ModeWalkForward:
		return runWalkForward(ctx, cfg, inSample, outOfSample, cfg.Params, j)
	case config.ModeFull:
		return runFull(ctx, cfg, inSample, outOfSample, j)
	}
	return fmt.Errorf("%w: unknown mode %q", config.ErrInvalidConfig, cfg.Mode)
}

// prepareStore applies migrations and imports a CSV file into the
// postgres source when asked to.
func prepareStore(ctx context.Context, cfg config.Config, j journal.Journaler) error {
	if cfg.Database.Migrate {
		done := journal.Stage(j, "migrate")
		err := db.Migrate(ctx, cfg.Database.ConnStr, "scripts/schema.sql")
		done(err)
		if err != nil {
			return err
		}
	}
	if cfg.Data.Import == "" {
		return nil
	}

	done := journal.Stage(j, "import")
	conn, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		done(err)
		return err
	}
	defer conn.Close()
	n, err := db.Import(ctx, db.NewPostgres(conn), cfg.Data.Symbol, cfg.Data.Import)
	done(err)
	if err != nil {
		return err
	}
	logger := utils.Component("main")
	logger.Info().Msgf("prepareStore | imported %d candles for %s from %s", n, cfg.Data.Symbol, cfg.Data.Import)
	return nil
}

// loadTable fetches the candles and computes indicators over the whole
// series, so the out-of-sample bars see the in-sample history.
func loadTable(ctx context.Context, cfg config.Config) (candle.Table, error) {
	src, closer, err := db.Open(ctx, cfg)
	if err != nil {
		return candle.Table{}, err
	}
	defer closer.Close()

	candles, err := db.Load(ctx, src, cfg.Data)
	if err != nil {
		return candle.Table{}, err
	}
	return indicator.Prepare(candles, cfg.Strategy), nil
}

// split returns the in-sample and out-of-sample tables: the last
// FinalOOSYears of trading days are out-of-sample and the InSampleYears
// plus warm-up bars before them are in-sample. Short series shrink the
// in-sample side first.
func split(table candle.Table, data config.Data) (inSample, outOfSample candle.Table) {
	n := table.Len()
	oosLen := min(n, data.FinalOOSYears*data.TradingDays)
	isLen := data.InSampleYears*data.TradingDays + data.WarmupBars
	end := n - oosLen
	start := max(0, end-isLen)
	if end-start < isLen {
		logger := utils.Component("main")
		logger.Warn().Msgf("split | only %d in-sample bars available, wanted %d", end-start, isLen)
	}
	return table.Slice(start, end), table.Slice(end, n)
}

func runTest(cfg config.Config, inSample candle.Table, j journal.Journaler) error {
	done := journal.Stage(j, "backtest")
	res := backtest.Run(inSample, cfg.Params, cfg.Strategy)
	done(nil)

	if err := report.Statistics(os.Stdout, fmt.Sprintf("Backtest %s (%s)", cfg.Data.Symbol, cfg.Params), res.Stats); err != nil {
		return err
	}
	if err := report.Trades(os.Stdout, res.Trades); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Buy & hold return: %.2f%%\n", backtest.BuyAndHoldPct(inSample))

	if cfg.Report.Dir != "" {
		return report.SaveResult(cfg.Report.Dir, "backtest", res)
	}
	return nil
}

func runOptimize(ctx context.Context, cfg config.Config, inSample candle.Table, j journal.Journaler) ([]optimize.Trial, error) {
	done := journal.Stage(j, "optimize")
	trials, err := optimize.New(cfg.Optimizer, cfg.Strategy).Optimize(ctx, inSample)
	done(err)
	if err != nil {
		return nil, err
	}
	return trials, report.Trials(os.Stdout, trials)
}

func runMonteCarlo(ctx context.Context, cfg config.Config, inSample candle.Table, candidates []config.Params, j journal.Journaler) (montecarlo.Report, error) {
	done := journal.Stage(j, "montecarlo")
	rep, err := montecarlo.NewValidator(cfg.MonteCarlo, cfg.Strategy).Run(ctx, inSample, candidates)
	done(err)
	if err != nil {
		return rep, err
	}
	return rep, report.MonteCarlo(os.Stdout, rep)
}

func runWalkForward(ctx context.Context, cfg config.Config, inSample, outOfSample candle.Table, initial config.Params, j journal.Journaler) error {
	var opt walkforward.Optimizer
	if cfg.Optimizer.Enabled {
		opt = optimize.New(cfg.Optimizer, cfg.Strategy)
	}

	done := journal.Stage(j, "walkforward")
	summary, err := walkforward.New(cfg.WalkForward, cfg.Strategy, opt).Run(ctx, inSample, outOfSample, initial)
	done(err)
	if rerr := report.WalkForward(os.Stdout, summary); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// runFull optimizes, validates the top trials with Monte Carlo and walks
// forward with the best significant set, or the top trial when none is
// significant.
func runFull(ctx context.Context, cfg config.Config, inSample, outOfSample candle.Table, j journal.Journaler) error {
	logger := utils.Component("main")

	initial := cfg.Params
	candidates := []config.Params{cfg.Params}
	if cfg.Optimizer.Enabled {
		trials, err := runOptimize(ctx, cfg, inSample, j)
		switch {
		case errors.Is(err, optimize.ErrNoTrials):
			logger.Warn().Msg("runFull | optimizer found nothing, validating the configured parameters")
		case err != nil:
			return err
		default:
			candidates = topParams(trials, fullModeCandidates)
			initial = candidates[0]
		}
	}

	rep, err := runMonteCarlo(ctx, cfg, inSample, candidates, j)
	if err != nil {
		return err
	}
	if best, ok := rep.Best(); ok && best.Significant > 0 {
		initial = best.Params
		logger.Info().Msgf("runFull | walking forward with Monte Carlo rank %d: %s", best.Rank, initial)
	} else {
		logger.Info().Msgf("runFull | no significant Monte Carlo result, walking forward with %s", initial)
	}
	return runWalkForward(ctx, cfg, inSample, outOfSample, initial, j)
}

func topParams(trials []optimize.Trial, k int) []config.Params {
	k = min(max(k, 1), len(trials))
	out := make([]config.Params, k)
	for i := range out {
		out[i] = trials[i].Params
	}
	return out
}
