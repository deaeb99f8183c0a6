// Package backtest runs the momentum strategy over an indicator table one
// bar at a time and summarizes the outcome.
package backtest

import (
	"math"
	"time"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/config"
	"github.com/amirphl/momentum-validator/internal/metrics"
	"github.com/amirphl/momentum-validator/internal/position"
	"github.com/amirphl/momentum-validator/internal/strategy"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// Result is everything one simulation run hands back.
type Result struct {
	Params  config.Params    `json:"params"`
	Trades  []position.Trade `json:"trades"`
	Wins    []float64        `json:"wins"`
	Losses  []float64        `json:"losses"`
	Dates   []time.Time      `json:"dates"`
	Equity  []float64        `json:"equity"`
	Returns []float64        `json:"returns"` // log returns, Returns[0] == 0
	Stats   Statistics       `json:"stats"`

	OpenPositions int `json:"open_positions"`
}

// Run scores table and simulates the strategy over it with params.
func Run(table candle.Table, params config.Params, cfg config.Strategy) Result {
	signals := strategy.Score(table, params.ADXThreshold, cfg)
	return simulate(table, signals, params, cfg)
}

// simulate walks the bars in order. Every decision on bar i uses the
// signal, ATR and ADX of bar i-1 and executes at bar i's open:
//
//  1. trailing stops;
//  2. unless a trailing stop fired: immediate exit, else the tiered exit
//     signal (partial above the partial-exit score, full otherwise);
//  3. unless a trailing stop fired: position health;
//  4. a new entry when the buy flag is set and there is room.
//
// A missing signal (empty or short signals) means no trading that day.
func simulate(table candle.Table, signals []strategy.Signal, params config.Params, cfg config.Strategy) Result {
	metrics.SimulationsTotal.Inc()
	logger := utils.Component("backtest")

	n := table.Len()
	res := Result{Params: params}
	if n == 0 {
		res.Stats = Compute(res.Dates, res.Equity, nil, nil, nil, cfg)
		return res
	}

	ledger := position.NewLedger(cfg)
	res.Dates = table.Dates()
	res.Equity = make([]float64, n)
	res.Returns = make([]float64, n)
	res.Equity[0] = cfg.InitialCapital

	for i := 1; i < n; i++ {
		bar := table.Bars[i]
		prev := table.Bars[i-1]
		var sig strategy.Signal
		if i-1 < len(signals) {
			sig = signals[i-1]
		}
		price := bar.Open
		date := bar.Timestamp

		if ledger.Count() > 0 {
			stopped := ledger.TrailingStops(date, price, prev.ATR, prev.ADX)
			if !stopped {
				switch {
				case sig.ImmediateExit:
					ledger.ProcessExits(date, price, 0, position.ReasonImmediateExit)
				case sig.Exit && sig.Score > cfg.PartialExitScore:
					ledger.ProcessExits(date, price, cfg.PartialExitTrim, position.ReasonPartialExit)
				case sig.Exit:
					ledger.ProcessExits(date, price, 0, position.ReasonExitSignal)
				}
			}
			if ledger.Count() > 0 && !stopped {
				ledger.Health(date, price, prev.ATR, sig.Score, params.MaxPositionDuration)
			}
		}

		if sig.Buy && ledger.Count() < params.MaxOpenPositions {
			ledger.Enter(position.EntryRequest{
				Date:           date,
				Price:          price * (1 + cfg.Slippage),
				PortfolioValue: ledger.Cash,
				Risk:           params.LongRisk,
				ATR:            prev.ATR,
				ADX:            prev.ADX,
			})
		}

		res.Equity[i] = ledger.Equity(price)
		res.Returns[i] = math.Log(res.Equity[i] / res.Equity[i-1])
	}

	res.Trades = ledger.Trades
	res.Wins = ledger.Wins
	res.Losses = ledger.Losses
	res.OpenPositions = ledger.Count()

	last := table.Bars[n-1].Close
	res.Stats = Compute(res.Dates, res.Equity, res.Trades, res.Wins, res.Losses, cfg)
	res.Stats.OpenPnL = ledger.Unrealized(last)
	res.Stats.OpenPositionValue = ledger.OpenValue(last)
	res.Stats.TotalPortfolioValue = ledger.Cash + res.Stats.OpenPnL

	for _, t := range res.Trades {
		metrics.TradesTotal.WithLabelValues(t.Reason).Inc()
	}
	logger.Debug().Msgf("simulate | %d bars, %d trades, final equity %.2f, %s",
		n, len(res.Trades), res.Stats.EquityFinal, params)
	return res
}

// BuyAndHoldPct is the close-to-close return of the table in percent.
func BuyAndHoldPct(table candle.Table) float64 {
	if table.Len() < 2 || table.Bars[0].Close == 0 {
		return 0
	}
	return (table.Bars[table.Len()-1].Close/table.Bars[0].Close - 1) * 100
}
