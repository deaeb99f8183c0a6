package position

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/amirphl/momentum-validator/internal/config"
)

// Targets are the reporting-only take-profit levels of one position.
type Targets struct {
	RMultiple float64 `json:"r_multiple"`
	Scaled1R  float64 `json:"scaled_1r"`
	Scaled2R  float64 `json:"scaled_2r"`
	Static1R  float64 `json:"static_1r"`
	Static2R  float64 `json:"static_2r"`
	Static3R  float64 `json:"static_3r"`
}

// Health is the outcome of one health assessment.
type Health struct {
	Strength     config.Strength `json:"strength"`
	ProfitFactor float64         `json:"profit_factor"`
	Durations    map[int]int     `json:"durations"`
	Targets      map[int]Targets `json:"targets"`
	PnL          float64         `json:"pnl"`
}

// StrengthNone is reported when there is nothing to assess.
const StrengthNone config.Strength = "none"

// Health applies time exits to every position held longer than
// maxDuration days, records R-multiple targets for the rest, and then
// trims the whole book by at most one profit rule keyed by momentum
// strength, testing the highest profit-factor threshold first.
func (l *Ledger) Health(date time.Time, price, atr, score float64, maxDuration int) Health {
	h := Health{Strength: StrengthNone, Durations: map[int]int{}, Targets: map[int]Targets{}}
	if l.open.len() == 0 {
		return h
	}
	h.Strength = l.cfg.Strength.Classify(score, atr, price)

	for _, id := range l.open.snapshot() {
		p, ok := l.open.get(id)
		if !ok {
			continue
		}
		duration := daysBetween(p.EntryDate, date)
		h.Durations[id] = duration

		if duration > maxDuration {
			exitPrice := price * (1 - l.cfg.Slippage)
			if score > l.cfg.TimeExitScore {
				h.PnL += l.exitOne(p, date, exitPrice, l.cfg.TimeExitTrim, ReasonPartialTrim)
			} else {
				h.PnL += l.close(p, date, exitPrice, p.RemainingShares, ReasonMaxDuration)
			}
			continue
		}

		risk := math.Abs(p.EntryPrice - p.InitialStop)
		t := Targets{
			Scaled1R: p.EntryPrice + risk*(1+score/100),
			Scaled2R: p.EntryPrice + risk*(2+score/50),
			Static1R: p.EntryPrice + risk,
			Static2R: p.EntryPrice + risk*2,
			Static3R: p.EntryPrice + risk*3,
		}
		if risk > 1e-9 {
			t.RMultiple = (price - p.EntryPrice) / risk
		}
		h.Targets[id] = t
	}

	if l.open.len() > 0 {
		atRisk := 0.0
		for _, id := range l.open.ids {
			p := l.open.byID[id]
			atRisk += math.Abs(p.EntryPrice-p.StopLoss) * float64(p.RemainingShares)
		}
		if atRisk > 0 {
			h.ProfitFactor = l.Unrealized(price) / atRisk
		}

		rules := slices.Clone(l.cfg.ProfitRules[h.Strength])
		slices.SortFunc(rules, func(a, b config.ProfitRule) int { return cmp.Compare(b.Threshold, a.Threshold) })
		for _, rule := range rules {
			if h.ProfitFactor >= rule.Threshold {
				h.PnL += l.ProcessExits(date, price, rule.Trim, ReasonProfitTake)
				break
			}
		}
	}

	l.mustBalance()
	return h
}
