package position

import (
	"math"
	"time"
)

// TrailingStops ratchets every stop towards the highest price seen and
// fully closes the positions whose stop is at or above price. It reports
// whether any stop was hit.
func (l *Ledger) TrailingStops(date time.Time, price, atr, adx float64) bool {
	if l.open.len() == 0 {
		return false
	}
	regimeMult := l.cfg.Regimes.For(adx).StopATR

	var hit []int
	for _, id := range l.open.ids {
		p := l.open.byID[id]
		p.HighestPrice = math.Max(p.HighestPrice, price)

		gainPct := (p.HighestPrice - p.EntryPrice) / p.EntryPrice
		candidate := p.HighestPrice - atr*regimeMult*l.cfg.ProfitLock.Multiplier(gainPct)
		if math.IsNaN(candidate) {
			candidate = p.StopLoss
		}
		stop := math.Max(candidate, p.StopLoss)
		if gain := price - p.EntryPrice; gain > 0 {
			stop = math.Max(stop, p.EntryPrice+gain*l.cfg.TrailingLock)
		}
		p.StopLoss = stop

		if price <= p.StopLoss {
			hit = append(hit, id)
		}
	}
	if len(hit) == 0 {
		return false
	}

	exitPrice := price * (1 - l.cfg.Slippage)
	for _, id := range hit {
		if p, ok := l.open.get(id); ok {
			l.close(p, date, exitPrice, p.RemainingShares, ReasonTrailingStop)
		}
	}
	l.mustBalance()
	return true
}
