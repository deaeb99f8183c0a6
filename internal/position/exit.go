package position

import "time"

// ProcessExits walks the open positions in entry order at market price
// (sell slippage is applied here) and exits each one by the first rule
// that matches:
//
//  1. trim == 0 exits the whole position with reason; trim > 0 exits
//     floor(remaining*trim) shares when that is at least one share.
//  2. the exit price reached the take-profit level.
//  3. the exit price fell to the stop-loss level.
//
// It returns the summed net PnL. With no open positions it is a no-op.
func (l *Ledger) ProcessExits(date time.Time, price, trim float64, reason string) float64 {
	if l.open.len() == 0 {
		return 0
	}
	exitPrice := price * (1 - l.cfg.Slippage)
	total := 0.0
	for _, id := range l.open.snapshot() {
		p, ok := l.open.get(id)
		if !ok {
			continue
		}
		total += l.exitOne(p, date, exitPrice, trim, reason)
	}
	l.mustBalance()
	return total
}

func (l *Ledger) exitOne(p *Position, date time.Time, exitPrice, trim float64, reason string) float64 {
	if trim <= 0 {
		return l.close(p, date, exitPrice, p.RemainingShares, reason)
	}
	if shares := int(float64(p.RemainingShares) * trim); shares > 0 {
		return l.close(p, date, exitPrice, shares, reason)
	}
	if exitPrice >= p.TakeProfit {
		return l.close(p, date, exitPrice, p.RemainingShares, ReasonTakeProfit)
	}
	if exitPrice <= p.StopLoss {
		return l.close(p, date, exitPrice, p.RemainingShares, ReasonStopLoss)
	}
	return 0
}
