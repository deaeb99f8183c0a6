package position

import (
	"fmt"
	"math"
	"time"

	"github.com/amirphl/momentum-validator/internal/config"
)

// Ledger tracks the open positions, realized capital and closed trades of
// a single simulation run. It is not safe for concurrent use; every run
// owns its own ledger.
type Ledger struct {
	cfg config.Strategy

	// Cash is the realized account value: starting capital plus net
	// realized PnL minus entry commissions. Open notional is tracked in
	// Allocated and is not deducted from Cash.
	Cash      float64
	Allocated float64

	open   book
	nextID int

	Trades []Trade
	Wins   []float64
	Losses []float64
}

func NewLedger(cfg config.Strategy) *Ledger {
	return &Ledger{
		cfg:  cfg,
		Cash: cfg.InitialCapital,
		open: newBook(),
	}
}

// Count is the number of open positions.
func (l *Ledger) Count() int { return l.open.len() }

// Positions returns copies of the open positions in entry order.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, l.open.len())
	for _, id := range l.open.ids {
		out = append(out, *l.open.byID[id])
	}
	return out
}

// Position returns a copy of the open position with the given id.
func (l *Ledger) Position(id int) (Position, bool) {
	p, ok := l.open.get(id)
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Unrealized is the mark-to-market PnL of all open positions at price.
func (l *Ledger) Unrealized(price float64) float64 {
	total := 0.0
	for _, id := range l.open.ids {
		total += l.open.byID[id].Unrealized(price)
	}
	return total
}

// OpenValue is the market value of all remaining shares at price.
func (l *Ledger) OpenValue(price float64) float64 {
	total := 0.0
	for _, id := range l.open.ids {
		total += price * float64(l.open.byID[id].RemainingShares)
	}
	return total
}

// Equity is cash plus unrealized PnL, floored at the configured epsilon.
func (l *Ledger) Equity(price float64) float64 {
	return math.Max(l.Cash+l.Unrealized(price), l.cfg.EquityFloor)
}

// Exposure is the open notional at entry prices.
func (l *Ledger) Exposure() float64 {
	total := 0.0
	for _, id := range l.open.ids {
		p := l.open.byID[id]
		total += p.EntryPrice * float64(p.RemainingShares)
	}
	return total
}

// Balanced reports whether Allocated matches the open notional.
func (l *Ledger) Balanced() error {
	exposure := l.Exposure()
	if math.Abs(exposure-l.Allocated) > 1e-6*math.Max(1, exposure) {
		return fmt.Errorf("allocated capital %.6f does not match open notional %.6f", l.Allocated, exposure)
	}
	for _, id := range l.open.ids {
		p := l.open.byID[id]
		if p.RemainingShares <= 0 || p.RemainingShares > p.InitialShares {
			return fmt.Errorf("position %d holds %d of %d shares", p.ID, p.RemainingShares, p.InitialShares)
		}
	}
	return nil
}

// mustBalance panics when the ledger bookkeeping is corrupt.
func (l *Ledger) mustBalance() {
	if err := l.Balanced(); err != nil {
		panic(err)
	}
}

// close books shares of p as exited at exitPrice and removes p once it is
// empty. It returns the net PnL.
func (l *Ledger) close(p *Position, date time.Time, exitPrice float64, shares int, reason string) float64 {
	shares = min(shares, p.RemainingShares)
	if shares <= 0 {
		return 0
	}

	gross := (exitPrice - p.EntryPrice) * float64(shares) * float64(p.Direction)
	commission := l.cfg.Commission.Cost(exitPrice, shares)
	net := gross - commission
	if net > 0 {
		l.Wins = append(l.Wins, net)
	} else {
		l.Losses = append(l.Losses, net)
	}

	remaining := p.RemainingShares - shares
	l.Trades = append(l.Trades, Trade{
		PositionID:      p.ID,
		Direction:       p.Direction,
		EntryDate:       p.EntryDate,
		ExitDate:        date,
		EntryPrice:      p.EntryPrice,
		ExitPrice:       exitPrice,
		Shares:          shares,
		InitialShares:   p.InitialShares,
		RemainingShares: remaining,
		GrossPnL:        gross,
		PnL:             net,
		EntryCommission: p.EntryCommission,
		ExitCommission:  commission,
		DurationDays:    daysBetween(p.EntryDate, date),
		Reason:          reason,
		Complete:        remaining == 0,
	})

	l.Cash += net
	l.Allocated -= p.EntryPrice * float64(shares)
	p.RemainingShares = remaining
	if remaining == 0 {
		l.open.remove(p.ID)
	}
	if l.open.len() == 0 {
		// drop float residue once flat
		l.Allocated = 0
	}
	return net
}
