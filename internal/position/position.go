// Package position holds the simulated positions of one backtest run and
// the entry, exit, trailing stop and health rules that act on them.
package position

import (
	"math"
	"time"
)

// Exit reasons recorded on closed trades.
const (
	ReasonTrailingStop  = "Trailing Stop"
	ReasonImmediateExit = "Immediate Exit"
	ReasonPartialExit   = "Partial Exit"
	ReasonExitSignal    = "Exit Signal"
	ReasonPartialTrim   = "Partial Trim"
	ReasonMaxDuration   = "Max Duration"
	ReasonProfitTake    = "Profit Take"
	ReasonTakeProfit    = "Take Profit"
	ReasonStopLoss      = "Stop Loss"
)

// ProfitReasons are the exit reasons counted as profit-oriented hits.
var ProfitReasons = map[string]bool{
	ReasonTakeProfit:   true,
	ReasonTrailingStop: true,
	ReasonMaxDuration:  true,
	ReasonProfitTake:   true,
}

type Direction int8

const Long Direction = 1

func (d Direction) String() string {
	if d == Long {
		return "Long"
	}
	return "Short"
}

// Position is one open lot. RemainingShares only shrinks and StopLoss
// only rises over its life.
type Position struct {
	ID              int       `json:"id"`
	EntryDate       time.Time `json:"entry_date"`
	EntryPrice      float64   `json:"entry_price"`
	Direction       Direction `json:"direction"`
	InitialStop     float64   `json:"initial_stop"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	InitialShares   int       `json:"initial_shares"`
	RemainingShares int       `json:"remaining_shares"`
	HighestPrice    float64   `json:"highest_price"`
	EntryCommission float64   `json:"entry_commission"`
}

// Unrealized returns the mark-to-market PnL of the remaining shares.
func (p *Position) Unrealized(price float64) float64 {
	return (price - p.EntryPrice) * float64(p.RemainingShares) * float64(p.Direction)
}

// Trade is the immutable record written for every partial or full exit.
type Trade struct {
	PositionID      int       `json:"position_id"`
	Direction       Direction `json:"direction"`
	EntryDate       time.Time `json:"entry_date"`
	ExitDate        time.Time `json:"exit_date"`
	EntryPrice      float64   `json:"entry_price"`
	ExitPrice       float64   `json:"exit_price"`
	Shares          int       `json:"shares"`
	InitialShares   int       `json:"initial_shares"`
	RemainingShares int       `json:"remaining_shares"`
	GrossPnL        float64   `json:"gross_pnl"`
	PnL             float64   `json:"pnl"`
	EntryCommission float64   `json:"entry_commission"`
	ExitCommission  float64   `json:"exit_commission"`
	DurationDays    int       `json:"duration_days"`
	Reason          string    `json:"reason"`
	Complete        bool      `json:"complete"`
}

// ReturnPct is the trade's net PnL relative to the notional exited.
func (t Trade) ReturnPct() float64 {
	notional := t.EntryPrice * float64(t.Shares)
	if notional == 0 {
		return 0
	}
	return t.PnL / notional * 100
}

func daysBetween(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / 24))
}

// book is an insertion ordered map of open positions keyed by id.
type book struct {
	ids  []int
	byID map[int]*Position
}

func newBook() book {
	return book{byID: make(map[int]*Position)}
}

func (b *book) add(p *Position) {
	b.ids = append(b.ids, p.ID)
	b.byID[p.ID] = p
}

func (b *book) get(id int) (*Position, bool) {
	p, ok := b.byID[id]
	return p, ok
}

func (b *book) remove(id int) {
	if _, ok := b.byID[id]; !ok {
		return
	}
	delete(b.byID, id)
	for i, v := range b.ids {
		if v == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			break
		}
	}
}

func (b *book) len() int { return len(b.ids) }

// snapshot returns the current ids so callers can remove while iterating.
func (b *book) snapshot() []int {
	out := make([]int, len(b.ids))
	copy(out, b.ids)
	return out
}
