package position

import (
	"math"
	"time"
)

// EntryRequest describes a candidate long entry. Price already includes
// buy-side slippage.
type EntryRequest struct {
	Date           time.Time
	Price          float64
	PortfolioValue float64
	Risk           float64
	ATR            float64
	ADX            float64
}

// Enter sizes and opens a long position. It returns the new position id,
// or false when the request is rejected.
//
// Shares are sized so that a stop-out loses PortfolioValue*risk, where
// the stop distance and the risk scale come from the ADX regime. When the
// size would push total exposure past MaxExposure the order is shrunk to
// the remaining room; with no room left it is rejected.
func (l *Ledger) Enter(req EntryRequest) (int, bool) {
	if req.Price <= 0 || req.PortfolioValue <= 0 || math.IsNaN(req.ATR) || math.IsNaN(req.ADX) {
		return 0, false
	}

	regime := l.cfg.Regimes.For(req.ADX)
	stop := req.Price - req.ATR*regime.StopATR
	riskPerShare := math.Abs(req.Price - stop)
	if riskPerShare < 1e-9 {
		return 0, false
	}

	shares := int(req.PortfolioValue * req.Risk * regime.RiskScale / riskPerShare)
	notional := float64(shares) * req.Price

	current := l.Exposure() / req.PortfolioValue
	if current+notional/req.PortfolioValue > l.cfg.MaxExposure {
		room := l.cfg.MaxExposure - current
		if room <= 0 {
			return 0, false
		}
		shares = min(shares, int(room*req.PortfolioValue/req.Price))
		notional = float64(shares) * req.Price
	}

	boost := 1.0
	if req.ADX > l.cfg.Regimes.StrongAbove {
		boost = 1 + req.ADX/100
	}
	takeProfit := req.Price + l.cfg.TakeProfitATR*req.ATR*boost

	if shares <= 0 || notional > l.Cash-l.Allocated {
		return 0, false
	}
	if notional < req.PortfolioValue*l.cfg.MinPositionFraction {
		return 0, false
	}

	commission := l.cfg.Commission.Cost(req.Price, shares)
	id := l.nextID
	l.nextID++
	l.open.add(&Position{
		ID:              id,
		EntryDate:       req.Date,
		EntryPrice:      req.Price,
		Direction:       Long,
		InitialStop:     stop,
		StopLoss:        stop,
		TakeProfit:      takeProfit,
		InitialShares:   shares,
		RemainingShares: shares,
		HighestPrice:    req.Price,
		EntryCommission: commission,
	})
	l.Allocated += notional
	l.Cash -= commission
	l.mustBalance()
	return id, true
}
