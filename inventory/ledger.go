package inventory

import (
	"sync"
	"time"

	"polymarket-maker-go/market"
)

// Ledger tracks held quantity and cost basis per outcome, realized P&L from
// sells, and the locked profit of paired YES+NO positions (one of each pays
// exactly $1 at resolution).
//
// All mutation goes through RecordFill; arithmetic is clamped so that
// quantities and cost bases never go negative, no matter the fill sequence.
type Ledger struct {
	mu sync.RWMutex

	qYes float64
	cYes float64
	qNo  float64
	cNo  float64

	realizedPnL float64

	totalTrades int64
	totalVolume float64 // cumulative notional (price * size)

	createdAt time.Time
	updatedAt time.Time
}

func NewLedger() *Ledger {
	now := time.Now()
	return &Ledger{createdAt: now, updatedAt: now}
}

// RecordFill applies one fill to the ledger.
// BUY accumulates quantity and cost. SELL realizes P&L against the average
// cost, capped at current holdings; selling from a flat position is a no-op
// apart from the trade counters (no short positions are modeled).
func (l *Ledger) RecordFill(outcome market.Outcome, side market.Side, price, size float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalTrades++
	l.totalVolume += price * size
	l.updatedAt = time.Now()

	q, c := &l.qYes, &l.cYes
	if outcome == market.OutcomeNo {
		q, c = &l.qNo, &l.cNo
	}

	if side == market.SideBuy {
		*c += price * size
		*q += size
		return
	}

	if *q <= 0 {
		return
	}
	avgCost := *c / *q
	amount := size
	if amount > *q {
		amount = *q
	}
	l.realizedPnL += (price - avgCost) * amount
	*c -= avgCost * amount
	*q -= size
	if *q < 0 {
		*q = 0
	}
	if *c < 0 {
		*c = 0
	}
}

// Quantity returns the held quantity for one outcome.
func (l *Ledger) Quantity(outcome market.Outcome) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if outcome == market.OutcomeYes {
		return l.qYes
	}
	return l.qNo
}

// AvgCost returns the volume-weighted average cost for one outcome,
// 0 when flat.
func (l *Ledger) AvgCost(outcome market.Outcome) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.avgCostLocked(outcome)
}

func (l *Ledger) avgCostLocked(outcome market.Outcome) float64 {
	if outcome == market.OutcomeYes {
		if l.qYes == 0 {
			return 0
		}
		return l.cYes / l.qYes
	}
	if l.qNo == 0 {
		return 0
	}
	return l.cNo / l.qNo
}

// DeltaQ is the net inventory imbalance qYes - qNo.
func (l *Ledger) DeltaQ() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.qYes - l.qNo
}

// PairedQuantity is min(qYes, qNo): pairs guaranteed to pay $1 at expiry.
func (l *Ledger) PairedQuantity() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pairedQuantityLocked()
}

func (l *Ledger) pairedQuantityLocked() float64 {
	if l.qYes < l.qNo {
		return l.qYes
	}
	return l.qNo
}

// PairedCost is the pro-rata cost of the paired amount from each side.
func (l *Ledger) PairedCost() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pairedCostLocked()
}

func (l *Ledger) pairedCostLocked() float64 {
	paired := l.pairedQuantityLocked()
	if paired == 0 {
		return 0
	}
	var cost float64
	if l.qYes > 0 {
		cost += l.cYes / l.qYes * paired
	}
	if l.qNo > 0 {
		cost += l.cNo / l.qNo * paired
	}
	return cost
}

// LockedProfit is the guaranteed profit of the paired position:
// paired quantity pays $1 each at expiry, minus what the pairs cost.
func (l *Ledger) LockedProfit() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pairedQuantityLocked()*1.0 - l.pairedCostLocked()
}

// RealizedPnL is the cumulative profit/loss from completed sells.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realizedPnL
}

// TotalTrades returns the number of fills applied.
func (l *Ledger) TotalTrades() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalTrades
}

// TotalVolume returns the cumulative notional traded.
func (l *Ledger) TotalVolume() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalVolume
}
