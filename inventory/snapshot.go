package inventory

import "time"

// Snapshot is an opaque, copyable view of the ledger used for persistence
// and status rendering. It carries no behavior beyond restore.
type Snapshot struct {
	QYes        float64   `json:"q_yes"`
	CYes        float64   `json:"c_yes"`
	QNo         float64   `json:"q_no"`
	CNo         float64   `json:"c_no"`
	RealizedPnL float64   `json:"realized_pnl"`
	TotalTrades int64     `json:"total_trades"`
	TotalVolume float64   `json:"total_volume"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a consistent copy of the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		QYes:        l.qYes,
		CYes:        l.cYes,
		QNo:         l.qNo,
		CNo:         l.cNo,
		RealizedPnL: l.realizedPnL,
		TotalTrades: l.totalTrades,
		TotalVolume: l.totalVolume,
		CreatedAt:   l.createdAt,
		UpdatedAt:   l.updatedAt,
	}
}

// Restore overwrites the ledger from a persisted snapshot.
// Negative quantities or costs in a corrupt snapshot are clamped to zero
// so the ledger invariants hold from the first tick.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.qYes = clampNonNegative(s.QYes)
	l.cYes = clampNonNegative(s.CYes)
	l.qNo = clampNonNegative(s.QNo)
	l.cNo = clampNonNegative(s.CNo)
	l.realizedPnL = s.RealizedPnL
	l.totalTrades = s.TotalTrades
	l.totalVolume = s.TotalVolume
	if !s.CreatedAt.IsZero() {
		l.createdAt = s.CreatedAt
	}
	if !s.UpdatedAt.IsZero() {
		l.updatedAt = s.UpdatedAt
	}
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
