package order

import (
	"context"
	"time"

	"go.uber.org/zap"

	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
	"polymarket-maker-go/metrics"
)

// FillRecord is one executed trade as persisted to the journal.
type FillRecord struct {
	OrderID   string
	Outcome   market.Outcome
	Side      market.Side
	Price     float64
	Size      float64
	Timestamp time.Time
}

// Journal persists fills and ledger snapshots; implemented by store.Store.
type Journal interface {
	AppendFill(ctx context.Context, rec FillRecord) error
	SaveSnapshot(ctx context.Context, snap inventory.Snapshot) error
}

// OnFill consumes one asynchronous fill event from the exchange feed.
// The outcome is resolved from the owning slot; events for order ids the
// reconciler never placed are ignored (ledger untouched) with a warning.
//
// Slot clearing and ledger mutation share the slot's critical section with
// Reconcile, so "clear on fill" and "replace on reconcile" can never both
// partially apply: whichever observes the slot already resolved is a no-op.
func (r *Reconciler) OnFill(orderID string, price, size float64) {
	var outcome market.Outcome
	resolved := false
	for _, o := range market.Outcomes() {
		if r.slots[o].takeIfMatches(orderID) {
			outcome = o
			resolved = true
			break
		}
	}
	if !resolved {
		metrics.UnknownFills.Inc()
		r.log.Warn("ignoring fill from unknown order", zap.String("order_id", orderID))
		return
	}

	r.ledger.RecordFill(outcome, market.SideBuy, price, size)
	r.feed.Untrack(orderID)

	metrics.FillsApplied.WithLabelValues(string(outcome)).Inc()
	metrics.PendingCancels.Set(float64(r.PendingCancels()))
	metrics.UpdateInventoryMetrics(r.ledger.DeltaQ(), r.ledger.LockedProfit(), r.ledger.RealizedPnL())

	r.log.Info("fill applied",
		zap.String("outcome", string(outcome)),
		zap.String("order_id", orderID),
		zap.Float64("price", price),
		zap.Float64("size", size),
		zap.Float64("delta_q", r.ledger.DeltaQ()),
		zap.Float64("locked_profit", r.ledger.LockedProfit()),
		zap.Int64("total_trades", r.ledger.TotalTrades()))

	if r.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rec := FillRecord{
			OrderID:   orderID,
			Outcome:   outcome,
			Side:      market.SideBuy,
			Price:     price,
			Size:      size,
			Timestamp: time.Now(),
		}
		if err := r.journal.AppendFill(ctx, rec); err != nil {
			r.log.Error("journal fill failed", zap.Error(err))
		}
		if err := r.journal.SaveSnapshot(ctx, r.ledger.Snapshot()); err != nil {
			r.log.Error("snapshot save failed", zap.Error(err))
		}
	}
}
