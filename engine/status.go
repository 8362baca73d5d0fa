package engine

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"polymarket-maker-go/market"
	"polymarket-maker-go/metrics"
)

// logStatus emits the periodic one-line health summary and refreshes the
// inventory gauges.
func (e *Engine) logStatus() {
	deltaQ := e.ledger.DeltaQ()
	metrics.UpdateInventoryMetrics(deltaQ, e.ledger.LockedProfit(), e.ledger.RealizedPnL())

	fields := []zapcore.Field{
		zap.String("mode", e.Mode().String()),
		zap.Float64("q_yes", e.ledger.Quantity(market.OutcomeYes)),
		zap.Float64("q_no", e.ledger.Quantity(market.OutcomeNo)),
		zap.Float64("delta_q", deltaQ),
		zap.Float64("skew", e.cfg.Skew(deltaQ)),
		zap.Float64("pairs", e.ledger.PairedQuantity()),
		zap.Float64("locked_profit", e.ledger.LockedProfit()),
		zap.Float64("realized_pnl", e.ledger.RealizedPnL()),
		zap.Int64("trades", e.ledger.TotalTrades()),
		zap.Int("pending_cancels", e.rec.PendingCancels()),
	}

	for _, outcome := range market.Outcomes() {
		if price, ok := e.rec.Slot(outcome).QuotedPrice(); ok {
			fields = append(fields, zap.Float64("bid_"+string(outcome), price))
		}
	}

	stats := e.books.Stats()
	fields = append(fields, zap.Int64("book_fetches", stats.Fetches))
	if !stats.LastUpdate.IsZero() {
		fields = append(fields, zap.Time("last_book_update", stats.LastUpdate))
	}
	if e.cfg.HasExpiry() {
		fields = append(fields, zap.Duration("time_to_expiry", e.cfg.TimeUntilExpiry()))
	}

	e.log.Info("status", fields...)
}
