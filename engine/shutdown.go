package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"polymarket-maker-go/gateway"
	"polymarket-maker-go/market"
	"polymarket-maker-go/strategy"
)

const (
	// settlementDelay lets in-flight fills land before the position is read
	// for liquidation.
	settlementDelay = 3 * time.Second
	// liquidationPrice is the floor sell price for the shutdown sweep: sell
	// to whatever bids exist, keep the tokens if nobody is there.
	liquidationPrice = 0.01
	dustThreshold    = 0.01
	shutdownTimeout  = 30 * time.Second
)

// Stop winds the quoter down in order: halt placements, stop the loop,
// cancel every resting order, then optionally flatten the position.
// Idempotent; the second and later calls return immediately.
func (e *Engine) Stop(liquidate bool) {
	e.stopOnce.Do(func() {
		e.log.Info("engine stopping", zap.Bool("liquidate", liquidate))

		// Halt first: a tick already in flight must not place a new order
		// after the cancel sweep has run.
		e.rec.Halt()
		close(e.stopChan)
		if e.started.Load() {
			select {
			case <-e.doneChan:
			case <-time.After(stopTimeout):
				e.log.Warn("timeout waiting for quote loop to exit")
			}
		}
		e.setMode(strategy.ModeStopped)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if !e.dryRun {
			e.cancelSweep(ctx)
			if liquidate {
				e.liquidate(ctx)
			}
		}

		if e.journal != nil {
			if err := e.journal.SaveSnapshot(ctx, e.ledger.Snapshot()); err != nil {
				e.log.Error("final snapshot failed", zap.Error(err))
			}
		}

		e.log.Info("engine stopped",
			zap.Float64("delta_q", e.ledger.DeltaQ()),
			zap.Float64("locked_profit", e.ledger.LockedProfit()),
			zap.Float64("realized_pnl", e.ledger.RealizedPnL()))
	})
}

// cancelSweep bulk-cancels, then sweeps every id the reconciler still
// remembers. "Already gone" answers are fine: the point is that nothing of
// ours rests on the book afterwards.
func (e *Engine) cancelSweep(ctx context.Context) {
	if n, err := e.exchange.CancelAll(ctx); err != nil {
		e.log.Warn("bulk cancel failed, falling back to per-order sweep", zap.Error(err))
	} else {
		e.log.Info("bulk cancel done", zap.Int("canceled", n))
	}

	for _, id := range e.rec.ActiveOrderIDs() {
		ack, err := e.exchange.CancelOrder(ctx, id)
		if err != nil {
			e.log.Warn("sweep cancel failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if !ack {
			e.log.Debug("sweep cancel: order already gone", zap.String("order_id", id))
		}
	}
	e.rec.ClearSlots()
}

// liquidate flattens both positions with floor-price fill-and-kill sells.
// No counterparty means the tokens are kept; expiry settles them anyway.
func (e *Engine) liquidate(ctx context.Context) {
	select {
	case <-time.After(settlementDelay):
	case <-ctx.Done():
		return
	}

	tokens := map[market.Outcome]string{
		market.OutcomeYes: e.cfg.Market.TokenIDYes,
		market.OutcomeNo:  e.cfg.Market.TokenIDNo,
	}
	for _, outcome := range market.Outcomes() {
		qty := e.ledger.Quantity(outcome)
		if qty <= dustThreshold {
			continue
		}
		filled, err := e.exchange.PlaceLiquidation(ctx, tokens[outcome], liquidationPrice, qty)
		if errors.Is(err, gateway.ErrNoMatch) {
			e.log.Info("no counterparty for liquidation, keeping tokens",
				zap.String("outcome", string(outcome)), zap.Float64("quantity", qty))
			continue
		}
		if err != nil {
			e.log.Error("liquidation failed",
				zap.String("outcome", string(outcome)), zap.Error(err))
			continue
		}
		e.ledger.RecordFill(outcome, market.SideSell, liquidationPrice, filled)
		e.log.Info("position liquidated",
			zap.String("outcome", string(outcome)),
			zap.Float64("filled", filled),
			zap.Float64("requested", qty))
	}
}
