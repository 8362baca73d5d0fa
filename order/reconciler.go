package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
	"polymarket-maker-go/metrics"
)

// Gateway 提供下单/撤单抽象；由 gateway.Client 实现。
type Gateway interface {
	PlaceBid(ctx context.Context, tokenID string, price, size float64) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}

// FillFeed registers interest in fill events for an order id.
type FillFeed interface {
	Track(orderID string)
	Untrack(orderID string)
}

var (
	// ErrSlotBusy means another reconcile attempt is still in flight for
	// this outcome; the caller should simply try again next tick.
	ErrSlotBusy = errors.New("slot busy")
	// ErrCancelPending means an earlier cancel has not been acknowledged;
	// no new action is taken until a fill or cancel confirmation resolves it.
	ErrCancelPending = errors.New("cancel pending")
)

// Reconciler holds one slot per outcome and converges each resting bid
// toward the target price computed by the strategy. One reconcile attempt
// per outcome runs at a time; a global halt flag blocks all placements
// during shutdown.
type Reconciler struct {
	gw     Gateway
	feed   FillFeed
	ledger *inventory.Ledger
	sizer  func(deltaQ float64) float64

	halfTick float64
	sm       *StateMachine
	slots    map[market.Outcome]*Slot
	halted   atomic.Bool
	journal  Journal
	log      *zap.Logger
}

func NewReconciler(gw Gateway, feed FillFeed, ledger *inventory.Ledger, sizer func(float64) float64, halfTick float64, yesTokenID, noTokenID string, log *zap.Logger) *Reconciler {
	return &Reconciler{
		gw:       gw,
		feed:     feed,
		ledger:   ledger,
		sizer:    sizer,
		halfTick: halfTick,
		sm:       NewStateMachine(),
		slots: map[market.Outcome]*Slot{
			market.OutcomeYes: NewSlot(market.OutcomeYes, yesTokenID),
			market.OutcomeNo:  NewSlot(market.OutcomeNo, noTokenID),
		},
		log: log,
	}
}

// SetJournal wires an optional fill journal (persistence collaborator).
func (r *Reconciler) SetJournal(j Journal) { r.journal = j }

// Reconcile converges one outcome's slot toward the target bid price.
// hasTarget=false means "no bid": any resting order is cancelled.
//
// Error contract: ErrSlotBusy and ErrCancelPending are benign no-ops;
// anything else is a transient venue error to be retried next tick. A
// failure on one outcome never affects the other.
func (r *Reconciler) Reconcile(ctx context.Context, outcome market.Outcome, target float64, hasTarget bool) error {
	if r.halted.Load() {
		return nil
	}
	slot := r.slots[outcome]
	if !slot.tryAcquire() {
		metrics.ReconcileBusy.WithLabelValues(string(outcome)).Inc()
		return ErrSlotBusy
	}
	defer slot.release()

	cur, lastPrice, hasLast := slot.current()
	active := cur != nil && cur.IsActive()

	// Replace churn suppression: a target within half a tick of the
	// resting quote is not worth a cancel/replace round-trip.
	if hasTarget && active && hasLast && math.Abs(target-lastPrice) < r.halfTick {
		return nil
	}
	if !hasTarget && !active {
		return nil
	}

	if active {
		if slot.isPendingCancel(cur.ID) {
			return ErrCancelPending
		}
		if err := slot.setPhase(r.sm, PhaseCancelling); err != nil {
			return err
		}
		ack, err := r.gw.CancelOrder(ctx, cur.ID)
		if err != nil || !ack {
			// Unknown outcome: park the id until a fill or a later
			// confirmation resolves it. Never cancel the same id twice.
			slot.markPendingCancel(cur.ID)
			metrics.PendingCancels.Set(float64(r.PendingCancels()))
			_ = slot.setPhase(r.sm, PhaseLive)
			if err != nil {
				metrics.OrderFailures.WithLabelValues(string(outcome), "cancel").Inc()
				return fmt.Errorf("cancel %s bid %s: %w", outcome, cur.ID, err)
			}
			r.log.Warn("cancel not acknowledged, parking order",
				zap.String("outcome", string(outcome)),
				zap.String("order_id", cur.ID))
			return nil
		}
		metrics.OrdersCancelled.WithLabelValues(string(outcome)).Inc()
		r.feed.Untrack(cur.ID)
		if !slot.clearIfMatches(cur.ID) {
			// A fill beat the cancel confirmation; the slot is already
			// resolved and the ledger updated. Nothing left to do here.
			return nil
		}
	}

	if !hasTarget || r.halted.Load() {
		return nil
	}

	if err := slot.setPhase(r.sm, PhasePlacing); err != nil {
		return err
	}
	size := r.sizer(r.ledger.DeltaQ())
	ord, err := r.gw.PlaceBid(ctx, slot.TokenID(), target, size)
	if err != nil {
		_ = slot.setPhase(r.sm, PhaseEmpty)
		metrics.OrderFailures.WithLabelValues(string(outcome), "place").Inc()
		return fmt.Errorf("place %s bid @ %.2f: %w", outcome, target, err)
	}
	ord.Outcome = outcome
	ord.Side = market.SideBuy
	if err := slot.setLive(r.sm, ord, target); err != nil {
		return err
	}
	r.feed.Track(ord.ID)
	metrics.OrdersPlaced.WithLabelValues(string(outcome)).Inc()
	r.log.Debug("bid placed",
		zap.String("outcome", string(outcome)),
		zap.String("order_id", ord.ID),
		zap.Float64("price", target),
		zap.Float64("size", size))
	return nil
}

// Halt blocks every future placement and permanently claims both slots so
// that a tick already in flight cannot start a new order.
func (r *Reconciler) Halt() {
	r.halted.Store(true)
	for _, s := range r.slots {
		s.ForceBusy()
	}
}

// Halted reports whether the halt flag is set.
func (r *Reconciler) Halted() bool { return r.halted.Load() }

// Slot exposes one outcome's slot for status rendering and shutdown.
func (r *Reconciler) Slot(outcome market.Outcome) *Slot { return r.slots[outcome] }

// ActiveOrderIDs returns every order id the reconciler still tracks,
// resting or parked in a pending-cancel set.
func (r *Reconciler) ActiveOrderIDs() []string {
	seen := make(map[string]struct{})
	for _, s := range r.slots {
		if id, ok := s.activeOrderID(); ok {
			seen[id] = struct{}{}
		}
		s.mu.Lock()
		for id := range s.pendingCancel {
			seen[id] = struct{}{}
		}
		s.mu.Unlock()
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// PendingCancels counts unacknowledged cancels across both slots.
func (r *Reconciler) PendingCancels() int {
	n := 0
	for _, s := range r.slots {
		n += s.PendingCancels()
	}
	return n
}

// ClearSlots drops all local order references after a shutdown sweep.
func (r *Reconciler) ClearSlots() {
	for _, s := range r.slots {
		if id, ok := s.activeOrderID(); ok {
			r.feed.Untrack(id)
		}
		s.reset()
	}
	metrics.PendingCancels.Set(0)
}
