package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
)

// mockGateway 模拟交易所网关
type mockGateway struct {
	mu          sync.Mutex
	nextID      int
	placeCalls  int
	cancelCalls []string
	placeErr    error
	cancelErr   error
	cancelAck   bool
	placeGate   chan struct{} // when set, PlaceBid blocks until closed
}

func newMockGateway() *mockGateway {
	return &mockGateway{cancelAck: true}
}

func (m *mockGateway) PlaceBid(_ context.Context, tokenID string, price, size float64) (*Order, error) {
	if m.placeGate != nil {
		<-m.placeGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	m.placeCalls++
	m.nextID++
	return &Order{
		ID:      fmt.Sprintf("ord-%d", m.nextID),
		TokenID: tokenID,
		Price:   price,
		Size:    size,
		Status:  StatusLive,
	}, nil
}

func (m *mockGateway) CancelOrder(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls = append(m.cancelCalls, orderID)
	if m.cancelErr != nil {
		return false, m.cancelErr
	}
	return m.cancelAck, nil
}

func (m *mockGateway) placed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placeCalls
}

func (m *mockGateway) cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancelCalls)
}

type mockFeed struct {
	mu      sync.Mutex
	tracked map[string]bool
}

func newMockFeed() *mockFeed {
	return &mockFeed{tracked: make(map[string]bool)}
}

func (f *mockFeed) Track(id string) {
	f.mu.Lock()
	f.tracked[id] = true
	f.mu.Unlock()
}

func (f *mockFeed) Untrack(id string) {
	f.mu.Lock()
	delete(f.tracked, id)
	f.mu.Unlock()
}

func (f *mockFeed) isTracked(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracked[id]
}

func newTestReconciler(gw Gateway, feed FillFeed) (*Reconciler, *inventory.Ledger) {
	ledger := inventory.NewLedger()
	sizer := func(float64) float64 { return 10 }
	return NewReconciler(gw, feed, ledger, sizer, 0.005, "tok-yes", "tok-no", zap.NewNop()), ledger
}

func TestReconcilePlacesOnEmptySlot(t *testing.T) {
	gw := newMockGateway()
	feed := newMockFeed()
	r, _ := newTestReconciler(gw, feed)

	if err := r.Reconcile(context.Background(), market.OutcomeYes, 0.51, true); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if gw.placed() != 1 {
		t.Errorf("placed = %d, want 1", gw.placed())
	}
	price, ok := r.Slot(market.OutcomeYes).QuotedPrice()
	if !ok || price != 0.51 {
		t.Errorf("QuotedPrice() = %v, %v, want 0.51, true", price, ok)
	}
	if !feed.isTracked("ord-1") {
		t.Error("placed order not tracked for fills")
	}
}

func TestReconcileSuppressesTinyPriceMove(t *testing.T) {
	gw := newMockGateway()
	r, _ := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	if err := r.Reconcile(ctx, market.OutcomeYes, 0.51, true); err != nil {
		t.Fatal(err)
	}
	// within half a tick: no cancel, no replace
	if err := r.Reconcile(ctx, market.OutcomeYes, 0.512, true); err != nil {
		t.Fatal(err)
	}
	if gw.placed() != 1 || gw.cancels() != 0 {
		t.Errorf("placed=%d cancels=%d, want 1/0", gw.placed(), gw.cancels())
	}
}

func TestReconcileReplacesOnPriceMove(t *testing.T) {
	gw := newMockGateway()
	r, _ := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	if err := r.Reconcile(ctx, market.OutcomeYes, 0.51, true); err != nil {
		t.Fatal(err)
	}
	if err := r.Reconcile(ctx, market.OutcomeYes, 0.49, true); err != nil {
		t.Fatal(err)
	}
	if gw.cancels() != 1 {
		t.Errorf("cancels = %d, want 1", gw.cancels())
	}
	if gw.placed() != 2 {
		t.Errorf("placed = %d, want 2", gw.placed())
	}
	price, _ := r.Slot(market.OutcomeYes).QuotedPrice()
	if price != 0.49 {
		t.Errorf("quoted price = %v, want 0.49", price)
	}
}

func TestReconcileCancelsWhenNoTarget(t *testing.T) {
	gw := newMockGateway()
	feed := newMockFeed()
	r, _ := newTestReconciler(gw, feed)
	ctx := context.Background()

	if err := r.Reconcile(ctx, market.OutcomeNo, 0.40, true); err != nil {
		t.Fatal(err)
	}
	if err := r.Reconcile(ctx, market.OutcomeNo, 0, false); err != nil {
		t.Fatal(err)
	}
	if gw.cancels() != 1 {
		t.Errorf("cancels = %d, want 1", gw.cancels())
	}
	if _, ok := r.Slot(market.OutcomeNo).QuotedPrice(); ok {
		t.Error("slot still holds an order after cancel")
	}
	if feed.isTracked("ord-1") {
		t.Error("cancelled order still tracked")
	}
}

func TestBusySlotSecondAttemptIsNoOp(t *testing.T) {
	gw := newMockGateway()
	gw.placeGate = make(chan struct{})
	r, _ := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- r.Reconcile(ctx, market.OutcomeYes, 0.51, true)
	}()

	// Wait until the first attempt is parked inside PlaceBid.
	for r.Slot(market.OutcomeYes).Phase() != PhasePlacing {
		time.Sleep(time.Millisecond)
	}

	if err := r.Reconcile(ctx, market.OutcomeYes, 0.52, true); !errors.Is(err, ErrSlotBusy) {
		t.Errorf("second attempt error = %v, want ErrSlotBusy", err)
	}

	close(gw.placeGate)
	if err := <-done; err != nil {
		t.Fatalf("first attempt error = %v", err)
	}
	if gw.placed() != 1 {
		t.Errorf("placed = %d, want 1", gw.placed())
	}
}

func TestUnackedCancelParksOrder(t *testing.T) {
	gw := newMockGateway()
	r, _ := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	if err := r.Reconcile(ctx, market.OutcomeYes, 0.51, true); err != nil {
		t.Fatal(err)
	}
	gw.cancelAck = false
	if err := r.Reconcile(ctx, market.OutcomeYes, 0.45, true); err != nil {
		t.Fatalf("unacked cancel should not be an error, got %v", err)
	}
	if r.PendingCancels() != 1 {
		t.Fatalf("pending cancels = %d, want 1", r.PendingCancels())
	}
	if gw.placed() != 1 {
		t.Errorf("placed = %d, want 1 (no placement while cancel pending)", gw.placed())
	}

	// further ticks never issue a second cancel for the parked id
	for i := 0; i < 3; i++ {
		if err := r.Reconcile(ctx, market.OutcomeYes, 0.45, true); !errors.Is(err, ErrCancelPending) {
			t.Fatalf("tick %d error = %v, want ErrCancelPending", i, err)
		}
	}
	if gw.cancels() != 1 {
		t.Errorf("cancels = %d, want 1", gw.cancels())
	}
}

func TestFillResolvesParkedCancel(t *testing.T) {
	gw := newMockGateway()
	r, ledger := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	if err := r.Reconcile(ctx, market.OutcomeYes, 0.51, true); err != nil {
		t.Fatal(err)
	}
	gw.cancelErr = errors.New("timeout")
	_ = r.Reconcile(ctx, market.OutcomeYes, 0.45, true)
	if r.PendingCancels() != 1 {
		t.Fatalf("pending cancels = %d, want 1", r.PendingCancels())
	}

	r.OnFill("ord-1", 0.51, 10)
	if r.PendingCancels() != 0 {
		t.Errorf("pending cancels = %d, want 0 after fill", r.PendingCancels())
	}
	if got := ledger.Quantity(market.OutcomeYes); got != 10 {
		t.Errorf("qYes = %v, want 10", got)
	}

	// slot free again: next tick places normally
	gw.cancelErr = nil
	if err := r.Reconcile(ctx, market.OutcomeYes, 0.45, true); err != nil {
		t.Fatal(err)
	}
	if gw.placed() != 2 {
		t.Errorf("placed = %d, want 2", gw.placed())
	}
}

func TestHaltBlocksPlacement(t *testing.T) {
	gw := newMockGateway()
	r, _ := newTestReconciler(gw, newMockFeed())

	r.Halt()
	if err := r.Reconcile(context.Background(), market.OutcomeYes, 0.51, true); err != nil {
		t.Fatalf("Reconcile() after halt error = %v", err)
	}
	if gw.placed() != 0 {
		t.Errorf("placed = %d, want 0 after halt", gw.placed())
	}
}

func TestPlacementFailureIsTransient(t *testing.T) {
	gw := newMockGateway()
	gw.placeErr = errors.New("rate limited")
	r, _ := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	if err := r.Reconcile(ctx, market.OutcomeYes, 0.51, true); err == nil {
		t.Fatal("expected placement error")
	}
	if got := r.Slot(market.OutcomeYes).Phase(); got != PhaseEmpty {
		t.Errorf("phase = %v, want EMPTY after failed placement", got)
	}

	// next tick succeeds
	gw.placeErr = nil
	if err := r.Reconcile(ctx, market.OutcomeYes, 0.51, true); err != nil {
		t.Fatal(err)
	}
	if gw.placed() != 1 {
		t.Errorf("placed = %d, want 1", gw.placed())
	}
}

func TestFailureOnOneOutcomeDoesNotBlockOther(t *testing.T) {
	gw := newMockGateway()
	gw.placeErr = errors.New("venue error")
	r, _ := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	if err := r.Reconcile(ctx, market.OutcomeYes, 0.51, true); err == nil {
		t.Fatal("expected YES placement error")
	}
	gw.placeErr = nil
	if err := r.Reconcile(ctx, market.OutcomeNo, 0.44, true); err != nil {
		t.Fatalf("NO reconcile error = %v", err)
	}
	if _, ok := r.Slot(market.OutcomeNo).QuotedPrice(); !ok {
		t.Error("NO slot empty, want live order")
	}
}

func TestActiveOrderIDsIncludesParked(t *testing.T) {
	gw := newMockGateway()
	r, _ := newTestReconciler(gw, newMockFeed())
	ctx := context.Background()

	_ = r.Reconcile(ctx, market.OutcomeYes, 0.51, true)
	_ = r.Reconcile(ctx, market.OutcomeNo, 0.46, true)
	gw.cancelAck = false
	_ = r.Reconcile(ctx, market.OutcomeYes, 0.40, true)

	ids := r.ActiveOrderIDs()
	if len(ids) != 2 {
		t.Errorf("ActiveOrderIDs() = %v, want 2 ids", ids)
	}
}
