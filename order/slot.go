package order

import (
	"sync"

	"polymarket-maker-go/market"
)

// Slot owns at most one resting bid for a single outcome. The mutex guards
// field access only; it is never held across an exchange round-trip. The
// busy flag is what serializes whole reconcile attempts: a second tick that
// finds the flag set backs off instead of racing an in-flight cancel or
// placement.
type Slot struct {
	outcome market.Outcome
	tokenID string

	mu            sync.Mutex
	phase         Phase
	busy          bool
	order         *Order
	lastPrice     float64
	hasLastPrice  bool
	pendingCancel map[string]struct{}
}

func NewSlot(outcome market.Outcome, tokenID string) *Slot {
	return &Slot{
		outcome:       outcome,
		tokenID:       tokenID,
		phase:         PhaseEmpty,
		pendingCancel: make(map[string]struct{}),
	}
}

func (s *Slot) Outcome() market.Outcome { return s.outcome }
func (s *Slot) TokenID() string         { return s.tokenID }

// tryAcquire claims the slot for one reconcile attempt.
func (s *Slot) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Slot) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// ForceBusy permanently claims the slot; used by shutdown so that a tick
// arriving mid-halt can never start a new placement.
func (s *Slot) ForceBusy() {
	s.mu.Lock()
	s.busy = true
	s.mu.Unlock()
}

// current returns a copy of the resting order (nil if none) and the last
// quoted price.
func (s *Slot) current() (ord *Order, lastPrice float64, hasLast bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order != nil {
		cp := *s.order
		ord = &cp
	}
	return ord, s.lastPrice, s.hasLastPrice
}

// Phase returns the current slot phase.
func (s *Slot) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// QuotedPrice returns the live bid price, ok=false when the slot is empty.
func (s *Slot) QuotedPrice() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || !s.order.IsActive() {
		return 0, false
	}
	return s.order.Price, true
}

func (s *Slot) setPhase(sm *StateMachine, to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := sm.ValidateTransition(s.phase, to); err != nil {
		return err
	}
	s.phase = to
	return nil
}

// setLive installs a freshly placed order.
func (s *Slot) setLive(sm *StateMachine, ord *Order, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := sm.ValidateTransition(s.phase, PhaseLive); err != nil {
		return err
	}
	s.phase = PhaseLive
	s.order = ord
	s.lastPrice = price
	s.hasLastPrice = true
	return nil
}

// clearIfMatches empties the slot when it still holds orderID. Returns
// false when a concurrent fill already cleared it, which callers treat as
// a no-op.
func (s *Slot) clearIfMatches(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || s.order.ID != orderID {
		return false
	}
	s.order = nil
	s.hasLastPrice = false
	s.lastPrice = 0
	s.phase = PhaseEmpty
	delete(s.pendingCancel, orderID)
	return true
}

// takeIfMatches resolves a fill: when the slot (or its pending-cancel set)
// knows orderID, the slot is emptied and ok is true.
func (s *Slot) takeIfMatches(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, pending := s.pendingCancel[orderID]
	if (s.order == nil || s.order.ID != orderID) && !pending {
		return false
	}
	delete(s.pendingCancel, orderID)
	if s.order != nil && s.order.ID == orderID {
		s.order = nil
		s.hasLastPrice = false
		s.lastPrice = 0
		s.phase = PhaseEmpty
	}
	return true
}

func (s *Slot) markPendingCancel(orderID string) {
	s.mu.Lock()
	s.pendingCancel[orderID] = struct{}{}
	s.mu.Unlock()
}

func (s *Slot) isPendingCancel(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pendingCancel[orderID]
	return ok
}

// PendingCancels returns the number of unacknowledged cancels parked on
// this slot.
func (s *Slot) PendingCancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingCancel)
}

// reset clears all slot state, used after a shutdown cancel sweep.
func (s *Slot) reset() {
	s.mu.Lock()
	s.order = nil
	s.hasLastPrice = false
	s.lastPrice = 0
	s.phase = PhaseEmpty
	s.pendingCancel = make(map[string]struct{})
	s.mu.Unlock()
}

// activeOrderID returns the resting order id, if any.
func (s *Slot) activeOrderID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || !s.order.IsActive() {
		return "", false
	}
	return s.order.ID, true
}
