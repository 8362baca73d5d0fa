package order

import "fmt"

// Phase is the local slot lifecycle, distinct from the exchange-side order
// Status: a slot is the single resting-bid holder for one outcome.
type Phase string

const (
	PhaseEmpty      Phase = "EMPTY"
	PhasePlacing    Phase = "PLACING"
	PhaseLive       Phase = "LIVE"
	PhaseCancelling Phase = "CANCELLING"
)

type transition struct {
	from Phase
	to   Phase
}

// StateMachine validates slot phase changes. A failed placement is a
// transient PLACING→EMPTY re-entry rather than a dedicated phase.
type StateMachine struct {
	transitions map[transition]bool
}

func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[transition]bool)}
	legal := []transition{
		{PhaseEmpty, PhasePlacing},

		{PhasePlacing, PhaseLive},
		{PhasePlacing, PhaseEmpty}, // placement failed

		{PhaseLive, PhaseCancelling},
		{PhaseLive, PhaseEmpty}, // cleared by fill

		{PhaseCancelling, PhaseEmpty},
		{PhaseCancelling, PhaseLive}, // cancel not acknowledged, order still rests
	}
	for _, t := range legal {
		sm.transitions[t] = true
	}
	return sm
}

// ValidateTransition returns an error for an illegal phase change.
// Same-phase transitions are allowed for idempotency.
func (sm *StateMachine) ValidateTransition(from, to Phase) error {
	if from == to {
		return nil
	}
	if !sm.transitions[transition{from: from, to: to}] {
		return fmt.Errorf("illegal slot transition: %s -> %s", from, to)
	}
	return nil
}

// IsActivePhase reports whether the slot currently owns a venue order.
func (sm *StateMachine) IsActivePhase(p Phase) bool {
	switch p {
	case PhasePlacing, PhaseLive, PhaseCancelling:
		return true
	default:
		return false
	}
}
