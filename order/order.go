package order

import (
	"time"

	"polymarket-maker-go/market"
)

// Status represents the exchange-side order lifecycle.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusLive            Status = "LIVE"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusFailed          Status = "FAILED"
)

// Order is a resting bid tracked by a reconciler slot. The quoter only ever
// rests BUY orders; exits happen through fills or shutdown liquidation.
type Order struct {
	ID         string
	TokenID    string
	Outcome    market.Outcome
	Side       market.Side
	Price      float64
	Size       float64
	FilledSize float64
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RemainingSize is the unfilled portion.
func (o *Order) RemainingSize() float64 {
	return o.Size - o.FilledSize
}

// IsActive reports whether the order may still be resting at the venue.
func (o *Order) IsActive() bool {
	switch o.Status {
	case StatusPending, StatusLive, StatusPartiallyFilled:
		return true
	default:
		return false
	}
}
