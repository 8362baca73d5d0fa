package market

import "time"

// Level is a single price level in the book.
type Level struct {
	Price float64
	Size  float64
}

// Book is an immutable order book snapshot for one outcome token.
// A fresh snapshot replaces the previous one wholesale on every refresh;
// derived values are computed, not stored, so level ordering never matters.
type Book struct {
	TokenID   string
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// BestBid returns the highest bid price. ok is false when the bid side is empty.
func (b *Book) BestBid() (price float64, ok bool) {
	for _, l := range b.Bids {
		if !ok || l.Price > price {
			price, ok = l.Price, true
		}
	}
	return price, ok
}

// BestAsk returns the lowest ask price. ok is false when the ask side is empty.
func (b *Book) BestAsk() (price float64, ok bool) {
	for _, l := range b.Asks {
		if !ok || l.Price < price {
			price, ok = l.Price, true
		}
	}
	return price, ok
}

// Mid returns the midpoint of best bid and best ask.
func (b *Book) Mid() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Spread returns best ask minus best bid.
func (b *Book) Spread() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// HasTwoSides reports whether both sides of the book are populated.
func (b *Book) HasTwoSides() bool {
	_, okBid := b.BestBid()
	_, okAsk := b.BestAsk()
	return okBid && okAsk
}
