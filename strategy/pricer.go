package strategy

import "math"

// Skip explains why no bid was produced.
type Skip int

const (
	SkipNone Skip = iota
	// SkipCrossed: the adjusted price crossed the ask even after falling
	// back to the best bid; any order would be invalid or a guaranteed loss.
	SkipCrossed
	// SkipCapped: the price exceeds the profitability cap derived from the
	// opposite side's cost.
	SkipCapped
)

func (s Skip) String() string {
	switch s {
	case SkipNone:
		return "none"
	case SkipCrossed:
		return "crossed"
	case SkipCapped:
		return "capped"
	default:
		return "unknown"
	}
}

// Pricer computes top-of-book bid prices with the join-or-improve policy.
// It is a pure calculator: no state, no I/O, safe for concurrent use.
type Pricer struct {
	tick     float64
	minPrice float64
	maxPrice float64
}

// spreadEpsilon absorbs float noise when comparing the spread to one tick.
const spreadEpsilon = 0.001

func NewPricer(tick float64) *Pricer {
	return &Pricer{
		tick:     tick,
		minPrice: tick,
		maxPrice: 1.0 - tick,
	}
}

// BidPrice computes the target bid for one outcome.
//
//  1. Spread wider than one tick: improve the best bid by a tick.
//     Exactly one tick: join it.
//  2. Subtract the inventory skew (positive skew lowers our bid).
//  3. Round to tick, clamp to the legal [tick, 1-tick] range.
//  4. Never cross the book: fall back to the best bid, else skip.
//  5. Profitability cap: a paired YES+NO position pays exactly $1, so a bid
//     above 1 - (opposite side's cost) cannot profit even if the opposite
//     side is acquired at its current cost. The opposite cost is the held
//     average cost, or the opposite best bid as a market proxy when flat.
//
// The reported price is always a whole tick inside (0, 1) when skip is
// SkipNone.
func (p *Pricer) BidPrice(bestBid, bestAsk, skew, oppBestBid, oppAvgCost float64) (float64, Skip) {
	spread := roundCents(bestAsk - bestBid)

	target := bestBid
	if spread > p.tick+spreadEpsilon {
		target = bestBid + p.tick
	}

	adjusted := target - skew
	adjusted = roundCents(math.Round(adjusted/p.tick) * p.tick)

	if adjusted < p.minPrice {
		adjusted = p.minPrice
	}
	if adjusted > p.maxPrice {
		adjusted = p.maxPrice
	}

	if adjusted >= bestAsk {
		adjusted = bestBid
		if adjusted >= bestAsk {
			return 0, SkipCrossed
		}
	}

	effectiveOppCost := oppAvgCost
	if effectiveOppCost <= 0 {
		effectiveOppCost = oppBestBid
	}
	cap := roundCents(1.0 - effectiveOppCost)
	if cap > p.maxPrice {
		cap = p.maxPrice
	}
	if adjusted > cap {
		return 0, SkipCapped
	}

	return adjusted, SkipNone
}

// Tick returns the configured price increment.
func (p *Pricer) Tick() float64 { return p.tick }

// HalfTick is the replace-suppression threshold: a new target closer than
// this to the last quoted price is not worth a cancel/replace cycle.
func (p *Pricer) HalfTick() float64 { return p.tick / 2 }

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
