package strategy

import (
	"math"
	"testing"
)

func TestBidPriceJoinOrImprove(t *testing.T) {
	p := NewPricer(0.01)

	tests := []struct {
		name       string
		bestBid    float64
		bestAsk    float64
		skew       float64
		oppBestBid float64
		oppAvgCost float64
		wantPrice  float64
		wantSkip   Skip
	}{
		{
			name:    "wide spread improves by one tick",
			bestBid: 0.50, bestAsk: 0.53,
			oppBestBid: 0.45,
			wantPrice:  0.51, wantSkip: SkipNone,
		},
		{
			name:    "one tick spread joins best bid",
			bestBid: 0.50, bestAsk: 0.51,
			oppBestBid: 0.45,
			wantPrice:  0.50, wantSkip: SkipNone,
		},
		{
			name:    "positive skew lowers the join price",
			bestBid: 0.50, bestAsk: 0.51, skew: 0.05,
			oppBestBid: 0.45,
			wantPrice:  0.45, wantSkip: SkipNone,
		},
		{
			name:    "negative skew raising price hits cross guard fallback",
			bestBid: 0.50, bestAsk: 0.51, skew: -0.05,
			oppBestBid: 0.45,
			wantPrice:  0.50, wantSkip: SkipNone,
		},
		{
			name:    "crossed book cannot quote",
			bestBid: 0.52, bestAsk: 0.52,
			oppBestBid: 0.45,
			wantSkip:   SkipCrossed,
		},
		{
			name:    "profitability cap from opposite avg cost",
			bestBid: 0.50, bestAsk: 0.53,
			oppBestBid: 0.30, oppAvgCost: 0.60,
			wantSkip: SkipCapped,
		},
		{
			name:    "cap uses opposite best bid when flat",
			bestBid: 0.70, bestAsk: 0.73,
			oppBestBid: 0.40,
			wantSkip:   SkipCapped, // cap = 0.60, improve target = 0.71
		},
		{
			name:    "bid exactly at cap passes",
			bestBid: 0.39, bestAsk: 0.42,
			oppBestBid: 0.30, oppAvgCost: 0.60,
			wantPrice: 0.40, wantSkip: SkipNone,
		},
		{
			name:    "clamped to max legal price",
			bestBid: 0.985, bestAsk: 0.999, skew: -0.5,
			oppBestBid: 0.005,
			wantPrice:  0.99, wantSkip: SkipNone,
		},
		{
			name:    "clamped to min legal price",
			bestBid: 0.02, bestAsk: 0.05, skew: 0.5,
			oppBestBid: 0.90,
			wantPrice:  0.01, wantSkip: SkipNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skip := p.BidPrice(tt.bestBid, tt.bestAsk, tt.skew, tt.oppBestBid, tt.oppAvgCost)
			if skip != tt.wantSkip {
				t.Fatalf("skip = %v, want %v (price %v)", skip, tt.wantSkip, got)
			}
			if skip == SkipNone && math.Abs(got-tt.wantPrice) > 1e-9 {
				t.Errorf("price = %v, want %v", got, tt.wantPrice)
			}
		})
	}
}

func TestBidPriceAlwaysOnTick(t *testing.T) {
	p := NewPricer(0.01)
	for skew := -0.1; skew <= 0.1; skew += 0.013 {
		price, skip := p.BidPrice(0.47, 0.52, skew, 0.48, 0)
		if skip != SkipNone {
			continue
		}
		cents := price * 100
		if math.Abs(cents-math.Round(cents)) > 1e-6 {
			t.Errorf("skew %v produced off-tick price %v", skew, price)
		}
		if price < 0.01 || price > 0.99 {
			t.Errorf("skew %v produced out-of-range price %v", skew, price)
		}
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeStopped, "STOPPED"},
		{ModeQuoting, "QUOTING"},
		{ModeSkewedYes, "SKEWED_YES"},
		{ModeSkewedNo, "SKEWED_NO"},
		{Mode(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
