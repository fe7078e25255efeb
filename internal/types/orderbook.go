package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level is a single price/quantity rung of an order book side.
type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// OrderBookSnapshot is a point-in-time, internally-consistent view of a
// symbol's top-N book, published for readers by the Order-Book Cache.
// Bids are ordered descending by price, asks ascending.
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []Level
	Asks      []Level
	UpdateID  int64
	WallClock time.Time
	TickSize  decimal.Decimal
}

func (s OrderBookSnapshot) BestBid() (decimal.Decimal, bool) {
	if len(s.Bids) == 0 {
		return decimal.Zero, false
	}
	return s.Bids[0].Price, true
}

func (s OrderBookSnapshot) BestAsk() (decimal.Decimal, bool) {
	if len(s.Asks) == 0 {
		return decimal.Zero, false
	}
	return s.Asks[0].Price, true
}

// Spread is best_ask - best_bid; zero value if either side is absent.
func (s OrderBookSnapshot) Spread() decimal.Decimal {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero
	}
	return ask.Sub(bid)
}

// SpreadPct is spread / mid, expressed as a fraction (not a percentage).
func (s OrderBookSnapshot) SpreadPct() float64 {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return 0
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return 0
	}
	spread := ask.Sub(bid)
	f, _ := spread.Div(mid).Float64()
	return f
}

// OBI is the Order Book Imbalance over the top k levels of each side:
// Σ bid_qty_top_k / Σ ask_qty_top_k. Returns (0, false) if either side is empty.
func (s OrderBookSnapshot) OBI(k int) (float64, bool) {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0, false
	}
	bidQty := sumTopK(s.Bids, k)
	askQty := sumTopK(s.Asks, k)
	if askQty.IsZero() {
		return 0, false
	}
	f, _ := bidQty.Div(askQty).Float64()
	return f, true
}

func sumTopK(levels []Level, k int) decimal.Decimal {
	if k <= 0 || k > len(levels) {
		k = len(levels)
	}
	total := decimal.Zero
	for _, l := range levels[:k] {
		total = total.Add(l.Qty)
	}
	return total
}

// DepthAtTop sums quantity available on one side at the best price(s), used
// by the L2 Validator's min-depth check.
func (s OrderBookSnapshot) DepthAtTop(side string, levels int) decimal.Decimal {
	var src []Level
	if side == "BUY" {
		src = s.Asks // a BUY consumes ask-side liquidity
	} else {
		src = s.Bids
	}
	return sumTopK(src, levels)
}

// Crossed reports best_bid >= best_ask, an invalid book state per §3.
func (s OrderBookSnapshot) Crossed() bool {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return false
	}
	return bid.GreaterThanOrEqual(ask)
}

// Initialized reports whether the snapshot has ever received a book.
func (s OrderBookSnapshot) Initialized() bool {
	return s.UpdateID > 0
}
