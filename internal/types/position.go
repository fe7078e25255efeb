package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the held direction of a Position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

func SideFromDirection(d Direction) Side {
	if d == DirectionLong {
		return SideLong
	}
	return SideShort
}

// Sign returns +1 for LONG, -1 for SHORT, matching the PnL formula in §4.6.
func (s Side) Sign() int64 {
	if s == SideLong {
		return 1
	}
	return -1
}

// Position is the Shadow State's authoritative record of an open position.
// At most one exists per symbol (§3 invariant).
type Position struct {
	Symbol         string
	Side           Side
	Size           decimal.Decimal
	AvgEntryPrice  decimal.Decimal
	CurrentStop    decimal.Decimal
	TakeProfits    []decimal.Decimal
	BrokerOrderIDs []string
	OpenedAt       time.Time
	PhaseAtEntry   int
	RegimeAtEntry  RegimeState
	UnrealizedPnL  decimal.Decimal
	ReconciledAt   time.Time
}

// ApplyFill folds an additional fill into the position's weighted-average
// entry price and size: avg_entry = Σ(p_i·s_i)/Σs_i (§3 invariant).
func (p *Position) ApplyFill(fillPrice, fillSize decimal.Decimal, brokerOrderID string) {
	totalCost := p.AvgEntryPrice.Mul(p.Size).Add(fillPrice.Mul(fillSize))
	p.Size = p.Size.Add(fillSize)
	if !p.Size.IsZero() {
		p.AvgEntryPrice = totalCost.Div(p.Size)
	}
	if brokerOrderID != "" {
		p.BrokerOrderIDs = append(p.BrokerOrderIDs, brokerOrderID)
	}
}

// RealizedPnL computes (exit_price - avg_entry_price) * size * sign(side).
func (p *Position) RealizedPnL(exitPrice decimal.Decimal) decimal.Decimal {
	diff := exitPrice.Sub(p.AvgEntryPrice)
	pnl := diff.Mul(p.Size)
	if p.Side.Sign() < 0 {
		pnl = pnl.Neg()
	}
	return pnl
}

// PyramidState tracks the discrete-layer pyramid built on top of a winning Position.
type PyramidState struct {
	Symbol           string
	Side             Side
	LayerCount       int
	EntryPrices      []decimal.Decimal
	LayerSizes       []decimal.Decimal
	AvgEntryPrice    decimal.Decimal
	LastEntryPrice   decimal.Decimal
	CurrentStop      decimal.Decimal
	AutoTrailEnabled bool
}

// AddLayer appends a new entry layer and recomputes the weighted average.
func (p *PyramidState) AddLayer(price, size decimal.Decimal) {
	p.EntryPrices = append(p.EntryPrices, price)
	p.LayerSizes = append(p.LayerSizes, size)
	p.LayerCount++
	p.LastEntryPrice = price

	totalSize := decimal.Zero
	weighted := decimal.Zero
	for i, s := range p.LayerSizes {
		totalSize = totalSize.Add(s)
		weighted = weighted.Add(p.EntryPrices[i].Mul(s))
	}
	if !totalSize.IsZero() {
		p.AvgEntryPrice = weighted.Div(totalSize)
	}
}

// TotalSize sums all layer sizes.
func (p *PyramidState) TotalSize() decimal.Decimal {
	total := decimal.Zero
	for _, s := range p.LayerSizes {
		total = total.Add(s)
	}
	return total
}

// TradeRecord is the realized-PnL summary returned by Shadow State's close_position.
type TradeRecord struct {
	Symbol        string
	Side          Side
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	ExitPrice     decimal.Decimal
	PnL           decimal.Decimal
	Reason        string
	PhaseAtEntry  int
	RegimeAtEntry RegimeState
	OpenedAt      time.Time
	ClosedAt      time.Time
}
