package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestApplyFillWeightedAverage(t *testing.T) {
	pos := &Position{Side: SideLong}
	pos.ApplyFill(decimal.NewFromInt(100), decimal.NewFromInt(2), "order-1")
	pos.ApplyFill(decimal.NewFromInt(110), decimal.NewFromInt(2), "order-2")

	// (100*2 + 110*2) / 4 = 105
	want := decimal.NewFromInt(105)
	if !pos.AvgEntryPrice.Equal(want) {
		t.Errorf("avg entry price = %s, want %s", pos.AvgEntryPrice, want)
	}
	if !pos.Size.Equal(decimal.NewFromInt(4)) {
		t.Errorf("size = %s, want 4", pos.Size)
	}
	if len(pos.BrokerOrderIDs) != 2 {
		t.Errorf("expected 2 broker order ids, got %d", len(pos.BrokerOrderIDs))
	}
}

func TestRealizedPnLSignFollowsSide(t *testing.T) {
	long := &Position{Side: SideLong, AvgEntryPrice: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}
	if pnl := long.RealizedPnL(decimal.NewFromInt(110)); !pnl.Equal(decimal.NewFromInt(10)) {
		t.Errorf("long pnl = %s, want 10", pnl)
	}

	short := &Position{Side: SideShort, AvgEntryPrice: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}
	if pnl := short.RealizedPnL(decimal.NewFromInt(110)); !pnl.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("short pnl = %s, want -10", pnl)
	}
}

func TestPyramidStateAddLayerWeightedAverage(t *testing.T) {
	p := &PyramidState{Side: SideLong}
	p.AddLayer(decimal.NewFromInt(100), decimal.NewFromInt(1))
	p.AddLayer(decimal.NewFromInt(120), decimal.NewFromInt(1))

	want := decimal.NewFromInt(110)
	if !p.AvgEntryPrice.Equal(want) {
		t.Errorf("pyramid avg entry = %s, want %s", p.AvgEntryPrice, want)
	}
	if p.LayerCount != 2 {
		t.Errorf("layer count = %d, want 2", p.LayerCount)
	}
	if !p.TotalSize().Equal(decimal.NewFromInt(2)) {
		t.Errorf("total size = %s, want 2", p.TotalSize())
	}
}
