package shadowstate

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

func sig(signalID, symbol string) types.Signal {
	return types.Signal{SignalID: signalID, Kind: types.SignalPrepare, Symbol: symbol, Direction: types.DirectionLong}
}

func TestProcessIntentIsIdempotentBySignalID(t *testing.T) {
	s := New(nil, nil)
	first := s.ProcessIntent(sig("sig-1", "BTC-USD"))
	second := s.ProcessIntent(sig("sig-1", "BTC-USD"))
	if first != second {
		t.Fatal("re-processing the same signal_id must return the exact same Intent, not a new one")
	}
	if len(s.Positions()) != 0 {
		t.Fatal("ProcessIntent alone must not create a position")
	}
}

func TestConfirmExecutionFoldsInWeightedAverage(t *testing.T) {
	s := New(nil, nil)
	s.ProcessIntent(sig("sig-1", "BTC-USD"))
	s.MarkExecuting("BTC-USD", "sig-1")

	fill1 := types.Fill{BrokerOrderID: "o-1", Symbol: "BTC-USD", FillPrice: decimal.NewFromInt(100), FillSize: decimal.NewFromInt(1), Filled: false}
	pos1 := s.ConfirmExecution("BTC-USD", "sig-1", fill1, types.SideLong, 1, types.RegimeNeutral, decimal.NewFromInt(95), nil)
	if !pos1.AvgEntryPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("avg entry after first partial fill = %s, want 100", pos1.AvgEntryPrice)
	}

	fill2 := types.Fill{BrokerOrderID: "o-1", Symbol: "BTC-USD", FillPrice: decimal.NewFromInt(110), FillSize: decimal.NewFromInt(1), Filled: true}
	pos2 := s.ConfirmExecution("BTC-USD", "sig-1", fill2, types.SideLong, 1, types.RegimeNeutral, decimal.NewFromInt(95), nil)
	if !pos2.AvgEntryPrice.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("avg entry after second fill = %s, want 105 (weighted average)", pos2.AvgEntryPrice)
	}
	if !pos2.Size.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("size after both fills = %s, want 2", pos2.Size)
	}

	got, ok := s.GetPosition("BTC-USD")
	if !ok || !got.Size.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("GetPosition should reflect the folded-in fills, got %+v ok=%v", got, ok)
	}
}

func TestAbortDistinguishesFilledFromPending(t *testing.T) {
	s := New(nil, nil)

	// PENDING -> abort cancels
	s.ProcessIntent(sig("sig-pending", "BTC-USD"))
	s.Abort("BTC-USD", "sig-pending")
	if ok := s.MarkExecuting("BTC-USD", "sig-pending"); ok {
		t.Fatal("a canceled intent must not accept a further transition to EXECUTING")
	}

	// FILLED -> abort is a late-abort warning, position must remain intact
	s.ProcessIntent(sig("sig-filled", "ETH-USD"))
	s.MarkExecuting("ETH-USD", "sig-filled")
	fill := types.Fill{BrokerOrderID: "o-1", Symbol: "ETH-USD", FillPrice: decimal.NewFromInt(50), FillSize: decimal.NewFromInt(1), Filled: true}
	s.ConfirmExecution("ETH-USD", "sig-filled", fill, types.SideLong, 1, types.RegimeNeutral, decimal.NewFromInt(45), nil)

	s.Abort("ETH-USD", "sig-filled")
	pos, ok := s.GetPosition("ETH-USD")
	if !ok {
		t.Fatal("a late abort on an already-filled intent must leave the position intact")
	}
	if !pos.Size.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("position size changed after late abort: got %s, want 1", pos.Size)
	}
}

func TestClosePositionComputesRealizedPnL(t *testing.T) {
	s := New(nil, nil)
	s.ProcessIntent(sig("sig-1", "BTC-USD"))
	s.MarkExecuting("BTC-USD", "sig-1")
	fill := types.Fill{BrokerOrderID: "o-1", Symbol: "BTC-USD", FillPrice: decimal.NewFromInt(100), FillSize: decimal.NewFromInt(1), Filled: true}
	s.ConfirmExecution("BTC-USD", "sig-1", fill, types.SideLong, 1, types.RegimeNeutral, decimal.NewFromInt(95), nil)

	rec, ok := s.ClosePosition("BTC-USD", decimal.NewFromInt(120), "take_profit")
	if !ok {
		t.Fatal("expected ClosePosition to succeed on an open position")
	}
	if !rec.PnL.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("realized pnl = %s, want 20", rec.PnL)
	}
	if s.HasPosition("BTC-USD") {
		t.Fatal("position must be gone after close")
	}
}

func TestPyramidLazilyCreatedOnlyWithExistingPosition(t *testing.T) {
	s := New(nil, nil)
	if p := s.Pyramid("BTC-USD"); p != nil {
		t.Fatal("Pyramid must return nil for a symbol with no open position")
	}

	s.ProcessIntent(sig("sig-1", "BTC-USD"))
	s.MarkExecuting("BTC-USD", "sig-1")
	fill := types.Fill{BrokerOrderID: "o-1", Symbol: "BTC-USD", FillPrice: decimal.NewFromInt(100), FillSize: decimal.NewFromInt(1), Filled: true}
	s.ConfirmExecution("BTC-USD", "sig-1", fill, types.SideLong, 2, types.RegimeNeutral, decimal.NewFromInt(95), nil)

	p := s.Pyramid("BTC-USD")
	if p == nil {
		t.Fatal("Pyramid must lazily create a PyramidState once a position exists")
	}
	if p.LayerCount != 0 {
		t.Fatalf("a freshly lazily-created PyramidState must start with LayerCount 0, got %d", p.LayerCount)
	}
	if p.Side != types.SideLong {
		t.Errorf("pyramid side = %s, want LONG to match the position", p.Side)
	}
}
