package orderbook

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

func lvl(price, qty float64) types.Level {
	return types.Level{Price: decimal.NewFromFloat(price), Qty: decimal.NewFromFloat(qty)}
}

func TestApplyFullSnapshotAlwaysAccepted(t *testing.T) {
	b := NewBook("BTC-USD", decimal.NewFromFloat(0.01))
	gap := b.Apply(Update{
		Symbol: "BTC-USD",
		Bids:   []types.Level{lvl(100, 1)},
		Asks:   []types.Level{lvl(101, 1)},
		UpdateID: 5,
		Full:   true,
	})
	if gap {
		t.Fatal("a full snapshot must never report a gap")
	}
	snap := b.Snapshot()
	if snap.UpdateID != 5 {
		t.Errorf("update id = %d, want 5", snap.UpdateID)
	}
}

func TestApplyDeltaDetectsGap(t *testing.T) {
	b := NewBook("BTC-USD", decimal.NewFromFloat(0.01))
	b.Apply(Update{Bids: []types.Level{lvl(100, 1)}, Asks: []types.Level{lvl(101, 1)}, UpdateID: 5, Full: true})

	// prev_update_id doesn't match the last applied update_id (5) -> gap
	gap := b.Apply(Update{Bids: []types.Level{lvl(100, 2)}, Asks: []types.Level{lvl(101, 2)}, PrevUpdateID: 4, UpdateID: 6})
	if !gap {
		t.Fatal("mismatched prev_update_id must be reported as a gap")
	}

	// once flagged needing resync, further deltas are rejected until a full resync
	gapAgain := b.Apply(Update{Bids: []types.Level{lvl(100, 3)}, Asks: []types.Level{lvl(101, 3)}, PrevUpdateID: 5, UpdateID: 7})
	if !gapAgain {
		t.Fatal("book awaiting resync must keep reporting gaps for subsequent deltas")
	}
}

func TestApplyDeltaAcceptsMatchingSequence(t *testing.T) {
	b := NewBook("BTC-USD", decimal.NewFromFloat(0.01))
	b.Apply(Update{Bids: []types.Level{lvl(100, 1)}, Asks: []types.Level{lvl(101, 1)}, UpdateID: 5, Full: true})

	gap := b.Apply(Update{Bids: []types.Level{lvl(100, 2)}, Asks: []types.Level{lvl(101, 2)}, PrevUpdateID: 5, UpdateID: 6})
	if gap {
		t.Fatal("a correctly sequenced delta must not report a gap")
	}
	snap := b.Snapshot()
	if snap.UpdateID != 6 {
		t.Errorf("update id = %d, want 6", snap.UpdateID)
	}
}

func TestValidateRejectsUninitializedBook(t *testing.T) {
	b := NewBook("BTC-USD", decimal.NewFromFloat(0.01))
	err := b.Validate(time.Now(), StaleAfter)
	if err == nil {
		t.Fatal("an uninitialized book must fail validation")
	}
	var de *types.DomainError
	if !errors.As(err, &de) || de.Kind != types.ErrNoMarketData {
		t.Errorf("expected NO_MARKET_DATA, got %v", err)
	}
}

func TestValidateRejectsStaleBook(t *testing.T) {
	b := NewBook("BTC-USD", decimal.NewFromFloat(0.01))
	b.Apply(Update{Bids: []types.Level{lvl(100, 1)}, Asks: []types.Level{lvl(101, 1)}, UpdateID: 1, Full: true})

	err := b.Validate(time.Now().Add(10*time.Second), StaleAfter)
	if err == nil {
		t.Fatal("a book older than max age must fail validation")
	}
}

func TestValidateRejectsCrossedBook(t *testing.T) {
	b := NewBook("BTC-USD", decimal.NewFromFloat(0.01))
	b.Apply(Update{Bids: []types.Level{lvl(102, 1)}, Asks: []types.Level{lvl(101, 1)}, UpdateID: 1, Full: true})

	err := b.Validate(time.Now(), StaleAfter)
	if err == nil {
		t.Fatal("a crossed book (bid > ask) must fail validation")
	}
}

func TestSnapshotDerivedFields(t *testing.T) {
	b := NewBook("BTC-USD", decimal.NewFromFloat(0.01))
	b.Apply(Update{
		Bids:     []types.Level{lvl(100, 10), lvl(99, 10)},
		Asks:     []types.Level{lvl(101, 5), lvl(102, 5)},
		UpdateID: 1,
		Full:     true,
	})
	snap := b.Snapshot()

	wantSpread := decimal.NewFromInt(1)
	if !snap.Spread().Equal(wantSpread) {
		t.Errorf("spread = %s, want %s", snap.Spread(), wantSpread)
	}

	obi, ok := snap.OBI(2)
	if !ok {
		t.Fatal("expected OBI to be computable with both sides populated")
	}
	wantOBI := 2.0 // bidQty 20 / askQty 10
	if obi != wantOBI {
		t.Errorf("OBI = %v, want %v", obi, wantOBI)
	}
}
