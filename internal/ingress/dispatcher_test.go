package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/broker"
	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/l2validator"
	"github.com/oriongate/execcore/internal/orderbook"
	"github.com/oriongate/execcore/internal/phase"
	"github.com/oriongate/execcore/internal/replayguard"
	"github.com/oriongate/execcore/internal/shadowstate"
	"github.com/oriongate/execcore/internal/trigger"
	"github.com/oriongate/execcore/internal/types"
)

func lvl(price, qty float64) types.Level {
	return types.Level{Price: decimal.NewFromFloat(price), Qty: decimal.NewFromFloat(qty)}
}

// seedHealthyBook registers a tight, deep, buy-favoring book so the L2
// Validator passes every check for a BUY of reasonable size.
func seedHealthyBook(cache *orderbook.Cache, symbol string) {
	book := cache.Register(symbol, decimal.NewFromFloat(0.01))
	book.Apply(orderbook.Update{
		Symbol: symbol,
		Bids:   []types.Level{lvl(100.00, 50), lvl(99.99, 50), lvl(99.98, 50)},
		Asks:   []types.Level{lvl(100.01, 5), lvl(100.02, 5), lvl(100.03, 5)},
		UpdateID: 1,
		Full:     true,
	})
}

// newTestDispatcher wires a Dispatcher with phase 2 (TAKER, DAY/SWING
// allowed, no limit-or-kill/chaser needed) so execute() takes the direct
// gateway.SendOrder path.
func newTestDispatcher(t *testing.T, symbol string) (*Dispatcher, *trigger.Watcher, *shadowstate.State) {
	t.Helper()
	bus := eventbus.New()
	state := shadowstate.New(nil, bus)
	books := orderbook.NewCache()
	seedHealthyBook(books, symbol)
	validator := l2validator.New(l2validator.DefaultConfig(), books)

	phases := phase.New(bus)
	phases.Update(decimal.NewFromInt(2000)) // phase 2: TAKER, DAY/SWING

	adapter := broker.NewMockAdapter(decimal.NewFromInt(2000))
	gateway := broker.NewGateway(adapter, 1000)

	watcher := trigger.NewWatcher(nil, nil)
	replay := replayguard.New(time.Minute, nil)

	d := New(Deps{
		Secret: "test-secret", SourceIDs: []string{"src"},
		Replay: replay, State: state, Phases: phases, Validator: validator,
		Books: books, Gateway: gateway, Bus: bus, Triggers: watcher,
	})
	watcher.SetCallbacks(d.HandleTriggerFire, d.HandleTriggerTimeout)
	return d, watcher, state
}

func preparedTriggerSignal(symbol string, triggerPrice decimal.Decimal) types.Signal {
	return types.Signal{
		SignalID: "sig-trig-1", Kind: types.SignalPrepare, Symbol: symbol,
		Direction: types.DirectionLong, StopLoss: decimal.NewFromFloat(95),
		TakeProfits: []decimal.Decimal{decimal.NewFromFloat(110)},
		Size:        decimal.NewFromInt(1), SignalType: types.SignalDay,
		Timestamp:        time.Now(),
		TriggerPrice:     &triggerPrice,
		TriggerCondition: ">",
		Regime:           types.RegimeVector{StructureScore: 90, MomentumScore: 90},
	}
}

func TestTriggerFireMarksIntentAndExecutesWithoutConfirm(t *testing.T) {
	symbol := "BTC-PERP"
	d, watcher, state := newTestDispatcher(t, symbol)

	sig := preparedTriggerSignal(symbol, decimal.NewFromFloat(100))
	resp := d.dispatch(context.Background(), sig)
	if resp.Status != "pending_trigger" {
		t.Fatalf("expected pending_trigger, got %+v", resp)
	}

	watcher.OnTick(symbol, decimal.NewFromFloat(101))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if intent, ok := state.GetIntent(symbol, sig.SignalID); ok && intent.Triggered {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	intent, ok := state.GetIntent(symbol, sig.SignalID)
	if !ok || !intent.Triggered {
		t.Fatal("expected the intent to be marked triggered by the fast path")
	}

	for time.Now().Before(deadline) {
		if state.HasPosition(symbol) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !state.HasPosition(symbol) {
		t.Fatal("expected the client-side trigger to place and fill an order")
	}
}

func TestConfirmAfterTriggerFireIsDeduped(t *testing.T) {
	symbol := "ETH-PERP"
	d, watcher, state := newTestDispatcher(t, symbol)

	sig := preparedTriggerSignal(symbol, decimal.NewFromFloat(100))
	d.dispatch(context.Background(), sig)
	watcher.OnTick(symbol, decimal.NewFromFloat(101))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if intent, ok := state.GetIntent(symbol, sig.SignalID); ok && intent.Triggered {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	confirm := sig
	confirm.Kind = types.SignalConfirm
	resp := d.dispatch(context.Background(), confirm)
	if resp.Status != "duplicate" {
		t.Fatalf("expected CONFIRM after a fired trigger to be deduped as a duplicate, got %+v", resp)
	}
}

func TestTriggerTimeoutCancelsIntent(t *testing.T) {
	symbol := "SOL-PERP"
	d, watcher, state := newTestDispatcher(t, symbol)

	triggerPrice := decimal.NewFromFloat(100)
	sig := preparedTriggerSignal(symbol, triggerPrice)
	sig.Timestamp = time.Now().Add(-time.Minute) // already past a short timeout
	d.dispatch(context.Background(), sig)

	watcher.OnTick(symbol, decimal.NewFromFloat(50)) // never satisfies ">" 100, but already past deadline

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if intent, ok := state.GetIntent(symbol, sig.SignalID); ok && intent.Status == types.IntentCanceled {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the intent to be canceled after the trigger timed out")
}
