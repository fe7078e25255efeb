package phase

import (
	"github.com/oriongate/execcore/internal/eventbus"
)

const kindPhaseTransition = eventbus.KindPhaseTransition

// testBus counts published events by kind. Publish is synchronous with
// respect to the subscriber's buffered channel (it only ever enqueues), so
// draining the channel right after each Update call is deterministic and
// needs no goroutine.
type testBus struct {
	bus    *eventbus.Bus
	ch     <-chan eventbus.Event
	counts map[eventbus.Kind]int
}

func newTestBus() *testBus {
	b := eventbus.New()
	ch, _ := b.Subscribe(64)
	return &testBus{bus: b, ch: ch, counts: make(map[eventbus.Kind]int)}
}

func (tb *testBus) count(kind eventbus.Kind) int {
	for {
		select {
		case evt := <-tb.ch:
			tb.counts[evt.Kind]++
		default:
			return tb.counts[kind]
		}
	}
}
