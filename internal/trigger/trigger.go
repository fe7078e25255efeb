// Package trigger implements the optional client-side trigger fast path
// (§4.9): evaluating a stored trigger condition against live price ticks and
// firing the prepared intent locally without waiting for a CONFIRM. It is
// grounded on the trade-tick callback shape (handleTradeMessage) of the
// exchange WS client this core's order-book feed is also grounded on.
package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Condition is a pending trigger watch for one signal_id.
type Condition struct {
	SignalID      string
	Symbol        string
	TriggerPrice  decimal.Decimal
	Comparator    string // ">", "<", ">=", "<="
	BarCloseTime  time.Time
	TimeoutMs     int64
}

func (c Condition) deadline() time.Time {
	timeout := c.TimeoutMs
	if timeout <= 0 {
		timeout = 5000
	}
	return c.BarCloseTime.Add(time.Duration(timeout) * time.Millisecond)
}

func (c Condition) satisfied(price decimal.Decimal) bool {
	switch c.Comparator {
	case ">":
		return price.GreaterThan(c.TriggerPrice)
	case "<":
		return price.LessThan(c.TriggerPrice)
	case ">=":
		return price.GreaterThanOrEqual(c.TriggerPrice)
	case "<=":
		return price.LessThanOrEqual(c.TriggerPrice)
	}
	return false
}

// Watcher holds pending conditions per symbol and fires a callback when one
// is satisfied, or auto-aborts it at its deadline.
type Watcher struct {
	mu        sync.Mutex
	bySymbol  map[string][]Condition
	onFire    func(symbol, signalID string, price decimal.Decimal)
	onTimeout func(symbol, signalID string)
}

func NewWatcher(onFire func(symbol, signalID string, price decimal.Decimal), onTimeout func(symbol, signalID string)) *Watcher {
	return &Watcher{bySymbol: make(map[string][]Condition), onFire: onFire, onTimeout: onTimeout}
}

// SetCallbacks wires the fire/timeout callbacks after construction, for the
// common case where the Dispatcher that implements them is built after the
// Watcher it registers conditions with.
func (w *Watcher) SetCallbacks(onFire func(symbol, signalID string, price decimal.Decimal), onTimeout func(symbol, signalID string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFire = onFire
	w.onTimeout = onTimeout
}

// Register adds a pending condition.
func (w *Watcher) Register(c Condition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bySymbol[c.Symbol] = append(w.bySymbol[c.Symbol], c)
}

// OnTick evaluates every pending condition for symbol against price, firing
// and removing any that are satisfied.
func (w *Watcher) OnTick(symbol string, price decimal.Decimal) {
	now := time.Now()
	w.mu.Lock()
	pending := w.bySymbol[symbol]
	var kept []Condition
	for _, c := range pending {
		switch {
		case c.satisfied(price):
			w.fireLater(c.Symbol, c.SignalID, price)
		case now.After(c.deadline()):
			w.timeoutLater(c.Symbol, c.SignalID)
		default:
			kept = append(kept, c)
		}
	}
	w.bySymbol[symbol] = kept
	w.mu.Unlock()
}

func (w *Watcher) fireLater(symbol, signalID string, price decimal.Decimal) {
	if w.onFire != nil {
		go w.onFire(symbol, signalID, price)
	}
}

func (w *Watcher) timeoutLater(symbol, signalID string) {
	if w.onTimeout != nil {
		go w.onTimeout(symbol, signalID)
	}
}

// SweepTimeouts is a periodic fallback for symbols with no further ticks,
// so a condition's auto-abort doesn't depend solely on the next tick arriving.
func (w *Watcher) SweepTimeouts(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			w.mu.Lock()
			for symbol, conds := range w.bySymbol {
				var kept []Condition
				for _, c := range conds {
					if now.After(c.deadline()) {
						w.timeoutLater(c.Symbol, c.SignalID)
					} else {
						kept = append(kept, c)
					}
				}
				w.bySymbol[symbol] = kept
			}
			w.mu.Unlock()
		}
	}
}
