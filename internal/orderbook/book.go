// Package orderbook maintains the per-symbol top-N order book mirror (§4.3).
// It is grounded on feeds/orderbook.go from the codebase this core grows
// from, extended with the monotonic update_id sequencing, OBI, tick_size,
// and validate() that file never had.
package orderbook

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

// StaleAfter is the default cache-age threshold used by validate().
const StaleAfter = 3 * time.Second

// Update is a single depth-stream delta as received from the exchange feed.
type Update struct {
	Symbol       string
	Bids         []types.Level
	Asks         []types.Level
	UpdateID     int64
	PrevUpdateID int64
	Full         bool // true for a REST snapshot (resync), ignores PrevUpdateID
}

// Book is the single-writer-per-symbol, multi-reader order book. Readers
// call Snapshot to get a consistent, immutable point-in-time view; they
// never observe a mid-apply intermediate state because Snapshot copies
// under the same lock Apply holds.
type Book struct {
	mu        sync.RWMutex
	symbol    string
	bids      []types.Level
	asks      []types.Level
	updateID  int64
	updatedAt time.Time
	tickSize  decimal.Decimal
	needsSync bool
}

// NewBook creates an uninitialized book; it is invalid until the first Apply.
func NewBook(symbol string, tickSize decimal.Decimal) *Book {
	return &Book{symbol: symbol, tickSize: tickSize, needsSync: true}
}

// Apply folds an Update into the book. Full updates (REST resync snapshots)
// replace the book outright. Delta updates are rejected if prev_update_id
// doesn't match the last applied update_id, in which case the book is
// marked needing resync and the caller should fetch a fresh REST snapshot.
func (b *Book) Apply(u Update) (gap bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u.Full {
		b.bids = u.Bids
		b.asks = u.Asks
		b.updateID = u.UpdateID
		b.updatedAt = time.Now()
		b.needsSync = false
		return false
	}

	if b.needsSync {
		return true
	}
	if u.PrevUpdateID != b.updateID {
		b.needsSync = true
		return true
	}

	b.bids = u.Bids
	b.asks = u.Asks
	b.updateID = u.UpdateID
	b.updatedAt = time.Now()
	return false
}

// Invalidate marks the book as needing a REST resync, e.g. after a
// disconnect or a detected gap.
func (b *Book) Invalidate() {
	b.mu.Lock()
	b.needsSync = true
	b.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of the book.
func (b *Book) Snapshot() types.OrderBookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return types.OrderBookSnapshot{
		Symbol:    b.symbol,
		Bids:      append([]types.Level(nil), b.bids...),
		Asks:      append([]types.Level(nil), b.asks...),
		UpdateID:  b.updateID,
		WallClock: b.updatedAt,
		TickSize:  b.tickSize,
	}
}

// Validate flags a book as unusable per §4.3: too old, uninitialized, a
// non-positive spread, or crossed.
func (b *Book) Validate(now time.Time, maxAge time.Duration) error {
	b.mu.RLock()
	needsSync := b.needsSync
	snap := types.OrderBookSnapshot{Bids: b.bids, Asks: b.asks, UpdateID: b.updateID, WallClock: b.updatedAt}
	b.mu.RUnlock()

	if maxAge <= 0 {
		maxAge = StaleAfter
	}
	if needsSync || !snap.Initialized() {
		return types.NewError(types.ErrNoMarketData, "order book not initialized or awaiting resync")
	}
	if now.Sub(snap.WallClock) > maxAge {
		return types.NewError(types.ErrNoMarketData, "order book cache stale")
	}
	if snap.Spread().Sign() <= 0 {
		return types.NewError(types.ErrNoMarketData, "order book spread non-positive")
	}
	if snap.Crossed() {
		return types.NewError(types.ErrNoMarketData, "order book crossed")
	}
	return nil
}
