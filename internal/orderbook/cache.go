package orderbook

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

// Cache is the registry of per-symbol Books. One writer goroutine per symbol
// (the WS consumer), any number of readers.
type Cache struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewCache() *Cache {
	return &Cache{books: make(map[string]*Book)}
}

// Register creates (or returns the existing) book for a symbol.
func (c *Cache) Register(symbol string, tickSize decimal.Decimal) *Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.books[symbol]; ok {
		return b
	}
	b := NewBook(symbol, tickSize)
	c.books[symbol] = b
	return b
}

// Get returns the book for a symbol, or nil if unregistered.
func (c *Cache) Get(symbol string) *Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.books[symbol]
}

// Snapshot returns the current snapshot for a symbol, failing with
// NO_MARKET_DATA if the symbol is unregistered.
func (c *Cache) Snapshot(symbol string) (types.OrderBookSnapshot, error) {
	b := c.Get(symbol)
	if b == nil {
		return types.OrderBookSnapshot{}, types.NewError(types.ErrNoMarketData, "symbol not registered in order book cache")
	}
	return b.Snapshot(), nil
}

// Validate validates a symbol's book, failing with NO_MARKET_DATA if unregistered.
func (c *Cache) Validate(symbol string, maxAge time.Duration) error {
	b := c.Get(symbol)
	if b == nil {
		return types.NewError(types.ErrNoMarketData, "symbol not registered in order book cache")
	}
	return b.Validate(time.Now(), maxAge)
}

// tickSizeOrDefault returns the tick size already registered for symbol, or
// a conservative default if the feed observes it before anything else does.
func (c *Cache) tickSizeOrDefault(symbol string) decimal.Decimal {
	if b := c.Get(symbol); b != nil {
		return b.tickSize
	}
	return decimal.NewFromFloat(0.01)
}
