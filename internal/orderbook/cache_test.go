package orderbook

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

func TestCacheRegisterIsIdempotent(t *testing.T) {
	c := NewCache()
	a := c.Register("BTC-USD", decimal.NewFromFloat(0.01))
	b := c.Register("BTC-USD", decimal.NewFromFloat(0.05))
	if a != b {
		t.Fatal("registering the same symbol twice must return the same Book")
	}
}

func TestCacheSnapshotUnregisteredSymbolFails(t *testing.T) {
	c := NewCache()
	_, err := c.Snapshot("BTC-USD")
	if err == nil {
		t.Fatal("expected NO_MARKET_DATA for an unregistered symbol")
	}
	var de *types.DomainError
	if !errors.As(err, &de) || de.Kind != types.ErrNoMarketData {
		t.Errorf("expected NO_MARKET_DATA, got %v", err)
	}
}

func TestCacheValidateDelegatesToBook(t *testing.T) {
	c := NewCache()
	book := c.Register("BTC-USD", decimal.NewFromFloat(0.01))
	book.Apply(Update{Bids: []types.Level{lvl(100, 1)}, Asks: []types.Level{lvl(101, 1)}, UpdateID: 1, Full: true})

	if err := c.Validate("BTC-USD", StaleAfter); err != nil {
		t.Errorf("expected a freshly seeded book to validate clean, got %v", err)
	}
}
