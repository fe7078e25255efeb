package l2validator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/orderbook"
	"github.com/oriongate/execcore/internal/types"
)

func lvl(price, qty float64) types.Level {
	return types.Level{Price: decimal.NewFromFloat(price), Qty: decimal.NewFromFloat(qty)}
}

// seedBook registers a symbol with a tight, deep, buy-favoring book so every
// check passes by default; each test then degrades exactly one dimension.
func seedBook(cache *orderbook.Cache, symbol string, bids, asks []types.Level) {
	book := cache.Register(symbol, decimal.NewFromFloat(0.01))
	book.Apply(orderbook.Update{
		Symbol:   symbol,
		Bids:     bids,
		Asks:     asks,
		UpdateID: 1,
		Full:     true,
	})
}

func healthyBook() ([]types.Level, []types.Level) {
	bids := []types.Level{lvl(100.00, 50), lvl(99.99, 50), lvl(99.98, 50)}
	asks := []types.Level{lvl(100.01, 5), lvl(100.02, 5), lvl(100.03, 5)}
	return bids, asks
}

func errKind(t *testing.T, err error) types.ErrorKind {
	t.Helper()
	var de *types.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected a *types.DomainError, got %v", err)
	}
	return de.Kind
}

func TestValidateOrderedChecks(t *testing.T) {
	t.Run("no market data when symbol unregistered", func(t *testing.T) {
		cache := orderbook.NewCache()
		v := New(DefaultConfig(), cache)
		err := v.Validate("BTC-USD", "BUY", decimal.NewFromInt(1), 100, 100)
		if err == nil || errKind(t, err) != types.ErrNoMarketData {
			t.Fatalf("expected NO_MARKET_DATA, got %v", err)
		}
	})

	t.Run("wide spread rejected before depth/obi/structure", func(t *testing.T) {
		cache := orderbook.NewCache()
		bids := []types.Level{lvl(90.00, 50)}
		asks := []types.Level{lvl(100.00, 50)} // ~10% spread, way above 0.1% max
		seedBook(cache, "BTC-USD", bids, asks)
		v := New(DefaultConfig(), cache)
		err := v.Validate("BTC-USD", "BUY", decimal.NewFromInt(1), 100, 100)
		if err == nil || errKind(t, err) != types.ErrWideSpread {
			t.Fatalf("expected WIDE_SPREAD, got %v", err)
		}
	})

	t.Run("insufficient depth rejected after spread passes", func(t *testing.T) {
		cache := orderbook.NewCache()
		bids, _ := healthyBook()
		asks := []types.Level{lvl(100.01, 1)} // depth far below min_depth_mult*size
		seedBook(cache, "BTC-USD", bids, asks)
		v := New(DefaultConfig(), cache)
		err := v.Validate("BTC-USD", "BUY", decimal.NewFromInt(10), 100, 100)
		if err == nil || errKind(t, err) != types.ErrInsufficientDepth {
			t.Fatalf("expected INSUFFICIENT_DEPTH, got %v", err)
		}
	})

	t.Run("obi adverse rejected after depth passes", func(t *testing.T) {
		cache := orderbook.NewCache()
		// heavy ask-side liquidity relative to bid -> OBI well below the buy threshold
		bids := []types.Level{lvl(100.00, 5)}
		asks := []types.Level{lvl(100.01, 500)}
		seedBook(cache, "BTC-USD", bids, asks)
		v := New(DefaultConfig(), cache)
		err := v.Validate("BTC-USD", "BUY", decimal.NewFromInt(1), 100, 100)
		if err == nil || errKind(t, err) != types.ErrOBIAdverse {
			t.Fatalf("expected OBI_ADVERSE, got %v", err)
		}
	})

	t.Run("weak structure rejected last", func(t *testing.T) {
		cache := orderbook.NewCache()
		bids, asks := healthyBook()
		seedBook(cache, "BTC-USD", bids, asks)
		v := New(DefaultConfig(), cache)
		err := v.Validate("BTC-USD", "BUY", decimal.NewFromInt(1), 10 /* below MinStructureScore */, 100)
		if err == nil || errKind(t, err) != types.ErrWeakStructure {
			t.Fatalf("expected WEAK_STRUCTURE, got %v", err)
		}
	})

	t.Run("passes every check on a healthy book", func(t *testing.T) {
		cache := orderbook.NewCache()
		bids, asks := healthyBook()
		seedBook(cache, "BTC-USD", bids, asks)
		v := New(DefaultConfig(), cache)
		if err := v.Validate("BTC-USD", "BUY", decimal.NewFromInt(1), 100, 100); err != nil {
			t.Fatalf("expected a healthy book to validate clean, got %v", err)
		}
	})
}
