package orderbook

import (
	"context"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Snapshotter fetches a full REST depth snapshot for a symbol on resync.
// Implemented by the (out-of-scope) exchange adapter; nil is acceptable in
// tests, in which case resync waits for the next full update off the wire.
type Snapshotter interface {
	FetchSnapshot(ctx context.Context, symbol string) (Update, error)
}

// Feed is the WebSocket depth-stream consumer that keeps a Cache current.
// It is grounded on the reconnect-loop idiom of the exchange WS client this
// core grows from, upgraded here to exponential backoff (the original used
// a flat retry sleep) and extended to preserve multi-symbol subscriptions
// across reconnects, per §4.3.
type Feed struct {
	url         string
	cache       *Cache
	snapshotter Snapshotter
	symbols     []string

	dialer func(url string) (*websocket.Conn, error)
	decode func(raw []byte) (Update, error)
}

// NewFeed builds a Feed. decode turns one wire frame into an Update; it is
// exchange-specific and supplied by the caller since the wire format itself
// is out of this core's scope.
func NewFeed(url string, cache *Cache, snapshotter Snapshotter, decode func([]byte) (Update, error)) *Feed {
	return &Feed{
		url:         url,
		cache:       cache,
		snapshotter: snapshotter,
		decode:      decode,
		dialer: func(u string) (*websocket.Conn, error) {
			c, _, err := websocket.DefaultDialer.Dial(u, nil)
			return c, err
		},
	}
}

// Subscribe registers a symbol this feed should track.
func (f *Feed) Subscribe(symbol string) {
	f.symbols = append(f.symbols, symbol)
}

// Run connects and consumes until ctx is canceled, reconnecting with
// exponential backoff (capped) on any read/dial error, and resyncing via
// REST whenever a sequence gap is detected.
func (f *Feed) Run(ctx context.Context) {
	backoff := 250 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := f.dialer(f.url)
		if err != nil {
			log.Warn().Err(err).Str("url", f.url).Dur("backoff", backoff).Msg("orderbook feed dial failed, retrying")
			if !sleepCtx(ctx, jitter(backoff)) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 250 * time.Millisecond
		f.resyncAll(ctx)
		f.consume(ctx, conn)
		conn.Close()
	}
}

func (f *Feed) consume(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("orderbook feed read error, reconnecting")
			return
		}
		upd, err := f.decode(raw)
		if err != nil {
			log.Warn().Err(err).Msg("orderbook feed decode error, dropping frame")
			continue
		}
		b := f.cache.Register(upd.Symbol, f.cache.tickSizeOrDefault(upd.Symbol))
		if gap := b.Apply(upd); gap {
			log.Warn().Str("symbol", upd.Symbol).Msg("order book sequence gap detected, resyncing")
			f.resync(ctx, upd.Symbol)
		}
	}
}

func (f *Feed) resyncAll(ctx context.Context) {
	for _, s := range f.symbols {
		f.resync(ctx, s)
	}
}

func (f *Feed) resync(ctx context.Context, symbol string) {
	if f.snapshotter == nil {
		return
	}
	snap, err := f.snapshotter.FetchSnapshot(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("order book resync snapshot fetch failed")
		return
	}
	snap.Full = true
	snap.Symbol = symbol
	b := f.cache.Register(symbol, f.cache.tickSizeOrDefault(symbol))
	b.Apply(snap)
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
