package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/oriongate/execcore/internal/types"
)

// RateLimiterWait is the bounded wait for a token before a call fails
// RATE_LIMITED (§4.5).
const RateLimiterWait = 200 * time.Millisecond

// MaxRetries caps the exponential-backoff retry count for transient faults.
const MaxRetries = 3

// Gateway wraps an Adapter with the Global Rate Limiter and retry policy.
// It is the only component that touches the Adapter directly (§4.5).
type Gateway struct {
	adapter Adapter
	limiter *rate.Limiter
	onCall  func(method string, err error, took time.Duration) // metrics hook
}

// NewGateway builds a Gateway with a token bucket at documentedRPS * 0.80
// (§4.5: "configured to 80% of the exchange's documented rate").
func NewGateway(adapter Adapter, documentedRPS float64) *Gateway {
	limit := rate.Limit(documentedRPS * 0.80)
	burst := int(documentedRPS * 0.80)
	if burst < 1 {
		burst = 1
	}
	return &Gateway{adapter: adapter, limiter: rate.NewLimiter(limit, burst)}
}

// OnCall installs a metrics callback invoked after every adapter call.
func (g *Gateway) OnCall(fn func(method string, err error, took time.Duration)) {
	g.onCall = fn
}

// acquire blocks up to RateLimiterWait for a token, failing RATE_LIMITED if
// none becomes available in time.
func (g *Gateway) acquire(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, RateLimiterWait)
	defer cancel()
	if err := g.limiter.Wait(wctx); err != nil {
		return types.NewError(types.ErrRateLimited, "no rate limiter token available within bounded wait")
	}
	return nil
}

// call runs fn under the rate limiter with retry-with-backoff for
// BROKER_TRANSIENT errors; non-retryable errors surface immediately.
func (g *Gateway) call(ctx context.Context, method string, fn func() error) error {
	start := time.Now()
	var lastErr error
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if err := g.acquire(ctx); err != nil {
			lastErr = err
			break
		}
		lastErr = fn()
		if lastErr == nil {
			break
		}
		if !isTransient(lastErr) {
			break
		}
		if attempt == MaxRetries {
			break
		}
		log.Warn().Str("method", method).Int("attempt", attempt+1).Err(lastErr).Msg("broker call transient failure, retrying")
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = MaxRetries
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	took := time.Since(start)
	if g.onCall != nil {
		g.onCall(method, lastErr, took)
	}
	return lastErr
}

func isTransient(err error) bool {
	var de *types.DomainError
	if errors.As(err, &de) {
		return de.Kind == types.ErrBrokerTransient
	}
	return false
}

func (g *Gateway) SendOrder(ctx context.Context, req OrderRequest) (orderID string, err error) {
	err = g.call(ctx, "send_order", func() error {
		var e error
		orderID, e = g.adapter.SendOrder(ctx, req)
		return e
	})
	return orderID, err
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, brokerOrderID string) error {
	return g.call(ctx, "cancel_order", func() error {
		return g.adapter.CancelOrder(ctx, symbol, brokerOrderID)
	})
}

func (g *Gateway) GetOrderStatus(ctx context.Context, symbol, brokerOrderID string) (report types.OrderReport, err error) {
	err = g.call(ctx, "get_order_status", func() error {
		var e error
		report, e = g.adapter.GetOrderStatus(ctx, symbol, brokerOrderID)
		return e
	})
	return report, err
}

func (g *Gateway) GetAccount(ctx context.Context) (acct types.Account, err error) {
	err = g.call(ctx, "get_account", func() error {
		var e error
		acct, e = g.adapter.GetAccount(ctx)
		return e
	})
	return acct, err
}

func (g *Gateway) GetPositions(ctx context.Context) (positions []types.BrokerPosition, err error) {
	err = g.call(ctx, "get_positions", func() error {
		var e error
		positions, e = g.adapter.GetPositions(ctx)
		return e
	})
	return positions, err
}

func (g *Gateway) ClosePosition(ctx context.Context, symbol string) error {
	return g.call(ctx, "close_position", func() error {
		return g.adapter.ClosePosition(ctx, symbol)
	})
}

func (g *Gateway) CloseAllPositions(ctx context.Context) (n int, err error) {
	err = g.call(ctx, "close_all_positions", func() error {
		var e error
		n, e = g.adapter.CloseAllPositions(ctx)
		return e
	})
	return n, err
}

func (g *Gateway) TestConnection(ctx context.Context) error {
	return g.call(ctx, "test_connection", func() error {
		return g.adapter.TestConnection(ctx)
	})
}

func (g *Gateway) UpdateStopLoss(ctx context.Context, symbol string, stop decimal.Decimal) error {
	return g.call(ctx, "update_stop_loss", func() error {
		return g.adapter.UpdateStopLoss(ctx, symbol, stop)
	})
}
