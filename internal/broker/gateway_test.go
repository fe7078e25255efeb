package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

// flakyAdapter wraps MockAdapter's SendOrder, failing BROKER_TRANSIENT a fixed
// number of times before succeeding, so retry-with-backoff can be exercised
// without waiting on a real exchange.
type flakyAdapter struct {
	*MockAdapter
	failuresLeft int32
}

func (f *flakyAdapter) SendOrder(ctx context.Context, req OrderRequest) (string, error) {
	if atomic.AddInt32(&f.failuresLeft, -1) >= 0 {
		return "", types.NewError(types.ErrBrokerTransient, "simulated transient fault")
	}
	return f.MockAdapter.SendOrder(ctx, req)
}

func TestGatewayRetriesTransientFailures(t *testing.T) {
	inner := &flakyAdapter{MockAdapter: NewMockAdapter(decimal.NewFromInt(10000)), failuresLeft: 2}
	gw := NewGateway(inner, 1000) // generous RPS so the limiter never blocks this test

	id, err := gw.SendOrder(context.Background(), OrderRequest{Symbol: "BTC-USD", Side: "BUY", Size: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("expected eventual success after transient retries, got %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty order id")
	}
}

func TestGatewayGivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyAdapter{MockAdapter: NewMockAdapter(decimal.NewFromInt(10000)), failuresLeft: MaxRetries + 5}
	gw := NewGateway(inner, 1000)

	_, err := gw.SendOrder(context.Background(), OrderRequest{Symbol: "BTC-USD", Side: "BUY", Size: decimal.NewFromInt(1)})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if !isTransient(err) {
		t.Fatalf("expected the surfaced error to still be BROKER_TRANSIENT, got %v", err)
	}
}

func TestGatewayDoesNotRetryNonTransientErrors(t *testing.T) {
	adapter := NewMockAdapter(decimal.NewFromInt(10000))
	gw := NewGateway(adapter, 1000)

	// zero size triggers an immediate BROKER_REJECTED, which must not be retried.
	_, err := gw.SendOrder(context.Background(), OrderRequest{Symbol: "BTC-USD", Side: "BUY", Size: decimal.Zero})
	if err == nil {
		t.Fatal("expected BROKER_REJECTED for zero size")
	}
	if isTransient(err) {
		t.Fatal("zero-size rejection must not be classified as transient")
	}
}

func TestGatewayBoundsRateLimiterWait(t *testing.T) {
	adapter := NewMockAdapter(decimal.NewFromInt(10000))
	// documentedRPS of 1 -> burst clamped to 1 and a ~1.25s refill interval,
	// so a second call issued immediately after must fail RATE_LIMITED
	// without blocking past the bounded wait.
	gw := NewGateway(adapter, 1)

	ctx := context.Background()
	if _, err := gw.SendOrder(ctx, OrderRequest{Symbol: "BTC-USD", Side: "BUY", Size: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("first call should succeed immediately: %v", err)
	}

	start := time.Now()
	_, err := gw.SendOrder(ctx, OrderRequest{Symbol: "BTC-USD", Side: "BUY", Size: decimal.NewFromInt(1)})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected the second call to exhaust the burst-1 bucket and fail RATE_LIMITED")
	}
	var de *types.DomainError
	if !errors.As(err, &de) || de.Kind != types.ErrRateLimited {
		t.Errorf("expected RATE_LIMITED, got %v", err)
	}
	if elapsed > RateLimiterWait+250*time.Millisecond {
		t.Errorf("rate-limited call took %v, expected it to resolve near the bounded wait of %v", elapsed, RateLimiterWait)
	}
}
