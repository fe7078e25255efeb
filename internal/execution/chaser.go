package execution

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/broker"
	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/orderbook"
	"github.com/oriongate/execcore/internal/types"
)

// ChaserConfig holds the adaptive-MAKER chase timing knobs (§4.8.2).
type ChaserConfig struct {
	ChaseInterval     time.Duration
	MaxChaseTicks     int
	MaxChaseTime      time.Duration
	MinAlphaThreshold float64
}

func DefaultChaserConfig() ChaserConfig {
	return ChaserConfig{
		ChaseInterval:     25 * time.Millisecond,
		MaxChaseTicks:     200,
		MaxChaseTime:      30 * time.Second,
		MinAlphaThreshold: 0.3,
	}
}

// defaultHalfLife returns the base alpha half-life for a signal_type (§4.8.2).
func defaultHalfLife(signalType string) time.Duration {
	switch types.SignalType(signalType) {
	case types.SignalScalp:
		return 10 * time.Second
	case types.SignalDay:
		return 30 * time.Second
	case types.SignalSwing:
		return 120 * time.Second
	default:
		return 30 * time.Second
	}
}

// EffectiveHalfLife applies the default-by-signal_type half-life with the
// strict-urgency-over-95 1.5x multiplier, or the caller's explicit
// alpha_half_life_ms if the signal carried one.
func EffectiveHalfLife(signalType string, urgencyScore float64, explicitMs *int64) time.Duration {
	var hl time.Duration
	if explicitMs != nil {
		hl = time.Duration(*explicitMs) * time.Millisecond
	} else {
		hl = defaultHalfLife(signalType)
	}
	if urgencyScore > 95 {
		hl = time.Duration(float64(hl) * 1.5)
	}
	return hl
}

// RemainingAlpha computes initial_alpha * 0.5^(elapsed/effectiveHalfLife) (§4.8.2, §8 property 6).
func RemainingAlpha(initialAlpha float64, elapsed, effectiveHalfLife time.Duration) float64 {
	if effectiveHalfLife <= 0 {
		return 0
	}
	ratio := float64(elapsed) / float64(effectiveHalfLife)
	return initialAlpha * math.Pow(0.5, ratio)
}

// OBIWorsened reports whether OBI moved adversely tick-over-tick: for BUY, a
// strict decrease; for SELL, a strict increase. Either side null yields false (§8 property 7).
func OBIWorsened(side string, prev, cur float64, prevOK, curOK bool) bool {
	if !prevOK || !curOK {
		return false
	}
	if side == "BUY" {
		return cur < prev
	}
	return cur > prev
}

// Chaser implements the Limit Chaser.
type Chaser struct {
	cfg     ChaserConfig
	gateway *broker.Gateway
	books   *orderbook.Cache
	bus     *eventbus.Bus
}

func NewChaser(cfg ChaserConfig, gateway *broker.Gateway, books *orderbook.Cache, bus *eventbus.Bus) *Chaser {
	return &Chaser{cfg: cfg, gateway: gateway, books: books, bus: bus}
}

// Execute runs the chase loop to a terminal outcome.
func (c *Chaser) Execute(ctx context.Context, p Params, initialAlpha float64, abort <-chan struct{}) Result {
	start := time.Now()

	snap, err := c.books.Snapshot(p.Symbol)
	if err != nil {
		return Result{Status: StatusError, Reason: "NO_PRICE_DATA", Elapsed: time.Since(start)}
	}
	var price decimal.Decimal
	var ok bool
	if p.Side == "BUY" {
		price, ok = snap.BestAsk()
	} else {
		price, ok = snap.BestBid()
	}
	if !ok {
		return Result{Status: StatusError, Reason: "NO_PRICE_DATA", Elapsed: time.Since(start)}
	}

	orderID, err := c.gateway.SendOrder(ctx, broker.OrderRequest{
		Symbol: p.Symbol, Side: p.Side, Size: p.Size, LimitPrice: price, PostOnly: true, ClientID: p.SignalID,
	})
	if err != nil {
		return Result{Status: StatusError, Reason: err.Error(), Elapsed: time.Since(start)}
	}
	c.publish(eventbus.KindChaseStart, p.Symbol, p.SignalID)

	effectiveHalfLife := EffectiveHalfLife(p.SignalType, p.UrgencyScore, p.AlphaHalfLifeMs)
	tickSize := snap.TickSize
	if tickSize.IsZero() {
		tickSize = decimal.NewFromFloat(0.01)
	}

	ticks := 0
	var prevOBI float64
	var prevOBIOK bool

	ticker := time.NewTicker(c.cfg.ChaseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-abort:
			_ = c.gateway.CancelOrder(ctx, p.Symbol, orderID)
			return Result{Status: StatusCanceled, Reason: "aborted", Elapsed: time.Since(start)}
		case <-ctx.Done():
			_ = c.gateway.CancelOrder(ctx, p.Symbol, orderID)
			return Result{Status: StatusCanceled, Reason: "context canceled", Elapsed: time.Since(start)}
		case <-ticker.C:
		}

		report, err := c.gateway.GetOrderStatus(ctx, p.Symbol, orderID)
		if err == nil && report.Status == types.OrderFilled {
			c.publish(eventbus.KindChaseFilled, p.Symbol, p.SignalID)
			return Result{Status: StatusFilled, FillPrice: report.AvgFillPrice, FillSize: report.FilledSize, Elapsed: time.Since(start)}
		}

		elapsed := time.Since(start)
		ticks++
		if ticks > c.cfg.MaxChaseTicks || elapsed > c.cfg.MaxChaseTime {
			_ = c.gateway.CancelOrder(ctx, p.Symbol, orderID)
			c.publish(eventbus.KindChaseTimeout, p.Symbol, p.SignalID)
			return Result{Status: StatusCanceled, Reason: "FILL_TIMEOUT", Elapsed: elapsed}
		}

		remaining := RemainingAlpha(initialAlpha, elapsed, effectiveHalfLife)
		if remaining < c.cfg.MinAlphaThreshold {
			_ = c.gateway.CancelOrder(ctx, p.Symbol, orderID)
			c.publish(eventbus.KindChaseAlphaExpired, p.Symbol, p.SignalID)
			return Result{Status: StatusCanceled, Reason: "ALPHA_EXPIRED", Elapsed: elapsed}
		}

		curSnap, err := c.books.Snapshot(p.Symbol)
		if err == nil {
			curOBI, curOK := curSnap.OBI(5)
			if OBIWorsened(p.Side, prevOBI, curOBI, prevOBIOK, curOK) {
				_ = c.gateway.CancelOrder(ctx, p.Symbol, orderID)
				c.publish(eventbus.KindChaseOBIWorsening, p.Symbol, p.SignalID)
				return Result{Status: StatusCanceled, Reason: "OBI_WORSENING", Elapsed: elapsed}
			}
			prevOBI, prevOBIOK = curOBI, curOK
		}

		if p.Side == "BUY" {
			price = price.Add(tickSize)
		} else {
			price = price.Sub(tickSize)
		}
		_ = c.gateway.CancelOrder(ctx, p.Symbol, orderID)
		newID, err := c.gateway.SendOrder(ctx, broker.OrderRequest{
			Symbol: p.Symbol, Side: p.Side, Size: p.Size, LimitPrice: price, PostOnly: true, ClientID: p.SignalID,
		})
		if err != nil {
			return Result{Status: StatusError, Reason: err.Error(), Elapsed: elapsed}
		}
		orderID = newID
	}
}

func (c *Chaser) publish(kind eventbus.Kind, symbol, signalID string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(kind, map[string]any{"symbol": symbol, "signal_id": signalID})
}
