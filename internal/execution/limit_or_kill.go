package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/broker"
	"github.com/oriongate/execcore/internal/orderbook"
	"github.com/oriongate/execcore/internal/types"
)

// LimitOrKillConfig holds the Phase-1 MAKER strategy's timing knobs (§4.8.1).
type LimitOrKillConfig struct {
	PollInterval time.Duration
	WaitTime     time.Duration
}

func DefaultLimitOrKillConfig() LimitOrKillConfig {
	return LimitOrKillConfig{PollInterval: 100 * time.Millisecond, WaitTime: 5000 * time.Millisecond}
}

// LimitOrKill places a post-only limit at the best resting price on the
// entry side, polls until WaitTime, and cancels exactly at the deadline if
// not fully filled.
type LimitOrKill struct {
	cfg     LimitOrKillConfig
	gateway *broker.Gateway
	books   *orderbook.Cache
}

func NewLimitOrKill(cfg LimitOrKillConfig, gateway *broker.Gateway, books *orderbook.Cache) *LimitOrKill {
	return &LimitOrKill{cfg: cfg, gateway: gateway, books: books}
}

// Execute runs the strategy to completion or cancellation. abort, if
// non-nil, is polled each loop iteration so an ABORT can cooperatively stop
// the strategy at the next poll boundary (§5).
func (l *LimitOrKill) Execute(ctx context.Context, p Params, abort <-chan struct{}) Result {
	start := time.Now()

	snap, err := l.books.Snapshot(p.Symbol)
	if err != nil {
		return Result{Status: StatusError, Reason: err.Error(), Elapsed: time.Since(start)}
	}

	var restingPrice decimal.Decimal
	if p.Side == "BUY" {
		bid, ok := snap.BestBid()
		if !ok {
			return Result{Status: StatusError, Reason: "no best bid available", Elapsed: time.Since(start)}
		}
		restingPrice = bid
	} else {
		ask, ok := snap.BestAsk()
		if !ok {
			return Result{Status: StatusError, Reason: "no best ask available", Elapsed: time.Since(start)}
		}
		restingPrice = ask
	}
	bidAtEntry := restingPrice

	orderID, err := l.gateway.SendOrder(ctx, broker.OrderRequest{
		Symbol: p.Symbol, Side: p.Side, Size: p.Size, LimitPrice: restingPrice, PostOnly: true, ClientID: p.SignalID,
	})
	if err != nil {
		return Result{Status: StatusError, Reason: err.Error(), Elapsed: time.Since(start)}
	}

	deadline := start.Add(l.cfg.WaitTime)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-abort:
			_ = l.gateway.CancelOrder(ctx, p.Symbol, orderID)
			return Result{Status: StatusCanceled, Reason: "aborted", Elapsed: time.Since(start)}
		case <-ctx.Done():
			_ = l.gateway.CancelOrder(ctx, p.Symbol, orderID)
			return Result{Status: StatusCanceled, Reason: "context canceled", Elapsed: time.Since(start)}
		case <-ticker.C:
		}

		report, err := l.gateway.GetOrderStatus(ctx, p.Symbol, orderID)
		if err == nil && report.Status == types.OrderFilled {
			return Result{Status: StatusFilled, FillPrice: report.AvgFillPrice, FillSize: report.FilledSize, Elapsed: time.Since(start)}
		}

		if !time.Now().Before(deadline) {
			_ = l.gateway.CancelOrder(ctx, p.Symbol, orderID)
			if err == nil && report.FilledSize.Sign() > 0 {
				return Result{
					Status:    StatusPartiallyFilled,
					FillPrice: report.AvgFillPrice,
					FillSize:  report.FilledSize,
					Reason:    "deadline reached with partial fill",
					Elapsed:   time.Since(start),
				}
			}
			currentBid, _ := l.currentTopOfBook(p)
			movement := 0.0
			if bidAtEntry.Sign() != 0 {
				m, _ := currentBid.Sub(bidAtEntry).Div(bidAtEntry).Float64()
				movement = m
			}
			return Result{
				Status: StatusMissedEntry,
				Reason: "Price ran away",
				Diagnostic: &MissedEntryDiagnostic{
					BidAtEntry:       bidAtEntry,
					CurrentBid:       currentBid,
					PriceMovementPct: movement,
				},
				Elapsed: time.Since(start),
			}
		}

		if err == nil && report.Status == types.OrderPartiallyFilled {
			// keep polling; a partial fill only terminates the strategy at
			// the deadline or on a full fill, per §4.8.1.
			continue
		}
	}
}

func (l *LimitOrKill) currentTopOfBook(p Params) (decimal.Decimal, error) {
	snap, err := l.books.Snapshot(p.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if p.Side == "BUY" {
		bid, _ := snap.BestBid()
		return bid, nil
	}
	ask, _ := snap.BestAsk()
	return ask, nil
}
