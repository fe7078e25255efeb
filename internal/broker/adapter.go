// Package broker implements the Gateway & Global Rate Limiter (§4.5): the
// only component permitted to touch an exchange Adapter. It is grounded on
// the Broker interface and PaperBroker fill simulation from the secondary
// reference example this core draws on for its execution-backend shape,
// extended to the capability set and mock knobs §4.5/§9 require.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

// Adapter is the minimal, stable surface the Gateway needs from any
// exchange. Only the Gateway calls it directly.
type Adapter interface {
	Name() string
	SendOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, brokerOrderID string) error
	GetOrderStatus(ctx context.Context, symbol, brokerOrderID string) (types.OrderReport, error)
	GetAccount(ctx context.Context) (types.Account, error)
	GetPositions(ctx context.Context) ([]types.BrokerPosition, error)
	ClosePosition(ctx context.Context, symbol string) error
	CloseAllPositions(ctx context.Context) (int, error)
	TestConnection(ctx context.Context) error

	// Optional capabilities. Implementations that don't support one of
	// these return types.NewError(types.ErrBrokerRejected, "not supported").
	UpdateStopLoss(ctx context.Context, symbol string, stop decimal.Decimal) error
	GetOpenInterest(ctx context.Context, symbol string) (decimal.Decimal, error)
	FetchOHLCV(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error)
}

// OrderRequest is what the Gateway sends to SendOrder.
type OrderRequest struct {
	Symbol     string
	Side       string // BUY / SELL
	Size       decimal.Decimal
	LimitPrice decimal.Decimal // zero means market order
	PostOnly   bool
	ClientID   string
}

// Candle is an OHLCV bar, used only for optional adapter capabilities.
type Candle struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}
