package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the normalized lifecycle state of a broker order, as
// reported by an Adapter's GetOrderStatus.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "OPEN"
	OrderFilled          OrderStatus = "FILLED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
)

// OrderReport is the Adapter's normalized view of a placed order.
type OrderReport struct {
	BrokerOrderID string
	Symbol        string
	Side          string // BUY / SELL
	Status        OrderStatus
	LimitPrice    decimal.Decimal
	FilledSize    decimal.Decimal
	RemainingSize decimal.Decimal
	AvgFillPrice  decimal.Decimal
	UpdatedAt     time.Time
}

// Fill is filled-quantity notification passed to Shadow State's confirm_execution.
type Fill struct {
	BrokerOrderID string
	Symbol        string
	FillPrice     decimal.Decimal
	FillSize      decimal.Decimal
	Filled        bool // true once the order is fully done
}

// Account is the broker account snapshot returned by get_account.
type Account struct {
	Equity     decimal.Decimal
	Cash       decimal.Decimal
	MarginUsed decimal.Decimal
}

// BrokerPosition is the broker's view of an open position, used by the
// Shadow State reconciliation loop.
type BrokerPosition struct {
	Symbol string
	Side   Side
	Size   decimal.Decimal
}

// ReplayRecord marks a signal_id as seen for idempotency (§4.2).
type ReplayRecord struct {
	SignalID string
	SeenAt   time.Time
}
