// Package execution implements the phase-selected execution strategies of
// §4.8: Limit-or-Kill, Limit Chaser (with alpha decay), and the Pyramid
// Manager. It is grounded on the poll-deadline-cancel execution loop of the
// secondary reference example this core draws on for its maker-order
// lifecycle, and on the ticker-driven trading-loop shape of the teacher's
// legacy trader for the Pyramid Manager's periodic opportunity checks.
package execution

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the terminal outcome of an execution strategy run.
type Status string

const (
	StatusFilled          Status = "FILLED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusMissedEntry     Status = "MISSED_ENTRY"
	StatusCanceled        Status = "CANCELED"
	StatusError           Status = "ERROR"
)

// Params is the common strategy contract input (§4.8).
type Params struct {
	SignalID   string
	Symbol     string
	Side       string // BUY / SELL
	Size       decimal.Decimal
	LimitPrice decimal.Decimal // advisory; strategies derive their own working price from the book
	StopLoss   decimal.Decimal
	TakeProfits []decimal.Decimal

	SignalType      string
	UrgencyScore    float64
	AlphaHalfLifeMs *int64
}

// MissedEntryDiagnostic is attached to a MISSED_ENTRY result. bid_at_entry is
// captured once, at order-placement time (the Open Question in §9 is
// resolved this way and documented in the design ledger).
type MissedEntryDiagnostic struct {
	BidAtEntry      decimal.Decimal
	CurrentBid      decimal.Decimal
	PriceMovementPct float64
}

// Result is the common strategy contract output (§4.8).
type Result struct {
	Status     Status
	FillPrice  decimal.Decimal
	FillSize   decimal.Decimal
	Reason     string
	Diagnostic *MissedEntryDiagnostic
	Elapsed    time.Duration
}
