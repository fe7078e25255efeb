// Package types holds the data model shared across the execution core:
// signals and intents flowing in from the strategy source, positions and
// pyramids held against the broker, and the static phase table that governs
// both. Most packages import this one; it imports no other package of this
// module.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind is the phased-signaling protocol verb carried by an ingress message.
type SignalKind string

const (
	SignalPrepare SignalKind = "PREPARE"
	SignalConfirm SignalKind = "CONFIRM"
	SignalAbort   SignalKind = "ABORT"
)

// SignalType buckets a signal by expected holding horizon; it gates both
// Phase Manager admission and Limit Chaser alpha half-life.
type SignalType string

const (
	SignalScalp SignalType = "SCALP"
	SignalDay   SignalType = "DAY"
	SignalSwing SignalType = "SWING"
)

// Direction is the signed trade direction: +1 long, -1 short.
type Direction int

const (
	DirectionLong  Direction = 1
	DirectionShort Direction = -1
)

// RegimeState is the coarse market-regime classification carried on a signal.
type RegimeState int

const (
	RegimeRiskOff   RegimeState = -1
	RegimeNeutral   RegimeState = 0
	RegimeRiskOn    RegimeState = 1
)

// RegimeVector is the market-context snapshot a strategy source attaches to a signal.
type RegimeVector struct {
	Trend              float64
	Volatility         float64
	RegimeState        RegimeState
	StructureScore     float64
	MomentumScore      float64
	ModelRecommendation string
}

// Signal is the authenticated, immutable payload constructed by ingress from
// a verified wire message. Nothing downstream mutates it.
type Signal struct {
	SignalID         string
	Kind             SignalKind
	Symbol           string
	Direction        Direction
	EntryZone        []decimal.Decimal
	StopLoss         decimal.Decimal
	TakeProfits      []decimal.Decimal
	Size             decimal.Decimal
	SignalType       SignalType
	UrgencyScore     float64
	AlphaHalfLifeMs  *int64
	Timestamp        time.Time
	BarIndex         int64
	TriggerPrice     *decimal.Decimal
	TriggerCondition string // one of ">", "<", ">=", "<="
	Regime           RegimeVector
}

// EntryPrice is the first price in the entry zone, the reference price used
// for sizing and validation.
func (s Signal) EntryPrice() decimal.Decimal {
	if len(s.EntryZone) == 0 {
		return decimal.Zero
	}
	return s.EntryZone[0]
}

// Side reports BUY or SELL per the signal's direction, matching broker vocabulary.
func (s Signal) Side() string {
	if s.Direction == DirectionLong {
		return "BUY"
	}
	return "SELL"
}
