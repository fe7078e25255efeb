package ingress

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

// WireSignal is the JSON body shape of §3/§6: the exact serialized payload
// the signature is computed over.
type WireSignal struct {
	SignalID         string            `json:"signal_id"`
	Type             string            `json:"type"`
	Symbol           string            `json:"symbol"`
	Direction        int               `json:"direction"`
	EntryZone        []decimal.Decimal `json:"entry_zone"`
	StopLoss         decimal.Decimal   `json:"stop_loss"`
	TakeProfits      []decimal.Decimal `json:"take_profits"`
	Size             decimal.Decimal   `json:"size"`
	SignalType       string            `json:"signal_type"`
	UrgencyScore     float64           `json:"urgency_score"`
	AlphaHalfLifeMs  *int64            `json:"alpha_half_life_ms,omitempty"`
	Timestamp        int64             `json:"timestamp"` // unix millis
	BarIndex         int64             `json:"bar_index"`
	TriggerPrice     *decimal.Decimal  `json:"trigger_price,omitempty"`
	TriggerCondition string            `json:"trigger_condition,omitempty"`
	Regime           WireRegime        `json:"regime_vector"`
}

type WireRegime struct {
	Trend               float64 `json:"trend"`
	Volatility          float64 `json:"vol"`
	RegimeState         int     `json:"regime_state"`
	StructureScore      float64 `json:"structure_score"`
	MomentumScore       float64 `json:"momentum_score"`
	ModelRecommendation string  `json:"model_recommendation"`
}

// ToDomain converts a verified wire signal into the immutable internal Signal.
func (w WireSignal) ToDomain() types.Signal {
	dir := types.DirectionLong
	if w.Direction < 0 {
		dir = types.DirectionShort
	}
	return types.Signal{
		SignalID:        w.SignalID,
		Kind:            types.SignalKind(w.Type),
		Symbol:          w.Symbol,
		Direction:       dir,
		EntryZone:       w.EntryZone,
		StopLoss:        w.StopLoss,
		TakeProfits:     w.TakeProfits,
		Size:            w.Size,
		SignalType:      types.SignalType(w.SignalType),
		UrgencyScore:    w.UrgencyScore,
		AlphaHalfLifeMs: w.AlphaHalfLifeMs,
		Timestamp:       time.UnixMilli(w.Timestamp),
		BarIndex:        w.BarIndex,
		TriggerPrice:    w.TriggerPrice,
		TriggerCondition: w.TriggerCondition,
		Regime: types.RegimeVector{
			Trend:               w.Regime.Trend,
			Volatility:          w.Regime.Volatility,
			RegimeState:         types.RegimeState(w.Regime.RegimeState),
			StructureScore:      w.Regime.StructureScore,
			MomentumScore:       w.Regime.MomentumScore,
			ModelRecommendation: w.Regime.ModelRecommendation,
		},
	}
}

// Response is the small JSON object returned to HTTP callers (§6).
type Response struct {
	Success        bool             `json:"success"`
	SignalID       string           `json:"signal_id"`
	BrokerOrderID  string           `json:"broker_order_id,omitempty"`
	FillPrice      *decimal.Decimal `json:"fill_price,omitempty"`
	FillSize       *decimal.Decimal `json:"fill_size,omitempty"`
	Status         string           `json:"status"`
	ErrorKind      string           `json:"error_kind,omitempty"`
	LatencyMs      int64            `json:"latency_ms,omitempty"`
}
