package execution

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/broker"
	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/types"
)

// PyramidConfig holds the Phase-2-only pyramiding knobs (§4.8.3).
type PyramidConfig struct {
	TriggerPct        float64
	MaxLayers         int
	AutoTrailAtLayer  int // layer count at which auto-trail activates
}

func DefaultPyramidConfig() PyramidConfig {
	return PyramidConfig{TriggerPct: 0.02, MaxLayers: 4, AutoTrailAtLayer: 2}
}

// PyramidManager manages additional layers on a winning Position.
type PyramidManager struct {
	cfg     PyramidConfig
	gateway *broker.Gateway
	bus     *eventbus.Bus
}

func NewPyramidManager(cfg PyramidConfig, gateway *broker.Gateway, bus *eventbus.Bus) *PyramidManager {
	return &PyramidManager{cfg: cfg, gateway: gateway, bus: bus}
}

// HasOpportunity implements §4.8.3's opportunity test.
func (m *PyramidManager) HasOpportunity(state *types.PyramidState, side types.Side, regime types.RegimeState, price decimal.Decimal) bool {
	if regime != types.RegimeRiskOn {
		return false
	}
	if state.LayerCount >= m.cfg.MaxLayers {
		return false
	}
	trigger := decimal.NewFromFloat(1 + m.cfg.TriggerPct)
	if side == types.SideLong {
		return price.GreaterThan(state.LastEntryPrice.Mul(trigger))
	}
	inverseTrigger := decimal.NewFromFloat(1 - m.cfg.TriggerPct)
	return price.LessThan(state.LastEntryPrice.Mul(inverseTrigger))
}

// AddLayer appends a layer, recomputes the average entry, and — upon
// reaching AutoTrailAtLayer — sets current_stop = avg_entry_price and
// issues the broker stop-update side-effect exactly once (idempotent per
// layer, per §4.8.3).
func (m *PyramidManager) AddLayer(ctx context.Context, symbol string, state *types.PyramidState, price, size decimal.Decimal) {
	state.AddLayer(price, size)

	m.bus.Publish(eventbus.KindPyramidLayerAdded, map[string]any{
		"symbol":          symbol,
		"layer_number":    state.LayerCount,
		"entry_price":     price.String(),
		"avg_entry_price": state.AvgEntryPrice.String(),
		"total_size":      state.TotalSize().String(),
	})
	log.Info().Str("symbol", symbol).Int("layer", state.LayerCount).
		Str("entry_price", price.String()).Str("avg_entry_price", state.AvgEntryPrice.String()).
		Str("total_size", state.TotalSize().String()).Msg("pyramid layer added")

	if state.LayerCount == m.cfg.AutoTrailAtLayer && !state.AutoTrailEnabled {
		state.CurrentStop = state.AvgEntryPrice
		state.AutoTrailEnabled = true
		if err := m.gateway.UpdateStopLoss(ctx, symbol, state.CurrentStop); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("pyramid auto-trail stop update failed")
		}
		m.bus.Publish(eventbus.KindPyramidAutoTrail, map[string]any{
			"symbol":        symbol,
			"new_stop_loss": state.CurrentStop.String(),
		})
		log.Info().Str("symbol", symbol).Str("new_stop_loss", state.CurrentStop.String()).Msg("pyramid auto-trail engaged")
	}
}

// CheckRegimeKill issues a close-all for the pyramid's symbol when the
// regime leaves Risk-On while auto-trail is active (§4.8.3).
func (m *PyramidManager) CheckRegimeKill(ctx context.Context, symbol string, state *types.PyramidState, regime types.RegimeState) bool {
	if !state.AutoTrailEnabled || regime == types.RegimeRiskOn {
		return false
	}
	if err := m.gateway.ClosePosition(ctx, symbol); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("pyramid regime-kill close failed")
		return false
	}
	m.bus.Publish(eventbus.KindPyramidRegimeKill, map[string]any{"symbol": symbol})
	return true
}
