package shadowstate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oriongate/execcore/internal/broker"
	"github.com/oriongate/execcore/internal/eventbus"
)

// Reconciler runs the periodic broker-reconciliation loop (§4.6). It is
// grounded on execution/reconciler.go's RecoverPositions idiom from the
// teacher, generalized from a one-shot startup recovery into a recurring
// ticker loop that also handles phantom/unknown-position detection.
type Reconciler struct {
	state   *State
	gateway *broker.Gateway
	bus     *eventbus.Bus
	period  time.Duration

	// pendingPhantom tracks symbols observed locally-only for one cycle
	// before removal, per §4.6 step 3 ("after a confirmation cycle").
	pendingPhantom map[string]bool
}

func NewReconciler(state *State, gateway *broker.Gateway, bus *eventbus.Bus, period time.Duration) *Reconciler {
	if period <= 0 {
		period = 10 * time.Second
	}
	return &Reconciler{state: state, gateway: gateway, bus: bus, period: period, pendingPhantom: make(map[string]bool)}
}

// Run loops until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	brokerPositions, err := r.gateway.GetPositions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconciliation: failed to pull broker positions")
		return
	}
	brokerBySymbol := make(map[string]bool, len(brokerPositions))

	for _, bp := range brokerPositions {
		brokerBySymbol[bp.Symbol] = true
		local, ok := r.state.GetPosition(bp.Symbol)
		if !ok || local.Side != bp.Side || !local.Size.Equal(bp.Size) {
			r.bus.Publish(eventbus.KindReconciliationDivergence, map[string]any{
				"symbol":       bp.Symbol,
				"broker_side":  bp.Side,
				"broker_size":  bp.Size.String(),
			})
			if local.CurrentStop.Sign() != 0 {
				_ = r.gateway.UpdateStopLoss(ctx, bp.Symbol, local.CurrentStop)
			}
		}
		delete(r.pendingPhantom, bp.Symbol)
	}

	for _, local := range r.state.Positions() {
		if brokerBySymbol[local.Symbol] {
			continue
		}
		if r.pendingPhantom[local.Symbol] {
			r.state.RemoveLocalPosition(local.Symbol)
			delete(r.pendingPhantom, local.Symbol)
			continue
		}
		r.pendingPhantom[local.Symbol] = true
		r.bus.Publish(eventbus.KindPhantomLocalPosition, map[string]any{"symbol": local.Symbol})
	}

	for symbol := range brokerBySymbol {
		if _, ok := r.state.GetPosition(symbol); !ok {
			r.bus.Publish(eventbus.KindUnknownBrokerPosition, map[string]any{"symbol": symbol})
		}
	}
}

// RecoverOnStartup loads persisted positions via the PositionLoader and installs
// them into Shadow State before the reconciliation loop starts, preventing
// "ghost positions" after a crash — grounded verbatim on the teacher's
// RecoverPositions idiom.
func (r *Reconciler) RecoverOnStartup(ctx context.Context, loader PositionLoader) (int, error) {
	if loader == nil {
		return 0, nil
	}
	positions, err := loader.LoadAllPositions(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		r.state.SetPosition(p)
		log.Warn().Str("symbol", p.Symbol).Str("side", string(p.Side)).Msg("recovered persisted position on startup")
	}
	return len(positions), nil
}
