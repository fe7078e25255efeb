package ingress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/broker"
	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/execution"
	"github.com/oriongate/execcore/internal/l2validator"
	"github.com/oriongate/execcore/internal/orderbook"
	"github.com/oriongate/execcore/internal/persistence"
	"github.com/oriongate/execcore/internal/phase"
	"github.com/oriongate/execcore/internal/replayguard"
	"github.com/oriongate/execcore/internal/shadowstate"
	"github.com/oriongate/execcore/internal/trigger"
	"github.com/oriongate/execcore/internal/types"
)

// Dispatcher is the Ingress Dispatcher (§4.1): the single entry point that
// verifies, deduplicates, and routes signals into the rest of the core.
type Dispatcher struct {
	secret      []byte
	sourceIDs   map[string]bool
	replay      *replayguard.Guard
	state       *shadowstate.State
	phases      *phase.Manager
	validator   *l2validator.Validator
	books       *orderbook.Cache
	gateway     *broker.Gateway
	bus         *eventbus.Bus
	triggers    *trigger.Watcher
	limitOrKill *execution.LimitOrKill
	chaser      *execution.Chaser
	pyramid     *execution.PyramidManager
	store       *persistence.Store
}

type Deps struct {
	Secret      string
	SourceIDs   []string
	Replay      *replayguard.Guard
	State       *shadowstate.State
	Phases      *phase.Manager
	Validator   *l2validator.Validator
	Books       *orderbook.Cache
	Gateway     *broker.Gateway
	Bus         *eventbus.Bus
	Triggers    *trigger.Watcher
	LimitOrKill *execution.LimitOrKill
	Chaser      *execution.Chaser
	Pyramid     *execution.PyramidManager
	Store       *persistence.Store
}

func New(d Deps) *Dispatcher {
	sources := make(map[string]bool, len(d.SourceIDs))
	for _, s := range d.SourceIDs {
		sources[s] = true
	}
	return &Dispatcher{
		secret: []byte(d.Secret), sourceIDs: sources, replay: d.Replay, state: d.State,
		phases: d.Phases, validator: d.Validator, books: d.Books, gateway: d.Gateway,
		bus: d.Bus, triggers: d.Triggers, limitOrKill: d.LimitOrKill, chaser: d.Chaser,
		pyramid: d.Pyramid, store: d.Store,
	}
}

// RegisterRoutes mounts the webhook and control endpoints on r.
func (d *Dispatcher) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhook", d.handleWebhook)
	r.GET("/health", d.handleHealth)
	r.GET("/positions", d.handlePositions)
	r.POST("/positions/:symbol/close", d.handleClosePosition)
	r.POST("/flatten", d.handleFlatten)
	r.GET("/trades", d.handleTradeHistory)
	r.GET("/performance", d.handlePerformanceSummary)
}

func (d *Dispatcher) handleWebhook(c *gin.Context) {
	start := time.Now()
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, ErrorKind: string(types.ErrInvalidSignature)})
		return
	}

	signature := c.GetHeader("X-Signature")
	source := c.GetHeader("X-Source-Id")

	if !d.sourceIDs[source] || !Verify(d.secret, body, signature) {
		c.JSON(http.StatusUnauthorized, Response{Success: false, ErrorKind: string(types.ErrInvalidSignature)})
		return
	}

	var wire WireSignal
	if err := json.Unmarshal(body, &wire); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, ErrorKind: string(types.ErrInvalidSignature)})
		return
	}

	sig := wire.ToDomain()
	if err := replayguard.CheckTimestamp(time.Now(), sig.Timestamp); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, SignalID: sig.SignalID, ErrorKind: string(types.ErrStaleTimestamp)})
		return
	}
	if d.replay.SeenBefore(c.Request.Context(), sig.SignalID) {
		c.JSON(http.StatusConflict, Response{Success: false, SignalID: sig.SignalID, ErrorKind: string(types.ErrReplayedSignal)})
		return
	}

	resp := d.dispatch(c.Request.Context(), sig)
	resp.LatencyMs = time.Since(start).Milliseconds()
	status := http.StatusAccepted
	if !resp.Success {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (d *Dispatcher) dispatch(ctx context.Context, sig types.Signal) Response {
	switch sig.Kind {
	case types.SignalAbort:
		d.state.Abort(sig.Symbol, sig.SignalID)
		return Response{Success: true, SignalID: sig.SignalID, Status: "aborted"}

	case types.SignalConfirm:
		if intent, ok := d.intentSnapshot(sig); ok && intent.Triggered {
			return Response{Success: true, SignalID: sig.SignalID, Status: "duplicate"}
		}
		if !d.state.ValidateIntent(sig.Symbol, sig.SignalID) {
			return Response{Success: false, SignalID: sig.SignalID, Status: "unknown_intent"}
		}
		go d.execute(sig)
		return Response{Success: true, SignalID: sig.SignalID, Status: "confirmed"}

	case types.SignalPrepare:
		intent := d.state.ProcessIntent(sig)
		if !d.phases.ValidateSignal(sig.SignalType) {
			d.state.RejectIntent(sig.Symbol, sig.SignalID, "signal_type not allowed in current phase")
			return Response{Success: false, SignalID: sig.SignalID, Status: "rejected", ErrorKind: string(types.ErrSignalTypeNotAllowed)}
		}
		_ = intent

		if sig.TriggerPrice != nil && sig.TriggerCondition != "" && d.triggers != nil {
			d.triggers.Register(trigger.Condition{
				SignalID: sig.SignalID, Symbol: sig.Symbol,
				TriggerPrice: *sig.TriggerPrice, Comparator: sig.TriggerCondition,
				BarCloseTime: sig.Timestamp, TimeoutMs: 5000,
			})
			return Response{Success: true, SignalID: sig.SignalID, Status: "pending_trigger"}
		}

		d.state.ValidateIntent(sig.Symbol, sig.SignalID)
		go d.execute(sig)
		return Response{Success: true, SignalID: sig.SignalID, Status: "accepted"}
	}

	return Response{Success: false, SignalID: sig.SignalID, ErrorKind: string(types.ErrInvalidSignature)}
}

func (d *Dispatcher) intentSnapshot(sig types.Signal) (types.Intent, bool) {
	// read-only lookup: an unknown signal_id reports false and creates no
	// intent, so a CONFIRM without a prior PREPARE stays "unknown_intent".
	return d.state.GetIntent(sig.Symbol, sig.SignalID)
}

// HandleTriggerFire is the client-side trigger fast path's onFire callback
// (§4.9): it marks the intent triggered so a later CONFIRM for the same
// signal_id is deduped (§8), then executes immediately at the price the
// trigger fired at rather than waiting for CONFIRM to arrive.
func (d *Dispatcher) HandleTriggerFire(symbol, signalID string, price decimal.Decimal) {
	intent, ok := d.state.GetIntent(symbol, signalID)
	if !ok {
		return
	}
	if !d.state.MarkTriggered(symbol, signalID) {
		return
	}
	if !d.state.ValidateIntent(symbol, signalID) {
		return
	}
	sig := intent.Signal
	sig.EntryZone = []decimal.Decimal{price}
	d.execute(sig)
}

// HandleTriggerTimeout is the trigger watcher's onTimeout callback: the
// condition never fired before its deadline, so the intent is canceled
// (MISSED_ENTRY, §4.1) and the normal CONFIRM path is left to arrive, if
// it still does, against an already-canceled intent.
func (d *Dispatcher) HandleTriggerTimeout(symbol, signalID string) {
	d.state.MarkCanceled(symbol, signalID)
}

// execute validates against the L2 Validator, then runs the phase-selected
// execution strategy and folds the outcome back into Shadow State.
func (d *Dispatcher) execute(sig types.Signal) {
	ctx := context.Background()
	d.state.MarkExecuting(sig.Symbol, sig.SignalID)

	if err := d.validator.Validate(sig.Symbol, sig.Side(), sig.Size, sig.Regime.StructureScore, sig.Regime.MomentumScore); err != nil {
		d.state.RejectIntent(sig.Symbol, sig.SignalID, err.Error())
		return
	}

	phaseCfg := d.phases.Current()

	if phaseCfg.AllowPyramiding && d.pyramid != nil {
		if existing, ok := d.state.GetPosition(sig.Symbol); ok {
			side := types.SideFromDirection(sig.Direction)
			pState := d.state.Pyramid(sig.Symbol)
			if pState != nil && pState.LayerCount == 0 {
				// seed layer 1 from the position the original (non-pyramid)
				// fill already created, so HasOpportunity's trigger_pct
				// compares against the real entry, not a zero value.
				pState.AddLayer(existing.AvgEntryPrice, existing.Size)
			}
			if side == existing.Side && pState != nil && d.pyramid.HasOpportunity(pState, side, sig.Regime.RegimeState, sig.EntryPrice()) {
				d.pyramid.AddLayer(ctx, sig.Symbol, pState, sig.EntryPrice(), sig.Size)
				d.state.MarkCanceled(sig.Symbol, sig.SignalID) // folded into the existing position, not a new intent fill
				return
			}
		}
	}
	var result execution.Result
	params := execution.Params{
		SignalID: sig.SignalID, Symbol: sig.Symbol, Side: sig.Side(), Size: sig.Size,
		StopLoss: sig.StopLoss, TakeProfits: sig.TakeProfits,
		SignalType: string(sig.SignalType), UrgencyScore: sig.UrgencyScore, AlphaHalfLifeMs: sig.AlphaHalfLifeMs,
	}

	if sig.AlphaHalfLifeMs != nil && d.chaser != nil {
		result = d.chaser.Execute(ctx, params, 1.0, nil)
	} else if phaseCfg.ExecutionMode == types.ModeMaker && d.limitOrKill != nil {
		result = d.limitOrKill.Execute(ctx, params, nil)
	} else {
		// TAKER phases without an explicit chase signal place a direct
		// order via the gateway rather than working a resting order.
		orderID, err := d.gateway.SendOrder(ctx, broker.OrderRequest{
			Symbol: sig.Symbol, Side: sig.Side(), Size: sig.Size, ClientID: sig.SignalID,
		})
		if err != nil {
			d.state.RejectIntent(sig.Symbol, sig.SignalID, err.Error())
			return
		}
		report, _ := d.gateway.GetOrderStatus(ctx, sig.Symbol, orderID)
		result = execution.Result{Status: execution.StatusFilled, FillPrice: report.AvgFillPrice, FillSize: report.FilledSize}
	}

	switch result.Status {
	case execution.StatusFilled, execution.StatusPartiallyFilled:
		d.state.ConfirmExecution(sig.Symbol, sig.SignalID, types.Fill{
			FillPrice: result.FillPrice, FillSize: result.FillSize, Filled: result.Status == execution.StatusFilled,
		}, types.SideFromDirection(sig.Direction), phaseCfg.Phase, sig.Regime.RegimeState, sig.StopLoss, sig.TakeProfits)
	default:
		d.state.MarkCanceled(sig.Symbol, sig.SignalID)
		log.Info().Str("symbol", sig.Symbol).Str("signal_id", sig.SignalID).Str("status", string(result.Status)).Str("reason", result.Reason).Msg("execution strategy terminated without a fill")
	}
}

func (d *Dispatcher) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	brokerOK := d.gateway.TestConnection(ctx) == nil
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"broker_ok":    brokerOK,
		"phase":        d.phases.Current().Phase,
		"open_symbols": len(d.state.Positions()),
	})
}

func (d *Dispatcher) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": d.state.Positions()})
}

func (d *Dispatcher) handleClosePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	pos, ok := d.state.GetPosition(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, Response{Success: false, Status: "no_position"})
		return
	}
	if err := d.gateway.ClosePosition(c.Request.Context(), symbol); err != nil {
		c.JSON(http.StatusBadGateway, Response{Success: false, ErrorKind: string(types.ErrBrokerRejected)})
		return
	}
	rec, _ := d.state.ClosePosition(symbol, pos.AvgEntryPrice, "manual_close")
	c.JSON(http.StatusOK, gin.H{"success": true, "trade": rec})
}

func (d *Dispatcher) handleFlatten(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := d.gateway.CloseAllPositions(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, Response{Success: false, ErrorKind: string(types.ErrBrokerRejected)})
		return
	}
	for _, pos := range d.state.Positions() {
		d.state.ClosePosition(pos.Symbol, pos.AvgEntryPrice, "emergency_flatten")
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.KindOperationalAlert, map[string]any{"reason": "emergency flatten invoked", "closed": n})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "closed": n})
}

// handleTradeHistory implements §6's paginated trade-history surface:
// symbol/phase/regime/date filters, limit capped at 1000 by the store.
func (d *Dispatcher) handleTradeHistory(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, ErrorKind: string(types.ErrPersistenceUnavailable)})
		return
	}
	f := persistence.TradeHistoryFilter{Symbol: c.Query("symbol")}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}
	if v := c.Query("phase"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Phase = &n
		}
	}
	if v := c.Query("regime"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r := types.RegimeState(n)
			f.Regime = &r
		}
	}
	if v := c.Query("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = &t
		}
	}
	if v := c.Query("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Until = &t
		}
	}
	trades, err := d.store.TradeHistory(f)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, ErrorKind: string(types.ErrPersistenceUnavailable)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// handlePerformanceSummary implements §6's realized-PnL/win-rate surface.
func (d *Dispatcher) handlePerformanceSummary(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, ErrorKind: string(types.ErrPersistenceUnavailable)})
		return
	}
	summary, err := d.store.PerformanceSummary()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, ErrorKind: string(types.ErrPersistenceUnavailable)})
		return
	}
	c.JSON(http.StatusOK, summary)
}
