// Package shadowstate implements §4.6: the authoritative local ledger of
// Intents and Positions, per-symbol locked. It is grounded on
// execution/reconciler.go's RecoverPositions/SaveRiskState/LoadRiskState
// from the teacher, generalized from a Polymarket position shape to this
// spec's Position/PyramidState shape, and on execution/adapter.go's
// PositionPersister pattern for the best-effort persistence path.
package shadowstate

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/types"
)

// Persister is the best-effort, non-blocking persistence sink. Failures are
// logged but never propagated to the caller (§3, §4.6).
type Persister interface {
	PersistPosition(pos types.Position) error
	RemovePosition(symbol string) error
	PersistIntent(intent types.Intent) error
	RecordTrade(rec types.TradeRecord) error
}

// symbolState bundles the per-symbol mutex with what it guards, so the
// lock is never taken without its data.
type symbolState struct {
	mu       sync.Mutex
	intents  map[string]*types.Intent // by signal_id
	position *types.Position
	pyramid  *types.PyramidState
}

// State is the Shadow State. Mutations are serialized per symbol; reads
// take a snapshot copy so callers never observe a half-mutated Position.
type State struct {
	mu        sync.RWMutex
	symbols   map[string]*symbolState
	persister Persister
	bus       *eventbus.Bus
}

func New(persister Persister, bus *eventbus.Bus) *State {
	return &State{symbols: make(map[string]*symbolState), persister: persister, bus: bus}
}

func (s *State) symbolFor(symbol string) *symbolState {
	s.mu.RLock()
	ss, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return ss
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok = s.symbols[symbol]; ok {
		return ss
	}
	ss = &symbolState{intents: make(map[string]*types.Intent)}
	s.symbols[symbol] = ss
	return ss
}

// ProcessIntent is idempotent by signal_id: re-processing an already-known
// signal_id returns the existing Intent unchanged (§8: duplicate PREPARE is
// a no-op after the first).
func (s *State) ProcessIntent(sig types.Signal) *types.Intent {
	ss := s.symbolFor(sig.Symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if existing, ok := ss.intents[sig.SignalID]; ok {
		return existing
	}
	intent := &types.Intent{Signal: sig, Status: types.IntentPending, CreatedAt: time.Now()}
	ss.intents[sig.SignalID] = intent
	s.publish(eventbus.KindIntentCreated, sig.Symbol, sig.SignalID)
	s.persistIntentAsync(*intent)
	return intent
}

func (s *State) ValidateIntent(symbol, signalID string) bool {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	intent, ok := ss.intents[signalID]
	if !ok {
		return false
	}
	ok = intent.Transition(types.IntentValidated)
	if ok {
		s.persistIntentAsync(*intent)
	}
	return ok
}

func (s *State) RejectIntent(symbol, signalID, reason string) bool {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	intent, ok := ss.intents[signalID]
	if !ok {
		return false
	}
	if !intent.Transition(types.IntentRejected) {
		return false
	}
	intent.RejectReason = reason
	s.publish(eventbus.KindSignalRejected, symbol, signalID, "reason", reason)
	s.persistIntentAsync(*intent)
	return true
}

// MarkExecuting is used by an execution strategy when it begins working an order.
func (s *State) MarkExecuting(symbol, signalID string) bool {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	intent, ok := ss.intents[signalID]
	if !ok {
		return false
	}
	return intent.Transition(types.IntentExecuting)
}

// MarkCanceled terminates an intent (ABORT, MISSED_ENTRY, FILL_TIMEOUT, etc).
func (s *State) MarkCanceled(symbol, signalID string) bool {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	intent, ok := ss.intents[signalID]
	if !ok {
		return false
	}
	return intent.Transition(types.IntentCanceled)
}

// GetIntent returns a snapshot of the Intent for signalID under symbol, if known.
func (s *State) GetIntent(symbol, signalID string) (types.Intent, bool) {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	intent, ok := ss.intents[signalID]
	if !ok {
		return types.Intent{}, false
	}
	return *intent, true
}

// MarkTriggered flags an intent as fired by the client-side trigger fast
// path (§4.9), so a later CONFIRM for the same signal_id is deduped as a
// duplicate rather than executed twice.
func (s *State) MarkTriggered(symbol, signalID string) bool {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	intent, ok := ss.intents[signalID]
	if !ok {
		return false
	}
	intent.Triggered = true
	s.persistIntentAsync(*intent)
	return true
}

// Abort implements §4.1 ABORT semantics: cancels PENDING/EXECUTING; if
// already FILLED, records a late-abort warning and leaves the Position intact.
func (s *State) Abort(symbol, signalID string) {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	intent, ok := ss.intents[signalID]
	if !ok {
		return
	}
	if intent.Status == types.IntentFilled {
		s.publish(eventbus.KindLateAbortAfterExecution, symbol, signalID)
		return
	}
	intent.Transition(types.IntentCanceled)
}

// ConfirmExecution creates or augments the symbol's Position from a fill
// report (§4.6). Returns the resulting Position.
func (s *State) ConfirmExecution(symbol, signalID string, fill types.Fill, side types.Side, phase int, regime types.RegimeState, stop decimal.Decimal, takeProfits []decimal.Decimal) types.Position {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.position == nil {
		ss.position = &types.Position{
			Symbol:        symbol,
			Side:          side,
			CurrentStop:   stop,
			TakeProfits:   takeProfits,
			OpenedAt:      time.Now(),
			PhaseAtEntry:  phase,
			RegimeAtEntry: regime,
		}
	}
	ss.position.ApplyFill(fill.FillPrice, fill.FillSize, fill.BrokerOrderID)
	ss.position.ReconciledAt = time.Now()

	if intent, ok := ss.intents[signalID]; ok && fill.Filled {
		intent.Transition(types.IntentFilled)
		s.persistIntentAsync(*intent)
	}

	pos := *ss.position
	s.persistPositionAsync(pos)
	return pos
}

// ClosePosition deletes the Position and returns the realized-PnL record (§4.6).
func (s *State) ClosePosition(symbol string, exitPrice decimal.Decimal, reason string) (types.TradeRecord, bool) {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.position == nil {
		return types.TradeRecord{}, false
	}
	pos := *ss.position
	rec := types.TradeRecord{
		Symbol:        symbol,
		Side:          pos.Side,
		Size:          pos.Size,
		EntryPrice:    pos.AvgEntryPrice,
		ExitPrice:     exitPrice,
		PnL:           pos.RealizedPnL(exitPrice),
		Reason:        reason,
		PhaseAtEntry:  pos.PhaseAtEntry,
		RegimeAtEntry: pos.RegimeAtEntry,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      time.Now(),
	}
	ss.position = nil
	ss.pyramid = nil
	s.removePositionAsync(symbol)
	s.persistTradeAsync(rec)
	return rec, true
}

func (s *State) HasPosition(symbol string) bool {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.position != nil
}

func (s *State) GetPosition(symbol string) (types.Position, bool) {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.position == nil {
		return types.Position{}, false
	}
	return *ss.position, true
}

// Positions returns a snapshot slice of every currently open Position.
func (s *State) Positions() []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Position, 0, len(s.symbols))
	for _, ss := range s.symbols {
		ss.mu.Lock()
		if ss.position != nil {
			out = append(out, *ss.position)
		}
		ss.mu.Unlock()
	}
	return out
}

// Pyramid returns (and lazily creates) the PyramidState for a symbol's
// current position.
func (s *State) Pyramid(symbol string) *types.PyramidState {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.pyramid == nil && ss.position != nil {
		ss.pyramid = &types.PyramidState{Symbol: symbol, Side: ss.position.Side}
	}
	return ss.pyramid
}

// SetPosition directly installs a Position, used by the reconciler when
// recovering state at startup.
func (s *State) SetPosition(pos types.Position) {
	ss := s.symbolFor(pos.Symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	p := pos
	ss.position = &p
}

// RemoveLocalPosition deletes a position without computing PnL, used by the
// reconciliation loop for PHANTOM_LOCAL_POSITION cleanup.
func (s *State) RemoveLocalPosition(symbol string) {
	ss := s.symbolFor(symbol)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.position = nil
	ss.pyramid = nil
	s.removePositionAsync(symbol)
}

func (s *State) publish(kind eventbus.Kind, symbol, signalID string, extra ...string) {
	if s.bus == nil {
		return
	}
	payload := map[string]any{"symbol": symbol, "signal_id": signalID}
	for i := 0; i+1 < len(extra); i += 2 {
		payload[extra[i]] = extra[i+1]
	}
	s.bus.Publish(kind, payload)
}

// persist* hand off to the Persister from a short-lived goroutine and never
// propagate its error: persistence must never gate intent or order
// progression (§3). internal/persistence itself owns the bounded retry
// queue (§5) — PersistPosition/PersistIntent/RecordTrade only enqueue and
// return, so these goroutines exit almost immediately rather than blocking
// on a slow or down database.
func (s *State) persistIntentAsync(intent types.Intent) {
	if s.persister == nil {
		return
	}
	go func() {
		if err := s.persister.PersistIntent(intent); err != nil {
			s.publish(eventbus.KindOperationalAlert, intent.Signal.Symbol, intent.Signal.SignalID, "error", err.Error())
		}
	}()
}

func (s *State) persistPositionAsync(pos types.Position) {
	if s.persister == nil {
		return
	}
	go func() {
		if err := s.persister.PersistPosition(pos); err != nil {
			s.publish(eventbus.KindOperationalAlert, pos.Symbol, "", "error", err.Error())
		}
	}()
}

func (s *State) removePositionAsync(symbol string) {
	if s.persister == nil {
		return
	}
	go func() {
		if err := s.persister.RemovePosition(symbol); err != nil {
			s.publish(eventbus.KindOperationalAlert, symbol, "", "error", err.Error())
		}
	}()
}

func (s *State) persistTradeAsync(rec types.TradeRecord) {
	if s.persister == nil {
		return
	}
	go func() {
		if err := s.persister.RecordTrade(rec); err != nil {
			s.publish(eventbus.KindOperationalAlert, rec.Symbol, "", "error", err.Error())
		}
	}()
}
