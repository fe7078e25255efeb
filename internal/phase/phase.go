// Package phase implements the Phase Manager (§4.7): an equity-driven state
// machine selecting risk parameters, allowed signal classes, and execution
// mode. It is grounded on risk/gate.go's RiskGate state machine (circuit
// breaker, day-reset, onCircuitTrip callback) from the teacher, generalized
// from a single-tier account gate into the three-phase table, and on
// risk/sizing.go's Sizer.Calculate formula for position sizing.
package phase

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/types"
)

// Manager polls broker equity and derives the active PhaseConfig from it.
type Manager struct {
	mu          sync.RWMutex
	table       []types.PhaseConfig
	current     types.PhaseConfig
	initialized bool
	bus         *eventbus.Bus
}

// New builds a Manager over the default three-tier phase table (§4.7).
func New(bus *eventbus.Bus) *Manager {
	return &Manager{table: types.DefaultPhaseTable(), bus: bus}
}

// phaseFor selects the PhaseConfig whose [EquityMin, EquityMax) bucket
// contains equity. Boundary semantics: equity == EquityMin belongs to that
// phase, not the one below (§4.7, §8 property 9).
func (m *Manager) phaseFor(equity float64) types.PhaseConfig {
	for _, p := range m.table {
		if equity >= p.EquityMin && equity < p.EquityMax {
			return p
		}
	}
	// Below the lowest bucket or above all buckets (shouldn't happen given
	// the top bucket is [5000, +Inf)): fall back to phase 1.
	return m.table[0]
}

// Update recomputes the phase from the latest equity reading, publishing
// phase:transition on any change and phase:regression in addition when the
// phase number decreases (§4.7: monotone transitions, a regression is a
// critical alert, not a forbidden state).
func (m *Manager) Update(equity decimal.Decimal) types.PhaseConfig {
	eq, _ := equity.Float64()
	next := m.phaseFor(eq)

	m.mu.Lock()
	prev := m.current
	wasInitialized := m.initialized
	m.current = next
	m.initialized = true
	m.mu.Unlock()

	if !wasInitialized || prev.Phase != next.Phase {
		if m.bus != nil {
			m.bus.Publish(eventbus.KindPhaseTransition, map[string]any{
				"from_phase": prev.Phase,
				"to_phase":   next.Phase,
				"equity":     eq,
			})
			if wasInitialized && next.Phase < prev.Phase {
				m.bus.Publish(eventbus.KindPhaseRegression, map[string]any{
					"from_phase": prev.Phase,
					"to_phase":   next.Phase,
					"equity":     eq,
				})
			}
			if next.Phase == 3 && (!wasInitialized || prev.Phase != 3) {
				m.bus.Publish(eventbus.KindOperationalAlert, map[string]any{
					"reason": "phase 3 (TARGET_REACHED) entered; rules beyond TAKER-swing, no-pyramiding are unexercised",
					"equity": eq,
				})
			}
		}
	}
	return next
}

// Current returns the last computed phase, or the lowest phase if Update
// has never run.
func (m *Manager) Current() types.PhaseConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return m.table[0]
	}
	return m.current
}

// ValidateSignal reports whether a signal_type is permitted in the current phase.
func (m *Manager) ValidateSignal(st types.SignalType) bool {
	return m.Current().Allows(st)
}

// PollEquity periodically calls fetchEquity and feeds it to Update, matching
// the "polls broker equity on a timer" description in §4.7.
func (m *Manager) PollEquity(stop <-chan struct{}, interval time.Duration, fetchEquity func() (decimal.Decimal, error)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if eq, err := fetchEquity(); err == nil {
				m.Update(eq)
			}
		}
	}
}

// PositionSize implements the sizing contract of §4.7:
// size = (equity * risk_pct) / |entry - stop_loss|, capped so notional <= equity * max_leverage.
func PositionSize(phase types.PhaseConfig, equity, entry, stopLoss decimal.Decimal) decimal.Decimal {
	riskPerUnit := entry.Sub(stopLoss).Abs()
	if riskPerUnit.IsZero() {
		return decimal.Zero
	}
	riskAmount := equity.Mul(decimal.NewFromFloat(phase.RiskPct))
	size := riskAmount.Div(riskPerUnit)

	maxNotional := equity.Mul(decimal.NewFromFloat(phase.MaxLeverage))
	if entry.Sign() > 0 {
		maxSize := maxNotional.Div(entry)
		if size.GreaterThan(maxSize) {
			size = maxSize
		}
	}
	return size
}
