package types

import "math"

// ExecutionMode selects passive (post-only) vs aggressive (crossing) order placement.
type ExecutionMode string

const (
	ModeMaker ExecutionMode = "MAKER"
	ModeTaker ExecutionMode = "TAKER"
)

// PhaseConfig is the static, per-phase operating table selected by the
// Phase Manager from live broker equity (§4.7).
type PhaseConfig struct {
	Phase              int
	Label              string
	EquityMin          float64 // inclusive
	EquityMax          float64 // exclusive; +Inf for the top phase
	RiskPct            float64
	MaxLeverage         float64
	AllowedSignalTypes map[SignalType]bool
	ExecutionMode      ExecutionMode
	AllowPyramiding    bool
	MaxPyramidLayers   int
}

// Allows reports whether a signal_type is permitted in this phase.
func (p PhaseConfig) Allows(st SignalType) bool {
	return p.AllowedSignalTypes[st]
}

// DefaultPhaseTable is the three-tier equity-bucketed table from §4.7.
// Boundaries are half-open on the low end: equity == EquityMin selects this
// phase, not the one below it.
func DefaultPhaseTable() []PhaseConfig {
	return []PhaseConfig{
		{
			Phase:              1,
			Label:              "KICKSTARTER",
			EquityMin:          200,
			EquityMax:          1000,
			RiskPct:            0.10,
			MaxLeverage:        30,
			AllowedSignalTypes: map[SignalType]bool{SignalScalp: true},
			ExecutionMode:      ModeMaker,
			AllowPyramiding:    false,
			MaxPyramidLayers:   0,
		},
		{
			Phase:              2,
			Label:              "TREND RIDER",
			EquityMin:          1000,
			EquityMax:          5000,
			RiskPct:            0.05,
			MaxLeverage:        15,
			AllowedSignalTypes: map[SignalType]bool{SignalDay: true, SignalSwing: true},
			ExecutionMode:      ModeTaker,
			AllowPyramiding:    true,
			MaxPyramidLayers:   4,
		},
		{
			Phase:              3,
			Label:              "TARGET_REACHED",
			EquityMin:          5000,
			EquityMax:          math.Inf(1),
			RiskPct:            0.02,
			MaxLeverage:        5,
			AllowedSignalTypes: map[SignalType]bool{SignalSwing: true},
			ExecutionMode:      ModeTaker,
			AllowPyramiding:    false,
			MaxPyramidLayers:   0,
		},
	}
}
