package execution

import (
	"math"
	"testing"
	"time"
)

func TestEffectiveHalfLifeByDefaultSignalType(t *testing.T) {
	cases := []struct {
		signalType   string
		urgency      float64
		explicitMs   *int64
		want         time.Duration
	}{
		{"SCALP", 50, nil, 10 * time.Second},
		{"DAY", 50, nil, 30 * time.Second},
		{"SWING", 50, nil, 120 * time.Second},
		{"SCALP", 96, nil, 15 * time.Second},  // strict >95: 1.5x
		{"SCALP", 95, nil, 10 * time.Second},  // boundary: not strictly greater, no multiplier
	}
	for _, c := range cases {
		got := EffectiveHalfLife(c.signalType, c.urgency, c.explicitMs)
		if got != c.want {
			t.Errorf("EffectiveHalfLife(%s, %v) = %v, want %v", c.signalType, c.urgency, got, c.want)
		}
	}
}

func TestEffectiveHalfLifePrefersExplicitValue(t *testing.T) {
	explicit := int64(5000)
	got := EffectiveHalfLife("SCALP", 50, &explicit)
	want := 5 * time.Second
	if got != want {
		t.Errorf("EffectiveHalfLife with explicit ms = %v, want %v", got, want)
	}
}

func TestRemainingAlphaDecaysByHalfAtHalfLife(t *testing.T) {
	halfLife := 10 * time.Second
	got := RemainingAlpha(1.0, halfLife, halfLife)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("remaining alpha at one half-life = %v, want 0.5", got)
	}

	gotTwo := RemainingAlpha(1.0, 2*halfLife, halfLife)
	if math.Abs(gotTwo-0.25) > 1e-9 {
		t.Errorf("remaining alpha at two half-lives = %v, want 0.25", gotTwo)
	}

	gotZero := RemainingAlpha(1.0, 0, halfLife)
	if math.Abs(gotZero-1.0) > 1e-9 {
		t.Errorf("remaining alpha at zero elapsed = %v, want 1.0", gotZero)
	}
}

func TestOBIWorsenedTruthTable(t *testing.T) {
	cases := []struct {
		name             string
		side             string
		prev, cur        float64
		prevOK, curOK    bool
		want             bool
	}{
		{"buy strict decrease worsens", "BUY", 2.0, 1.5, true, true, true},
		{"buy increase does not worsen", "BUY", 1.5, 2.0, true, true, false},
		{"buy unchanged does not worsen", "BUY", 2.0, 2.0, true, true, false},
		{"sell strict increase worsens", "SELL", 1.0, 1.5, true, true, true},
		{"sell decrease does not worsen", "SELL", 1.5, 1.0, true, true, false},
		{"missing prev never worsens", "BUY", 2.0, 1.0, false, true, false},
		{"missing cur never worsens", "BUY", 2.0, 1.0, true, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := OBIWorsened(c.side, c.prev, c.cur, c.prevOK, c.curOK)
			if got != c.want {
				t.Errorf("OBIWorsened(%s, %v, %v) = %v, want %v", c.side, c.prev, c.cur, got, c.want)
			}
		})
	}
}
