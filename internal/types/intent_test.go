package types

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to IntentStatus
		want     bool
	}{
		{IntentPending, IntentValidated, true},
		{IntentPending, IntentRejected, true},
		{IntentPending, IntentExecuting, false},
		{IntentValidated, IntentExecuting, true},
		{IntentValidated, IntentPending, false},
		{IntentExecuting, IntentFilled, true},
		{IntentExecuting, IntentValidated, false},
		{IntentFilled, IntentCanceled, false},
		{IntentRejected, IntentValidated, false},
		{IntentCanceled, IntentExecuting, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIntentTransitionIsMonotone(t *testing.T) {
	intent := &Intent{Status: IntentPending}

	if !intent.Transition(IntentValidated) {
		t.Fatal("PENDING -> VALIDATED should succeed")
	}
	if !intent.Transition(IntentExecuting) {
		t.Fatal("VALIDATED -> EXECUTING should succeed")
	}
	if intent.Transition(IntentPending) {
		t.Fatal("EXECUTING -> PENDING should be rejected (regression)")
	}
	if !intent.Transition(IntentFilled) {
		t.Fatal("EXECUTING -> FILLED should succeed")
	}
	if intent.Transition(IntentCanceled) {
		t.Fatal("FILLED is absorbing; no further transition should succeed")
	}
	if intent.Status != IntentFilled {
		t.Fatalf("status changed despite a rejected transition: got %s", intent.Status)
	}
}
