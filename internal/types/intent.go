package types

import "time"

// IntentStatus is the monotone lifecycle state of an Intent. Transitions must
// never regress: PENDING -> VALIDATED -> {EXECUTING -> {FILLED | CANCELED}} | REJECTED.
type IntentStatus string

const (
	IntentPending    IntentStatus = "PENDING"
	IntentValidated  IntentStatus = "VALIDATED"
	IntentRejected   IntentStatus = "REJECTED"
	IntentExecuting  IntentStatus = "EXECUTING"
	IntentFilled     IntentStatus = "FILLED"
	IntentCanceled   IntentStatus = "CANCELED"
)

// intentRank orders statuses for the monotonicity check in CanTransition.
var intentRank = map[IntentStatus]int{
	IntentPending:   0,
	IntentValidated: 1,
	IntentExecuting: 2,
	IntentFilled:    3,
	IntentCanceled:  3,
	IntentRejected:  3,
}

// CanTransition reports whether moving from `from` to `to` is a forward edge
// in the intent lifecycle DAG (no backward transitions, and REJECTED/FILLED/
// CANCELED are absorbing).
func CanTransition(from, to IntentStatus) bool {
	switch from {
	case IntentFilled, IntentCanceled, IntentRejected:
		return false
	case IntentPending:
		return to == IntentValidated || to == IntentRejected || to == IntentCanceled
	case IntentValidated:
		return to == IntentExecuting || to == IntentRejected || to == IntentCanceled
	case IntentExecuting:
		return to == IntentFilled || to == IntentCanceled
	}
	return intentRank[to] >= intentRank[from]
}

// Intent is a Signal in flight through the execution core.
type Intent struct {
	Signal       Signal
	Status       IntentStatus
	RejectReason string
	CreatedAt    time.Time
	Triggered    bool // set by the client-side trigger (§4.9) to dedupe a later CONFIRM
}

// Transition moves the intent to `to` if the edge is legal, returning false
// (and leaving the intent unchanged) otherwise.
func (i *Intent) Transition(to IntentStatus) bool {
	if !CanTransition(i.Status, to) {
		return false
	}
	i.Status = to
	return true
}
