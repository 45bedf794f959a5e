package domain

// AttemptState is a payment attempt's position in the settlement flow.
type AttemptState string

const (
	StateIdle              AttemptState = "idle"
	StateQuoting           AttemptState = "quoting"
	StateBuilding          AttemptState = "building"
	StateAwaitingSignature AttemptState = "awaitingSignature"
	StateSubmitting        AttemptState = "submitting"
	StateConfirming        AttemptState = "confirming"
	StateSettled           AttemptState = "settled"
	StateFailed            AttemptState = "failed"
)

// Terminal reports whether the state ends the attempt.
func (s AttemptState) Terminal() bool {
	return s == StateSettled || s == StateFailed
}

// validTransitions encodes the settlement state machine. A retried payment
// is always a brand-new attempt from idle; there are no backward edges.
var validTransitions = map[AttemptState][]AttemptState{
	StateIdle:              {StateQuoting, StateBuilding},
	StateQuoting:           {StateBuilding, StateFailed},
	StateBuilding:          {StateAwaitingSignature, StateFailed},
	StateAwaitingSignature: {StateSubmitting, StateFailed},
	StateSubmitting:        {StateConfirming, StateFailed},
	StateConfirming:        {StateSettled, StateFailed},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to AttemptState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentAttempt is the orchestrator's view of one payment, from idle to a
// terminal state. Owned solely by the orchestrator instance handling the
// active checkout; never persisted across restarts.
type PaymentAttempt struct {
	ID        string
	State     AttemptState
	TokenMint string // input token chosen by the payer

	// Quote is nil on the direct-transfer path (input mint equals the
	// settlement mint).
	Quote *QuoteRoute

	// TxSignature is set once the network accepts the transaction. It must
	// be tracked until confirmation resolves, even across an abandoned UI
	// view.
	TxSignature string

	Failure    FailureCode // set only in StateFailed
	FailureMsg string

	StartedAt int64 // unix ms
	UpdatedAt int64 // unix ms
}

// Failed reports whether the attempt ended in failure.
func (a *PaymentAttempt) Failed() bool {
	return a.State == StateFailed
}
