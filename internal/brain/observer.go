package brain

import "time"

// Outcome is how a speech turn ended.
type Outcome string

// Turn outcomes.
const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Observer receives pipeline measurements. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObserveTurn(outcome Outcome, navigate bool, d time.Duration)
	ObserveRetrieval(hits int, err error, d time.Duration)
	ObserveGeneration(err error, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveTurn(Outcome, bool, time.Duration)   {}
func (nopObserver) ObserveRetrieval(int, error, time.Duration) {}
func (nopObserver) ObserveGeneration(error, time.Duration)     {}
