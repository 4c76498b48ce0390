package cpa

import "time"

// Observer receives session lifecycle events. Implementations must be safe
// for concurrent use; internal/metrics provides a Prometheus-backed one.
type Observer interface {
	// SessionStarted is called when a new session is created for domain.
	SessionStarted(domain string, authenticated bool)
	// PollAttempt is called after each poll that did not fail terminally.
	PollAttempt(domain string, outcome PollOutcome)
	// SessionFinished is called once per session with its terminal state.
	SessionFinished(domain string, state SessionState, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) SessionStarted(string, bool)                         {}
func (noopObserver) PollAttempt(string, PollOutcome)                     {}
func (noopObserver) SessionFinished(string, SessionState, time.Duration) {}
