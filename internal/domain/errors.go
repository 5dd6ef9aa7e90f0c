package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a logged session cannot be located for the user.
	ErrSessionNotFound = errors.New("logged session not found")
	// ErrContentNotFound is returned when the user has no active session for a content id.
	ErrContentNotFound = errors.New("content not found")
	// ErrStoreUnavailable wraps read failures against the workout or history stores.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidSignal indicates malformed recovery or soreness input for a day.
	ErrInvalidSignal = errors.New("invalid signal data")
	// ErrWorkoutClaimed is returned when another active session already holds the workout.
	ErrWorkoutClaimed = errors.New("workout already attributed to another session")
	// ErrWorkoutNotCandidate is returned when a pick names a workout outside the candidate set.
	ErrWorkoutNotCandidate = errors.New("workout is not a candidate for this session")
	// ErrConcurrentUpdate signals a lost compare-and-swap on the session version.
	ErrConcurrentUpdate = errors.New("session was modified concurrently")
	// ErrInvalidExertion is returned for ratings outside 1-5.
	ErrInvalidExertion = errors.New("exertion rating must be between 1 and 5")
	// ErrInvalidSession is returned when session ingress fields are missing.
	ErrInvalidSession = errors.New("invalid logged session")
	// ErrInvalidAnswer is returned for clarifying answers that carry nothing usable.
	ErrInvalidAnswer = errors.New("invalid clarifying answer")
)

// InvalidTransitionError reports an event that the current status does not accept.
// Callers surface it to the user as a no-op.
type InvalidTransitionError struct {
	From  SessionStatus
	Event SessionEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a session in state %s", e.Event, e.From)
}

// Explanation is the human-readable message shown to the user.
func (e *InvalidTransitionError) Explanation() string {
	switch {
	case e.From == StatusUndone:
		return "This session was undone. Log it again to start over."
	case e.Event == EventRate && e.From == StatusConfirmed:
		return "This session already has an exertion rating. Use retry to re-attribute it."
	case e.Event == EventRate:
		return "Pick the matching workout before rating the session."
	case e.Event == EventPick:
		return "This session is not waiting for a workout pick."
	case e.Event == EventAnswer:
		return "This session is not waiting for an answer."
	default:
		return fmt.Sprintf("Nothing to do: the session is %s.", humanStatus(e.From))
	}
}

// IsInvalidTransition reports whether err carries an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func humanStatus(s SessionStatus) string {
	switch s {
	case StatusAwaitingClarification:
		return "waiting for your answer"
	case StatusAwaitingManualPick:
		return "waiting for you to pick a workout"
	default:
		return string(s)
	}
}
