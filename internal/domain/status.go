package domain

import "fmt"

// SessionStatus is the attribution lifecycle state of a logged session.
type SessionStatus string

const (
	StatusPending               SessionStatus = "pending"
	StatusAwaitingClarification SessionStatus = "awaiting_clarification"
	StatusAwaitingManualPick    SessionStatus = "awaiting_manual_pick"
	StatusMatched               SessionStatus = "matched"
	StatusConfirmed             SessionStatus = "confirmed"
	StatusUndone                SessionStatus = "undone"
)

// SessionEvent drives a transition between statuses.
type SessionEvent string

const (
	EventAutoMatch         SessionEvent = "auto_match"
	EventNeedPick          SessionEvent = "need_pick"
	EventNeedClarification SessionEvent = "need_clarification"
	EventPick              SessionEvent = "pick"
	EventNoMatch           SessionEvent = "no_match"
	EventAnswer            SessionEvent = "answer"
	EventRate              SessionEvent = "rate"
	EventRetry             SessionEvent = "retry"
	EventUndo              SessionEvent = "undo"
)

// AllStatuses lists every status, mostly for exhaustive tests and validation.
var AllStatuses = []SessionStatus{
	StatusPending,
	StatusAwaitingClarification,
	StatusAwaitingManualPick,
	StatusMatched,
	StatusConfirmed,
	StatusUndone,
}

// AllEvents lists every event.
var AllEvents = []SessionEvent{
	EventAutoMatch,
	EventNeedPick,
	EventNeedClarification,
	EventPick,
	EventNoMatch,
	EventAnswer,
	EventRate,
	EventRetry,
	EventUndo,
}

// transitions is the full state table. A missing entry means the event is not allowed.
var transitions = map[SessionStatus]map[SessionEvent]SessionStatus{
	StatusPending: {
		EventAutoMatch:         StatusMatched,
		EventNeedPick:          StatusAwaitingManualPick,
		EventNeedClarification: StatusAwaitingClarification,
		EventNoMatch:           StatusPending,
		EventRetry:             StatusPending,
		EventUndo:              StatusUndone,
	},
	StatusAwaitingClarification: {
		EventAutoMatch:         StatusMatched,
		EventNeedPick:          StatusAwaitingManualPick,
		EventNeedClarification: StatusAwaitingClarification,
		EventPick:              StatusMatched,
		EventNoMatch:           StatusPending,
		EventAnswer:            StatusPending,
		EventRetry:             StatusPending,
		EventUndo:              StatusUndone,
	},
	StatusAwaitingManualPick: {
		EventNeedPick: StatusAwaitingManualPick,
		EventPick:     StatusMatched,
		EventNoMatch:  StatusPending,
		EventRetry:    StatusPending,
		EventUndo:     StatusUndone,
	},
	StatusMatched: {
		EventRate:  StatusConfirmed,
		EventRetry: StatusPending,
		EventUndo:  StatusUndone,
	},
	StatusConfirmed: {
		EventRetry: StatusPending,
		EventUndo:  StatusUndone,
	},
	StatusUndone: {},
}

// Transition returns the status reached by applying event to from.
func Transition(from SessionStatus, event SessionEvent) (SessionStatus, error) {
	row, ok := transitions[from]
	if !ok {
		return from, fmt.Errorf("unknown session status %q", from)
	}
	next, ok := row[event]
	if !ok {
		return from, &InvalidTransitionError{From: from, Event: event}
	}
	return next, nil
}

// CanApply reports whether event is allowed from status.
func CanApply(from SessionStatus, event SessionEvent) bool {
	_, err := Transition(from, event)
	return err == nil
}

// Terminal reports whether no further transition leaves the status.
func (s SessionStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Awaiting reports whether the session waits on user input.
func (s SessionStatus) Awaiting() bool {
	return s == StatusAwaitingClarification || s == StatusAwaitingManualPick
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}
