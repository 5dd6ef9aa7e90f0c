// Package domain defines the core types of the training coach: workout records,
// logged sessions and their attribution lifecycle, and daily recovery signals.
package domain

import (
	"strings"
	"time"
)

// LoggedSession is a self-reported workout submitted through chat.
type LoggedSession struct {
	ID           string
	UserID       string
	RawReference string
	ContentID    string
	ActivityHint string
	LoggedAt     time.Time
	Status       SessionStatus
	WorkoutID    *string
	Exertion     *int
	Answer       *ClarificationAnswer
	RetryCount   int
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ClarificationAnswer captures what the user told us about an unattributed session.
type ClarificationAnswer struct {
	Environment string // "outdoors" or "machine"
	DurationMin int
}

// Environment values accepted in a clarifying answer.
const (
	EnvironmentOutdoors = "outdoors"
	EnvironmentMachine  = "machine"
)

// Validate rejects empty answers and unknown environments.
func (a ClarificationAnswer) Validate() error {
	switch {
	case a.Environment != "" && a.Environment != EnvironmentOutdoors && a.Environment != EnvironmentMachine:
		return &detailError{base: ErrInvalidAnswer, detail: "environment must be outdoors or machine"}
	case a.DurationMin < 0 || a.DurationMin > 24*60:
		return &detailError{base: ErrInvalidAnswer, detail: "duration_min out of range"}
	case a.Environment == "" && a.DurationMin == 0:
		return &detailError{base: ErrInvalidAnswer, detail: "environment or duration_min is required"}
	}
	return nil
}

// Active reports whether the session still counts toward history and workout ownership.
func (s LoggedSession) Active() bool {
	return s.Status != StatusUndone
}

// HoldsWorkout reports whether the session is active and attributed to workoutID.
func (s LoggedSession) HoldsWorkout(workoutID string) bool {
	return s.Active() && s.WorkoutID != nil && *s.WorkoutID == workoutID
}

// ChosenWorkout returns the attributed workout id or "".
func (s LoggedSession) ChosenWorkout() string {
	if s.WorkoutID == nil {
		return ""
	}
	return *s.WorkoutID
}

// NewSessionInput carries the parsed chat ingress for a logged session.
type NewSessionInput struct {
	UserID         string
	RawReference   string
	ContentID      string
	ActivityHint   string
	LoggedAt       time.Time
	IdempotencyKey string
}

// Validate checks required fields.
func (in NewSessionInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return wrapInvalidSession("user_id is required")
	}
	if strings.TrimSpace(in.RawReference) == "" && strings.TrimSpace(in.ContentID) == "" {
		return wrapInvalidSession("raw_reference or content_id is required")
	}
	if in.LoggedAt.IsZero() {
		return wrapInvalidSession("logged_at is required")
	}
	return nil
}

// ValidExertion reports whether rating is on the 1-5 scale.
func ValidExertion(rating int) bool {
	return rating >= 1 && rating <= 5
}

func wrapInvalidSession(detail string) error {
	return &detailError{base: ErrInvalidSession, detail: detail}
}

type detailError struct {
	base   error
	detail string
}

func (e *detailError) Error() string { return e.base.Error() + ": " + e.detail }

func (e *detailError) Unwrap() error { return e.base }
