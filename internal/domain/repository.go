package domain

import (
	"context"
	"time"
)

// WorkoutStore is the read-only view of physiological workout records.
type WorkoutStore interface {
	WorkoutsBetween(ctx context.Context, userID string, from, to time.Time) ([]WorkoutRecord, error)
	RecentWorkouts(ctx context.Context, userID string, days int, now time.Time) ([]WorkoutRecord, error)
}

// StateChange describes one applied transition, recorded alongside the session write.
type StateChange struct {
	SessionID  string
	UserID     string
	From       SessionStatus
	Event      SessionEvent
	To         SessionStatus
	WorkoutID  string
	OccurredAt time.Time
}

// SessionRepository captures persistence operations for logged sessions.
type SessionRepository interface {
	FindByIdempotency(ctx context.Context, userID, idempotencyKey string) (*LoggedSession, error)
	Create(ctx context.Context, session LoggedSession, idempotencyKey string) error
	// Get returns nil, nil when the session does not exist for the user.
	Get(ctx context.Context, userID, sessionID string) (*LoggedSession, error)
	// Save writes session if the stored version still equals expectedVersion. It returns
	// ErrConcurrentUpdate on a lost race and ErrWorkoutClaimed when another active
	// session already holds session.WorkoutID.
	Save(ctx context.Context, session LoggedSession, expectedVersion int64, change StateChange) error
	// ActiveHolders maps each of workoutIDs held by an active session to that session id.
	ActiveHolders(ctx context.Context, userID string, workoutIDs []string) (map[string]string, error)
	LatestActive(ctx context.Context, userID string) (*LoggedSession, error)
	// History lists active sessions logged at or after since, newest first.
	History(ctx context.Context, userID string, since time.Time, limit int) ([]LoggedSession, error)
	// ListByUser pages through all of a user's sessions, newest first. The returned cursor
	// is nil on the last page.
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]LoggedSession, *Cursor, error)
	// ListByStatus lists sessions across users in any of statuses logged at or after since, oldest first.
	ListByStatus(ctx context.Context, statuses []SessionStatus, since time.Time, limit int) ([]LoggedSession, error)
}

// ContentRepository reads the sessions that reused one piece of content.
type ContentRepository interface {
	// ContentUses lists the active sessions of userID logged with contentID, newest first.
	ContentUses(ctx context.Context, userID, contentID string) ([]ContentUse, error)
}

// Cursor marks the last session of a page.
type Cursor struct {
	LoggedAt time.Time
	ID       string
}

// SignalRepository stores merged daily recovery signals.
type SignalRepository interface {
	GetSignal(ctx context.Context, userID string, date time.Time) (*RecoverySignal, error)
	// UpsertSignal writes the halves flagged on signal and keeps the other half of the
	// stored row, atomically with respect to concurrent upserts.
	UpsertSignal(ctx context.Context, signal RecoverySignal) error
	// SignalsBetween returns signals dated within [from, to], oldest first.
	SignalsBetween(ctx context.Context, userID string, from, to time.Time) ([]RecoverySignal, error)
}
