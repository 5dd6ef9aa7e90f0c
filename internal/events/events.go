// Package events defines the payloads exchanged over Kafka.
package events

import "time"

// Event types carried in the outbox and on the wire.
const (
	TypeSessionStateChanged = "session.state_changed"
	TypePlanGenerated       = "plan.generated"
	TypeRecoveryScored      = "recovery.scored"
	TypeSorenessAnswered    = "soreness.answered"
)

// SessionStateChanged is emitted for every persisted lifecycle transition of a logged session.
type SessionStateChanged struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	From       string    `json:"from"`
	Event      string    `json:"event"`
	To         string    `json:"to"`
	WorkoutID  string    `json:"workout_id,omitempty"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PlanGenerated is emitted when a new plan version is cached for (user, date).
type PlanGenerated struct {
	UserID      string    `json:"user_id"`
	Date        string    `json:"date"`
	Hash        string    `json:"hash"`
	Recommended []string  `json:"recommended"`
	GeneratedAt time.Time `json:"generated_at"`
}

// RecoveryScored is the wearable half of a day's signal.
type RecoveryScored struct {
	UserID      string  `json:"user_id"`
	Date        string  `json:"date"`
	RecoveryPct float64 `json:"recovery_pct"`
	RestingHR   float64 `json:"resting_hr"`
	HRV         float64 `json:"hrv"`
}

// SorenessAnswered is the chat half of a day's signal.
type SorenessAnswered struct {
	UserID    string   `json:"user_id"`
	Date      string   `json:"date"`
	Soreness  int      `json:"soreness"`
	PainFlags []string `json:"pain_flags,omitempty"`
}

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"
