package api

import (
	"time"

	"example.com/coach/internal/attribution"
	"example.com/coach/internal/domain"
	"example.com/coach/internal/planner"
)

// CreateSessionRequest is the payload for POST /v1/sessions.
type CreateSessionRequest struct {
	RawReference string    `json:"raw_reference"`
	ContentID    string    `json:"content_id"`
	ActivityHint string    `json:"activity_hint"`
	LoggedAt     time.Time `json:"logged_at"`
}

// PickRequest names the workout chosen from a manual pick list.
type PickRequest struct {
	WorkoutID string `json:"workout_id"`
}

// ClarifyRequest answers a clarifying question.
type ClarifyRequest struct {
	Environment string `json:"environment"`
	DurationMin int    `json:"duration_min"`
}

// RateRequest carries the 1-5 exertion rating.
type RateRequest struct {
	Exertion int `json:"exertion"`
}

// RecoveryRequest is the wearable half of a day's signal.
type RecoveryRequest struct {
	Date        string  `json:"date"`
	RecoveryPct float64 `json:"recovery_pct"`
	RestingHR   float64 `json:"resting_hr"`
	HRV         float64 `json:"hrv"`
}

// SorenessRequest is the chat half of a day's signal.
type SorenessRequest struct {
	Date      string   `json:"date"`
	Soreness  int      `json:"soreness"`
	PainFlags []string `json:"pain_flags"`
}

// SessionView exposes a logged session.
type SessionView struct {
	SessionID    string    `json:"session_id"`
	RawReference string    `json:"raw_reference,omitempty"`
	ContentID    string    `json:"content_id,omitempty"`
	ActivityHint string    `json:"activity_hint,omitempty"`
	LoggedAt     time.Time `json:"logged_at"`
	Status       string    `json:"status"`
	WorkoutID    string    `json:"workout_id,omitempty"`
	Exertion     *int      `json:"exertion,omitempty"`
	RetryCount   int       `json:"retry_count"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AttributionResponse is returned by every session command.
type AttributionResponse struct {
	Session      SessionView         `json:"session"`
	Outcome      string              `json:"outcome,omitempty"`
	NeedMoreInfo float64             `json:"need_more_info,omitempty"`
	Prompt       *attribution.Prompt `json:"prompt,omitempty"`
	Replay       bool                `json:"idempotent_replay,omitempty"`
}

// ListSessionsResponse packages list results.
type ListSessionsResponse struct {
	Items      []SessionView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// SignalView exposes a merged daily signal.
type SignalView struct {
	Date        string    `json:"date"`
	RecoveryPct *float64  `json:"recovery_pct,omitempty"`
	RestingHR   *float64  `json:"resting_hr,omitempty"`
	HRV         *float64  `json:"hrv,omitempty"`
	Soreness    *int      `json:"soreness,omitempty"`
	PainFlags   []string  `json:"pain_flags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SignalResponse is the stored signal plus the plan it triggered, if any.
type SignalResponse struct {
	Signal SignalView    `json:"signal"`
	Plan   *planner.Plan `json:"plan,omitempty"`
}

// AverageView is a mean over Count observations; Mean is omitted when Count is zero.
type AverageView struct {
	Mean  *float64 `json:"mean,omitempty"`
	Count int      `json:"count"`
}

// HintAveragesView groups confirmed uses of a content by activity hint.
type HintAveragesView struct {
	ActivityHint string      `json:"activity_hint"`
	Strain       AverageView `json:"strain"`
	Exertion     AverageView `json:"exertion"`
}

// ContentView summarizes earlier uses of a content id.
type ContentView struct {
	ContentID   string             `json:"content_id"`
	UseCount    int                `json:"use_count"`
	FirstUsed   time.Time          `json:"first_used"`
	LastUsed    time.Time          `json:"last_used"`
	LastSession SessionView        `json:"last_session"`
	LastStrain  *float64           `json:"last_strain,omitempty"`
	Strain      AverageView        `json:"strain"`
	Exertion    AverageView        `json:"exertion"`
	ByHint      []HintAveragesView `json:"by_activity_hint"`
}

func toAverageView(a domain.Average) AverageView {
	view := AverageView{Count: a.Count}
	if a.Count > 0 {
		mean := a.Mean
		view.Mean = &mean
	}
	return view
}

func toContentView(s domain.ContentSummary) ContentView {
	view := ContentView{
		ContentID:   s.ContentID,
		UseCount:    s.UseCount,
		FirstUsed:   s.FirstUsed,
		LastUsed:    s.LastUsed,
		LastSession: toSessionView(s.Last),
		LastStrain:  s.LastStrain,
		Strain:      toAverageView(s.Strain),
		Exertion:    toAverageView(s.Exertion),
		ByHint:      make([]HintAveragesView, 0, len(s.ByHint)),
	}
	for _, g := range s.ByHint {
		view.ByHint = append(view.ByHint, HintAveragesView{
			ActivityHint: g.Hint,
			Strain:       toAverageView(g.Strain),
			Exertion:     toAverageView(g.Exertion),
		})
	}
	return view
}

func toSessionView(s domain.LoggedSession) SessionView {
	return SessionView{
		SessionID:    s.ID,
		RawReference: s.RawReference,
		ContentID:    s.ContentID,
		ActivityHint: s.ActivityHint,
		LoggedAt:     s.LoggedAt,
		Status:       string(s.Status),
		WorkoutID:    s.ChosenWorkout(),
		Exertion:     s.Exertion,
		RetryCount:   s.RetryCount,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toSessionViews(sessions []domain.LoggedSession) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionView(s))
	}
	return out
}

func toAttributionResponse(res attribution.Result, replay bool) AttributionResponse {
	return AttributionResponse{
		Session:      toSessionView(res.Session),
		Outcome:      string(res.Outcome),
		NeedMoreInfo: res.NeedMoreInfo,
		Prompt:       res.Prompt,
		Replay:       replay,
	}
}

func toSignalView(s domain.RecoverySignal) SignalView {
	view := SignalView{Date: s.Date.Format(dateLayout), PainFlags: s.PainFlags, UpdatedAt: s.UpdatedAt}
	if s.HasRecovery {
		pct, hr, hrv := s.RecoveryPct, s.RestingHR, s.HRV
		view.RecoveryPct, view.RestingHR, view.HRV = &pct, &hr, &hrv
	}
	if s.HasSoreness {
		soreness := s.Soreness
		view.Soreness = &soreness
	}
	return view
}
