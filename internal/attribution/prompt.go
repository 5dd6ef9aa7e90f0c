package attribution

import (
	"fmt"
	"time"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/matching"
)

// PromptKind tells the chat surface which message to render.
type PromptKind string

const (
	PromptQuestion     PromptKind = "question"
	PromptManualPick   PromptKind = "manual_pick"
	PromptExertion     PromptKind = "exertion"
	PromptUnattributed PromptKind = "unattributed"
	PromptNotice       PromptKind = "notice"
)

// PickOption is one workout offered for manual selection.
type PickOption struct {
	WorkoutID    string    `json:"workout_id"`
	Start        time.Time `json:"start"`
	DurationMin  int       `json:"duration_min"`
	ActivityType string    `json:"activity_type,omitempty"`
	DeltaMin     int       `json:"delta_min"`
}

// Prompt is the user-facing content produced by an attribution step.
type Prompt struct {
	Kind     PromptKind         `json:"kind"`
	Text     string             `json:"text"`
	Question *matching.Question `json:"question,omitempty"`
	Options  []PickOption       `json:"options,omitempty"`
}

// Result is returned by every attribution operation.
type Result struct {
	Session      domain.LoggedSession
	Outcome      matching.Outcome
	NeedMoreInfo float64
	Prompt       *Prompt
}

func questionPrompt(q *matching.Question) *Prompt {
	return &Prompt{Kind: PromptQuestion, Text: q.Text, Question: q}
}

func pickPrompt(candidates []matching.Candidate) *Prompt {
	options := make([]PickOption, 0, len(candidates))
	for _, c := range candidates {
		options = append(options, PickOption{
			WorkoutID:    c.Workout.ID,
			Start:        c.Workout.Start,
			DurationMin:  c.Workout.DurationMinutes(),
			ActivityType: c.Workout.ActivityType,
			DeltaMin:     int(c.Delta / time.Minute),
		})
	}
	text := "Which workout was this?"
	if len(options) == 1 {
		text = fmt.Sprintf("Was this the workout at %s (%d min)?", options[0].Start.UTC().Format("15:04"), options[0].DurationMin)
	}
	return &Prompt{Kind: PromptManualPick, Text: text, Options: options}
}

func exertionPrompt(w domain.WorkoutRecord) *Prompt {
	return &Prompt{
		Kind: PromptExertion,
		Text: fmt.Sprintf("Matched to the workout at %s (%d min). How hard did it feel, 1-5?", w.Start.UTC().Format("15:04"), w.DurationMinutes()),
	}
}

func unattributedPrompt() *Prompt {
	return &Prompt{
		Kind: PromptUnattributed,
		Text: "No workout found yet. I'll try again when new data syncs.",
	}
}

func noticePrompt(text string) *Prompt {
	return &Prompt{Kind: PromptNotice, Text: text}
}
