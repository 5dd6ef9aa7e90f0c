package matching

import (
	"math"
	"strings"
	"time"
)

// Outcome is the resolver's decision for a candidate set.
type Outcome string

const (
	OutcomeAutoAttribute Outcome = "auto_attribute"
	OutcomeManualPick    Outcome = "manual_pick"
	OutcomeUnattributed  Outcome = "unattributed"
)

// Question kinds asked when NeedMoreInfo crosses the threshold.
const (
	QuestionEnvironment = "environment"
	QuestionDuration    = "duration"
)

// Question is a clarifying prompt for the user.
type Question struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Resolution is the resolver output for one session.
type Resolution struct {
	Outcome Outcome
	// Chosen is set for OutcomeAutoAttribute.
	Chosen *Candidate
	// Options is the best-first list offered for OutcomeManualPick.
	Options []Candidate
	// NeedMoreInfo and Question are set for OutcomeUnattributed; Question is nil
	// below the threshold.
	NeedMoreInfo float64
	Question     *Question
}

// Resolver decides between auto-attribution, manual pick and leaving a session unattributed.
type Resolver struct {
	cfg Config
}

// NewResolver builds a Resolver with the given tunables.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve applies the decision rules to a best-first candidate list. An empty list
// resolves to OutcomeUnattributed, scored by Assess from activityHint and the time
// elapsed since the session was logged.
func (r *Resolver) Resolve(candidates []Candidate, activityHint string, elapsed time.Duration) Resolution {
	if len(candidates) == 0 {
		score, question := r.Assess(activityHint, elapsed, 0)
		return Resolution{Outcome: OutcomeUnattributed, NeedMoreInfo: score, Question: question}
	}

	best := candidates[0]
	near := 1
	for _, c := range candidates[1:] {
		if c.Score-best.Score <= r.cfg.ClosenessMinutes {
			near++
		}
	}
	if near > 1 {
		options := make([]Candidate, len(candidates))
		copy(options, candidates)
		return Resolution{Outcome: OutcomeManualPick, Options: options}
	}

	if best.Contains || best.Delta < r.cfg.ConfidentDelta {
		chosen := best
		return Resolution{Outcome: OutcomeAutoAttribute, Chosen: &chosen}
	}
	return Resolution{Outcome: OutcomeManualPick, Options: []Candidate{best}}
}

// Assess computes the NeedMoreInfo score for an unattributed session and returns the
// question to ask when the score reaches the threshold.
func (r *Resolver) Assess(hint string, elapsed time.Duration, candidateCount int) (float64, *Question) {
	score := 0.0
	if elapsed > 0 {
		score += math.Min(elapsed.Hours()*r.cfg.ElapsedPointsPerHour, r.cfg.ElapsedMaxPoints)
	}

	ambiguous := r.IsAmbiguous(hint)
	switch {
	case ambiguous:
		score += r.cfg.AmbiguousActivityPoints
	case r.IsContact(hint):
		score += r.cfg.ContactActivityPoints
	}
	if candidateCount == 0 {
		score += r.cfg.NoCandidatePoints
	}

	if score < r.cfg.QuestionThreshold {
		return score, nil
	}
	if ambiguous {
		return score, &Question{Kind: QuestionEnvironment, Text: "Was this outdoors or on a machine?"}
	}
	return score, &Question{Kind: QuestionDuration, Text: "Roughly how long was the session, in minutes?"}
}

// IsAmbiguous reports whether the hint names an ambiguity-prone activity.
func (r *Resolver) IsAmbiguous(hint string) bool {
	return containsAny(hint, r.cfg.AmbiguousActivities)
}

// IsContact reports whether the hint names a contact or impact sport.
func (r *Resolver) IsContact(hint string) bool {
	return containsAny(hint, r.cfg.ContactActivities)
}

func containsAny(hint string, keywords []string) bool {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return false
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(h, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
