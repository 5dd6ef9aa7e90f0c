// Package matching attributes logged sessions to physiological workout records.
package matching

import (
	"context"
	"log"
	"sort"
	"time"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/observability"
)

// WorkoutReader is the read side of the external workout store.
type WorkoutReader interface {
	WorkoutsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.WorkoutRecord, error)
}

// Candidate pairs a workout with its time-based score against one logged session.
type Candidate struct {
	Workout  domain.WorkoutRecord
	Delta    time.Duration
	Contains bool
	// Score is the absolute delta in minutes; lower is better.
	Score float64
}

// Option configures optional behaviour for the Matcher.
type Option func(*Matcher)

// WithLogger overrides the logger used to report degraded reads.
func WithLogger(logger *log.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// Matcher finds and ranks workout candidates for a logged timestamp.
type Matcher struct {
	store  WorkoutReader
	cfg    Config
	logger *log.Logger
}

// NewMatcher constructs a Matcher reading from store.
func NewMatcher(store WorkoutReader, cfg Config, opts ...Option) *Matcher {
	m := &Matcher{
		store:  store,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[matcher] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the tunables the matcher was built with.
func (m *Matcher) Config() Config {
	return m.cfg
}

// FindCandidates returns records starting within [at-window, at+window], best first.
// A failed or slow store read degrades to an empty result.
func (m *Matcher) FindCandidates(ctx context.Context, userID string, at time.Time, window time.Duration) []Candidate {
	if window <= 0 {
		window = m.cfg.MatchWindow
	}
	from, to := at.Add(-window), at.Add(window)

	readCtx := ctx
	if m.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, m.cfg.StoreTimeout)
		defer cancel()
	}

	records, err := m.store.WorkoutsBetween(readCtx, userID, from, to)
	if err != nil {
		m.logger.Printf("workout read degraded to no candidates (user=%s): %v", userID, err)
		observability.RecordStoreDegraded("workouts")
		return nil
	}

	return Rank(records, userID, at, from, to)
}

// Rank scores records against at and sorts them best first. Records outside
// [from, to] or owned by another user are dropped.
func Rank(records []domain.WorkoutRecord, userID string, at, from, to time.Time) []Candidate {
	candidates := make([]Candidate, 0, len(records))
	for _, rec := range records {
		if rec.UserID != "" && rec.UserID != userID {
			continue
		}
		if rec.Start.Before(from) || rec.Start.After(to) {
			continue
		}
		delta := at.Sub(rec.Start)
		if delta < 0 {
			delta = -delta
		}
		candidates = append(candidates, Candidate{
			Workout:  rec,
			Delta:    delta,
			Contains: rec.Contains(at),
			Score:    delta.Minutes(),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
	return candidates
}

// better orders containment first, then smaller delta, then earlier start, then id.
func better(a, b Candidate) bool {
	if a.Contains != b.Contains {
		return a.Contains
	}
	if a.Delta != b.Delta {
		return a.Delta < b.Delta
	}
	if !a.Workout.Start.Equal(b.Workout.Start) {
		return a.Workout.Start.Before(b.Workout.Start)
	}
	return a.Workout.ID < b.Workout.ID
}

// Without drops candidates whose workout id is in excluded.
func Without(candidates []Candidate, excluded map[string]struct{}) []Candidate {
	if len(excluded) == 0 {
		return candidates
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, skip := excluded[c.Workout.ID]; skip {
			continue
		}
		out = append(out, c)
	}
	return out
}
