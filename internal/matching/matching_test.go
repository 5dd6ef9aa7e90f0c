package matching

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/coach/internal/domain"
)

type stubReader struct {
	records []domain.WorkoutRecord
	err     error
	from    time.Time
	to      time.Time
	block   bool
}

func (s *stubReader) WorkoutsBetween(ctx context.Context, _ string, from, to time.Time) ([]domain.WorkoutRecord, error) {
	s.from, s.to = from, to
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.records, s.err
}

var base = time.Date(2025, time.March, 3, 18, 0, 0, 0, time.UTC)

func workout(id string, startOffset, length time.Duration) domain.WorkoutRecord {
	start := base.Add(startOffset)
	return domain.WorkoutRecord{
		ID:     id,
		UserID: "user-1",
		Start:  start,
		End:    start.Add(length),
		Source: domain.SourceWearable,
	}
}

func TestFindCandidatesOrdersByContainmentThenDelta(t *testing.T) {
	reader := &stubReader{records: []domain.WorkoutRecord{
		workout("far", -2*time.Hour, 30*time.Minute),
		workout("near", 20*time.Minute, 30*time.Minute),
		workout("contains", -50*time.Minute, time.Hour),
		workout("other-user", 0, time.Hour),
	}}
	reader.records[3].UserID = "user-2"

	m := NewMatcher(reader, DefaultConfig())
	got := m.FindCandidates(context.Background(), "user-1", base, 0)

	require.Len(t, got, 3)
	require.Equal(t, "contains", got[0].Workout.ID)
	require.True(t, got[0].Contains)
	require.Equal(t, "near", got[1].Workout.ID)
	require.InDelta(t, 20.0, got[1].Score, 0.001)
	require.Equal(t, "far", got[2].Workout.ID)
	require.Equal(t, base.Add(-3*time.Hour), reader.from)
	require.Equal(t, base.Add(3*time.Hour), reader.to)
}

func TestFindCandidatesTieBreaksDeterministically(t *testing.T) {
	reader := &stubReader{records: []domain.WorkoutRecord{
		workout("b", 15*time.Minute, 10*time.Minute),
		workout("c", -15*time.Minute, 10*time.Minute),
		workout("a", 15*time.Minute, 10*time.Minute),
	}}
	got := NewMatcher(reader, DefaultConfig()).FindCandidates(context.Background(), "user-1", base, time.Hour)

	require.Len(t, got, 3)
	require.Equal(t, []string{"c", "a", "b"}, []string{got[0].Workout.ID, got[1].Workout.ID, got[2].Workout.ID})
}

func TestFindCandidatesDegradesOnStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	reader := &stubReader{err: errors.New("connection refused")}
	m := NewMatcher(reader, DefaultConfig(), WithLogger(log.New(&buf, "", 0)))

	got := m.FindCandidates(context.Background(), "user-1", base, 0)
	require.Empty(t, got)
	require.Contains(t, buf.String(), "connection refused")
}

func TestFindCandidatesHonoursStoreTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	reader := &stubReader{block: true}
	m := NewMatcher(reader, cfg, WithLogger(log.New(&bytes.Buffer{}, "", 0)))

	started := time.Now()
	got := m.FindCandidates(context.Background(), "user-1", base, 0)
	require.Empty(t, got)
	require.Less(t, time.Since(started), time.Second)
}

func TestWithoutDropsClaimedWorkouts(t *testing.T) {
	candidates := []Candidate{{Workout: workout("a", 0, time.Minute)}, {Workout: workout("b", 0, time.Minute)}}
	got := Without(candidates, map[string]struct{}{"a": {}})
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].Workout.ID)
	require.Len(t, Without(candidates, nil), 2)
}

func rank(records ...domain.WorkoutRecord) []Candidate {
	return Rank(records, "user-1", base, base.Add(-3*time.Hour), base.Add(3*time.Hour))
}

func TestResolveSingleCleanMatch(t *testing.T) {
	r := NewResolver(DefaultConfig())
	res := r.Resolve(rank(workout("w1", -5*time.Minute, 40*time.Minute)), "", 0)

	require.Equal(t, OutcomeAutoAttribute, res.Outcome)
	require.NotNil(t, res.Chosen)
	require.Equal(t, "w1", res.Chosen.Workout.ID)
}

func TestResolveAmbiguousMatchOffersBoth(t *testing.T) {
	r := NewResolver(DefaultConfig())
	res := r.Resolve(rank(
		workout("w1", 10*time.Minute, 20*time.Minute),
		workout("w2", 15*time.Minute, 20*time.Minute),
	), "", 0)

	require.Equal(t, OutcomeManualPick, res.Outcome)
	require.Nil(t, res.Chosen)
	require.Len(t, res.Options, 2)
	require.Equal(t, "w1", res.Options[0].Workout.ID)
}

func TestResolveLoneWeakMatchNeedsConfirmation(t *testing.T) {
	r := NewResolver(DefaultConfig())
	res := r.Resolve(rank(workout("w1", 90*time.Minute, 20*time.Minute)), "", 0)

	require.Equal(t, OutcomeManualPick, res.Outcome)
	require.Len(t, res.Options, 1)
}

func TestResolveClearWinnerAmongSeveral(t *testing.T) {
	r := NewResolver(DefaultConfig())
	res := r.Resolve(rank(
		workout("w1", -2*time.Minute, 30*time.Minute),
		workout("w2", 2*time.Hour, 20*time.Minute),
	), "", 0)

	require.Equal(t, OutcomeAutoAttribute, res.Outcome)
	require.Equal(t, "w1", res.Chosen.Workout.ID)
}

func TestResolveNoCandidates(t *testing.T) {
	res := NewResolver(DefaultConfig()).Resolve(nil, "", 0)
	require.Equal(t, OutcomeUnattributed, res.Outcome)
	require.Nil(t, res.Question)
}

func TestResolveUnattributedCarriesHintQuestion(t *testing.T) {
	r := NewResolver(DefaultConfig())

	res := r.Resolve(nil, "Cross-country ski", 2*time.Hour)
	require.Equal(t, OutcomeUnattributed, res.Outcome)
	require.InDelta(t, 4.0, res.NeedMoreInfo, 0.001)
	require.NotNil(t, res.Question)
	require.Equal(t, QuestionEnvironment, res.Question.Kind)

	res = r.Resolve(rank(workout("w1", -5*time.Minute, 40*time.Minute)), "Cross-country ski", 2*time.Hour)
	require.Equal(t, OutcomeAutoAttribute, res.Outcome)
	require.Nil(t, res.Question)
	require.Zero(t, res.NeedMoreInfo)
}

func TestAssessUnattributedSkiAfterTwoHoursAsksEnvironment(t *testing.T) {
	r := NewResolver(DefaultConfig())
	score, q := r.Assess("Cross-country ski", 2*time.Hour, 0)

	require.InDelta(t, 4.0, score, 0.001)
	require.NotNil(t, q)
	require.Equal(t, QuestionEnvironment, q.Kind)
}

func TestAssessStaysQuietBelowThreshold(t *testing.T) {
	r := NewResolver(DefaultConfig())

	score, q := r.Assess("ski", 0, 0)
	require.InDelta(t, 3.0, score, 0.001)
	require.Nil(t, q)

	score, q = r.Assess("", 2*time.Hour, 0)
	require.InDelta(t, 2.0, score, 0.001)
	require.Nil(t, q)
}

func TestAssessQuestionThresholdBoundary(t *testing.T) {
	// "ski" after two hours with no candidates scores 2 + 1 + 1 = 4.
	cases := []struct {
		name      string
		tune      func(*Config)
		wantScore float64
		wantAsk   bool
	}{
		{name: "threshold below score", tune: func(c *Config) { c.QuestionThreshold = 3.9 }, wantScore: 4, wantAsk: true},
		{name: "threshold equal to score", tune: func(c *Config) { c.QuestionThreshold = 4 }, wantScore: 4, wantAsk: true},
		{name: "threshold above score", tune: func(c *Config) { c.QuestionThreshold = 4.1 }, wantScore: 4, wantAsk: false},
		{name: "heavier no-candidate weight crosses", tune: func(c *Config) { c.QuestionThreshold = 4.5; c.NoCandidatePoints = 1.5 }, wantScore: 4.5, wantAsk: true},
		{name: "lighter ambiguity weight drops below", tune: func(c *Config) { c.AmbiguousActivityPoints = 1.4 }, wantScore: 3.4, wantAsk: false},
		{name: "elapsed rate raises score", tune: func(c *Config) { c.QuestionThreshold = 5; c.ElapsedPointsPerHour = 1 }, wantScore: 5, wantAsk: true},
		{name: "elapsed cap holds score down", tune: func(c *Config) { c.QuestionThreshold = 5; c.ElapsedPointsPerHour = 1; c.ElapsedMaxPoints = 1.5 }, wantScore: 4.5, wantAsk: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.tune(&cfg)
			res := NewResolver(cfg).Resolve(nil, "ski", 2*time.Hour)

			require.Equal(t, OutcomeUnattributed, res.Outcome)
			require.InDelta(t, tc.wantScore, res.NeedMoreInfo, 0.001)
			if tc.wantAsk {
				require.NotNil(t, res.Question)
				require.Equal(t, QuestionEnvironment, res.Question.Kind)
			} else {
				require.Nil(t, res.Question)
			}
		})
	}
}

func TestResolveClosenessAndConfidenceBoundaries(t *testing.T) {
	// w1 starts 5 minutes after the log, w2 12 minutes after: a 7 minute gap.
	pair := func() []Candidate {
		return rank(workout("w1", 5*time.Minute, 20*time.Minute), workout("w2", 12*time.Minute, 20*time.Minute))
	}
	lone := func() []Candidate {
		return rank(workout("w1", 10*time.Minute, 20*time.Minute))
	}

	cases := []struct {
		name        string
		candidates  []Candidate
		tune        func(*Config)
		wantOutcome Outcome
		wantOptions int
	}{
		{name: "gap wider than closeness", candidates: pair(), tune: func(c *Config) { c.ClosenessMinutes = 6.9 }, wantOutcome: OutcomeAutoAttribute},
		{name: "gap equal to closeness", candidates: pair(), tune: func(c *Config) { c.ClosenessMinutes = 7 }, wantOutcome: OutcomeManualPick, wantOptions: 2},
		{name: "gap inside closeness", candidates: pair(), tune: func(c *Config) { c.ClosenessMinutes = 7.1 }, wantOutcome: OutcomeManualPick, wantOptions: 2},
		{name: "delta equal to confident delta", candidates: lone(), tune: func(c *Config) { c.ConfidentDelta = 10 * time.Minute }, wantOutcome: OutcomeManualPick, wantOptions: 1},
		{name: "delta inside confident delta", candidates: lone(), tune: func(c *Config) { c.ConfidentDelta = 10*time.Minute + time.Second }, wantOutcome: OutcomeAutoAttribute},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.tune(&cfg)
			res := NewResolver(cfg).Resolve(tc.candidates, "", 0)

			require.Equal(t, tc.wantOutcome, res.Outcome)
			if tc.wantOutcome == OutcomeAutoAttribute {
				require.Equal(t, "w1", res.Chosen.Workout.ID)
				return
			}
			require.Len(t, res.Options, tc.wantOptions)
			require.Equal(t, "w1", res.Options[0].Workout.ID)
		})
	}
}

func TestAssessCapsElapsedAndAsksDurationForPlainHints(t *testing.T) {
	r := NewResolver(DefaultConfig())
	score, q := r.Assess("basketball", 48*time.Hour, 0)

	require.InDelta(t, 5.0, score, 0.001)
	require.NotNil(t, q)
	require.Equal(t, QuestionDuration, q.Kind)
}
