package attribution

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/matching"
	"example.com/coach/internal/persistence/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var day = time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func wearable(id string, start time.Time, length time.Duration) domain.WorkoutRecord {
	return domain.WorkoutRecord{ID: id, UserID: "user-1", Start: start, End: start.Add(length), Source: domain.SourceWearable}
}

func newTestService(t *testing.T, now time.Time) (*Service, *memory.Store, *clock) {
	t.Helper()
	store := memory.NewStore()
	clk := &clock{now: now}
	quiet := log.New(&bytes.Buffer{}, "", 0)
	cfg := matching.DefaultConfig()
	svc := NewService(store, matching.NewMatcher(store, cfg, matching.WithLogger(quiet)), matching.NewResolver(cfg),
		WithLogger(quiet), WithClock(clk.Now), WithContentRepository(store))
	return svc, store, clk
}

func logAt(ts time.Time, hint string) domain.NewSessionInput {
	return domain.NewSessionInput{UserID: "user-1", RawReference: "https://youtu.be/abc123", ContentID: "abc123", ActivityHint: hint, LoggedAt: ts}
}

func TestLogSessionSingleCleanMatch(t *testing.T) {
	svc, store, _ := newTestService(t, at(14, 3))
	store.AddWorkouts(wearable("w1", at(14, 0), time.Hour))

	res, replay, err := svc.LogSession(context.Background(), logAt(at(14, 2), ""))
	require.NoError(t, err)
	require.False(t, replay)
	require.Equal(t, matching.OutcomeAutoAttribute, res.Outcome)
	require.Equal(t, domain.StatusMatched, res.Session.Status)
	require.Equal(t, "w1", res.Session.ChosenWorkout())
	require.Equal(t, PromptExertion, res.Prompt.Kind)
	require.Equal(t, int64(2), res.Session.Version)

	changes := store.Changes()
	require.Len(t, changes, 1)
	require.Equal(t, domain.EventAutoMatch, changes[0].Event)
}

func TestLogSessionAmbiguousMatchThenPick(t *testing.T) {
	svc, store, _ := newTestService(t, at(14, 1))
	store.AddWorkouts(
		wearable("late", at(14, 5), 30*time.Minute),
		wearable("early", at(13, 55), 4*time.Minute),
	)

	res, _, err := svc.LogSession(context.Background(), logAt(at(14, 0), ""))
	require.NoError(t, err)
	require.Equal(t, matching.OutcomeManualPick, res.Outcome)
	require.Equal(t, domain.StatusAwaitingManualPick, res.Session.Status)
	require.Len(t, res.Prompt.Options, 2)
	require.Equal(t, "early", res.Prompt.Options[0].WorkoutID)
	require.Equal(t, "late", res.Prompt.Options[1].WorkoutID)

	picked, err := svc.Pick(context.Background(), "user-1", res.Session.ID, "late")
	require.NoError(t, err)
	require.Equal(t, domain.StatusMatched, picked.Session.Status)
	require.Equal(t, "late", picked.Session.ChosenWorkout())

	_, err = svc.Pick(context.Background(), "user-1", res.Session.ID, "early")
	require.True(t, domain.IsInvalidTransition(err))
}

func TestPickRejectsUnknownWorkout(t *testing.T) {
	svc, store, _ := newTestService(t, at(14, 1))
	store.AddWorkouts(wearable("a", at(13, 55), 4*time.Minute), wearable("b", at(14, 5), 4*time.Minute))

	res, _, err := svc.LogSession(context.Background(), logAt(at(14, 0), ""))
	require.NoError(t, err)

	_, err = svc.Pick(context.Background(), "user-1", res.Session.ID, "nope")
	require.ErrorIs(t, err, domain.ErrWorkoutNotCandidate)
}

func TestUnattributedSkiAfterTwoHoursAsksQuestion(t *testing.T) {
	svc, _, clk := newTestService(t, at(9, 0))

	res, _, err := svc.LogSession(context.Background(), logAt(at(9, 0), "ski"))
	require.NoError(t, err)
	require.Equal(t, matching.OutcomeUnattributed, res.Outcome)
	require.Equal(t, domain.StatusPending, res.Session.Status)
	require.Equal(t, PromptUnattributed, res.Prompt.Kind)

	clk.Advance(2 * time.Hour)
	rematched, err := svc.Rematch(context.Background(), "user-1", res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingClarification, rematched.Session.Status)
	require.Equal(t, PromptQuestion, rematched.Prompt.Kind)
	require.Equal(t, matching.QuestionEnvironment, rematched.Prompt.Question.Kind)
	require.InDelta(t, 4.0, rematched.NeedMoreInfo, 1e-9)
}

func TestClarifyNarrowsByDuration(t *testing.T) {
	svc, store, clk := newTestService(t, at(12, 0))
	res, _, err := svc.LogSession(context.Background(), logAt(at(9, 0), "hiking"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingClarification, res.Session.Status)

	store.AddWorkouts(
		wearable("short", at(6, 30), 20*time.Minute),
		wearable("long", at(6, 10), 2*time.Hour),
	)
	clk.Advance(time.Minute)

	answered, err := svc.Clarify(context.Background(), "user-1", res.Session.ID, domain.ClarificationAnswer{DurationMin: 110})
	require.NoError(t, err)
	require.Equal(t, matching.OutcomeManualPick, answered.Outcome, "a lone weak match asks for confirmation")
	require.Len(t, answered.Prompt.Options, 1)
	require.Equal(t, "long", answered.Prompt.Options[0].WorkoutID)
	require.NotNil(t, answered.Session.Answer)

	_, err = svc.Clarify(context.Background(), "user-1", res.Session.ID, domain.ClarificationAnswer{DurationMin: 30})
	require.True(t, domain.IsInvalidTransition(err))
}

func TestClarifyWithoutUsableCandidateReturnsToPending(t *testing.T) {
	svc, _, _ := newTestService(t, at(12, 0))
	res, _, err := svc.LogSession(context.Background(), logAt(at(9, 0), "ski"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingClarification, res.Session.Status)

	answered, err := svc.Clarify(context.Background(), "user-1", res.Session.ID, domain.ClarificationAnswer{Environment: domain.EnvironmentOutdoors})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, answered.Session.Status)
	require.Equal(t, PromptUnattributed, answered.Prompt.Kind)

	_, err = svc.Clarify(context.Background(), "user-1", res.Session.ID, domain.ClarificationAnswer{})
	require.ErrorIs(t, err, domain.ErrInvalidAnswer)
}

func TestWorkoutHeldByAtMostOneActiveSession(t *testing.T) {
	svc, store, _ := newTestService(t, at(14, 30))
	store.AddWorkouts(wearable("w1", at(14, 0), time.Hour))

	first, _, err := svc.LogSession(context.Background(), logAt(at(14, 2), ""))
	require.NoError(t, err)
	require.Equal(t, "w1", first.Session.ChosenWorkout())

	second, _, err := svc.LogSession(context.Background(), logAt(at(14, 5), ""))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, second.Session.Status)
	require.Empty(t, second.Session.ChosenWorkout())

	_, err = svc.Pick(context.Background(), "user-1", second.Session.ID, "w1")
	require.Error(t, err)

	_, err = svc.Undo(context.Background(), "user-1", first.Session.ID)
	require.NoError(t, err)

	rematched, err := svc.Rematch(context.Background(), "user-1", second.Session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusMatched, rematched.Session.Status)
	require.Equal(t, "w1", rematched.Session.ChosenWorkout())
}

func TestRateConfirmsOnce(t *testing.T) {
	svc, store, _ := newTestService(t, at(14, 30))
	store.AddWorkouts(wearable("w1", at(14, 0), time.Hour))
	res, _, err := svc.LogSession(context.Background(), logAt(at(14, 2), ""))
	require.NoError(t, err)

	_, err = svc.Rate(context.Background(), "user-1", res.Session.ID, 6)
	require.ErrorIs(t, err, domain.ErrInvalidExertion)

	rated, err := svc.Rate(context.Background(), "user-1", res.Session.ID, 4)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, rated.Session.Status)
	require.Equal(t, 4, *rated.Session.Exertion)

	again, err := svc.Rate(context.Background(), "user-1", res.Session.ID, 3)
	require.True(t, domain.IsInvalidTransition(err))
	require.Equal(t, PromptNotice, again.Prompt.Kind)
	require.Equal(t, 4, *again.Session.Exertion)
}

func TestRetryIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t, at(16, 0))
	store.AddWorkouts(wearable("w1", at(14, 0), time.Hour))
	res, _, err := svc.LogSession(context.Background(), logAt(at(14, 2), ""))
	require.NoError(t, err)
	_, err = svc.Rate(context.Background(), "user-1", res.Session.ID, 5)
	require.NoError(t, err)

	first, err := svc.Retry(context.Background(), "user-1", res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusMatched, first.Session.Status)
	require.Nil(t, first.Session.Exertion)
	require.Equal(t, 1, first.Session.RetryCount)

	second, err := svc.Retry(context.Background(), "user-1", res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, first.Session.Status, second.Session.Status)
	require.Equal(t, first.Session.ChosenWorkout(), second.Session.ChosenWorkout())
	require.Equal(t, 2, second.Session.RetryCount)
}

func TestRetryUsesWiderWindow(t *testing.T) {
	svc, store, _ := newTestService(t, at(18, 0))
	store.AddWorkouts(wearable("far", at(10, 0), 30*time.Minute))

	res, _, err := svc.LogSession(context.Background(), logAt(at(14, 0), ""))
	require.NoError(t, err)
	require.Equal(t, matching.OutcomeUnattributed, res.Outcome)

	retried, err := svc.Retry(context.Background(), "user-1", res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingManualPick, retried.Session.Status)
	require.Equal(t, "far", retried.Prompt.Options[0].WorkoutID)
}

func TestUndoIsTerminal(t *testing.T) {
	svc, store, _ := newTestService(t, at(14, 30))
	store.AddWorkouts(wearable("w1", at(14, 0), time.Hour))
	res, _, err := svc.LogSession(context.Background(), logAt(at(14, 2), ""))
	require.NoError(t, err)

	undone, err := svc.Undo(context.Background(), "user-1", res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusUndone, undone.Session.Status)
	require.Equal(t, "w1", undone.Session.ChosenWorkout(), "workout reference kept for audit")

	ops := map[string]func() (Result, error){
		"rate":    func() (Result, error) { return svc.Rate(context.Background(), "user-1", res.Session.ID, 3) },
		"retry":   func() (Result, error) { return svc.Retry(context.Background(), "user-1", res.Session.ID) },
		"undo":    func() (Result, error) { return svc.Undo(context.Background(), "user-1", res.Session.ID) },
		"pick":    func() (Result, error) { return svc.Pick(context.Background(), "user-1", res.Session.ID, "w1") },
		"rematch": func() (Result, error) { return svc.Rematch(context.Background(), "user-1", res.Session.ID) },
	}
	for name, op := range ops {
		out, err := op()
		require.True(t, domain.IsInvalidTransition(err), name)
		require.Equal(t, domain.StatusUndone, out.Session.Status, name)
	}

	stored, err := svc.Get(context.Background(), "user-1", res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusUndone, stored.Status)

	history, err := svc.History(context.Background(), "user-1", time.Time{}, 0)
	require.NoError(t, err)
	require.Empty(t, history)

	_, err = svc.LatestActive(context.Background(), "user-1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLogSessionIdempotencyKey(t *testing.T) {
	svc, _, _ := newTestService(t, at(9, 0))
	in := logAt(at(9, 0), "")
	in.IdempotencyKey = "msg-42"

	first, replay, err := svc.LogSession(context.Background(), in)
	require.NoError(t, err)
	require.False(t, replay)

	second, replay, err := svc.LogSession(context.Background(), in)
	require.NoError(t, err)
	require.True(t, replay)
	require.Equal(t, first.Session.ID, second.Session.ID)
}

func TestLogSessionValidation(t *testing.T) {
	svc, _, _ := newTestService(t, at(9, 0))
	_, _, err := svc.LogSession(context.Background(), domain.NewSessionInput{UserID: "user-1"})
	require.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestGetUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t, at(9, 0))
	_, err := svc.Get(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = svc.Retry(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSweepPendingMatchesNewWorkouts(t *testing.T) {
	svc, store, clk := newTestService(t, at(8, 0))
	pending, _, err := svc.LogSession(context.Background(), logAt(at(7, 30), ""))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, pending.Session.Status)

	store.AddWorkouts(wearable("w1", at(7, 20), 45*time.Minute))
	clk.Advance(30 * time.Minute)

	report, err := svc.SweepPending(context.Background(), day, 50)
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Len(t, report.Updated, 1)
	require.Equal(t, domain.StatusMatched, report.Updated[0].Session.Status)

	report, err = svc.SweepPending(context.Background(), day, 50)
	require.NoError(t, err)
	require.Zero(t, report.Scanned)
}

func TestConcurrentTransitionsAreSerialized(t *testing.T) {
	svc, store, _ := newTestService(t, at(14, 30))
	store.AddWorkouts(wearable("w1", at(14, 0), time.Hour))
	res, _, err := svc.LogSession(context.Background(), logAt(at(14, 2), ""))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Rate(context.Background(), "user-1", res.Session.ID, 3)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Retry(context.Background(), "user-1", res.Session.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !domain.IsInvalidTransition(err) {
			require.False(t, errors.Is(err, domain.ErrConcurrentUpdate), "lost update: %v", err)
			require.NoError(t, err)
		}
	}

	final, err := svc.Get(context.Background(), "user-1", res.Session.ID)
	require.NoError(t, err)
	require.Contains(t, []domain.SessionStatus{domain.StatusMatched, domain.StatusConfirmed}, final.Status)
	require.Equal(t, "w1", final.ChosenWorkout())
	require.Equal(t, int64(len(store.Changes())+1), final.Version)
	require.Zero(t, svc.locks.size())
}

func TestContentSummaryExcludesUndoneSessions(t *testing.T) {
	svc, store, _ := newTestService(t, at(23, 0))
	ctx := context.Background()
	withStrain := func(w domain.WorkoutRecord, strain float64) domain.WorkoutRecord {
		w.Strain = strain
		return w
	}
	store.AddWorkouts(
		withStrain(wearable("w1", at(8, 0), time.Hour), 8),
		withStrain(wearable("w2", at(14, 0), time.Hour), 12),
		withStrain(wearable("w3", at(18, 0), time.Hour), 20),
	)

	var ids []string
	for i, ts := range []time.Time{at(8, 2), at(14, 2), at(18, 2)} {
		res, _, err := svc.LogSession(ctx, logAt(ts, "kettlebell"))
		require.NoError(t, err)
		require.Equal(t, domain.StatusMatched, res.Session.Status)
		_, err = svc.Rate(ctx, "user-1", res.Session.ID, []int{3, 5, 1}[i])
		require.NoError(t, err)
		ids = append(ids, res.Session.ID)
	}
	_, err := svc.Undo(ctx, "user-1", ids[2])
	require.NoError(t, err)

	summary, err := svc.ContentSummary(ctx, "user-1", "abc123")
	require.NoError(t, err)
	require.Equal(t, 2, summary.UseCount)
	require.Equal(t, ids[1], summary.Last.ID)
	require.InDelta(t, 12.0, *summary.LastStrain, 1e-9)
	require.InDelta(t, 10.0, summary.Strain.Mean, 1e-9)
	require.InDelta(t, 4.0, summary.Exertion.Mean, 1e-9)
	require.Len(t, summary.ByHint, 1)

	_, err = svc.ContentSummary(ctx, "user-1", "never-logged")
	require.ErrorIs(t, err, domain.ErrContentNotFound)
	_, err = svc.ContentSummary(ctx, "someone-else", "abc123")
	require.ErrorIs(t, err, domain.ErrContentNotFound)
}
