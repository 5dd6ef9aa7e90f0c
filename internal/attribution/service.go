// Package attribution runs the logged-session lifecycle: matching, user prompts and
// state transitions, serialized per user.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/matching"
	"example.com/coach/internal/observability"
)

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithContentRepository enables ContentSummary.
func WithContentRepository(content domain.ContentRepository) Option {
	return func(s *Service) {
		s.content = content
	}
}

// Service orchestrates attribution workflows.
type Service struct {
	repo     domain.SessionRepository
	content  domain.ContentRepository
	matcher  *matching.Matcher
	resolver *matching.Resolver
	cfg      matching.Config
	locks    *keyedMutex
	logger   *log.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo domain.SessionRepository, matcher *matching.Matcher, resolver *matching.Resolver, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		matcher:  matcher,
		resolver: resolver,
		cfg:      matcher.Config(),
		locks:    newKeyedMutex(),
		logger:   log.New(log.Writer(), "[attribution] ", log.LstdFlags|log.Lshortfile),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogSession records a new session and runs the first attribution attempt. The bool
// reports an idempotent replay of an earlier submission.
func (s *Service) LogSession(ctx context.Context, in domain.NewSessionInput) (Result, bool, error) {
	if err := in.Validate(); err != nil {
		return Result{}, false, err
	}

	unlock := s.locks.Lock(in.UserID)
	defer unlock()

	if in.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotency(ctx, in.UserID, in.IdempotencyKey)
		if err != nil {
			return Result{}, false, fmt.Errorf("find by idempotency: %w", err)
		}
		if existing != nil {
			return Result{Session: *existing}, true, nil
		}
	}

	now := s.now().UTC()
	session := domain.LoggedSession{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		RawReference: strings.TrimSpace(in.RawReference),
		ContentID:    strings.TrimSpace(in.ContentID),
		ActivityHint: strings.TrimSpace(in.ActivityHint),
		LoggedAt:     in.LoggedAt.UTC(),
		Status:       domain.StatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, session, in.IdempotencyKey); err != nil {
		return Result{}, false, fmt.Errorf("create session: %w", err)
	}

	res, err := s.attempt(ctx, session, s.cfg.MatchWindow, "log", nil)
	return res, false, err
}

// Pick attributes the session to a workout chosen by the user.
func (s *Service) Pick(ctx context.Context, userID, sessionID, workoutID string) (Result, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}
	if !domain.CanApply(session.Status, domain.EventPick) {
		return s.reject(session, domain.EventPick)
	}

	var chosen *matching.Candidate
	for _, c := range s.matcher.FindCandidates(ctx, userID, session.LoggedAt, s.pickWindow()) {
		if c.Workout.ID == workoutID {
			chosen = &c
			break
		}
	}
	if chosen == nil {
		return Result{Session: session}, domain.ErrWorkoutNotCandidate
	}

	holders, err := s.repo.ActiveHolders(ctx, userID, []string{workoutID})
	if err != nil {
		return Result{Session: session}, fmt.Errorf("check workout holders: %w", err)
	}
	if holder, ok := holders[workoutID]; ok && holder != session.ID {
		return Result{Session: session}, domain.ErrWorkoutClaimed
	}

	next := session
	next.WorkoutID = &workoutID
	saved, err := s.apply(ctx, session, next, domain.EventPick)
	if err != nil {
		return Result{Session: session}, err
	}
	return Result{Session: saved, Outcome: matching.OutcomeAutoAttribute, Prompt: exertionPrompt(chosen.Workout)}, nil
}

// Clarify records the user's answer to a clarifying question and reruns matching with it.
func (s *Service) Clarify(ctx context.Context, userID, sessionID string, answer domain.ClarificationAnswer) (Result, error) {
	if err := answer.Validate(); err != nil {
		return Result{}, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}

	next := session
	next.Answer = &answer
	reset, err := s.apply(ctx, session, next, domain.EventAnswer)
	if err != nil {
		return s.rejectOr(session, err)
	}
	return s.attempt(ctx, reset, s.pickWindow(), "clarify", &answer)
}

// Rate records the 1-5 perceived exertion and confirms the session.
func (s *Service) Rate(ctx context.Context, userID, sessionID string, rating int) (Result, error) {
	if !domain.ValidExertion(rating) {
		return Result{}, domain.ErrInvalidExertion
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}

	next := session
	next.Exertion = &rating
	saved, err := s.apply(ctx, session, next, domain.EventRate)
	if err != nil {
		return s.rejectOr(session, err)
	}
	return Result{Session: saved, Prompt: noticePrompt(fmt.Sprintf("Logged exertion %d/5.", rating))}, nil
}

// Retry discards the current attribution and reruns matching with the wider retry window.
// Repeated retries converge on the same state.
func (s *Service) Retry(ctx context.Context, userID, sessionID string) (Result, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}

	next := session
	next.WorkoutID = nil
	next.Exertion = nil
	next.Answer = nil
	next.RetryCount++
	reset, err := s.apply(ctx, session, next, domain.EventRetry)
	if err != nil {
		return s.rejectOr(session, err)
	}
	return s.attempt(ctx, reset, s.cfg.RetryWindow, "retry", nil)
}

// Undo moves the session to the terminal undone state. The workout reference is kept for audit.
func (s *Service) Undo(ctx context.Context, userID, sessionID string) (Result, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}

	saved, err := s.apply(ctx, session, session, domain.EventUndo)
	if err != nil {
		return s.rejectOr(session, err)
	}
	return Result{Session: saved, Prompt: noticePrompt("Session undone. It no longer counts toward your history.")}, nil
}

// Rematch reruns matching for a session that is still waiting on workout data.
func (s *Service) Rematch(ctx context.Context, userID, sessionID string) (Result, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}
	if session.Status != domain.StatusPending && session.Status != domain.StatusAwaitingClarification {
		return s.reject(session, domain.EventAutoMatch)
	}

	window := s.cfg.MatchWindow
	if session.RetryCount > 0 || session.Answer != nil {
		window = s.pickWindow()
	}
	return s.attempt(ctx, session, window, "rematch", session.Answer)
}

// SweepReport summarizes a SweepPending run.
type SweepReport struct {
	Scanned int
	Skipped int
	Updated []Result
}

// SweepPending re-matches sessions still pending or awaiting clarification that were
// logged at or after since. Per-session failures are collected and returned together.
func (s *Service) SweepPending(ctx context.Context, since time.Time, limit int) (SweepReport, error) {
	var report SweepReport
	sessions, err := s.repo.ListByStatus(ctx, []domain.SessionStatus{domain.StatusPending, domain.StatusAwaitingClarification}, since, limit)
	if err != nil {
		return report, fmt.Errorf("list pending sessions: %w", err)
	}

	var errs []error
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report.Scanned++
		res, err := s.Rematch(ctx, session.UserID, session.ID)
		if err != nil {
			if domain.IsInvalidTransition(err) || errors.Is(err, domain.ErrConcurrentUpdate) {
				report.Skipped++
				continue
			}
			errs = append(errs, fmt.Errorf("rematch %s: %w", session.ID, err))
			continue
		}
		if res.Session.Version != session.Version {
			report.Updated = append(report.Updated, res)
		}
	}
	if len(report.Updated) > 0 {
		s.logger.Printf("sweep updated %d of %d sessions", len(report.Updated), report.Scanned)
	}
	return report, errors.Join(errs...)
}

// Get fetches a session owned by userID.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (domain.LoggedSession, error) {
	return s.load(ctx, userID, sessionID)
}

// LatestActive returns the most recently logged non-undone session for the user.
func (s *Service) LatestActive(ctx context.Context, userID string) (domain.LoggedSession, error) {
	session, err := s.repo.LatestActive(ctx, userID)
	if err != nil {
		return domain.LoggedSession{}, err
	}
	if session == nil {
		return domain.LoggedSession{}, domain.ErrSessionNotFound
	}
	return *session, nil
}

// History lists active sessions logged since the given time, newest first.
func (s *Service) History(ctx context.Context, userID string, since time.Time, limit int) ([]domain.LoggedSession, error) {
	return s.repo.History(ctx, userID, since, limit)
}

// ListSessions pages through every session of the user, including undone ones.
func (s *Service) ListSessions(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LoggedSession, *domain.Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}

// ContentSummary reports earlier uses of a content id: the last active session and the
// strain and exertion averages over confirmed ones.
func (s *Service) ContentSummary(ctx context.Context, userID, contentID string) (domain.ContentSummary, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return domain.ContentSummary{}, domain.ErrContentNotFound
	}
	if s.content == nil {
		return domain.ContentSummary{}, fmt.Errorf("content history not configured: %w", domain.ErrStoreUnavailable)
	}
	uses, err := s.content.ContentUses(ctx, userID, contentID)
	if err != nil {
		return domain.ContentSummary{}, fmt.Errorf("content uses: %w", err)
	}
	summary, ok := domain.SummarizeContent(contentID, uses)
	if !ok {
		return domain.ContentSummary{}, domain.ErrContentNotFound
	}
	return summary, nil
}

// attempt runs matcher and resolver for session and applies the resulting event.
// Callers hold the user lock.
func (s *Service) attempt(ctx context.Context, session domain.LoggedSession, window time.Duration, trigger string, answer *domain.ClarificationAnswer) (Result, error) {
	candidates := s.matcher.FindCandidates(ctx, session.UserID, session.LoggedAt, window)
	candidates, err := s.unclaimed(ctx, session, candidates)
	if err != nil {
		return Result{Session: session}, err
	}
	if answer != nil {
		candidates = narrowByAnswer(candidates, *answer)
	}

	resolution := s.resolver.Resolve(candidates, session.ActivityHint, s.now().Sub(session.LoggedAt))
	observability.RecordOutcome(string(resolution.Outcome), trigger)

	result := Result{Outcome: resolution.Outcome}
	next := session
	var event domain.SessionEvent
	switch resolution.Outcome {
	case matching.OutcomeAutoAttribute:
		event = domain.EventAutoMatch
		workoutID := resolution.Chosen.Workout.ID
		next.WorkoutID = &workoutID
		result.Prompt = exertionPrompt(resolution.Chosen.Workout)
	case matching.OutcomeManualPick:
		event = domain.EventNeedPick
		result.Prompt = pickPrompt(resolution.Options)
	default:
		result.NeedMoreInfo = resolution.NeedMoreInfo
		if resolution.Question != nil && answer == nil {
			event = domain.EventNeedClarification
			result.Prompt = questionPrompt(resolution.Question)
		} else {
			event = domain.EventNoMatch
			result.Prompt = unattributedPrompt()
		}
	}

	saved, err := s.apply(ctx, session, next, event)
	if err != nil {
		return s.rejectOr(session, err)
	}
	result.Session = saved
	return result, nil
}

// unclaimed drops candidates already held by another active session of the same user.
func (s *Service) unclaimed(ctx context.Context, session domain.LoggedSession, candidates []matching.Candidate) ([]matching.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Workout.ID)
	}
	holders, err := s.repo.ActiveHolders(ctx, session.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("check workout holders: %w", err)
	}
	excluded := make(map[string]struct{}, len(holders))
	for workoutID, holder := range holders {
		if holder != session.ID {
			excluded[workoutID] = struct{}{}
		}
	}
	return matching.Without(candidates, excluded), nil
}

// apply validates event against the state table and persists next with a version bump.
// Self-loops that change nothing are not written.
func (s *Service) apply(ctx context.Context, prev, next domain.LoggedSession, event domain.SessionEvent) (domain.LoggedSession, error) {
	to, err := domain.Transition(prev.Status, event)
	if err != nil {
		observability.RecordRejectedTransition(string(prev.Status), string(event))
		return prev, err
	}
	next.Status = to
	if to == prev.Status && quietEvent(event) && next.ChosenWorkout() == prev.ChosenWorkout() {
		return prev, nil
	}

	now := s.now().UTC()
	next.Version = prev.Version + 1
	next.UpdatedAt = now
	change := domain.StateChange{
		SessionID:  prev.ID,
		UserID:     prev.UserID,
		From:       prev.Status,
		Event:      event,
		To:         to,
		WorkoutID:  next.ChosenWorkout(),
		OccurredAt: now,
	}
	if err := s.repo.Save(ctx, next, prev.Version, change); err != nil {
		return prev, fmt.Errorf("save session %s: %w", prev.ID, err)
	}
	observability.RecordTransition(string(prev.Status), string(event), string(to))
	return next, nil
}

func quietEvent(event domain.SessionEvent) bool {
	switch event {
	case domain.EventNoMatch, domain.EventNeedClarification, domain.EventNeedPick:
		return true
	}
	return false
}

func (s *Service) load(ctx context.Context, userID, sessionID string) (domain.LoggedSession, error) {
	session, err := s.repo.Get(ctx, userID, sessionID)
	if err != nil {
		return domain.LoggedSession{}, err
	}
	if session == nil {
		return domain.LoggedSession{}, domain.ErrSessionNotFound
	}
	return *session, nil
}

func (s *Service) reject(session domain.LoggedSession, event domain.SessionEvent) (Result, error) {
	observability.RecordRejectedTransition(string(session.Status), string(event))
	return s.rejectOr(session, &domain.InvalidTransitionError{From: session.Status, Event: event})
}

// rejectOr attaches the user-facing explanation when err is an invalid transition.
func (s *Service) rejectOr(session domain.LoggedSession, err error) (Result, error) {
	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		return Result{Session: session, Prompt: noticePrompt(invalid.Explanation())}, err
	}
	return Result{Session: session}, err
}

func (s *Service) pickWindow() time.Duration {
	if s.cfg.RetryWindow > s.cfg.MatchWindow {
		return s.cfg.RetryWindow
	}
	return s.cfg.MatchWindow
}

var machineKeywords = []string{"treadmill", "indoor", "machine", "elliptical", "rower", "rowing", "erg", "stationary", "spin", "trainer"}

// narrowByAnswer keeps candidates consistent with a clarifying answer. Environment only
// narrows when at least one candidate agrees with it.
func narrowByAnswer(candidates []matching.Candidate, answer domain.ClarificationAnswer) []matching.Candidate {
	out := candidates
	if answer.DurationMin > 0 {
		want := time.Duration(answer.DurationMin) * time.Minute
		tolerance := want / 4
		if tolerance < 10*time.Minute {
			tolerance = 10 * time.Minute
		}
		kept := make([]matching.Candidate, 0, len(out))
		for _, c := range out {
			diff := c.Workout.Duration() - want
			if diff < 0 {
				diff = -diff
			}
			if diff <= tolerance {
				kept = append(kept, c)
			}
		}
		out = kept
	}

	if answer.Environment != "" && len(out) > 1 {
		wantMachine := answer.Environment == domain.EnvironmentMachine
		agreeing := make([]matching.Candidate, 0, len(out))
		for _, c := range out {
			if isMachineActivity(c.Workout.ActivityType) == wantMachine {
				agreeing = append(agreeing, c)
			}
		}
		if len(agreeing) > 0 {
			out = agreeing
		}
	}
	return out
}

func isMachineActivity(activityType string) bool {
	at := strings.ToLower(activityType)
	for _, kw := range machineKeywords {
		if strings.Contains(at, kw) {
			return true
		}
	}
	return false
}
