// Package memory provides in-process repositories for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/planner"
)

type idempotencyKey struct {
	userID string
	key    string
}

type dayKey struct {
	userID string
	date   time.Time
}

// Store keeps sessions, workouts, signals and cached plans in memory. It enforces the
// same version check and workout uniqueness as the Postgres repository.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]domain.LoggedSession
	idempotency map[idempotencyKey]string
	workouts    map[string]domain.WorkoutRecord
	signals     map[dayKey]domain.RecoverySignal
	plans       map[dayKey]planner.Plan
	changes     []domain.StateChange
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]domain.LoggedSession),
		idempotency: make(map[idempotencyKey]string),
		workouts:    make(map[string]domain.WorkoutRecord),
		signals:     make(map[dayKey]domain.RecoverySignal),
		plans:       make(map[dayKey]planner.Plan),
	}
}

// AddWorkouts inserts or replaces workout records.
func (s *Store) AddWorkouts(records ...domain.WorkoutRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.Source == "" {
			r.Source = domain.SourceWearable
		}
		s.workouts[r.ID] = r
	}
}

// WorkoutsBetween implements domain.WorkoutStore.
func (s *Store) WorkoutsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.WorkoutRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WorkoutRecord, 0)
	for _, w := range s.workouts {
		if w.UserID != userID || w.Start.Before(from) || w.Start.After(to) {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RecentWorkouts implements domain.WorkoutStore.
func (s *Store) RecentWorkouts(ctx context.Context, userID string, days int, now time.Time) ([]domain.WorkoutRecord, error) {
	return s.WorkoutsBetween(ctx, userID, now.AddDate(0, 0, -days), now)
}

// FindByIdempotency implements domain.SessionRepository.
func (s *Store) FindByIdempotency(_ context.Context, userID, key string) (*domain.LoggedSession, error) {
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idempotency[idempotencyKey{userID: userID, key: key}]
	if !ok {
		return nil, nil
	}
	session := s.sessions[id]
	return &session, nil
}

// Create implements domain.SessionRepository.
func (s *Store) Create(_ context.Context, session domain.LoggedSession, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		s.idempotency[idempotencyKey{userID: session.UserID, key: key}] = session.ID
	}
	s.sessions[session.ID] = session
	return nil
}

// Get implements domain.SessionRepository.
func (s *Store) Get(_ context.Context, userID, sessionID string) (*domain.LoggedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, nil
	}
	return &session, nil
}

// Save implements domain.SessionRepository.
func (s *Store) Save(_ context.Context, session domain.LoggedSession, expectedVersion int64, change domain.StateChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrConcurrentUpdate
	}
	if session.Active() && session.WorkoutID != nil {
		for id, other := range s.sessions {
			if id != session.ID && other.HoldsWorkout(*session.WorkoutID) {
				return domain.ErrWorkoutClaimed
			}
		}
	}
	s.sessions[session.ID] = session
	s.changes = append(s.changes, change)
	return nil
}

// ActiveHolders implements domain.SessionRepository.
func (s *Store) ActiveHolders(_ context.Context, userID string, workoutIDs []string) (map[string]string, error) {
	wanted := make(map[string]struct{}, len(workoutIDs))
	for _, id := range workoutIDs {
		wanted[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	holders := make(map[string]string)
	for _, session := range s.sessions {
		if session.UserID != userID || !session.Active() || session.WorkoutID == nil {
			continue
		}
		if _, ok := wanted[*session.WorkoutID]; ok {
			holders[*session.WorkoutID] = session.ID
		}
	}
	return holders, nil
}

// LatestActive implements domain.SessionRepository.
func (s *Store) LatestActive(ctx context.Context, userID string) (*domain.LoggedSession, error) {
	history, err := s.History(ctx, userID, time.Time{}, 1)
	if err != nil || len(history) == 0 {
		return nil, err
	}
	return &history[0], nil
}

// History implements domain.SessionRepository.
func (s *Store) History(_ context.Context, userID string, since time.Time, limit int) ([]domain.LoggedSession, error) {
	s.mu.RLock()
	out := make([]domain.LoggedSession, 0)
	for _, session := range s.sessions {
		if session.UserID != userID || !session.Active() || session.LoggedAt.Before(since) {
			continue
		}
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoggedAt.Equal(out[j].LoggedAt) {
			return out[i].LoggedAt.After(out[j].LoggedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByUser implements domain.SessionRepository.
func (s *Store) ListByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LoggedSession, *domain.Cursor, error) {
	s.mu.RLock()
	out := make([]domain.LoggedSession, 0)
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		if cursor != nil && !before(session, *cursor) {
			continue
		}
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoggedAt.Equal(out[j].LoggedAt) {
			return out[i].LoggedAt.After(out[j].LoggedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit <= 0 || len(out) <= limit {
		return out, nil, nil
	}
	out = out[:limit]
	last := out[len(out)-1]
	return out, &domain.Cursor{LoggedAt: last.LoggedAt, ID: last.ID}, nil
}

// before reports whether session sorts strictly after the cursor position.
func before(session domain.LoggedSession, c domain.Cursor) bool {
	if !session.LoggedAt.Equal(c.LoggedAt) {
		return session.LoggedAt.Before(c.LoggedAt)
	}
	return session.ID < c.ID
}

// ListByStatus implements domain.SessionRepository.
func (s *Store) ListByStatus(_ context.Context, statuses []domain.SessionStatus, since time.Time, limit int) ([]domain.LoggedSession, error) {
	wanted := make(map[domain.SessionStatus]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}
	s.mu.RLock()
	out := make([]domain.LoggedSession, 0)
	for _, session := range s.sessions {
		if _, ok := wanted[session.Status]; !ok || session.LoggedAt.Before(since) {
			continue
		}
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoggedAt.Equal(out[j].LoggedAt) {
			return out[i].LoggedAt.Before(out[j].LoggedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Changes returns the recorded state changes in write order.
func (s *Store) Changes() []domain.StateChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StateChange, len(s.changes))
	copy(out, s.changes)
	return out
}

// ContentUses implements domain.ContentRepository.
func (s *Store) ContentUses(ctx context.Context, userID, contentID string) ([]domain.ContentUse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ContentUse, 0)
	for _, session := range s.sessions {
		if session.UserID != userID || session.ContentID != contentID || !session.Active() {
			continue
		}
		use := domain.ContentUse{Session: session}
		if id := session.ChosenWorkout(); id != "" {
			if w, ok := s.workouts[id]; ok && w.UserID == userID {
				strain := w.Strain
				use.Strain = &strain
			}
		}
		out = append(out, use)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Session, out[j].Session
		if !a.LoggedAt.Equal(b.LoggedAt) {
			return a.LoggedAt.After(b.LoggedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

// GetSignal implements domain.SignalRepository.
func (s *Store) GetSignal(_ context.Context, userID string, date time.Time) (*domain.RecoverySignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[dayKey{userID: userID, date: domain.DateOf(date)}]
	if !ok {
		return nil, nil
	}
	return &sig, nil
}

// UpsertSignal implements domain.SignalRepository. Only the halves present on signal
// overwrite the stored row.
func (s *Store) UpsertSignal(_ context.Context, signal domain.RecoverySignal) error {
	if err := signal.Validate(); err != nil {
		return err
	}
	signal.Date = domain.DateOf(signal.Date)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{userID: signal.UserID, date: signal.Date}
	if current, ok := s.signals[key]; ok {
		signal = current.Merge(signal)
	}
	s.signals[key] = signal
	return nil
}

// SignalsBetween implements domain.SignalRepository.
func (s *Store) SignalsBetween(_ context.Context, userID string, from, to time.Time) ([]domain.RecoverySignal, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	s.mu.RLock()
	out := make([]domain.RecoverySignal, 0)
	for key, sig := range s.signals {
		if key.userID != userID || key.date.Before(from) || key.date.After(to) {
			continue
		}
		out = append(out, sig)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// SavePlan implements planner.PlanCache.
func (s *Store) SavePlan(_ context.Context, plan planner.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[dayKey{userID: plan.UserID, date: domain.DateOf(plan.Date)}] = plan
	return nil
}

// LatestPlan implements planner.PlanCache.
func (s *Store) LatestPlan(_ context.Context, userID string, date time.Time) (*planner.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[dayKey{userID: userID, date: domain.DateOf(date)}]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}
