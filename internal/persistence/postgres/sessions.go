package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/events"
)

const sessionColumns = `session_id, user_id, raw_reference, content_id, activity_hint, logged_at, status, workout_id, exertion,
        answer_environment, answer_duration_min, retry_count, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.LoggedSession, error) {
	var (
		s           domain.LoggedSession
		environment *string
		durationMin *int
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.RawReference, &s.ContentID, &s.ActivityHint, &s.LoggedAt, &s.Status, &s.WorkoutID, &s.Exertion,
		&environment, &durationMin, &s.RetryCount, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.LoggedSession{}, err
	}
	if environment != nil || durationMin != nil {
		s.Answer = &domain.ClarificationAnswer{}
		if environment != nil {
			s.Answer.Environment = *environment
		}
		if durationMin != nil {
			s.Answer.DurationMin = *durationMin
		}
	}
	return s, nil
}

func answerColumns(a *domain.ClarificationAnswer) (any, any) {
	if a == nil {
		return nil, nil
	}
	var duration any
	if a.DurationMin > 0 {
		duration = a.DurationMin
	}
	return nullIfEmpty(a.Environment), duration
}

// FindByIdempotency returns the session created with the given key, or nil.
func (r *Repository) FindByIdempotency(ctx context.Context, userID, idempotencyKey string) (*domain.LoggedSession, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	query := `SELECT ` + sessionColumns + ` FROM logged_sessions WHERE user_id=$1 AND idempotency_key=$2`
	return r.getOne(ctx, userID, query, userID, idempotencyKey)
}

// Get retrieves a session by id for its owner.
func (r *Repository) Get(ctx context.Context, userID, sessionID string) (*domain.LoggedSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM logged_sessions WHERE user_id=$1 AND session_id=$2`
	return r.getOne(ctx, userID, query, userID, sessionID)
}

// LatestActive returns the most recently logged session that is not undone.
func (r *Repository) LatestActive(ctx context.Context, userID string) (*domain.LoggedSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM logged_sessions
        WHERE user_id=$1 AND status <> 'undone'
        ORDER BY logged_at DESC, session_id DESC LIMIT 1`
	return r.getOne(ctx, userID, query, userID)
}

func (r *Repository) getOne(ctx context.Context, userID, query string, args ...any) (*domain.LoggedSession, error) {
	var found *domain.LoggedSession
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		s, err := scanSession(tx.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Create inserts a new session.
func (r *Repository) Create(ctx context.Context, s domain.LoggedSession, idempotencyKey string) error {
	const stmt = `INSERT INTO logged_sessions (session_id, user_id, raw_reference, content_id, activity_hint, logged_at, status, workout_id, exertion,
            answer_environment, answer_duration_min, retry_count, idempotency_key, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	environment, duration := answerColumns(s.Answer)
	err := r.inUserTx(ctx, s.UserID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			s.ID, s.UserID, s.RawReference, s.ContentID, s.ActivityHint, s.LoggedAt, s.Status, s.WorkoutID, s.Exertion,
			environment, duration, s.RetryCount, nullIfEmpty(idempotencyKey), s.Version, s.CreatedAt, s.UpdatedAt,
		)
		return err
	})
	if isUniqueViolation(err, idempotencyKeyConstraint) {
		return fmt.Errorf("idempotency key %q already used: %w", idempotencyKey, domain.ErrConcurrentUpdate)
	}
	return err
}

// Save performs a compare-and-swap on the session version and records the state change
// in the outbox within the same transaction.
func (r *Repository) Save(ctx context.Context, s domain.LoggedSession, expectedVersion int64, change domain.StateChange) error {
	const stmt = `UPDATE logged_sessions
        SET status=$3, workout_id=$4, exertion=$5, answer_environment=$6, answer_duration_min=$7, retry_count=$8, version=$9, updated_at=$10
        WHERE user_id=$1 AND session_id=$2 AND version=$11`

	environment, duration := answerColumns(s.Answer)
	err := r.inUserTx(ctx, s.UserID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt,
			s.UserID, s.ID, s.Status, s.WorkoutID, s.Exertion, environment, duration, s.RetryCount, s.Version, s.UpdatedAt, expectedVersion,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM logged_sessions WHERE user_id=$1 AND session_id=$2)`, s.UserID, s.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrSessionNotFound
			}
			return domain.ErrConcurrentUpdate
		}

		return insertOutbox(ctx, tx, outboxRecord{
			UserID:        s.UserID,
			AggregateType: "session",
			AggregateID:   s.ID,
			EventType:     events.TypeSessionStateChanged,
			DedupeKey:     fmt.Sprintf("%s:%d", s.ID, s.Version),
			Payload: events.SessionStateChanged{
				SessionID:  change.SessionID,
				UserID:     change.UserID,
				From:       string(change.From),
				Event:      string(change.Event),
				To:         string(change.To),
				WorkoutID:  change.WorkoutID,
				Version:    s.Version,
				OccurredAt: change.OccurredAt,
			},
		})
	})
	if isUniqueViolation(err, activeWorkoutConstraint) {
		return domain.ErrWorkoutClaimed
	}
	return err
}

// ActiveHolders maps workout ids held by non-undone sessions to the holding session.
func (r *Repository) ActiveHolders(ctx context.Context, userID string, workoutIDs []string) (map[string]string, error) {
	holders := make(map[string]string)
	if len(workoutIDs) == 0 {
		return holders, nil
	}
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT workout_id, session_id FROM logged_sessions
            WHERE user_id=$1 AND status <> 'undone' AND workout_id = ANY($2)`, userID, workoutIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var workoutID, sessionID string
			if err := rows.Scan(&workoutID, &sessionID); err != nil {
				return err
			}
			holders[workoutID] = sessionID
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return holders, nil
}

// History lists active sessions logged at or after since, newest first.
func (r *Repository) History(ctx context.Context, userID string, since time.Time, limit int) ([]domain.LoggedSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM logged_sessions
        WHERE user_id=$1 AND status <> 'undone' AND logged_at >= $2
        ORDER BY logged_at DESC, session_id DESC LIMIT $3`

	var out []domain.LoggedSession
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		var err error
		out, err = collectSessions(tx.Query(ctx, query, userID, since, limitArg(limit)))
		return err
	})
	return out, err
}

// ListByUser pages through a user's sessions with a keyset cursor.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LoggedSession, *domain.Cursor, error) {
	// One extra row tells whether another page follows.
	args := []any{userID, nil}
	if limit > 0 {
		args[1] = limit + 1
	}
	query := `SELECT ` + sessionColumns + ` FROM logged_sessions WHERE user_id=$1`
	if cursor != nil {
		query += ` AND (logged_at, session_id) < ($3, $4)`
		args = append(args, cursor.LoggedAt, cursor.ID)
	}
	query += ` ORDER BY logged_at DESC, session_id DESC LIMIT $2`

	var results []domain.LoggedSession
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		var err error
		results, err = collectSessions(tx.Query(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if limit <= 0 || len(results) <= limit {
		return results, nil, nil
	}
	results = results[:limit]
	last := results[len(results)-1]
	return results, &domain.Cursor{LoggedAt: last.LoggedAt, ID: last.ID}, nil
}

// ListByStatus lists sessions of every user in the given statuses, oldest first. It runs
// without a user scope and is meant for background sweeps.
func (r *Repository) ListByStatus(ctx context.Context, statuses []domain.SessionStatus, since time.Time, limit int) ([]domain.LoggedSession, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	query := `SELECT ` + sessionColumns + ` FROM logged_sessions
        WHERE status = ANY($1) AND logged_at >= $2
        ORDER BY logged_at, session_id LIMIT $3`
	return collectSessions(r.pool.Query(ctx, query, names, since, limitArg(limit)))
}

// ContentUses lists active sessions logged with contentID, newest first, each with the
// strain of its attributed workout.
func (r *Repository) ContentUses(ctx context.Context, userID, contentID string) ([]domain.ContentUse, error) {
	query := `SELECT ` + sessionColumns + ` FROM logged_sessions
        WHERE user_id=$1 AND content_id=$2 AND status <> 'undone'
        ORDER BY logged_at DESC, session_id DESC`

	var uses []domain.ContentUse
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		sessions, err := collectSessions(tx.Query(ctx, query, userID, contentID))
		if err != nil {
			return err
		}

		workoutIDs := make([]string, 0, len(sessions))
		for _, s := range sessions {
			if id := s.ChosenWorkout(); id != "" {
				workoutIDs = append(workoutIDs, id)
			}
		}
		strains := make(map[string]float64, len(workoutIDs))
		if len(workoutIDs) > 0 {
			rows, err := tx.Query(ctx, `SELECT workout_id, strain FROM workout_records WHERE user_id=$1 AND workout_id = ANY($2)`, userID, workoutIDs)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				var strain float64
				if err := rows.Scan(&id, &strain); err != nil {
					return err
				}
				strains[id] = strain
			}
			if err := rows.Err(); err != nil {
				return err
			}
		}

		uses = make([]domain.ContentUse, 0, len(sessions))
		for _, s := range sessions {
			use := domain.ContentUse{Session: s}
			if strain, ok := strains[s.ChosenWorkout()]; ok {
				use.Strain = &strain
			}
			uses = append(uses, use)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uses, nil
}

func collectSessions(rows pgx.Rows, err error) ([]domain.LoggedSession, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LoggedSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
