package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/coach/internal/events"
)

const (
	uniqueViolation          = "23505"
	activeWorkoutConstraint  = "logged_sessions_active_workout_idx"
	idempotencyKeyConstraint = "logged_sessions_idempotency_idx"
)

// Repository provides Postgres-backed persistence for sessions, workouts, signals,
// cached plans and their outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// inUserTx runs fn in a transaction scoped to userID for row level security.
func (r *Repository) inUserTx(ctx context.Context, userID string, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type outboxRecord struct {
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	DedupeKey     string
	Payload       any
}

// insertOutbox appends an event row. Rows with an already-seen dedupe key are dropped.
func insertOutbox(ctx context.Context, tx pgx.Tx, rec outboxRecord) error {
	body, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[rec.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", rec.EventType)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		rec.UserID,
		rec.AggregateType,
		rec.AggregateID,
		rec.EventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(rec),
		body,
		rec.DedupeKey,
	)
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// limitArg maps a non-positive limit to SQL NULL, which Postgres reads as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(outboxRecord) string
}

func byUser(rec outboxRecord) string { return rec.UserID }

var eventCatalog = map[string]EventMetadata{
	events.TypeSessionStateChanged: {
		Topic:          "session_state_changed",
		SchemaSubject:  "session_state_changed-value",
		PartitionKeyFn: byUser,
	},
	events.TypePlanGenerated: {
		Topic:          "plan_generated",
		SchemaSubject:  "plan_generated-value",
		PartitionKeyFn: byUser,
	},
}
