package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQManager replays failed outbox messages and quarantines entries that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *log.Logger
}

// NewDLQManager constructs a DLQManager. Non-positive arguments fall back to five
// retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *log.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[dlq] ", log.LstdFlags)
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce processes one batch of due DLQ entries and returns how many were requeued.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries := make([]dlqEntry, 0)
	var errs []error
	for rows.Next() {
		entry, scanErr := scanDLQEntry(rows)
		if scanErr != nil {
			errs = append(errs, scanErr)
			continue
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if rowsErr := rows.Err(); rowsErr != nil {
		errs = append(errs, rowsErr)
	}

	requeued := 0
	for _, entry := range entries {
		ok, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, procErr))
			continue
		}
		if ok {
			requeued++
		}
	}
	updateBacklogGauge(ctx, m.pool)
	if requeued > 0 {
		m.logger.Printf("requeued %d of %d dlq entries", requeued, len(entries))
	}
	return requeued, errors.Join(errs...)
}

// handleEntry quarantines, requeues or reschedules one entry. It reports whether the
// entry went back to the outbox.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, "retry limit reached", entry.ID); err != nil {
			return false, err
		}
		recordDLQOutcome(entry, dlqQuarantined)
		return false, tx.Commit(ctx)
	}

	if insertErr := requeueOutbox(ctx, tx, entry); insertErr != nil {
		delay := m.backoffDelay(entry.RetryCount + 1)
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
			delay, insertErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		recordDLQOutcome(entry, dlqRescheduled)
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	recordDLQOutcome(entry, dlqRequeued)
	return true, nil
}

// backoffDelay doubles baseDelay per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt > 12 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// requeueOutbox reinserts the payload into the outbox for another delivery attempt.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := tx.Exec(ctx, stmt,
		entry.UserID,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.Payload,
	)
	return err
}

// dlqEntry represents an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID            int64
	UserID        string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

func scanDLQEntry(rows pgx.Rows) (dlqEntry, error) {
	var entry dlqEntry
	if err := rows.Scan(&entry.ID, &entry.UserID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason, &entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount); err != nil {
		return dlqEntry{}, err
	}
	return entry, nil
}
