package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/coach/internal/domain"
)

const signalColumns = `user_id, signal_date, recovery_pct, resting_hr, hrv, soreness, pain_flags, has_recovery, has_soreness, updated_at`

func scanSignal(row rowScanner) (domain.RecoverySignal, error) {
	var s domain.RecoverySignal
	if err := row.Scan(&s.UserID, &s.Date, &s.RecoveryPct, &s.RestingHR, &s.HRV, &s.Soreness, &s.PainFlags, &s.HasRecovery, &s.HasSoreness, &s.UpdatedAt); err != nil {
		return domain.RecoverySignal{}, err
	}
	s.Date = domain.DateOf(s.Date)
	if len(s.PainFlags) == 0 {
		s.PainFlags = nil
	}
	return s, nil
}

// GetSignal returns the merged signal for (user, date), or nil.
func (r *Repository) GetSignal(ctx context.Context, userID string, date time.Time) (*domain.RecoverySignal, error) {
	query := `SELECT ` + signalColumns + ` FROM recovery_signals WHERE user_id=$1 AND signal_date=$2`

	var found *domain.RecoverySignal
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		s, err := scanSignal(tx.QueryRow(ctx, query, userID, domain.DateOf(date)))
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

// UpsertSignal writes a signal keyed by (user, date). Each half only overwrites the stored
// row when the incoming signal carries it, so concurrent wearable and chat writes merge.
func (r *Repository) UpsertSignal(ctx context.Context, s domain.RecoverySignal) error {
	if err := s.Validate(); err != nil {
		return err
	}

	const stmt = `INSERT INTO recovery_signals (` + signalColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7::text[], '{}'),$8,$9,$10)
        ON CONFLICT (user_id, signal_date) DO UPDATE SET
            recovery_pct = CASE WHEN EXCLUDED.has_recovery THEN EXCLUDED.recovery_pct ELSE recovery_signals.recovery_pct END,
            resting_hr   = CASE WHEN EXCLUDED.has_recovery THEN EXCLUDED.resting_hr ELSE recovery_signals.resting_hr END,
            hrv          = CASE WHEN EXCLUDED.has_recovery THEN EXCLUDED.hrv ELSE recovery_signals.hrv END,
            soreness     = CASE WHEN EXCLUDED.has_soreness THEN EXCLUDED.soreness ELSE recovery_signals.soreness END,
            pain_flags   = CASE WHEN EXCLUDED.has_soreness THEN EXCLUDED.pain_flags ELSE recovery_signals.pain_flags END,
            has_recovery = recovery_signals.has_recovery OR EXCLUDED.has_recovery,
            has_soreness = recovery_signals.has_soreness OR EXCLUDED.has_soreness,
            updated_at   = EXCLUDED.updated_at`

	return r.inUserTx(ctx, s.UserID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			s.UserID, domain.DateOf(s.Date), s.RecoveryPct, s.RestingHR, s.HRV, s.Soreness, s.PainFlags, s.HasRecovery, s.HasSoreness, s.UpdatedAt,
		)
		return err
	})
}

// SignalsBetween returns signals dated within [from, to], oldest first.
func (r *Repository) SignalsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.RecoverySignal, error) {
	query := `SELECT ` + signalColumns + ` FROM recovery_signals
        WHERE user_id=$1 AND signal_date BETWEEN $2 AND $3
        ORDER BY signal_date`

	signals := make([]domain.RecoverySignal, 0)
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, userID, domain.DateOf(from), domain.DateOf(to))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			s, err := scanSignal(rows)
			if err != nil {
				return err
			}
			signals = append(signals, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return signals, nil
}
