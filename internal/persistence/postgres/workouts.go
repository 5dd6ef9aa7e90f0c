package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/coach/internal/domain"
)

// WorkoutsBetween reads workout records that started within [from, to].
func (r *Repository) WorkoutsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.WorkoutRecord, error) {
	const query = `SELECT workout_id, user_id, started_at, ended_at, activity_type, zone_minutes, strain, source
        FROM workout_records
        WHERE user_id=$1 AND started_at BETWEEN $2 AND $3
        ORDER BY started_at, workout_id`

	records := make([]domain.WorkoutRecord, 0)
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, userID, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec   domain.WorkoutRecord
				zones []float64
			)
			if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Start, &rec.End, &rec.ActivityType, &zones, &rec.Strain, &rec.Source); err != nil {
				return err
			}
			copy(rec.Zones[:], zones)
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RecentWorkouts reads records that started in the days before now.
func (r *Repository) RecentWorkouts(ctx context.Context, userID string, days int, now time.Time) ([]domain.WorkoutRecord, error) {
	return r.WorkoutsBetween(ctx, userID, now.AddDate(0, 0, -days), now)
}
