package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/events"
	"example.com/coach/internal/planner"
)

// SavePlan caches the plan for (user, date) and emits plan.generated once per distinct hash.
func (r *Repository) SavePlan(ctx context.Context, plan planner.Plan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	date := domain.DateOf(plan.Date)

	const stmt = `INSERT INTO daily_plans (user_id, plan_date, hash, as_of, plan, generated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id, plan_date) DO UPDATE SET
            hash = EXCLUDED.hash, as_of = EXCLUDED.as_of, plan = EXCLUDED.plan, generated_at = EXCLUDED.generated_at`

	now := time.Now().UTC()
	return r.inUserTx(ctx, plan.UserID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt, plan.UserID, date, plan.Hash, plan.AsOf, body, now); err != nil {
			return err
		}

		recommended := make([]string, 0, len(plan.Days))
		for _, day := range plan.Days {
			if day.Recommended != nil {
				recommended = append(recommended, day.Recommended.Type.ID)
			}
		}
		return insertOutbox(ctx, tx, outboxRecord{
			UserID:        plan.UserID,
			AggregateType: "plan",
			AggregateID:   fmt.Sprintf("%s:%s", plan.UserID, date.Format(events.DateLayout)),
			EventType:     events.TypePlanGenerated,
			DedupeKey:     fmt.Sprintf("plan:%s:%s:%s", plan.UserID, date.Format(events.DateLayout), plan.Hash),
			Payload: events.PlanGenerated{
				UserID:      plan.UserID,
				Date:        date.Format(events.DateLayout),
				Hash:        plan.Hash,
				Recommended: recommended,
				GeneratedAt: now,
			},
		})
	})
}

// LatestPlan returns the cached plan for (user, date), or nil.
func (r *Repository) LatestPlan(ctx context.Context, userID string, date time.Time) (*planner.Plan, error) {
	var found *planner.Plan
	err := r.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		var body []byte
		err := tx.QueryRow(ctx, `SELECT plan FROM daily_plans WHERE user_id=$1 AND plan_date=$2`, userID, domain.DateOf(date)).Scan(&body)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		var plan planner.Plan
		if err := json.Unmarshal(body, &plan); err != nil {
			return fmt.Errorf("decode cached plan: %w", err)
		}
		found = &plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
