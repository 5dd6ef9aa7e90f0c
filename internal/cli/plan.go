package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/coach/internal/events"
	"example.com/coach/internal/planner"
)

func newPlanCommand(opts *globalOptions) *cobra.Command {
	var (
		userID    string
		horizon   int
		equipment string
		asOf      string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a plan for a user and print it as JSON",
		Example: `  coachctl plan --user u1 --horizon 3 --equipment travel_bands
  coachctl --backend memory --workouts seed.yaml plan --user u1 --as-of 2025-06-12`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now().UTC()
			if asOf != "" {
				parsed, err := time.Parse(events.DateLayout, asOf)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				day = parsed
			}

			coach, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer coach.Close()

			plan, err := coach.Plans.GeneratePlan(cmd.Context(), planner.PlanRequest{
				UserID:    userID,
				AsOf:      day,
				Horizon:   horizon,
				Equipment: planner.EquipmentProfile(equipment),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user to plan for")
	cmd.Flags().IntVar(&horizon, "horizon", 3, "number of days to plan")
	cmd.Flags().StringVar(&equipment, "equipment", string(planner.ProfileHomeFull), "equipment profile")
	cmd.Flags().StringVar(&asOf, "as-of", "", "plan start date (YYYY-MM-DD), defaults to today")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
