package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRematchCommand(opts *globalOptions) *cobra.Command {
	var (
		lookback time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "rematch",
		Short: "Re-run matching for sessions that are still unattributed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			coach, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer coach.Close()

			if lookback <= 0 {
				lookback = coach.Config.SweepLookback
			}
			if limit <= 0 {
				limit = coach.Config.SweepBatchSize
			}

			report, err := coach.Sessions.SweepPending(cmd.Context(), time.Now().UTC().Add(-lookback), limit)
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d updated=%d skipped=%d\n", report.Scanned, len(report.Updated), report.Skipped)
			for _, res := range report.Updated {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", res.Session.ID, res.Session.Status)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "how far back to look (defaults to SWEEP_LOOKBACK)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum sessions to scan (defaults to SWEEP_BATCH_SIZE)")
	return cmd
}
