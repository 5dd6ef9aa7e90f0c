package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/coach/internal/config"
)

func newTuningCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tuning",
		Short: "Inspect matcher and planner tuning",
	}

	var defaults bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective tuning as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tuning := config.DefaultTuning()
			if !defaults {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				tuning = cfg.Tuning
			}
			out, err := tuning.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	show.Flags().BoolVar(&defaults, "defaults", false, "print built-in defaults instead of TUNING_FILE")

	validate := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a tuning file for unknown keys and out-of-range values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadTuning(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(show, validate)
	return cmd
}
