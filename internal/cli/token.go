package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/coach/internal/auth"
	"example.com/coach/internal/config"
)

func newTokenCommand() *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed API token using JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.Issue(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "user id carried in the sub claim")
	cmd.Flags().StringSliceVar(&scopes, "scope", auth.AllScopes, "scopes to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
