package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"portalsim/engine/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a stream token signed with stream.auth_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Stream.AuthSecret == "" {
				return fmt.Errorf("stream.auth_secret is not configured")
			}
			verifier, err := auth.NewTokenVerifier(a.cfg.Stream.AuthSecret, 0)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "renderer", "client identity embedded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
