package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"echoclicker/internal/config"
	"echoclicker/pkg/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.JWT.ExpireTime) * time.Second
			}
			token, err := auth.NewIssuer(cfg.JWT.Secret, ttl).GenerateToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_EXPIRE_TIME)")
	return cmd
}
