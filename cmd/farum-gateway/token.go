package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-gateway/internal/app/identity"
	"github.com/PabloGalante/farum-gateway/internal/config"
	"github.com/PabloGalante/farum-gateway/internal/domain"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

// tokenCmd issues a session credential signed with FARUM_JWT_SECRET.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a session token for local development",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		resolver, err := identity.NewResolver(identity.Config{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.JWTIssuer,
			Audience: cfg.Auth.JWTAudience,
		})
		if err != nil {
			return err
		}
		token, err := resolver.Issue(domain.UserID(tokenUser), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id to put in the token subject (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
