package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/card-control/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for a principal",
	Long: `token signs an HS256 bearer token with JWT_SECRET and JWT_ISSUER. The
subject becomes the principal that owns cards and controls.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("subject", "", "principal the token is issued to (required)")
	tokenCmd.Flags().String("username", "", "display name carried in the token")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return auth.ErrMissingSecret
	}

	subject, _ := cmd.Flags().GetString("subject")
	username, _ := cmd.Flags().GetString("username")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	issuer, err := auth.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(subject, username, ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
