package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/sudo-init-do/agrihub/internal/middleware"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id carried by the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", "account role, e.g. admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	RootCmd.AddCommand(tokenCmd)
}

// Tokens are normally minted by the auth service; this one is for operators and local testing.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return errors.New("usage: agrihub token --user <id> [--role admin]")
		}
		if conf.JWTSecret == "" {
			return errors.New("JWTSecret is not configured")
		}
		token, err := middleware.IssueToken([]byte(conf.JWTSecret), tokenUser, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
