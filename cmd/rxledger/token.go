package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medrex/rxledger/internal/gateway"
	"github.com/medrex/rxledger/pkg/config"
	"github.com/medrex/rxledger/pkg/types"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <identity>",
	Short: "Issue a bearer token asserting an identity",
	Long: "Signs a JWT with the configured secret whose subject is the given identity. " +
		"Intended for development and operator tooling.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		ttl := tokenTTL
		if ttl == 0 {
			ttl = time.Duration(cfg.JWT.AccessTokenTTL) * time.Second
		}

		validator := gateway.NewTokenValidator(cfg.JWT.SecretKey, cfg.JWT.Issuer, cfg.JWT.Audience)
		token, err := validator.GenerateToken(types.Identity(args[0]), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to jwt.access_token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
