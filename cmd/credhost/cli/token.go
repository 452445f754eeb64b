package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/status-im/credential-host/server/jwt"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		scope   string
		expiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin API token",
		Long: `Sign a bearer token for the admin API with the configured jwt_secret.

The token is printed on stdout; its expiry is printed on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			if expiry <= 0 {
				expiry = time.Duration(cfg.TokenExpiryMinutes) * time.Minute
			}

			token, expiresAt, err := jwt.Generate(cfg.JWTSecret, subject, scope, expiry)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject, logged with every change")
	cmd.Flags().StringVar(&scope, "scope", jwt.ScopeAdmin, "token scope")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default token_expiry_minutes)")
	return cmd
}
