package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mail-agent/internal/cli"
	"mail-agent/internal/email"
)

func newAuthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access and store the token file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, opts)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if cfg.Mailbox.Provider != "gmail" {
				return fmt.Errorf("auth is only needed for the gmail provider (mailbox.provider is %s)", cfg.Mailbox.Provider)
			}

			oauthConfig, err := gmailSettings(cfg).OAuthConfig()
			if err != nil {
				return err
			}

			authorizer := email.NewAuthorizer(cmd.InOrStdin(), cmd.ErrOrStderr())
			token, err := authorizer.Authorize(cmd.Context(), oauthConfig)
			if err != nil {
				return err
			}

			store := email.NewTokenStore(cfg.Gmail.TokenFile)
			if err := store.Save(token); err != nil {
				return err
			}

			formatter := cli.NewOutputFormatter(opts.format, opts.quiet, cmd.OutOrStdout(), cmd.ErrOrStderr())
			formatter.PrintSuccess("Token saved to " + store.Path())
			return nil
		},
	}
}
