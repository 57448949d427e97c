package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mail-agent/internal/cli"
	"mail-agent/internal/config"
	"mail-agent/internal/email"
)

// session bundles what a one-shot mailbox command needs
type session struct {
	ctx       context.Context
	cfg       *config.Config
	gateway   email.Gateway
	logger    *slog.Logger
	formatter *cli.OutputFormatter
}

// withMailbox loads configuration, connects the gateway and runs fn
func withMailbox(cmd *cobra.Command, opts *globalOptions, fn func(s *session) error) error {
	cfg, err := loadConfiguration(cmd, opts)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(quietLog(cfg.Log), cmd.ErrOrStderr())
	formatter := cli.NewOutputFormatter(opts.format, opts.quiet, cmd.OutOrStdout(), cmd.ErrOrStderr())

	gateway, err := openGateway(cmd.Context(), cfg, logger, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create mail gateway: %w", err)
	}
	defer gateway.Close()

	return fn(&session{
		ctx:       cmd.Context(),
		cfg:       cfg,
		gateway:   gateway,
		logger:    logger,
		formatter: formatter,
	})
}

// quietLog keeps one-shot commands from printing info-level chatter
func quietLog(cfg config.LogConfig) config.LogConfig {
	if parseLevel(cfg.Level) < slog.LevelWarn {
		cfg.Level = "warn"
	}
	return cfg
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var maxResults int64
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMailbox(cmd, opts, func(s *session) error {
				return listMessages(s, maxResults, query)
			})
		},
	}

	cmd.Flags().Int64VarP(&maxResults, "max", "n", 10, "maximum number of messages")
	cmd.Flags().StringVar(&query, "query", "", "mailbox search query (default: all mail)")
	return cmd
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var maxResults int64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search messages, e.g. 'from:boss@company.com is:unread'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMailbox(cmd, opts, func(s *session) error {
				return listMessages(s, maxResults, args[0])
			})
		},
	}

	cmd.Flags().Int64VarP(&maxResults, "max", "n", 10, "maximum number of messages")
	return cmd
}

// listMessages fetches and prints each matching message
func listMessages(s *session, maxResults int64, query string) error {
	if maxResults <= 0 {
		return fmt.Errorf("--max must be positive")
	}

	refs, err := s.gateway.ListMessages(s.ctx, maxResults, query)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]email.ParsedMessage, 0, len(refs))
	for _, ref := range refs {
		raw, err := s.gateway.GetMessage(s.ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", ref.ID, err)
		}
		messages = append(messages, email.ParseMessage(raw))
	}

	return s.formatter.PrintMessages(messages)
}

func newReadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Show the full content of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMailbox(cmd, opts, func(s *session) error {
				raw, err := s.gateway.GetMessage(s.ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get message %s: %w", args[0], err)
				}
				return s.formatter.PrintMessage(email.ParseMessage(raw))
			})
		},
	}
}

func newSendCmd(opts *globalOptions) *cobra.Command {
	var out email.OutgoingMessage

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an email or a threaded reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMailbox(cmd, opts, func(s *session) error {
				result, err := s.gateway.SendMessage(s.ctx, out)
				if err != nil {
					return fmt.Errorf("failed to send email: %w", err)
				}
				s.formatter.PrintSuccess(fmt.Sprintf("Email sent to %s (id %s)", out.To, result.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&out.To, "to", "", "recipient address")
	cmd.Flags().StringVar(&out.Subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&out.Body, "body", "", "plain-text body")
	cmd.Flags().StringVar(&out.ThreadID, "thread", "", "thread to reply in")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("subject")
	cmd.MarkFlagRequired("body")
	return cmd
}
